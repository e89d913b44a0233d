// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/andrewmcdan/workbench/lib/clock"
	"github.com/andrewmcdan/workbench/lib/testutil"
	"github.com/andrewmcdan/workbench/registry"
	"github.com/andrewmcdan/workbench/telemetry"
)

// testRelay is a scripted relay server on a real unix socket. Each
// accepted connection surfaces its decoded requests on a channel and
// lets the test push raw lines back at the client.
type testRelay struct {
	t        *testing.T
	listener net.Listener
	path     string
	conns    chan *testRelayConn
}

type testRelayConn struct {
	conn     net.Conn
	requests chan Message
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()
	path := filepath.Join(testutil.SocketDir(t), "relay.sock")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listening on %s: %v", path, err)
	}
	t.Cleanup(func() { listener.Close() })

	server := &testRelay{
		t:        t,
		listener: listener,
		path:     path,
		conns:    make(chan *testRelayConn, 4),
	}
	go server.acceptLoop()
	return server
}

func (s *testRelay) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		relayConn := &testRelayConn{
			conn:     conn,
			requests: make(chan Message, 16),
		}
		go relayConn.readLoop()
		testutil.RequireSend(s.t, s.conns, relayConn, 5*time.Second, "connection queue full")
	}
}

func (c *testRelayConn) readLoop() {
	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			close(c.requests)
			return
		}
		var message Message
		if err := json.Unmarshal(line, &message); err != nil {
			continue
		}
		c.requests <- message
	}
}

// expectRequest reads the next request and fails unless it has the
// given method.
func (c *testRelayConn) expectRequest(t *testing.T, method string) Message {
	t.Helper()
	message := testutil.RequireReceive(t, c.requests, 5*time.Second, "waiting for %s request", method)
	if message.Method != method {
		t.Fatalf("got request %q, want %q", message.Method, method)
	}
	return message
}

func (c *testRelayConn) sendLine(t *testing.T, line string) {
	t.Helper()
	if _, err := c.conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("writing to client: %v", err)
	}
}

func subscribeSourceID(t *testing.T, message Message) string {
	t.Helper()
	var params SubscribeParams
	if err := json.Unmarshal(message.Params, &params); err != nil {
		t.Fatalf("decoding subscribe params: %v", err)
	}
	return params.SourceID
}

// startClient wires a client to the test relay with a fake clock and
// returns the accepted server side of the first connection.
func startClient(t *testing.T, server *testRelay, reg *registry.Registry, fakeClock *clock.FakeClock) (*Client, *testRelayConn) {
	t.Helper()
	client := New(reg, Options{
		SocketPath: server.path,
		Clock:      fakeClock,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	client.Start()
	t.Cleanup(client.Stop)

	conn := testutil.RequireReceive(t, server.conns, 5*time.Second, "waiting for client connection")
	return client, conn
}

func TestClientRegistersBeforeAnythingElse(t *testing.T) {
	server := newTestRelay(t)
	_, conn := startClient(t, server, registry.New(), clock.Fake(time.Unix(1700000000, 0)))

	message := conn.expectRequest(t, MethodRegisterClient)
	var params RegisterClientParams
	if err := json.Unmarshal(message.Params, &params); err != nil {
		t.Fatalf("decoding registerClient params: %v", err)
	}
	if params.Protocol != ProtocolVersion {
		t.Errorf("protocol = %d, want %d", params.Protocol, ProtocolVersion)
	}
	if string(message.ID) == "" {
		t.Error("registerClient request has no id")
	}
}

func TestSubscribeSendsOncePerSource(t *testing.T) {
	server := newTestRelay(t)
	client, conn := startClient(t, server, registry.New(), clock.Fake(time.Unix(1700000000, 0)))
	conn.expectRequest(t, MethodRegisterClient)

	client.SubscribeSource("supply.12v")
	client.SubscribeSource("supply.12v")
	client.SubscribeSource("gpio.bank0")

	first := conn.expectRequest(t, MethodSubscribe)
	if got := subscribeSourceID(t, first); got != "supply.12v" {
		t.Errorf("first subscribe = %q", got)
	}
	// The duplicate must not produce a second request; the next request
	// on the wire is the second source's subscribe.
	second := conn.expectRequest(t, MethodSubscribe)
	if got := subscribeSourceID(t, second); got != "gpio.bank0" {
		t.Errorf("second subscribe = %q, want gpio.bank0 (duplicate suppressed)", got)
	}
}

func TestUnsubscribeUnknownSourceSendsNothing(t *testing.T) {
	server := newTestRelay(t)
	client, conn := startClient(t, server, registry.New(), clock.Fake(time.Unix(1700000000, 0)))
	conn.expectRequest(t, MethodRegisterClient)

	client.UnsubscribeSource("never-subscribed")
	client.SubscribeSource("marker")

	// The only request after the no-op unsubscribe is the marker
	// subscribe.
	message := conn.expectRequest(t, MethodSubscribe)
	if got := subscribeSourceID(t, message); got != "marker" {
		t.Errorf("next request = %q %q, want the marker subscribe", message.Method, got)
	}
}

func TestUnsubscribeTrackedSourceSendsRequest(t *testing.T) {
	server := newTestRelay(t)
	client, conn := startClient(t, server, registry.New(), clock.Fake(time.Unix(1700000000, 0)))
	conn.expectRequest(t, MethodRegisterClient)

	client.SubscribeSource("supply.12v")
	conn.expectRequest(t, MethodSubscribe)

	client.UnsubscribeSource("supply.12v")
	message := conn.expectRequest(t, MethodUnsubscribe)
	if got := subscribeSourceID(t, message); got != "supply.12v" {
		t.Errorf("unsubscribe source = %q", got)
	}
}

func TestReconnectReplaysSubscriptionsInOrder(t *testing.T) {
	server := newTestRelay(t)
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	client, conn := startClient(t, server, registry.New(), fakeClock)
	conn.expectRequest(t, MethodRegisterClient)

	client.SubscribeSource("b")
	client.SubscribeSource("a")
	conn.expectRequest(t, MethodSubscribe)
	conn.expectRequest(t, MethodSubscribe)

	// Kill the connection; the client backs off on the fake clock and
	// redials.
	conn.conn.Close()
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(DefaultReconnectDelay)

	reconnected := testutil.RequireReceive(t, server.conns, 5*time.Second, "waiting for reconnect")
	reconnected.expectRequest(t, MethodRegisterClient)

	// Replay is sorted, so "a" precedes "b" regardless of subscription
	// order.
	first := reconnected.expectRequest(t, MethodSubscribe)
	if got := subscribeSourceID(t, first); got != "a" {
		t.Errorf("first replayed subscribe = %q, want a", got)
	}
	second := reconnected.expectRequest(t, MethodSubscribe)
	if got := subscribeSourceID(t, second); got != "b" {
		t.Errorf("second replayed subscribe = %q, want b", got)
	}
}

func TestDataFrameNotificationFeedsRegistry(t *testing.T) {
	server := newTestRelay(t)
	reg := registry.New()
	_, conn := startClient(t, server, reg, clock.Fake(time.Unix(1700000000, 0)))
	conn.expectRequest(t, MethodRegisterClient)

	frames := make(chan telemetry.DataFrame, 1)
	reg.AddObserver("v1", func(frame telemetry.DataFrame) {
		frames <- frame
	})

	conn.sendLine(t, `{"jsonrpc":"2.0","method":"workbench.dataFrame","params":{`+
		`"source":{"id":"v1","name":"Voltage 1","kind":"numeric","unit":"V"},`+
		`"frame":{"sourceId":"v1","timestamp":1733000000,`+
		`"points":[{"channelId":"main","numeric":{"value":5.02,"unit":"V"}}]}}}`)

	frame := testutil.RequireReceive(t, frames, 5*time.Second, "waiting for observer delivery")
	sample, ok := frame.Points[0].Payload.(telemetry.NumericSample)
	if !ok || sample.Value != 5.02 {
		t.Fatalf("delivered frame = %+v", frame)
	}

	metadata, ok := reg.Metadata("v1")
	if !ok {
		t.Fatal("source metadata not registered from the frame's source block")
	}
	if metadata.Name != "Voltage 1" || metadata.Kind != telemetry.KindNumeric {
		t.Errorf("metadata = %+v", metadata)
	}
	if latest, ok := reg.Latest("v1"); !ok || len(latest.Points) != 1 {
		t.Error("frame not stored as latest")
	}
}

func TestMalformedLineIsDroppedAndStreamContinues(t *testing.T) {
	server := newTestRelay(t)
	reg := registry.New()
	_, conn := startClient(t, server, reg, clock.Fake(time.Unix(1700000000, 0)))
	conn.expectRequest(t, MethodRegisterClient)

	frames := make(chan telemetry.DataFrame, 1)
	reg.AddObserver("ok", func(frame telemetry.DataFrame) {
		frames <- frame
	})

	conn.sendLine(t, `{"jsonrpc": "2.0", "method": "workbench.dataFrame", "params": {`)
	conn.sendLine(t, `this is not json at all`)
	conn.sendLine(t, `{"jsonrpc":"2.0","method":"workbench.dataFrame","params":{`+
		`"frame":{"sourceId":"ok","points":[{"channelId":"c","numeric":{"value":1}}]}}}`)

	frame := testutil.RequireReceive(t, frames, 5*time.Second, "waiting for the valid frame after garbage")
	if frame.SourceID != "ok" {
		t.Errorf("frame source = %q", frame.SourceID)
	}
}

func TestMetadataNotificationRegistersSources(t *testing.T) {
	server := newTestRelay(t)
	reg := registry.New()
	_, conn := startClient(t, server, reg, clock.Fake(time.Unix(1700000000, 0)))
	conn.expectRequest(t, MethodRegisterClient)

	conn.sendLine(t, `{"jsonrpc":"2.0","method":"workbench.metadata","params":{"sources":[`+
		`{"id":"psu","name":"Bench PSU","kind":"numeric","unit":"V"},`+
		`{"id":"","name":"nameless"},`+
		`{"id":"uart0","kind":"serial"}]}}`)

	deadline := time.Now().Add(5 * time.Second)
	for !reg.IsRegistered("psu") || !reg.IsRegistered("uart0") {
		if time.Now().After(deadline) {
			t.Fatal("metadata sources never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(reg.ListSources()); got != 2 {
		t.Errorf("registered %d sources, want 2 (empty-ID entry skipped)", got)
	}
	if metadata, _ := reg.Metadata("uart0"); metadata.Name != "uart0" {
		t.Errorf("uart0 name = %q, want the ID default", metadata.Name)
	}
}

func TestRequestMetricResetValidation(t *testing.T) {
	server := newTestRelay(t)
	client, conn := startClient(t, server, registry.New(), clock.Fake(time.Unix(1700000000, 0)))
	conn.expectRequest(t, MethodRegisterClient)

	client.RequestMetricReset("", "ch", "min")
	client.RequestMetricReset("src", "", "min")
	client.RequestMetricReset("src", "ch", "")
	client.RequestMetricReset("src", "ch", "min")

	message := conn.expectRequest(t, MethodResetMetric)
	var params ResetMetricParams
	if err := json.Unmarshal(message.Params, &params); err != nil {
		t.Fatalf("decoding resetMetric params: %v", err)
	}
	if params.SourceID != "src" || params.ChannelID != "ch" || params.Metric != "min" {
		t.Errorf("params = %+v", params)
	}
}

func TestRequestIDsAreSequential(t *testing.T) {
	server := newTestRelay(t)
	client, conn := startClient(t, server, registry.New(), clock.Fake(time.Unix(1700000000, 0)))

	register := conn.expectRequest(t, MethodRegisterClient)
	if string(register.ID) != `"ui-1"` {
		t.Errorf("first request id = %s, want \"ui-1\"", register.ID)
	}

	client.SubscribeSource("x")
	subscribe := conn.expectRequest(t, MethodSubscribe)
	if string(subscribe.ID) != `"ui-2"` {
		t.Errorf("second request id = %s, want \"ui-2\"", subscribe.ID)
	}
}

func TestStopJoinsAndIsIdempotent(t *testing.T) {
	server := newTestRelay(t)
	reg := registry.New()
	client, conn := startClient(t, server, reg, clock.Fake(time.Unix(1700000000, 0)))
	conn.expectRequest(t, MethodRegisterClient)

	done := make(chan struct{})
	go func() {
		defer close(done)
		client.Stop()
		client.Stop()
	}()
	testutil.RequireClosed(t, done, 5*time.Second, "Stop did not return")

	// The server side observes the close as its request channel
	// closing.
	for range conn.requests {
	}
}

func TestStartAfterStopReconnects(t *testing.T) {
	server := newTestRelay(t)
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	client, conn := startClient(t, server, registry.New(), fakeClock)
	conn.expectRequest(t, MethodRegisterClient)

	client.SubscribeSource("keep")
	conn.expectRequest(t, MethodSubscribe)

	client.Stop()
	client.Start()

	reconnected := testutil.RequireReceive(t, server.conns, 5*time.Second, "waiting for restart connection")
	reconnected.expectRequest(t, MethodRegisterClient)
	replayed := reconnected.expectRequest(t, MethodSubscribe)
	if got := subscribeSourceID(t, replayed); got != "keep" {
		t.Errorf("restart replayed %q, want keep", got)
	}
}
