// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay maintains the workbench's connection to the external
// hardware relay service. The Client presents a stable logical
// connection over an unreliable transport: it reconnects with a fixed
// backoff after any failure, replays the subscription set on every
// reconnect, and translates inbound notifications into registry calls.
//
// The wire protocol is newline-delimited JSON-RPC 2.0 over a local
// domain socket; see protocol.go for the envelope and method names.
//
// Failure policy: nothing here surfaces errors to callers. Transport
// failures feed the reconnect loop, malformed messages are dropped,
// and outbound requests are best-effort (silently skipped while
// disconnected). A consumer sees failures only as data going stale.
package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andrewmcdan/workbench/lib/clock"
	"github.com/andrewmcdan/workbench/registry"
	"github.com/andrewmcdan/workbench/telemetry"
)

// DefaultReconnectDelay is the fixed wait between connection attempts
// when Options.ReconnectDelay is zero. The delay is deliberately not
// exponential: the relay is a local service and a short constant retry
// keeps recovery prompt.
const DefaultReconnectDelay = 2 * time.Second

// dialTimeout bounds the connect phase of each attempt.
const dialTimeout = 5 * time.Second

// Options configures a Client.
type Options struct {
	// SocketPath is the unix socket address of the relay service.
	// Ignored when Dial is set.
	SocketPath string

	// ReconnectDelay is the fixed backoff between connection attempts.
	// Zero means DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// Dial overrides the transport. Tests substitute a pipe or a
	// loopback listener here; production leaves it nil to dial
	// SocketPath.
	Dial func(ctx context.Context) (net.Conn, error)

	// Clock drives the reconnect backoff and the frame timestamp
	// fallback. Nil means the real clock.
	Clock clock.Clock

	// Logger receives connection lifecycle and drop events. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Client is the resilient relay connection. One background goroutine
// owns the connection loop; all other methods are safe to call from
// any goroutine.
//
// The subscription set and the transport handle are guarded by
// separate locks so that issuing a subscribe request never blocks on
// registry activity or on another caller's send, and vice versa.
type Client struct {
	registry       *registry.Registry
	dial           func(ctx context.Context) (net.Conn, error)
	reconnectDelay time.Duration
	clock          clock.Clock
	logger         *slog.Logger

	// lifecycleMu serializes Start and Stop.
	lifecycleMu sync.Mutex
	running     bool
	stop        chan struct{}
	done        chan struct{}

	subscriptionMu sync.Mutex
	subscriptions  map[string]struct{}

	// connMu guards the active transport handle and serializes writes
	// so concurrent senders cannot interleave partial lines.
	connMu sync.Mutex
	conn   net.Conn

	requestCounter atomic.Uint64
}

// New creates a Client that feeds the given registry. The client does
// not connect until Start is called.
func New(reg *registry.Registry, options Options) *Client {
	client := &Client{
		registry:       reg,
		dial:           options.Dial,
		reconnectDelay: options.ReconnectDelay,
		clock:          options.Clock,
		logger:         options.Logger,
		subscriptions:  make(map[string]struct{}),
	}
	if client.reconnectDelay <= 0 {
		client.reconnectDelay = DefaultReconnectDelay
	}
	if client.clock == nil {
		client.clock = clock.Real()
	}
	if client.logger == nil {
		client.logger = slog.Default()
	}
	if client.dial == nil {
		socketPath := options.SocketPath
		client.dial = func(ctx context.Context) (net.Conn, error) {
			dialer := net.Dialer{Timeout: dialTimeout}
			return dialer.DialContext(ctx, "unix", socketPath)
		}
	}
	return client
}

// Start spawns the connection loop. Calling Start on a running client
// is a no-op. Start after Stop spawns a fresh loop.
func (c *Client) Start() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
}

// Stop shuts the connection loop down: it closes the transport to
// unblock any in-progress read and waits for the loop goroutine to
// exit. No registry callbacks fire on the client's behalf after Stop
// returns. Idempotent.
func (c *Client) Stop() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stop)
	c.closeConn()
	<-c.done
}

// SubscribeSource adds sourceID to the tracked subscription set and,
// if connected, sends the subscribe request immediately. The set
// mutation happens regardless of connection state so the next
// reconnect replays the current desired state. Subscribing to an
// already-subscribed ID sends nothing. Empty IDs are ignored.
func (c *Client) SubscribeSource(sourceID string) {
	if sourceID == "" {
		return
	}
	c.subscriptionMu.Lock()
	_, exists := c.subscriptions[sourceID]
	if !exists {
		c.subscriptions[sourceID] = struct{}{}
	}
	c.subscriptionMu.Unlock()
	if !exists {
		c.send(MethodSubscribe, SubscribeParams{SourceID: sourceID})
	}
}

// UnsubscribeSource removes sourceID from the tracked set and, if it
// was tracked and the client is connected, sends the unsubscribe
// request. Unsubscribing an unknown ID sends nothing.
func (c *Client) UnsubscribeSource(sourceID string) {
	if sourceID == "" {
		return
	}
	c.subscriptionMu.Lock()
	_, exists := c.subscriptions[sourceID]
	if exists {
		delete(c.subscriptions, sourceID)
	}
	c.subscriptionMu.Unlock()
	if exists {
		c.send(MethodUnsubscribe, SubscribeParams{SourceID: sourceID})
	}
}

// RequestMetricReset asks the relay to reset an accumulated metric for
// one channel. Fire-and-forget: no local state changes, and the
// request is silently dropped when disconnected or when any argument
// is empty.
func (c *Client) RequestMetricReset(sourceID, channelID, metric string) {
	if sourceID == "" || channelID == "" || metric == "" {
		return
	}
	c.send(MethodResetMetric, ResetMetricParams{
		SourceID:  sourceID,
		ChannelID: channelID,
		Metric:    metric,
	})
}

// run is the connection loop: connect, register, replay subscriptions,
// read until failure, back off, repeat. Exits only via the stop
// channel.
func (c *Client) run(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, err := c.dial(context.Background())
		if err != nil {
			c.logger.Debug("relay connect failed", "error", err)
		} else if c.adoptConn(conn, stop) {
			c.logger.Info("relay connected")
			c.send(MethodRegisterClient, RegisterClientParams{Protocol: ProtocolVersion})
			c.replaySubscriptions()
			c.readLoop(conn)
			c.closeConn()
			c.logger.Info("relay disconnected")
		} else {
			// Stop raced the dial; adoptConn already closed conn.
			return
		}

		select {
		case <-stop:
			return
		case <-c.clock.After(c.reconnectDelay):
		}
	}
}

// adoptConn installs conn as the active transport unless Stop has
// already been requested, in which case the conn is closed and false
// is returned.
func (c *Client) adoptConn(conn net.Conn, stop chan struct{}) bool {
	c.connMu.Lock()
	select {
	case <-stop:
		c.connMu.Unlock()
		conn.Close()
		return false
	default:
	}
	c.conn = conn
	c.connMu.Unlock()
	return true
}

// closeConn closes and clears the active transport. Safe to call when
// no transport is active.
func (c *Client) closeConn() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// replaySubscriptions sends a subscribe request for every tracked
// source. Runs right after registration on each new connection.
// Resubscription is idempotent on the relay side, so racing an inbound
// frame is harmless.
func (c *Client) replaySubscriptions() {
	c.subscriptionMu.Lock()
	sourceIDs := make([]string, 0, len(c.subscriptions))
	for sourceID := range c.subscriptions {
		sourceIDs = append(sourceIDs, sourceID)
	}
	c.subscriptionMu.Unlock()

	// Stable replay order keeps reconnect traces readable.
	slices.Sort(sourceIDs)
	for _, sourceID := range sourceIDs {
		c.send(MethodSubscribe, SubscribeParams{SourceID: sourceID})
	}
}

// readLoop decodes newline-delimited messages until the connection
// fails or is closed by Stop. Line length is unbounded: waveform
// frames routinely exceed a fixed scanner token limit.
func (c *Client) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && err == nil {
			c.handleLine(line)
		}
		if err != nil {
			// Clean close, abrupt close, and Stop's conn.Close all
			// land here and hand control back to the reconnect loop.
			return
		}
	}
}

// handleLine parses one wire line and dispatches it. Malformed lines
// and unknown methods are dropped; only the transport ends the loop.
func (c *Client) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var message Message
	if err := json.Unmarshal(line, &message); err != nil {
		c.logger.Debug("dropping malformed relay message", "error", err)
		return
	}

	switch {
	case message.Method != "":
		c.handleNotification(message.Method, message.Params)
	case message.IsResponse():
		// Responses to our fire-and-forget requests prove liveness;
		// there is no correlation state to update.
	default:
		c.logger.Debug("dropping relay message with no method or result")
	}
}

func (c *Client) handleNotification(method string, params json.RawMessage) {
	switch method {
	case MethodDataFrame:
		var notification telemetry.FrameNotification
		if err := json.Unmarshal(params, &notification); err != nil {
			c.logger.Debug("dropping malformed dataFrame params", "error", err)
			return
		}
		metadata, frame, ok := notification.Resolve(c.clock.Now())
		// Register metadata before the frame lands so consumers
		// discover new sources ahead of their first data.
		if metadata != nil {
			c.registry.RegisterSource(*metadata)
		}
		if ok {
			c.registry.Update(frame)
		}
	case MethodMetadata:
		for _, source := range ParseMetadataParams(params) {
			if source.ID == "" {
				continue
			}
			c.registry.RegisterSource(source.Metadata())
		}
	default:
		c.logger.Debug("ignoring unknown relay notification", "method", method)
	}
}

// send writes one request line to the active transport. Disconnected
// clients drop the request; write failures are left for the read loop
// to notice as a broken connection.
func (c *Client) send(method string, params any) {
	request := NewRequest(c.nextRequestID(), method, params)
	data, err := EncodeLine(request)
	if err != nil {
		c.logger.Debug("dropping unencodable request", "method", method, "error", err)
		return
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return
	}
	if _, err := c.conn.Write(data); err != nil {
		c.logger.Debug("relay write failed", "method", method, "error", err)
	}
}

func (c *Client) nextRequestID() string {
	return fmt.Sprintf("ui-%d", c.requestCounter.Add(1))
}
