// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/andrewmcdan/workbench/relay"
	"github.com/andrewmcdan/workbench/telemetry"
)

// mockRelay serves the relay protocol on a unix socket, publishing
// synthetic frames to each connection for the sources it subscribes to.
// Connections are independent: each has its own subscription set and
// publish ticker, so two clients subscribing to different sources see
// different traffic.
type mockRelay struct {
	sources         map[string]*synthSource
	order           []string
	publishInterval time.Duration
	logger          *slog.Logger

	activeConnections sync.WaitGroup
}

func newMockRelay(manifest *Manifest, publishInterval time.Duration, logger *slog.Logger) (*mockRelay, error) {
	if publishInterval <= 0 {
		return nil, fmt.Errorf("publish interval must be positive (got %v)", publishInterval)
	}
	mock := &mockRelay{
		sources:         make(map[string]*synthSource),
		publishInterval: publishInterval,
		logger:          logger,
	}
	start := time.Now()
	for _, spec := range manifest.Sources {
		mock.sources[spec.ID] = newSynthSource(spec, start)
		mock.order = append(mock.order, spec.ID)
	}
	return mock, nil
}

// Serve listens on the unix socket and accepts connections until ctx
// is cancelled, then waits for active connections to drain. Any stale
// socket file at the path is removed before listening, and the socket
// file is removed on return.
func (m *mockRelay) Serve(ctx context.Context, socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	m.logger.Info("relay mock listening", "path", socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			m.logger.Error("accept failed", "error", err)
			continue
		}

		m.activeConnections.Add(1)
		go func() {
			defer m.activeConnections.Done()
			m.handleConnection(ctx, conn)
		}()
	}

	m.activeConnections.Wait()
	return nil
}

// mockConn is the per-connection state: the subscription set and a
// write lock serializing the reader's responses against the
// publisher's frame notifications.
type mockConn struct {
	conn   net.Conn
	logger *slog.Logger

	mu            sync.Mutex
	subscriptions map[string]bool
}

func (m *mockRelay) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	state := &mockConn{
		conn:          conn,
		logger:        m.logger,
		subscriptions: make(map[string]bool),
	}

	// Close the connection on shutdown so both loops unblock.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	publisherDone := make(chan struct{})
	go func() {
		defer close(publisherDone)
		m.publishLoop(connCtx, state)
	}()

	m.readLoop(state)
	cancel()
	<-publisherDone
}

// readLoop handles inbound requests until the client disconnects.
func (m *mockRelay) readLoop(state *mockConn) {
	reader := bufio.NewReader(state.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if len(line) == 0 || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
		}
		if len(line) <= 1 {
			continue
		}

		var message relay.Message
		if err := json.Unmarshal(line, &message); err != nil {
			m.logger.Warn("dropping malformed request line", "error", err)
			continue
		}
		if message.Method == "" {
			continue
		}
		m.handleRequest(state, &message)
	}
}

// handleRequest dispatches one decoded request and writes its
// response.
func (m *mockRelay) handleRequest(state *mockConn, message *relay.Message) {
	switch message.Method {
	case relay.MethodRegisterClient:
		var params relay.RegisterClientParams
		if err := json.Unmarshal(message.Params, &params); err != nil {
			state.write(relay.NewError(message.ID, -32602, "invalid registerClient params"))
			return
		}
		m.logger.Info("client registered", "protocol", params.Protocol)
		state.write(relay.NewResult(message.ID, map[string]int{"protocol": relay.ProtocolVersion}))
		m.sendMetadata(state)

	case relay.MethodSubscribe, relay.MethodUnsubscribe:
		var params relay.SubscribeParams
		if err := json.Unmarshal(message.Params, &params); err != nil || params.SourceID == "" {
			state.write(relay.NewError(message.ID, -32602, "sourceId is required"))
			return
		}
		if _, known := m.sources[params.SourceID]; !known {
			state.write(relay.NewError(message.ID, -32001, fmt.Sprintf("unknown source %q", params.SourceID)))
			return
		}
		state.mu.Lock()
		if message.Method == relay.MethodSubscribe {
			state.subscriptions[params.SourceID] = true
		} else {
			delete(state.subscriptions, params.SourceID)
		}
		state.mu.Unlock()
		m.logger.Debug("subscription changed", "method", message.Method, "source", params.SourceID)
		state.write(relay.NewResult(message.ID, nil))

	case relay.MethodResetMetric:
		var params relay.ResetMetricParams
		if err := json.Unmarshal(message.Params, &params); err != nil || params.SourceID == "" {
			state.write(relay.NewError(message.ID, -32602, "sourceId is required"))
			return
		}
		source, known := m.sources[params.SourceID]
		if !known {
			state.write(relay.NewError(message.ID, -32001, fmt.Sprintf("unknown source %q", params.SourceID)))
			return
		}
		if !source.Reset(params.ChannelID, time.Now()) {
			state.write(relay.NewError(message.ID, -32001, fmt.Sprintf("unknown channel %q", params.ChannelID)))
			return
		}
		m.logger.Info("metric reset",
			"source", params.SourceID,
			"channel", params.ChannelID,
			"metric", params.Metric,
		)
		state.write(relay.NewResult(message.ID, nil))

	default:
		state.write(relay.NewError(message.ID, -32601, fmt.Sprintf("method %q not found", message.Method)))
	}
}

// sendMetadata announces every manifest source in one notification,
// in manifest order.
func (m *mockRelay) sendMetadata(state *mockConn) {
	sources := make([]telemetry.WireSource, 0, len(m.order))
	for _, id := range m.order {
		sources = append(sources, m.sources[id].WireSource())
	}
	state.write(relay.NewNotification(relay.MethodMetadata, map[string]any{"sources": sources}))
}

// publishLoop sends a dataFrame notification per subscribed source on
// every tick until the connection's context ends.
func (m *mockRelay) publishLoop(ctx context.Context, state *mockConn) {
	ticker := time.NewTicker(m.publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, id := range m.order {
				state.mu.Lock()
				subscribed := state.subscriptions[id]
				state.mu.Unlock()
				if !subscribed {
					continue
				}
				source := m.sources[id]
				wireSource := source.WireSource()
				state.write(relay.NewNotification(relay.MethodDataFrame, telemetry.FrameNotification{
					Source: &wireSource,
					Frame:  source.Frame(now),
				}))
			}
		}
	}
}

// write encodes and sends one protocol message. Failures are logged
// and otherwise ignored; the read loop notices the dead connection.
func (c *mockConn) write(v any) {
	line, err := relay.EncodeLine(v)
	if err != nil {
		c.logger.Error("encoding outbound message", "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write(line); err != nil {
		c.logger.Debug("write failed", "error", err)
	}
}
