// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/andrewmcdan/workbench/telemetry"
)

// Method names of the workbench relay protocol. The first four are
// outbound requests; dataFrame and metadata arrive as notifications.
const (
	MethodRegisterClient = "workbench.registerClient"
	MethodSubscribe      = "workbench.subscribe"
	MethodUnsubscribe    = "workbench.unsubscribe"
	MethodResetMetric    = "workbench.resetMetric"
	MethodDataFrame      = "workbench.dataFrame"
	MethodMetadata       = "workbench.metadata"
)

// ProtocolVersion is sent in the registerClient handshake.
const ProtocolVersion = 1

// Request is an outbound JSON-RPC 2.0 request. Requests are
// fire-and-forget: the relay's responses are detected for liveness and
// discarded, so no per-request correlation state is kept.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request with the JSON-RPC version field set.
func NewRequest(id, method string, params any) Request {
	return Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// RegisterClientParams is the params object of registerClient.
type RegisterClientParams struct {
	Protocol int `json:"protocol"`
}

// SubscribeParams is the params object of subscribe and unsubscribe.
type SubscribeParams struct {
	SourceID string `json:"sourceId"`
}

// ResetMetricParams is the params object of resetMetric.
type ResetMetricParams struct {
	SourceID  string `json:"sourceId"`
	ChannelID string `json:"channelId"`
	Metric    string `json:"metric"`
}

// Notification is a JSON-RPC notification: a method call with no ID
// and therefore no response. The relay sends these for dataFrame and
// metadata traffic.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewNotification builds a notification with the JSON-RPC version
// field set.
func NewNotification(method string, params any) Notification {
	return Notification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
}

// Response is a JSON-RPC response to a request, keyed by the
// request's ID. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC error payload.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewResult builds a success response echoing the request's ID.
func NewResult(id json.RawMessage, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewError builds an error response echoing the request's ID.
func NewError(id json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &ErrorObject{Code: code, Message: message}}
}

// Message is one decoded inbound line. A message with a method is a
// notification (or, relay-side, a request); one with a result or error
// and no method is a response to an earlier request.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// IsResponse reports whether the message answers an earlier request
// rather than carrying a notification.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (len(m.Result) > 0 || len(m.Error) > 0)
}

// EncodeLine marshals v and appends the single newline terminator.
// json.Marshal never emits literal newlines inside a value, so the
// terminator is unambiguous.
func EncodeLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseMetadataParams extracts source descriptions from a metadata
// notification's params, which may be a single object, an array, or an
// object with a nested "sources" list. Malformed params yield nil;
// entries without an ID are skipped by the caller.
func ParseMetadataParams(raw json.RawMessage) []telemetry.WireSource {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var sources []telemetry.WireSource
		if err := json.Unmarshal(trimmed, &sources); err != nil {
			return nil
		}
		return sources
	}

	var wrapper struct {
		Sources []telemetry.WireSource `json:"sources"`
	}
	if err := json.Unmarshal(trimmed, &wrapper); err == nil && wrapper.Sources != nil {
		return wrapper.Sources
	}

	var single telemetry.WireSource
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil
	}
	return []telemetry.WireSource{single}
}
