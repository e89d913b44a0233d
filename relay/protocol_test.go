// Copyright 2026 The Workbench Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEncodeLineSubscribe(t *testing.T) {
	request := NewRequest("ui-1", MethodSubscribe, SubscribeParams{SourceID: "supply.12v"})
	line, err := EncodeLine(request)
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}

	if !bytes.HasSuffix(line, []byte("\n")) {
		t.Error("encoded line missing newline terminator")
	}
	if bytes.Count(line, []byte("\n")) != 1 {
		t.Error("encoded line contains more than one newline")
	}

	var decoded struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Method  string `json:"method"`
		Params  struct {
			SourceID string `json:"sourceId"`
		} `json:"params"`
	}
	if err := json.Unmarshal(line, &decoded); err != nil {
		t.Fatalf("decoding encoded line: %v", err)
	}
	if decoded.JSONRPC != "2.0" {
		t.Errorf("jsonrpc = %q, want 2.0", decoded.JSONRPC)
	}
	if decoded.ID != "ui-1" {
		t.Errorf("id = %q, want ui-1", decoded.ID)
	}
	if decoded.Method != "workbench.subscribe" {
		t.Errorf("method = %q", decoded.Method)
	}
	if decoded.Params.SourceID != "supply.12v" {
		t.Errorf("params.sourceId = %q", decoded.Params.SourceID)
	}
}

func TestMessageIsResponse(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"result", `{"jsonrpc":"2.0","id":"ui-1","result":{}}`, true},
		{"error", `{"jsonrpc":"2.0","id":"ui-1","error":{"code":-32601,"message":"no"}}`, true},
		{"notification", `{"jsonrpc":"2.0","method":"workbench.dataFrame","params":{}}`, false},
		{"empty", `{}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var message Message
			if err := json.Unmarshal([]byte(tc.raw), &message); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := message.IsResponse(); got != tc.want {
				t.Errorf("IsResponse = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseMetadataParamsShapes(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantIDs []string
	}{
		{"array", `[{"id":"a"},{"id":"b"}]`, []string{"a", "b"}},
		{"wrapper", `{"sources":[{"id":"a"}]}`, []string{"a"}},
		{"single", `{"id":"solo","kind":"numeric"}`, []string{"solo"}},
		{"empty wrapper", `{"sources":[]}`, nil},
		{"malformed", `[{"id":`, nil},
		{"absent", ``, nil},
		{"number", `42`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sources := ParseMetadataParams(json.RawMessage(tc.raw))
			if len(sources) != len(tc.wantIDs) {
				t.Fatalf("got %d sources, want %d", len(sources), len(tc.wantIDs))
			}
			for i, want := range tc.wantIDs {
				if sources[i].ID != want {
					t.Errorf("sources[%d].ID = %q, want %q", i, sources[i].ID, want)
				}
			}
		})
	}
}

func TestResponseEnvelopes(t *testing.T) {
	id := json.RawMessage(`"ui-7"`)

	success, err := EncodeLine(NewResult(id, map[string]int{"protocol": ProtocolVersion}))
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	var successMessage Message
	if err := json.Unmarshal(success, &successMessage); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !successMessage.IsResponse() {
		t.Error("result envelope did not decode as a response")
	}
	if string(successMessage.ID) != `"ui-7"` {
		t.Errorf("id = %s, want the echoed request id", successMessage.ID)
	}

	failure, err := EncodeLine(NewError(id, -32601, "method not found"))
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	var failureMessage Message
	if err := json.Unmarshal(failure, &failureMessage); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !failureMessage.IsResponse() {
		t.Error("error envelope did not decode as a response")
	}
	if len(failureMessage.Result) != 0 {
		t.Error("error envelope carried a result")
	}
}

func TestParseMetadataParamsSingleWithSources(t *testing.T) {
	// A wrapper whose sources key is present but null falls through to
	// single-object parsing, which then fails the ID check upstream.
	sources := ParseMetadataParams(json.RawMessage(`{"sources": null}`))
	for _, source := range sources {
		if source.ID != "" {
			t.Errorf("unexpected source %+v from null wrapper", source)
		}
	}
}
