package protocol_test

import (
	"strings"
	"testing"
	"time"

	"hive/pkg/protocol"
)

func TestNewEnvelope(t *testing.T) {
	env, err := protocol.New("gateway", "chatter", protocol.TypeQuestion, protocol.Question{Question: "hi"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if env.ID == "" {
		t.Error("expected generated id")
	}
	if env.From != "gateway" || env.To != "chatter" {
		t.Errorf("from/to = %q/%q", env.From, env.To)
	}
	if env.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
	if env.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp not UTC: %v", env.Timestamp.Location())
	}
	if err := env.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestNewResponseCarriesCorrelation(t *testing.T) {
	env, err := protocol.NewResponse("researcher", "chatter", "req-1", map[string]any{"answer": 42})
	if err != nil {
		t.Fatalf("NewResponse: %v", err)
	}
	if env.InResponseTo != "req-1" {
		t.Errorf("InResponseTo = %q, want req-1", env.InResponseTo)
	}
	if err := env.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid, _ := protocol.New("a", "b", protocol.TypeStatus, protocol.Status{Status: protocol.StatusIdle})

	tests := []struct {
		name    string
		mutate  func(*protocol.Envelope)
		wantErr string
	}{
		{"valid", func(*protocol.Envelope) {}, ""},
		{"missing id", func(e *protocol.Envelope) { e.ID = "" }, "missing id"},
		{"missing from", func(e *protocol.Envelope) { e.From = "" }, "missing from"},
		{"missing to", func(e *protocol.Envelope) { e.To = "" }, "missing to"},
		{"unknown type", func(e *protocol.Envelope) { e.Type = "gossip" }, "unknown type"},
		{"response without correlation", func(e *protocol.Envelope) { e.Type = protocol.TypeResponse }, "missing in_response_to"},
		{"non-response with correlation", func(e *protocol.Envelope) { e.InResponseTo = "x" }, "carries in_response_to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := valid
			tt.mutate(&env)
			err := env.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	orig, err := protocol.New("frontend", "chatter", protocol.TypeProgress, protocol.Progress{
		TaskID: "task-7",
		Output: "compiling...\n",
		Stream: "stdout",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data, err := orig.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.ID != orig.ID || got.From != orig.From || got.To != orig.To || got.Type != orig.Type {
		t.Errorf("round trip changed header fields: %+v vs %+v", got, orig)
	}
	if !got.Timestamp.Equal(orig.Timestamp) {
		t.Errorf("timestamp changed: %v vs %v", got.Timestamp, orig.Timestamp)
	}

	var p protocol.Progress
	if err := got.DecodePayload(&p); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if p.TaskID != "task-7" || p.Output != "compiling...\n" || p.Stream != "stdout" {
		t.Errorf("payload round trip: %+v", p)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	if _, err := protocol.Decode([]byte("{not json")); err == nil {
		t.Error("expected error for malformed JSON")
	}
	// Well-formed JSON that violates the schema is also rejected.
	if _, err := protocol.Decode([]byte(`{"id":"x","from":"a","to":"b","type":"response"}`)); err == nil {
		t.Error("expected error for response without in_response_to")
	}
}

func TestAgentChannel(t *testing.T) {
	if got := protocol.AgentChannel(protocol.AgentResearcher); got != "agent:researcher" {
		t.Errorf("AgentChannel = %q", got)
	}
}
