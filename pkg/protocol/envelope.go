// Package protocol defines the envelope format and channel names shared by
// every hive agent. An Envelope is the sole unit of communication on the bus;
// agents correlate requests with responses through the ID and InResponseTo
// fields.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies an envelope.
type MessageType string

// Envelope message types.
const (
	TypeTask     MessageType = "task"
	TypeQuestion MessageType = "question"
	TypeResponse MessageType = "response"
	TypeStatus   MessageType = "status"
	TypeProgress MessageType = "progress"
	TypeError    MessageType = "error"
)

// KnownTypes lists every valid envelope type, in the order they appear in the
// activity table CHECK constraint.
var KnownTypes = []MessageType{TypeTask, TypeQuestion, TypeResponse, TypeStatus, TypeProgress, TypeError}

// Broadcast is the wildcard target for envelopes addressed to every agent.
const Broadcast = "*"

// Envelope is a single bus message.
type Envelope struct {
	ID           string          `json:"id"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	Type         MessageType     `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    time.Time       `json:"timestamp"`
	InResponseTo string          `json:"in_response_to,omitempty"`
}

// New creates an envelope with a fresh ID and the current UTC timestamp.
// The payload is marshalled to JSON; a marshal failure is a programming
// error and returns it to the caller rather than panicking.
func New(from, to string, typ MessageType, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Envelope{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Type:      typ,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponse creates a response envelope correlated to the given request ID.
func NewResponse(from, to, inResponseTo string, payload any) (Envelope, error) {
	env, err := New(from, to, TypeResponse, payload)
	if err != nil {
		return Envelope{}, err
	}
	env.InResponseTo = inResponseTo
	return env, nil
}

// Validate checks the structural invariants: a non-empty ID, sender, target
// and known type, and InResponseTo set if and only if the type is response.
func (e Envelope) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("envelope missing id")
	}
	if e.From == "" {
		return fmt.Errorf("envelope %s missing from", e.ID)
	}
	if e.To == "" {
		return fmt.Errorf("envelope %s missing to", e.ID)
	}
	if !validType(e.Type) {
		return fmt.Errorf("envelope %s has unknown type %q", e.ID, e.Type)
	}
	if e.Type == TypeResponse && e.InResponseTo == "" {
		return fmt.Errorf("response envelope %s missing in_response_to", e.ID)
	}
	if e.Type != TypeResponse && e.InResponseTo != "" {
		return fmt.Errorf("%s envelope %s carries in_response_to", e.Type, e.ID)
	}
	return nil
}

func validType(t MessageType) bool {
	for _, k := range KnownTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Encode serialises the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", e.ID, err)
	}
	return data, nil
}

// Decode parses a wire payload into an envelope and validates it.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// DecodePayload unmarshals the envelope payload into dst.
func (e Envelope) DecodePayload(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload of %s: %w", e.Type, e.ID, err)
	}
	return nil
}
