package contracts

import (
	"encoding/json"
	"fmt"
)

// Request is the outbound envelope sent to the native context
type Request struct {
	ID      string          `json:"id"`
	Command string          `json:"cmd"`
	Args    json.RawMessage `json:"args,omitempty"`
}

// Response is the inbound envelope correlated to a Request by ID
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
}

// EventNotification is the inbound envelope for uncorrelated events
type EventNotification struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewRequest builds a request envelope, marshalling args to JSON.
// Raw JSON ([]byte or json.RawMessage) is passed through untouched.
func NewRequest(id, command string, args interface{}) (*Request, error) {
	raw, err := MarshalPayload(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args for %s: %w", command, err)
	}
	return &Request{ID: id, Command: command, Args: raw}, nil
}

// NewResponse builds a response envelope for the given request id
func NewResponse(id string, result interface{}) (*Response, error) {
	raw, err := MarshalPayload(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	return &Response{ID: id, Result: raw}, nil
}

// NewEventNotification builds an event envelope
func NewEventNotification(event string, data interface{}) (*EventNotification, error) {
	raw, err := MarshalPayload(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data for event %s: %w", event, err)
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	return &EventNotification{Event: event, Data: raw}, nil
}

// ParseRequest decodes an outbound envelope on the native side
func ParseRequest(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("invalid request envelope: %w", err)
	}
	if req.Command == "" {
		return nil, fmt.Errorf("invalid request envelope: missing cmd")
	}
	return &req, nil
}

// MarshalPayload converts an arbitrary value to raw JSON. A nil value
// yields a nil RawMessage so optional fields can be omitted.
func MarshalPayload(v interface{}) (json.RawMessage, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return json.RawMessage(p), nil
	default:
		return json.Marshal(v)
	}
}

// DecodeResult unmarshals a raw result payload into T
func DecodeResult[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, fmt.Errorf("empty result payload")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode result: %w", err)
	}
	return out, nil
}
