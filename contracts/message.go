package contracts

import (
	"bytes"
	"encoding/json"
)

// Kind discriminates the shapes an inbound message can take
type Kind int

const (
	KindUnrecognized Kind = iota
	KindResponse
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	default:
		return "unrecognized"
	}
}

// InboundMessage is the tagged union produced from a raw inbound payload.
// Only the fields matching Kind are populated.
type InboundMessage struct {
	Kind     Kind
	Response Response
	Event    EventNotification
}

// ParseInbound classifies a raw message by shape. Field presence decides:
// a non-empty string "id" together with a "result" key (whatever its value,
// null included) is a response; otherwise a non-empty string "event" is an
// event; anything else, including invalid JSON, is unrecognized.
func ParseInbound(raw []byte) InboundMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return InboundMessage{Kind: KindUnrecognized}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return InboundMessage{Kind: KindUnrecognized}
	}

	if id, ok := stringField(fields, "id"); ok && id != "" {
		if result, present := fields["result"]; present {
			return InboundMessage{
				Kind:     KindResponse,
				Response: Response{ID: id, Result: result},
			}
		}
	}

	if name, ok := stringField(fields, "event"); ok && name != "" {
		data, present := fields["data"]
		if !present {
			data = json.RawMessage("null")
		}
		return InboundMessage{
			Kind:  KindEvent,
			Event: EventNotification{Event: name, Data: data},
		}
	}

	return InboundMessage{Kind: KindUnrecognized}
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
