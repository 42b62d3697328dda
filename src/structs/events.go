package structs

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

type EventName = string
type EventOpcode = int

const (
	EventNameReady             EventName = "READY"
	EventNameResumed           EventName = "RESUMED"
	EventNameMessageCreate     EventName = "MESSAGE_CREATE"
	EventNameInteractionCreate EventName = "INTERACTION_CREATE"
)

// RawEvent is an inbound gateway frame. D is kept raw until the opcode is known.
type RawEvent struct {
	Op EventOpcode     `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  EventName       `json:"t,omitempty"`
}

func (re *RawEvent) MarshalZerologObject(e *zerolog.Event) {
	e.Int("op_code", re.Op).Str("event_name", re.T)
	if re.S != nil {
		e.Int64("sequence", *re.S)
	}
}

// Event is an outbound gateway frame. D is always written, null included.
type Event struct {
	Op EventOpcode `json:"op"`
	D  any         `json:"d"`
}

type HelloEvent struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type ReadyEvent struct {
	V                int    `json:"v"`
	User             User   `json:"user"`
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url,omitempty"`
	Shard            []uint `json:"shard,omitempty"`
}

type IdentifyEvent struct {
	Token      string                  `json:"token"`
	Intents    int                     `json:"intents"`
	Properties IdentifyEventProperties `json:"properties"`
}

type IdentifyEventProperties struct {
	Os      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type ResumeEvent struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       *int64 `json:"seq"`
}
