package gateway

import (
	"encoding/json"

	"github.com/hendrywilliam/sirengate/src/structs"
	"github.com/rs/zerolog"
)

// Event is a dispatch handed to the caller.
type Event struct {
	Type     structs.EventName
	Data     json.RawMessage
	Sequence *int64
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

func (e *Event) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("event_name", e.Type)
	if e.Sequence != nil {
		ev.Int64("sequence", *e.Sequence)
	}
}

func heartbeatPayload(seq *int64) structs.Event {
	d := any(nil)
	if seq != nil {
		d = *seq
	}
	return structs.Event{Op: OpcodeHeartbeat, D: d}
}
