package gateway

import "time"

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHandshake
	StateAuthenticating
	StateActive
	StateClosing
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point in time view of the session, for diagnostics.
type Status struct {
	State             State         `json:"state"`
	ConnID            string        `json:"conn_id,omitempty"`
	HasSession        bool          `json:"has_session"`
	Sequence          *int64        `json:"sequence"`
	Resuming          bool          `json:"resuming"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	HeartbeatAcked    bool          `json:"heartbeat_acked"`
	LastHeartbeatAck  time.Time     `json:"last_heartbeat_ack,omitempty"`
}
