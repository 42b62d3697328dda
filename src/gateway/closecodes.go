package gateway

import (
	"fmt"
	"slices"
)

// https://discord.com/developers/docs/topics/opcodes-and-status-codes#gateway-gateway-close-event-codes
type GatewayCloseEventCode = int

const (
	CloseNormal          GatewayCloseEventCode = 1000
	UnknownError         GatewayCloseEventCode = 4000
	UnknownOpcode        GatewayCloseEventCode = 4001
	DecodeError          GatewayCloseEventCode = 4002
	NotAuthenticated     GatewayCloseEventCode = 4003
	AuthenticationFailed GatewayCloseEventCode = 4004
	AlreadyAuthenticated GatewayCloseEventCode = 4005
	InvalidSeq           GatewayCloseEventCode = 4007
	RateLimited          GatewayCloseEventCode = 4008
	SessionTimedOut      GatewayCloseEventCode = 4009
	InvalidShard         GatewayCloseEventCode = 4010
	ShardingRequired     GatewayCloseEventCode = 4011
	InvalidAPIVersion    GatewayCloseEventCode = 4012
	InvalidIntents       GatewayCloseEventCode = 4013
	DisallowedIntents    GatewayCloseEventCode = 4014

	// NoHeartbeatAck is never sent by the server. The heartbeat monitor closes
	// with it when a beat went unacknowledged.
	NoHeartbeatAck GatewayCloseEventCode = 4420
)

var closeCodeText = map[int]string{
	CloseNormal:          "normal close",
	UnknownError:         "unknown error",
	UnknownOpcode:        "unknown opcode",
	DecodeError:          "decode error",
	NotAuthenticated:     "not authenticated",
	AuthenticationFailed: "authentication failed",
	AlreadyAuthenticated: "already authenticated",
	InvalidSeq:           "invalid seq",
	RateLimited:          "rate limited",
	SessionTimedOut:      "session timed out",
	InvalidShard:         "invalid shard",
	ShardingRequired:     "sharding required",
	InvalidAPIVersion:    "invalid api version",
	InvalidIntents:       "invalid intents",
	DisallowedIntents:    "disallowed intents",
	NoHeartbeatAck:       "no heartbeat ack",
}

// CloseCodeText returns a readable name for a close code.
func CloseCodeText(code int) string {
	if s, ok := closeCodeText[code]; ok {
		return s
	}
	return fmt.Sprintf("unknown close code %d", code)
}

func closeCodeErr(code int) error {
	switch code {
	case AuthenticationFailed:
		return ErrAuthenticationFailed
	case NotAuthenticated:
		return ErrNotAuthenticated
	case DecodeError:
		return ErrDecode
	case InvalidIntents:
		return ErrInvalidIntents
	case DisallowedIntents:
		return ErrDisallowedIntents
	case InvalidAPIVersion:
		return ErrInvalidAPIVersion
	}
	return nil
}

type CloseAction int

const (
	CloseActionDisconnect CloseAction = iota
	CloseActionResume
	CloseActionReconnect
)

func (a CloseAction) String() string {
	switch a {
	case CloseActionResume:
		return "resume"
	case CloseActionReconnect:
		return "reconnect"
	default:
		return "disconnect"
	}
}

// ClosePolicy maps close codes to a recovery action. Codes in neither list
// end the session for good.
type ClosePolicy struct {
	Resume    []int
	Reconnect []int
}

func DefaultClosePolicy() ClosePolicy {
	return ClosePolicy{
		Resume:    []int{CloseNormal, NoHeartbeatAck},
		Reconnect: []int{InvalidSeq, SessionTimedOut},
	}
}

func (p ClosePolicy) Classify(code int) CloseAction {
	switch {
	case slices.Contains(p.Resume, code):
		return CloseActionResume
	case slices.Contains(p.Reconnect, code):
		return CloseActionReconnect
	default:
		return CloseActionDisconnect
	}
}

func (p ClosePolicy) isZero() bool {
	return len(p.Resume) == 0 && len(p.Reconnect) == 0
}
