package gateway

import (
	"fmt"
)

// ReconnectError asks the caller to connect again. Resume tells whether the
// current session may be continued.
type ReconnectError struct {
	Resume bool
	// Code is the close code that triggered it, zero when none.
	Code int
	Err  error
}

func (e *ReconnectError) Error() string {
	msg := fmt.Sprintf("gateway: reconnect required (resume=%t)", e.Resume)
	if e.Code != 0 {
		msg += fmt.Sprintf(": close %d %s", e.Code, CloseCodeText(e.Code))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReconnectError) Unwrap() error {
	return e.Err
}

// DisconnectedError is a close the session cannot recover from.
type DisconnectedError struct {
	Code   int
	Reason string
}

func (e *DisconnectedError) Error() string {
	msg := fmt.Sprintf("gateway: disconnected with close code %d (%s)", e.Code, CloseCodeText(e.Code))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *DisconnectedError) Unwrap() error {
	return closeCodeErr(e.Code)
}

type ProtocolError struct {
	Op      int
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("gateway: protocol error (op %d): %s", e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "gateway: transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
