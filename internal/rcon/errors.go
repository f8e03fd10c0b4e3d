package rcon

import "fmt"

// Kind is a closed set of machine-readable error categories a façade caller
// can switch on, independent of the human-readable message.
type Kind string

const (
	KindMalformedFrame    Kind = "MalformedFrame"
	KindAuthFailed        Kind = "AuthFailed"
	KindTimeout           Kind = "Timeout"
	KindQueueFull         Kind = "QueueFull"
	KindDisconnected      Kind = "Disconnected"
	KindCancelled         Kind = "Cancelled"
	KindParseError        Kind = "ParseError"
	KindInvariantViolated Kind = "InvariantViolated"
)

// Error is the concrete error type returned to RCON callers. Kind is stable
// and suitable for errors.As-based branching; Reason is a human-readable
// detail.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rcon: %s: %s", e.Kind, e.Reason)
}

func newError(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}
