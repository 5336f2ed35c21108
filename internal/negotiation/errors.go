package negotiation

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when starting a coordinator that was closed.
	ErrClosed = errors.New("coordinator closed")

	// ErrNegotiationTimeout is the cause of a failure when an attempt does
	// not reach Established within Config.NegotiationTimeout.
	ErrNegotiationTimeout = errors.New("negotiation timed out")
)

// NegotiationError reports a failed media engine call, or a timeout, and
// the state the coordinator was in when it happened.
type NegotiationError struct {
	Op    string
	State State
	Err   error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation failed in %s: %s: %v", e.State, e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
