// Package negotiation sequences the offer/answer/candidate exchange of one
// call attempt. A Coordinator is the only caller of the media engine's
// negotiation operations; it consumes signaling messages, engine callbacks
// and local triggers on a single goroutine and reports lifecycle events.
package negotiation

import "fmt"

// State is the negotiation progress of one call attempt.
type State int32

const (
	StateIdle State = iota
	StateAwaitingSocket
	StateSocketReady
	StateOfferSent
	StateOfferReceived
	StateAnswerSent
	StateAnswerReceived
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingSocket:
		return "AwaitingSocket"
	case StateSocketReady:
		return "SocketReady"
	case StateOfferSent:
		return "OfferSent"
	case StateOfferReceived:
		return "OfferReceived"
	case StateAnswerSent:
		return "AnswerSent"
	case StateAnswerReceived:
		return "AnswerReceived"
	case StateEstablished:
		return "Established"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// terminal reports whether negotiation has finished, successfully or not.
func (s State) terminal() bool {
	return s == StateEstablished || s == StateFailed
}
