package negotiation

import "fmt"

// Kind identifies a lifecycle event reported to the presentation layer.
type Kind int

const (
	EventConnecting          Kind = iota + 1 // relay connection is being opened
	EventSocketReady                         // a call can be initiated
	EventConnectionFailed                    // relay unreachable or dropped; Retry may help
	EventRemoteOfferArrived                  // the remote peer is calling
	EventRemoteAnswerArrived                 // the remote peer accepted our offer
	EventEstablished
	EventFailed // terminal for this attempt
)

func (k Kind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventSocketReady:
		return "socket ready"
	case EventConnectionFailed:
		return "connection failed"
	case EventRemoteOfferArrived:
		return "remote offer arrived"
	case EventRemoteAnswerArrived:
		return "remote answer arrived"
	case EventEstablished:
		return "established"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is a lifecycle notification. Err is set for EventConnectionFailed
// (a *signaling.ConnectionError) and EventFailed (a *NegotiationError).
type Event struct {
	Kind  Kind
	State State // coordinator state after the transition
	Err   error
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.State, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Kind, e.State)
}
