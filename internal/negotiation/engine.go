package negotiation

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/signaling"
)

// Engine is the media engine contract the coordinator drives.
//
// CreateOffer and CreateAnswer only start description creation; the result
// arrives through the OnLocalDescription callback. Callbacks may run on any
// goroutine but must not be invoked synchronously from within an Engine
// method.
type Engine interface {
	CreateOffer() error
	CreateAnswer() error
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	OnLocalICECandidate(func(webrtc.ICECandidateInit))
	OnLocalDescription(func(webrtc.SessionDescription))
}

// Signaler carries messages to and from the remote peer.
// *signaling.Channel satisfies it.
type Signaler interface {
	Open(ctx context.Context) error
	Retry(ctx context.Context) error
	Send(ctx context.Context, msg signaling.Message) error
	OnMessage(func(signaling.Message))
	OnStatus(func(signaling.Status, error))
	Close() error
}

var _ Signaler = (*signaling.Channel)(nil)
