// Package transport implements the media engine used by the negotiation
// coordinator on top of a pion PeerConnection.
package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Transport wraps a single PeerConnection and exposes the negotiation
// operations the coordinator drives: description creation completes through
// OnLocalDescription and gathered candidates through OnLocalICECandidate,
// both on goroutines of their own.
//
// Its lifecycle is governed by the context passed at construction time and
// by the PeerConnection reaching Failed or Closed.
type Transport struct {
	pc *webrtc.PeerConnection

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	pcState   webrtc.PeerConnectionState
	receivers bool
	onDesc    func(webrtc.SessionDescription)
	onCand    func(webrtc.ICECandidateInit)
}

// NewTransport creates a Transport backed by a new PeerConnection that
// gathers candidates against iceServers.
func NewTransport(ctx context.Context, iceServers []string) (*Transport, error) {
	api, err := newAPI()
	if err != nil {
		return nil, fmt.Errorf("failed to build media engine: %w", err)
	}

	pc, err := newPeerConnection(api, iceServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	tCtx, tCancel := context.WithCancel(ctx)

	t := &Transport{
		pc:      pc,
		ctx:     tCtx,
		cancel:  tCancel,
		pcState: webrtc.PeerConnectionStateNew,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil {
			logger.Debugf("candidate gathering complete")
			return
		}
		t.mu.RLock()
		fn := t.onCand
		t.mu.RUnlock()
		if fn != nil {
			fn(c.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Infof("PeerConnection state: %s", state.String())
		t.mu.Lock()
		t.pcState = state
		t.mu.Unlock()

		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			tCancel()
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Infof("receiving %s track (%s)", track.Kind(), track.Codec().MimeType)
		go drain(tCtx, track)
	})

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Done returns a channel that is closed when the Transport is shut down
// (PeerConnection failed or closed, or parent context cancelled).
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Close shuts down the PeerConnection.
func (t *Transport) Close() error {
	t.cancel()
	return t.pc.Close()
}

// ConnectionState returns the last observed PeerConnection state.
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer with audio and video sections and
// delivers it through the OnLocalDescription callback.
func (t *Transport) CreateOffer() error {
	if err := t.ensureReceivers(); err != nil {
		return fmt.Errorf("failed to add transceivers: %w", err)
	}
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	t.deliver(offer)
	return nil
}

// CreateAnswer generates an SDP answer for the applied remote offer and
// delivers it through the OnLocalDescription callback.
func (t *Transport) CreateAnswer() error {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	t.deliver(answer)
	return nil
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// OnLocalICECandidate registers the callback for locally gathered
// candidates.
func (t *Transport) OnLocalICECandidate(fn func(webrtc.ICECandidateInit)) {
	t.mu.Lock()
	t.onCand = fn
	t.mu.Unlock()
}

// OnLocalDescription registers the callback for created offers and answers.
func (t *Transport) OnLocalDescription(fn func(webrtc.SessionDescription)) {
	t.mu.Lock()
	t.onDesc = fn
	t.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

func (t *Transport) ensureReceivers() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.receivers {
		return nil
	}
	if err := addReceivers(t.pc); err != nil {
		return err
	}
	t.receivers = true
	return nil
}

// deliver hands desc to the callback on a new goroutine so the caller of
// CreateOffer/CreateAnswer never re-enters itself.
func (t *Transport) deliver(desc webrtc.SessionDescription) {
	t.mu.RLock()
	fn := t.onDesc
	t.mu.RUnlock()
	if fn == nil {
		logger.Warnf("no handler for local %s", desc.Type)
		return
	}
	go fn(desc)
}

// drain reads and discards RTP from a remote track until it ends.
func drain(ctx context.Context, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			if err != io.EOF && ctx.Err() == nil {
				logger.Debugf("%s track ended: %v", track.Kind(), err)
			}
			return
		}
	}
}
