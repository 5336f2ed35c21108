package negotiation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/rtcall/internal/signaling"
)

const waitTimeout = 5 * time.Second

// fakeEngine records every contract call and completes descriptions
// asynchronously, as a real engine does.
type fakeEngine struct {
	mu     sync.Mutex
	calls  []string
	local  []webrtc.SessionDescription
	remote []webrtc.SessionDescription
	added  []webrtc.ICECandidateInit

	holdDescriptions bool // never complete CreateOffer/CreateAnswer
	failRemote       error
	failAdd          error

	onDesc func(webrtc.SessionDescription)
	onCand func(webrtc.ICECandidateInit)
}

func (e *fakeEngine) record(call string) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()
}

func (e *fakeEngine) complete(typ webrtc.SDPType, sdp string) {
	e.mu.Lock()
	hold, fn := e.holdDescriptions, e.onDesc
	e.mu.Unlock()
	if hold || fn == nil {
		return
	}
	go fn(webrtc.SessionDescription{Type: typ, SDP: sdp})
}

func (e *fakeEngine) CreateOffer() error {
	e.record("CreateOffer")
	e.complete(webrtc.SDPTypeOffer, "v=0 offer")
	return nil
}

func (e *fakeEngine) CreateAnswer() error {
	e.record("CreateAnswer")
	e.complete(webrtc.SDPTypeAnswer, "v=0 answer")
	return nil
}

func (e *fakeEngine) SetLocalDescription(desc webrtc.SessionDescription) error {
	e.record("SetLocalDescription")
	e.mu.Lock()
	e.local = append(e.local, desc)
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) SetRemoteDescription(desc webrtc.SessionDescription) error {
	e.record("SetRemoteDescription")
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failRemote != nil {
		return e.failRemote
	}
	e.remote = append(e.remote, desc)
	return nil
}

func (e *fakeEngine) AddICECandidate(init webrtc.ICECandidateInit) error {
	e.record("AddICECandidate")
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAdd != nil {
		return e.failAdd
	}
	e.added = append(e.added, init)
	return nil
}

func (e *fakeEngine) OnLocalICECandidate(fn func(webrtc.ICECandidateInit)) {
	e.mu.Lock()
	e.onCand = fn
	e.mu.Unlock()
}

func (e *fakeEngine) OnLocalDescription(fn func(webrtc.SessionDescription)) {
	e.mu.Lock()
	e.onDesc = fn
	e.mu.Unlock()
}

// gather simulates a locally gathered candidate.
func (e *fakeEngine) gather(c signaling.Candidate) {
	e.mu.Lock()
	fn := e.onCand
	e.mu.Unlock()
	fn(c.ToPion())
}

func (e *fakeEngine) snapshot() (calls []string, added []webrtc.ICECandidateInit) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...), append([]webrtc.ICECandidateInit(nil), e.added...)
}

func (e *fakeEngine) addedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.added)
}

// fakeSignaler connects instantly (or fails to) and records sent messages.
type fakeSignaler struct {
	mu        sync.Mutex
	onMessage func(signaling.Message)
	onStatus  func(signaling.Status, error)

	failOpen atomic.Bool
	opens    atomic.Int32
	closed   atomic.Bool
	sent     chan signaling.Message
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{sent: make(chan signaling.Message, 64)}
}

func (s *fakeSignaler) Open(context.Context) error {
	s.opens.Add(1)
	if s.failOpen.Load() {
		err := &signaling.ConnectionError{URL: "ws://relay.test/", Err: errors.New("connection refused")}
		s.status(signaling.StatusConnectionFailed, err)
		return err
	}
	s.status(signaling.StatusConnected, nil)
	return nil
}

func (s *fakeSignaler) Retry(ctx context.Context) error { return s.Open(ctx) }

func (s *fakeSignaler) Send(_ context.Context, msg signaling.Message) error {
	if s.closed.Load() {
		return signaling.ErrClosed
	}
	s.sent <- msg
	return nil
}

func (s *fakeSignaler) OnMessage(fn func(signaling.Message)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

func (s *fakeSignaler) OnStatus(fn func(signaling.Status, error)) {
	s.mu.Lock()
	s.onStatus = fn
	s.mu.Unlock()
}

func (s *fakeSignaler) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSignaler) status(st signaling.Status, err error) {
	s.mu.Lock()
	fn := s.onStatus
	s.mu.Unlock()
	fn(st, err)
}

// deliver simulates a decoded frame from the relay.
func (s *fakeSignaler) deliver(msg signaling.Message) {
	s.mu.Lock()
	fn := s.onMessage
	s.mu.Unlock()
	fn(msg)
}

func (s *fakeSignaler) nextSent(t *testing.T) signaling.Message {
	t.Helper()
	select {
	case msg := <-s.sent:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("nothing sent")
		return nil
	}
}

// harness wires a coordinator to fakes and records its events.
type harness struct {
	engine *fakeEngine
	sig    *fakeSignaler
	coord  *Coordinator
	events chan Event
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	h := &harness{
		engine: &fakeEngine{},
		sig:    newFakeSignaler(),
		events: make(chan Event, 32),
	}
	h.coord = New(h.engine, h.sig, cfg)
	h.coord.OnEvent(func(ev Event) { h.events <- ev })
	t.Cleanup(func() { h.coord.Close() })
	return h
}

// startReady starts the coordinator and waits for SocketReady.
func (h *harness) startReady(t *testing.T) {
	t.Helper()
	require.NoError(t, h.coord.Start(context.Background()))
	h.expect(t, EventConnecting)
	h.expect(t, EventSocketReady)
	assert.Equal(t, StateSocketReady, h.coord.State())
}

func (h *harness) expect(t *testing.T, kind Kind) Event {
	t.Helper()
	select {
	case ev := <-h.events:
		require.Equal(t, kind, ev.Kind, "got event %s", ev)
		return ev
	case <-time.After(waitTimeout):
		t.Fatalf("no %s event", kind)
		return Event{}
	}
}

func (h *harness) expectNoEvent(t *testing.T) {
	t.Helper()
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected event %s", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// waitState polls for a state the coordinator rests in, and reports the
// last state observed when it never arrives.
func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	var last atomic.Int32
	last.Store(int32(h.coord.State()))
	if !assert.Eventually(t, func() bool {
		got := h.coord.State()
		last.Store(int32(got))
		return got == want
	}, waitTimeout, 5*time.Millisecond) {
		t.Fatalf("state %s, want %s", State(last.Load()), want)
	}
}

func candidate(n string) signaling.Candidate {
	return signaling.Candidate{SDPMid: "0", SDPMLineIndex: 0, Candidate: "candidate:" + n}
}

func candidateLines(inits []webrtc.ICECandidateInit) []string {
	out := make([]string, len(inits))
	for i, c := range inits {
		out[i] = c.Candidate
	}
	return out
}
