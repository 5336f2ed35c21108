package negotiation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcall/internal/signaling"
	"github.com/1ureka/rtcall/internal/util"
)

const defaultInboxSize = 64

// Config parameterizes a Coordinator. Zero values select the defaults.
type Config struct {
	NegotiationTimeout time.Duration // 0 disables the deadline
	InboxSize          int
}

type role int

const (
	roleNone role = iota
	roleInitiator
	roleResponder
)

// Inputs processed by the event loop.
type (
	callRequested    struct{}
	retryRequested   struct{}
	timedOut         struct{}
	messageArrived   struct{ msg signaling.Message }
	descriptionReady struct{ desc webrtc.SessionDescription }
	statusChanged    struct {
		status signaling.Status
		err    error
	}
)

// Coordinator negotiates one call attempt over a Signaler. All negotiation
// state is owned by a single event-loop goroutine; signaling messages,
// engine callbacks, connection status changes and local triggers are posted
// to it and handled one at a time.
//
// A Coordinator is not reusable: after Failed or Close, build a new one.
type Coordinator struct {
	id     string
	log    *util.Logger
	engine Engine
	sig    Signaler
	cfg    Config

	inbox  chan any
	out    *outbox
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	mu        sync.Mutex
	started   bool
	closed    bool
	stopWatch func() bool
	closeOnce sync.Once
	closeErr  error

	state atomic.Int32 // snapshot of cur for State()

	handlerMu sync.RWMutex
	onEvent   func(Event)

	// Owned by the event loop.
	cur           State
	role          role
	connected     bool
	dialing       bool
	remoteApplied bool
	candidates    *candidateSet
	timer         *time.Timer
}

var negotiationLog = util.NewLogger("negotiation")

// New creates a Coordinator in StateIdle and registers its callbacks on
// engine and sig. Nothing happens until Start.
func New(engine Engine, sig Signaler, cfg Config) *Coordinator {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = defaultInboxSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		id:         uuid.NewString()[:8],
		engine:     engine,
		sig:        sig,
		cfg:        cfg,
		inbox:      make(chan any, cfg.InboxSize),
		out:        newOutbox(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		candidates: newCandidateSet(),
	}
	c.log = negotiationLog.With(c.id)

	engine.OnLocalDescription(func(desc webrtc.SessionDescription) {
		c.post(descriptionReady{desc: desc})
	})
	// Local candidates bypass the loop: they are sent as soon as they are
	// gathered, whatever the negotiation state.
	engine.OnLocalICECandidate(func(init webrtc.ICECandidateInit) {
		if c.out.push(signaling.CandidateFromPion(init)) {
			c.log.Debugf("local candidate queued")
		}
	})
	sig.OnMessage(func(msg signaling.Message) {
		c.post(messageArrived{msg: msg})
	})
	sig.OnStatus(func(s signaling.Status, err error) {
		c.post(statusChanged{status: s, err: err})
	})

	return c
}

// ID returns the short identifier used in this attempt's log lines.
func (c *Coordinator) ID() string { return c.id }

// OnEvent registers the lifecycle event handler. Register it before Start
// to observe every event. The handler runs on the event loop and must not
// block.
func (c *Coordinator) OnEvent(fn func(Event)) {
	c.handlerMu.Lock()
	c.onEvent = fn
	c.handlerMu.Unlock()
}

// State returns the current negotiation state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Done returns a channel that is closed once Close has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Start moves the coordinator to AwaitingSocket and opens the signaler. The
// coordinator closes itself when ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return errors.New("coordinator already started")
	}
	c.started = true

	c.setState(StateAwaitingSocket)
	c.wg.Add(2)
	go c.loop()
	go c.forward()

	c.stopWatch = context.AfterFunc(ctx, func() { c.Close() })
	return nil
}

// Call asks the coordinator to initiate the call. It is ignored unless the
// coordinator is in SocketReady and no negotiation has begun.
func (c *Coordinator) Call() { c.post(callRequested{}) }

// Retry reopens the relay connection after EventConnectionFailed. It is
// ignored while connected, while a connection attempt is running, and after
// the attempt failed.
func (c *Coordinator) Retry() { c.post(retryRequested{}) }

// Close ends the attempt: it closes the signaler, stops all goroutines and
// discards negotiation state, leaving the coordinator in StateIdle. No event
// is emitted. Close is safe to call more than once, but not from the
// OnEvent handler.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		stop := c.stopWatch
		c.mu.Unlock()
		if stop != nil {
			stop()
		}

		c.cancel()
		c.out.close()
		c.closeErr = c.sig.Close()
		c.wg.Wait()

		c.stopTimeout()
		c.candidates.drain()
		c.setState(StateIdle)
		c.log.Debugf("closed")
		close(c.done)
	})
	return c.closeErr
}

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

func (c *Coordinator) post(in any) {
	select {
	case c.inbox <- in:
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) loop() {
	defer c.wg.Done()

	c.emit(EventConnecting, nil)
	c.startDial(c.sig.Open)

	for {
		select {
		case in := <-c.inbox:
			c.handle(in)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) handle(in any) {
	switch v := in.(type) {
	case callRequested:
		c.handleCall()
	case retryRequested:
		c.handleRetry()
	case statusChanged:
		c.handleStatus(v.status, v.err)
	case descriptionReady:
		c.handleLocalDescription(v.desc)
	case timedOut:
		c.handleTimeout()
	case messageArrived:
		switch m := v.msg.(type) {
		case signaling.Offer:
			c.handleOffer(m)
		case signaling.Answer:
			c.handleAnswer(m)
		case signaling.Candidate:
			c.handleCandidate(m)
		}
	}
}

// startDial runs open off the loop; the outcome comes back as a status.
func (c *Coordinator) startDial(open func(context.Context) error) {
	c.dialing = true
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := open(c.ctx); err != nil && c.ctx.Err() == nil {
			c.log.Debugf("relay dial: %v", err)
		}
	}()
}

// forward drains the outbox into the signaler in order.
func (c *Coordinator) forward() {
	defer c.wg.Done()

	for {
		msg, ok := c.out.next(c.ctx)
		if !ok {
			return
		}
		if err := c.sig.Send(c.ctx, msg); err != nil {
			if c.ctx.Err() != nil || errors.Is(err, signaling.ErrClosed) {
				return
			}
			c.log.Warnf("failed to send %T: %v", msg, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (c *Coordinator) handleCall() {
	if c.cur != StateSocketReady || c.role != roleNone {
		c.log.Warnf("ignoring call request in %s", c.cur)
		return
	}

	c.role = roleInitiator
	c.armTimeout()
	if err := c.engine.CreateOffer(); err != nil {
		c.fail("CreateOffer", err)
	}
}

func (c *Coordinator) handleRetry() {
	switch {
	case c.cur == StateFailed:
		c.log.Warnf("attempt failed; start a new one instead of retrying")
		return
	case c.connected || c.dialing:
		c.log.Debugf("retry ignored (connected=%t, dialing=%t)", c.connected, c.dialing)
		return
	}

	c.emit(EventConnecting, nil)
	c.startDial(c.sig.Retry)
}

func (c *Coordinator) handleStatus(s signaling.Status, err error) {
	c.dialing = false

	switch s {
	case signaling.StatusConnected:
		c.connected = true
		if c.cur == StateAwaitingSocket {
			c.setState(StateSocketReady)
			c.emit(EventSocketReady, nil)
			return
		}
		c.log.Infof("relay reconnected in %s", c.cur)

	case signaling.StatusConnectionFailed, signaling.StatusDisconnected:
		c.connected = false
		if c.cur == StateFailed {
			return
		}
		// Without a relay no call can be initiated.
		if c.cur == StateSocketReady && c.role == roleNone {
			c.setState(StateAwaitingSocket)
		}
		c.emit(EventConnectionFailed, err)
	}
}

func (c *Coordinator) handleOffer(m signaling.Offer) {
	if c.cur != StateSocketReady || c.role != roleNone {
		c.log.Warnf("ignoring offer in %s", c.cur)
		return
	}

	c.role = roleResponder
	c.setState(StateOfferReceived)
	c.emit(EventRemoteOfferArrived, nil)
	c.armTimeout()

	if !c.applyRemote(m.Description()) {
		return
	}
	if err := c.engine.CreateAnswer(); err != nil {
		c.fail("CreateAnswer", err)
	}
}

func (c *Coordinator) handleAnswer(m signaling.Answer) {
	if c.cur != StateOfferSent {
		c.log.Warnf("ignoring answer in %s", c.cur)
		return
	}

	c.setState(StateAnswerReceived)
	c.emit(EventRemoteAnswerArrived, nil)

	if !c.applyRemote(m.Description()) {
		return
	}
	c.establish()
}

func (c *Coordinator) handleCandidate(m signaling.Candidate) {
	if c.cur == StateFailed {
		c.log.Debugf("ignoring candidate after failure")
		return
	}
	if !c.candidates.admit(m) {
		c.log.Debugf("ignoring duplicate candidate")
		return
	}
	if !c.remoteApplied {
		c.candidates.buffer(m)
		c.log.Debugf("buffered remote candidate (%d pending)", c.candidates.len())
		return
	}
	if err := c.engine.AddICECandidate(m.ToPion()); err != nil {
		c.fail("AddICECandidate", err)
	}
}

func (c *Coordinator) handleLocalDescription(desc webrtc.SessionDescription) {
	switch {
	case c.role == roleInitiator && c.cur == StateSocketReady && desc.Type == webrtc.SDPTypeOffer:
		if err := c.engine.SetLocalDescription(desc); err != nil {
			c.fail("SetLocalDescription", err)
			return
		}
		c.send(signaling.Offer{SDP: desc.SDP})
		c.setState(StateOfferSent)

	case c.role == roleResponder && c.cur == StateOfferReceived && desc.Type == webrtc.SDPTypeAnswer:
		if err := c.engine.SetLocalDescription(desc); err != nil {
			c.fail("SetLocalDescription", err)
			return
		}
		c.send(signaling.Answer{SDP: desc.SDP})
		c.setState(StateAnswerSent)
		c.establish()

	default:
		c.log.Warnf("ignoring local %s in %s", desc.Type, c.cur)
	}
}

func (c *Coordinator) handleTimeout() {
	if c.cur.terminal() {
		return
	}
	c.fail("negotiate", ErrNegotiationTimeout)
}

// ---------------------------------------------------------------------------
// Helpers (event loop only)
// ---------------------------------------------------------------------------

// applyRemote sets the remote description and flushes the candidates that
// arrived before it. It reports false after failing the attempt.
func (c *Coordinator) applyRemote(desc webrtc.SessionDescription) bool {
	if err := c.engine.SetRemoteDescription(desc); err != nil {
		c.fail("SetRemoteDescription", err)
		return false
	}
	c.remoteApplied = true

	pending := c.candidates.drain()
	for _, cand := range pending {
		if err := c.engine.AddICECandidate(cand.ToPion()); err != nil {
			c.fail("AddICECandidate", err)
			return false
		}
	}
	c.log.Debugf("remote %s applied, %d buffered candidates flushed", desc.Type, len(pending))
	return true
}

func (c *Coordinator) establish() {
	c.stopTimeout()
	c.setState(StateEstablished)
	c.log.Infof("call established")
	c.emit(EventEstablished, nil)
}

func (c *Coordinator) fail(op string, err error) {
	if c.cur == StateFailed {
		return
	}

	nerr := &NegotiationError{Op: op, State: c.cur, Err: err}
	c.stopTimeout()
	c.candidates.drain()
	c.setState(StateFailed)
	c.log.Errorf("%v", nerr)
	c.emit(EventFailed, nerr)
}

func (c *Coordinator) send(msg signaling.Message) {
	if !c.out.push(msg) {
		c.log.Debugf("dropping %T after close", msg)
	}
}

func (c *Coordinator) armTimeout() {
	if c.cfg.NegotiationTimeout <= 0 || c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(c.cfg.NegotiationTimeout, func() { c.post(timedOut{}) })
}

func (c *Coordinator) stopTimeout() {
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Coordinator) setState(s State) {
	if s == c.cur {
		return
	}
	c.log.Debugf("%s -> %s", c.cur, s)
	c.cur = s
	c.state.Store(int32(s))
}

func (c *Coordinator) emit(kind Kind, err error) {
	c.handlerMu.RLock()
	fn := c.onEvent
	c.handlerMu.RUnlock()
	if fn != nil {
		fn(Event{Kind: kind, State: c.cur, Err: err})
	}
}
