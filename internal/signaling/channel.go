package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcall/internal/util"
)

const (
	defaultQueueSize    = 64
	defaultWriteTimeout = 5 * time.Second
)

var logger = util.NewLogger("signaling")

// ErrClosed is returned by operations on a closed Channel.
var ErrClosed = errors.New("signaling channel closed")

// Status is a change in the relay connection reported through OnStatus.
type Status int

const (
	StatusConnected Status = iota + 1
	StatusConnectionFailed
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusConnectionFailed:
		return "connection failed"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ConnectionError reports a relay that could not be reached or a connection
// that dropped.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("relay %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ChannelConfig parameterizes a Channel. Zero values select the defaults.
type ChannelConfig struct {
	URL          string        // relay WebSocket URL, e.g. ws://127.0.0.1:3000/
	Dialer       Dialer        // defaults to websocket.DefaultDialer
	DialTimeout  time.Duration // 0 relies on the caller's context only
	QueueSize    int           // outbound queue capacity before Send blocks
	WriteTimeout time.Duration // per-frame write deadline
	PingInterval time.Duration // 0 disables keepalive pings
	Stats        *util.Stats   // optional shared counters
}

// Channel owns one relay connection at a time. Outbound messages are queued
// in submission order and survive reconnects; inbound frames are decoded and
// handed to the OnMessage handler in arrival order.
//
// Handlers registered with OnMessage and OnStatus run on the channel's own
// goroutines and must not block.
type Channel struct {
	cfg   ChannelConfig
	inbox chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	conn      *websocket.Conn
	connReady chan struct{} // closed while conn != nil
	dialing   bool
	closed    bool
	connects  int

	statusMu  sync.Mutex // keeps status reports in state-change order
	handlerMu sync.RWMutex
	onMessage func(Message)
	onStatus  func(Status, error)

	closeOnce sync.Once
}

// NewChannel creates a Channel and starts its sender goroutine. No
// connection is made until Open.
func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Stats == nil {
		cfg.Stats = &util.Stats{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel{
		cfg:       cfg,
		inbox:     make(chan []byte, cfg.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		connReady: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.sendLoop()

	return c
}

// OnMessage registers the handler for decoded inbound messages.
func (c *Channel) OnMessage(fn func(Message)) {
	c.handlerMu.Lock()
	c.onMessage = fn
	c.handlerMu.Unlock()
}

// OnStatus registers the handler for connection status changes. err is a
// *ConnectionError for StatusConnectionFailed and StatusDisconnected.
func (c *Channel) OnStatus(fn func(Status, error)) {
	c.handlerMu.Lock()
	c.onStatus = fn
	c.handlerMu.Unlock()
}

// Stats returns the channel's traffic counters.
func (c *Channel) Stats() *util.Stats { return c.cfg.Stats }

// Connected reports whether a relay connection is currently live.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Open dials the relay. A failure is reported as StatusConnectionFailed and
// returned as a *ConnectionError. Open is a no-op while a connection is live
// or another dial is in flight, so at most one attempt runs at a time.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return nil
	}
	c.dialing = true
	c.mu.Unlock()

	dialCtx := ctx
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}
	conn, err := dial(dialCtx, c.cfg.Dialer, c.cfg.URL)

	c.mu.Lock()
	c.dialing = false

	if err != nil {
		cerr := &ConnectionError{URL: c.cfg.URL, Err: err}
		closed := c.closed
		c.statusMu.Lock()
		c.mu.Unlock()
		defer c.statusMu.Unlock()

		if closed {
			return ErrClosed
		}
		logger.Warnf("%v", cerr)
		c.emitStatus(StatusConnectionFailed, cerr)
		return cerr
	}

	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}

	c.connects++
	if c.connects > 1 {
		c.cfg.Stats.AddReconnect()
	}
	if c.cfg.PingInterval > 0 {
		idle := 2*c.cfg.PingInterval + c.cfg.WriteTimeout
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(idle))
		})
	}
	c.conn = conn
	close(c.connReady)

	// Report before the receiver starts so no message precedes the status.
	c.statusMu.Lock()
	c.mu.Unlock()
	logger.Infof("connected to %s", c.cfg.URL)
	c.emitStatus(StatusConnected, nil)
	c.statusMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn != conn {
		return nil
	}
	c.wg.Add(1)
	go c.receive(conn)
	if c.cfg.PingInterval > 0 {
		c.wg.Add(1)
		go c.keepalive(conn)
	}
	return nil
}

// Retry reopens the connection after a failure or drop. It is safe to call
// repeatedly: it does nothing while connected or while a dial is in flight.
func (c *Channel) Retry(ctx context.Context) error {
	return c.Open(ctx)
}

// Close sends a normal-closure frame (1000), closes the connection, stops
// all goroutines and rejects further sends. It is safe to call at any time,
// including before Open and more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		c.cancel()

		if conn != nil {
			writeClose(conn, websocket.CloseNormalClosure, "", c.cfg.WriteTimeout)
			err = conn.Close()
		}

		c.wg.Wait()
		logger.Debugf("channel closed (%s)", c.cfg.Stats.Summary())
	})
	return err
}

// dropConn retires conn after a read or write failure. Only the first
// failure per connection is reported.
func (c *Channel) dropConn(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connReady = make(chan struct{})
	c.statusMu.Lock()
	c.mu.Unlock()
	defer c.statusMu.Unlock()

	conn.Close()

	cerr := &ConnectionError{URL: c.cfg.URL, Err: cause}
	logger.Warnf("connection lost: %v", cerr)
	c.emitStatus(StatusDisconnected, cerr)
}

// waitConn blocks until a connection is live or the channel is closed, in
// which case it returns nil.
func (c *Channel) waitConn() *websocket.Conn {
	for {
		c.mu.Lock()
		conn, ready := c.conn, c.connReady
		c.mu.Unlock()

		if conn != nil {
			return conn
		}

		select {
		case <-ready:
		case <-c.ctx.Done():
			return nil
		}
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (c *Channel) emitStatus(s Status, err error) {
	c.handlerMu.RLock()
	fn := c.onStatus
	c.handlerMu.RUnlock()
	if fn != nil {
		fn(s, err)
	}
}

func (c *Channel) dispatch(msg Message) {
	c.handlerMu.RLock()
	fn := c.onMessage
	c.handlerMu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}
