package negotiation

import (
	"context"
	"sync"

	"github.com/1ureka/rtcall/internal/signaling"
)

// outbox is an unbounded FIFO between the coordinator and the signaler. It
// lets the event loop and engine callbacks hand off messages without
// blocking while the signaler applies backpressure.
type outbox struct {
	mu     sync.Mutex
	queue  []signaling.Message
	closed bool
	wake   chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

// push appends msg. It reports false once the outbox is closed.
func (o *outbox) push(msg signaling.Message) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, msg)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return true
}

// next blocks until a message is available or ctx ends.
func (o *outbox) next(ctx context.Context) (signaling.Message, bool) {
	for {
		o.mu.Lock()
		if len(o.queue) > 0 {
			msg := o.queue[0]
			o.queue[0] = nil
			o.queue = o.queue[1:]
			o.mu.Unlock()
			return msg, true
		}
		o.mu.Unlock()

		select {
		case <-o.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.queue = nil
	o.mu.Unlock()
}
