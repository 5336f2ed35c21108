package main

import (
	"sync"

	"github.com/1ureka/rtcall/internal/negotiation"
)

// eventQueue hands lifecycle events from the coordinator to the UI loop.
// It is unbounded, so push never blocks the coordinator and no event is lost
// while the UI is busy rendering.
type eventQueue struct {
	mu    sync.Mutex
	queue []negotiation.Event
	wake  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev negotiation.Event) {
	q.mu.Lock()
	q.queue = append(q.queue, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// ready is signalled after a push. Drain with pop until it reports false.
func (q *eventQueue) ready() <-chan struct{} { return q.wake }

func (q *eventQueue) pop() (negotiation.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return negotiation.Event{}, false
	}
	ev := q.queue[0]
	q.queue = q.queue[1:]
	return ev, true
}
