package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Send encodes msg and appends it to the outbound queue. Frames are written
// in submission order; a frame leaves the queue only once the connection
// accepted it, so frames queued while disconnected go out after the next
// successful Open. Send blocks while the queue is full until space frees,
// ctx ends or the channel closes.
func (c *Channel) Send(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	// Prefer ErrClosed over a racing enqueue once Close has run.
	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case c.inbox <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// sendLoop is the single-writer goroutine. It holds the head frame until a
// write succeeds, waiting for a live connection as needed.
func (c *Channel) sendLoop() {
	defer c.wg.Done()

	var head []byte
	for {
		if head == nil {
			select {
			case head = <-c.inbox:
			case <-c.ctx.Done():
				return
			}
		}

		conn := c.waitConn()
		if conn == nil {
			return
		}

		if err := c.write(conn, head); err != nil {
			c.dropConn(conn, fmt.Errorf("write: %w", err))
			continue
		}

		c.cfg.Stats.AddSent(len(head))
		head = nil
	}
}

func (c *Channel) write(conn *websocket.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// keepalive pings the relay every PingInterval. Pongs extend the read
// deadline set in Open.
func (c *Channel) keepalive(conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.dropConn(conn, fmt.Errorf("ping: %w", err))
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}
