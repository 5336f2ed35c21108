package signaling

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// receive reads frames from conn until it fails. Undecodable frames are
// logged and dropped without touching the connection.
func (c *Channel) receive(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			c.dropConn(conn, fmt.Errorf("read: %w", err))
			return
		}

		if typ != websocket.TextMessage {
			logger.Warnf("ignoring non-text frame (opcode=%d, %d bytes)", typ, len(data))
			continue
		}

		msg, err := Decode(data)
		if err != nil {
			c.cfg.Stats.AddDecodeError()
			logger.Warnf("dropping frame: %v", err)
			continue
		}

		c.cfg.Stats.AddRecv(len(data))
		logger.Debugf("received %T (%d bytes)", msg, len(data))
		c.dispatch(msg)
	}
}
