package signaling

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer opens relay connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// dial connects to the relay WebSocket URL.
func dial(ctx context.Context, d Dialer, url string) (*websocket.Conn, error) {
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return conn, nil
}

// writeClose sends a close frame with the given status code. Errors are
// ignored: the connection is torn down right after either way.
func writeClose(conn *websocket.Conn, code int, reason string, timeout time.Duration) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(timeout))
}
