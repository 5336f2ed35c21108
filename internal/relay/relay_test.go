package relay

import (
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func startRelay(t *testing.T) (*Server, int) {
	t.Helper()
	s := NewServer(nil)
	port, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, port
}

func dialRoom(t *testing.T, port int, room string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d%s", port, room), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, typ)
	return string(data)
}

func TestRelayForwardsToOthers(t *testing.T) {
	s, port := startRelay(t)

	a := dialRoom(t, port, "/")
	b := dialRoom(t, port, "/")
	c := dialRoom(t, port, "/")
	require.Eventually(t, func() bool { return s.Peers("/") == 3 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"OFFER","sdp":"v=0"}`)))
	assert.Equal(t, `{"type":"OFFER","sdp":"v=0"}`, read(t, b))
	assert.Equal(t, `{"type":"OFFER","sdp":"v=0"}`, read(t, c))

	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte("reply")))
	assert.Equal(t, "reply", read(t, a))
	assert.Equal(t, "reply", read(t, c))

	// The sender never gets its own frame back.
	require.NoError(t, a.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := a.ReadMessage()
	assert.Error(t, err)

	assert.Equal(t, int64(2), s.Stats().MsgsRecv.Load())
	assert.Eventually(t, func() bool { return s.Stats().MsgsSent.Load() == 4 }, waitTimeout, 5*time.Millisecond)
}

func TestRelayPreservesOrder(t *testing.T) {
	s, port := startRelay(t)

	a := dialRoom(t, port, "/")
	b := dialRoom(t, port, "/")
	require.Eventually(t, func() bool { return s.Peers("/") == 2 }, waitTimeout, 5*time.Millisecond)

	for i := 0; i < 50; i++ {
		require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("m%d", i))))
	}
	for i := 0; i < 50; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), read(t, b))
	}
}

func TestRelayIsolatesRooms(t *testing.T) {
	s, port := startRelay(t)

	a := dialRoom(t, port, "/room-a")
	b := dialRoom(t, port, "/room-b")
	a2 := dialRoom(t, port, "/room-a")
	require.Eventually(t, func() bool { return s.Peers("/room-a") == 2 && s.Peers("/room-b") == 1 },
		waitTimeout, 5*time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("hello a")))
	assert.Equal(t, "hello a", read(t, a2))

	require.NoError(t, b.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := b.ReadMessage()
	assert.Error(t, err)
}

func TestRelayPeerLeaves(t *testing.T) {
	s, port := startRelay(t)

	a := dialRoom(t, port, "/")
	dialRoom(t, port, "/")
	require.Eventually(t, func() bool { return s.Peers("/") == 2 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return s.Peers("/") == 1 }, waitTimeout, 5*time.Millisecond)
}

func TestRelayCloseSendsGoingAway(t *testing.T) {
	s, port := startRelay(t)

	a := dialRoom(t, port, "/")
	require.Eventually(t, func() bool { return s.Peers("/") == 1 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, s.Close())

	require.NoError(t, a.SetReadDeadline(time.Now().Add(waitTimeout)))
	_, _, err := a.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	assert.Zero(t, s.Peers("/"))
	assert.NoError(t, s.Close())

	_, _, err = websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/", port), nil)
	assert.Error(t, err)
}

func TestRelayMetrics(t *testing.T) {
	s, port := startRelay(t)

	a := dialRoom(t, port, "/")
	b := dialRoom(t, port, "/")
	require.Eventually(t, func() bool { return s.PeerCount() == 2 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("hello")))
	assert.Equal(t, "hello", read(t, b))
	require.Eventually(t, func() bool { return s.Stats().MsgsSent.Load() == 1 }, waitTimeout, 5*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d%s", port, MetricsPath))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rtcall_relay_peers 2")
	assert.Contains(t, string(body), "rtcall_relay_frames_received_total 1")
	assert.Contains(t, string(body), "rtcall_relay_frames_forwarded_total 1")
	assert.Contains(t, string(body), "rtcall_relay_bytes_forwarded_total 5")
}
