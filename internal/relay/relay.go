// Package relay implements the intermediary signaling relay: every frame a
// peer sends is forwarded unchanged to the other peers connected on the same
// URL path (the room). The relay does not parse or store messages.
package relay

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcall/internal/util"
)

const writeTimeout = 5 * time.Second

var logger = util.NewLogger("relay")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type peer struct {
	id   string
	room string
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (p *peer) write(typ int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(typ, data)
}

// Server is a WebSocket fan-out relay.
type Server struct {
	stats   *util.Stats
	metrics http.Handler

	listener net.Listener
	httpSrv  *http.Server

	mu     sync.Mutex
	rooms  map[string]map[string]*peer
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a relay. Forwarded traffic is counted in stats, which
// may be nil.
func NewServer(stats *util.Stats) *Server {
	if stats == nil {
		stats = &util.Stats{}
	}
	s := &Server{
		stats: stats,
		rooms: make(map[string]map[string]*peer),
	}
	s.metrics = newMetricsHandler(s)
	return s
}

// Start begins listening on addr (":0" picks a random port) and serves the
// relay on every path. Returns the assigned port number.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start relay: %w", err)
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	s.httpSrv = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("serve: %v", err)
		}
	}()

	return port, nil
}

// ServeHTTP upgrades the request and relays the peer's frames until it
// disconnects. Plain requests to MetricsPath get the Prometheus metrics.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == MetricsPath && !websocket.IsWebSocketUpgrade(r) {
		s.metrics.ServeHTTP(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	p := &peer{id: uuid.NewString()[:8], room: r.URL.Path, conn: conn}
	if !s.join(p) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}
	defer s.wg.Done()
	defer s.leave(p)

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("peer %s read: %v", p.id, err)
			}
			return
		}
		s.stats.AddRecv(len(data))
		s.forward(p, typ, data)
	}
}

// Peers returns the number of peers connected to room.
func (s *Server) Peers(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[room])
}

// PeerCount returns the number of peers connected to any room.
func (s *Server) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, room := range s.rooms {
		n += len(room)
	}
	return n
}

// Stats returns the relay's traffic counters.
func (s *Server) Stats() *util.Stats { return s.stats }

// Close stops accepting connections, sends a going-away close frame to every
// peer and waits for their handlers to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var peers []*peer
	for _, room := range s.rooms {
		for _, p := range room {
			peers = append(peers, p)
		}
	}
	s.mu.Unlock()

	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Close()
	}

	for _, p := range peers {
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"),
			time.Now().Add(writeTimeout))
		p.conn.Close()
	}

	s.wg.Wait()
	return err
}

// ---------------------------------------------------------------------------
// Rooms
// ---------------------------------------------------------------------------

func (s *Server) join(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	room := s.rooms[p.room]
	if room == nil {
		room = make(map[string]*peer)
		s.rooms[p.room] = room
	}
	room[p.id] = p
	s.wg.Add(1)

	logger.Infof("peer %s joined %s (%d connected)", p.id, p.room, len(room))
	return true
}

func (s *Server) leave(p *peer) {
	p.conn.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	room := s.rooms[p.room]
	delete(room, p.id)
	if len(room) == 0 {
		delete(s.rooms, p.room)
	}
	logger.Infof("peer %s left %s (%d connected)", p.id, p.room, len(room))
}

// forward writes data to every other peer in the sender's room. A peer that
// cannot be written to is disconnected; its own handler cleans it up.
func (s *Server) forward(from *peer, typ int, data []byte) {
	s.mu.Lock()
	targets := make([]*peer, 0, len(s.rooms[from.room]))
	for id, p := range s.rooms[from.room] {
		if id != from.id {
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()

	for _, p := range targets {
		if err := p.write(typ, data); err != nil {
			logger.Warnf("dropping peer %s: %v", p.id, err)
			p.conn.Close()
			continue
		}
		s.stats.AddSent(len(data))
	}
}
