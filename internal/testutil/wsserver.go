package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// WSHandler serves one upgraded websocket connection. The connection is
// closed after the handler returns.
type WSHandler func(conn *websocket.Conn, r *http.Request)

// WSServer is an httptest server that upgrades every request to a websocket.
type WSServer struct {
	*httptest.Server

	upgrader websocket.Upgrader
	handler  WSHandler

	mu    sync.Mutex
	paths []string
}

// NewWSServer starts a websocket test server. It is closed on test cleanup.
func NewWSServer(t *testing.T, handler WSHandler) *WSServer {
	t.Helper()

	s := &WSServer{
		handler: handler,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *WSServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.handler != nil {
		s.handler(conn, r)
	}
}

// Host returns the host:port the server listens on.
func (s *WSServer) Host() string {
	return strings.TrimPrefix(s.URL, "http://")
}

// Paths returns the request paths seen so far.
func (s *WSServer) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}
