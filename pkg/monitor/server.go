// Package monitor streams board status to websocket clients.
package monitor

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"
)

// StatusPath is the websocket endpoint.
const StatusPath = "/status"

// StatusFunc provides the current status, it must be JSON serializable.
type StatusFunc func() interface{}

// Server pushes status to every websocket client whenever Notify is
// called. Notifications between two sends are coalesced.
type Server struct {
	Addr   string
	Status StatusFunc

	lock    sync.Mutex
	clients map[chan struct{}]struct{}
}

// New creates a Server.
func New(addr string, status StatusFunc) *Server {
	return &Server{Addr: addr, Status: status, clients: make(map[chan struct{}]struct{})}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(StatusPath, websocket.Handler(s.serveStatus))
	return mux
}

// Notify wakes up all clients to send the latest status.
func (s *Server) Notify() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for ch := range s.clients {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.clients)
}

func (s *Server) serveStatus(conn *websocket.Conn) {
	defer conn.Close()
	notifyCh := make(chan struct{}, 1)
	s.lock.Lock()
	s.clients[notifyCh] = struct{}{}
	s.lock.Unlock()
	defer func() {
		s.lock.Lock()
		delete(s.clients, notifyCh)
		s.lock.Unlock()
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		var msg []byte
		for {
			if err := websocket.Message.Receive(conn, &msg); err != nil {
				return
			}
		}
	}()

	glog.V(2).Infof("monitor client %s connected", conn.Request().RemoteAddr)
	for {
		if err := websocket.JSON.Send(conn, s.Status()); err != nil {
			glog.V(2).Infof("monitor client %s: %v", conn.Request().RemoteAddr, err)
			return
		}
		select {
		case <-notifyCh:
		case <-closed:
			return
		}
	}
}

// Run implements framework.Runnable.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	glog.Infof("monitor listening on %s", ln.Addr())
	server := &http.Server{Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	if err = server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}
