// Package ipcserver accepts TCP connections for the object-management IPC
// transport: each accepted connection is framed with stream.FrameAdapter,
// given its own manager.Manager and object store, and handed a fresh
// provider.Registry installed as the connection's backend.Stub.
package ipcserver

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/parasvc/fabric/internal/logger"
	"github.com/parasvc/fabric/pkg/ipc/backend"
	"github.com/parasvc/fabric/pkg/ipc/manager"
	"github.com/parasvc/fabric/pkg/ipc/stream"
	"github.com/parasvc/fabric/pkg/provider"
)

// RegistryFactory builds a fresh provider.Registry bound to mgr, for one
// freshly accepted connection. The returned release func is called once,
// when that connection's read loop stops, so the caller can unregister the
// connection's Registry from any connection-spanning view it installed it
// into (see provider.ActiveRegistry).
type RegistryFactory func(mgr *manager.Manager) (registry *provider.Registry, release func())

// Server listens for IPC connections and wires each one into a manager,
// object store, and backend registrar.
type Server struct {
	listenAddr  string
	maxSendData uint32
	newRegistry RegistryFactory

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopped  bool
}

// NewServer builds a Server that listens on listenAddr. maxSendData bounds
// a single framed message (0 selects stream.DefaultMaxSendData); newRegistry
// is called once per accepted connection.
func NewServer(listenAddr string, maxSendData uint32, newRegistry RegistryFactory) *Server {
	return &Server{
		listenAddr:  listenAddr,
		maxSendData: maxSendData,
		newRegistry: newRegistry,
		conns:       make(map[net.Conn]struct{}),
	}
}

// Start listens on listenAddr and accepts connections until ctx is
// cancelled, at which point the listener and every accepted connection are
// closed and Start returns nil.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("ipcserver: listen on %s: %w", s.listenAddr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logger.Info("ipc server listening", "addr", s.listenAddr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			return fmt.Errorf("ipcserver: accept: %w", err)
		}
		s.trackConn(conn)
		go s.handle(conn)
	}
}

// Stop closes the listener and every currently tracked connection. Safe to
// call multiple times.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	ln := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// handle wires one accepted connection into a Manager, Registry, and
// backend.Stub, then waits for the adapter's read loop to stop before
// untracking the connection.
func (s *Server) handle(conn net.Conn) {
	defer s.untrackConn(conn)

	info := stream.ConnectionInfo{Name: conn.RemoteAddr().String(), Direction: stream.Inbound}
	adapter := stream.NewFrameAdapter(conn, info, s.maxSendData)

	mgr := manager.New(adapter)
	registry, release := s.newRegistry(mgr)
	stub := backend.NewStub(mgr, registry)
	if err := stub.Register(); err != nil {
		logger.Error("ipc server: register backend stub", "error", err, "connection", info.Name)
		release()
		_ = conn.Close()
		return
	}

	logger.Info("ipc connection accepted", "connection", info.Name)
	<-adapter.Closed()
	release()
	mgr.Store().CloseAll()
	logger.Info("ipc connection closed", "connection", info.Name)
}
