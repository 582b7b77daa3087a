package filetransfer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/parasvc/fabric/internal/logger"
)

// Server is the HTTP server for the file-transfer engine.
//
// The server supports graceful shutdown with a fixed timeout.
type Server struct {
	server       *http.Server
	shutdownOnce sync.Once
}

// NewServer builds a Server around h's routes, bound to listenAddr, with
// readTimeout/writeTimeout applied to the underlying http.Server.
func NewServer(listenAddr string, h *Handler, allowedOrigins []string, readTimeout, writeTimeout time.Duration) *Server {
	router := NewRouter(h, allowedOrigins)
	return &Server{
		server: &http.Server{
			Addr:         listenAddr,
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
	}
}

// Start serves the file-transfer API until ctx is cancelled, then shuts
// down gracefully with a 5s timeout.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("file-transfer server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("file-transfer server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("file-transfer server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("file-transfer server shutdown error: %w", err)
			logger.Error("file-transfer server shutdown error", "error", err)
		} else {
			logger.Info("file-transfer server stopped gracefully")
		}
	})
	return shutdownErr
}
