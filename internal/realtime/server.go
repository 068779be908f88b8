package realtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const readHeaderTimeout = 5 * time.Second

// Server exposes a Hub over HTTP on its own listener.
type Server struct {
	hub        *Hub
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(host string, port int, hub *Hub, logger *zap.Logger) (*Server, error) {
	if hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid socket port %d", port)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, hub.Sessions())
	})

	return &Server{
		hub: hub,
		httpServer: &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger,
	}, nil
}

func (s *Server) Addr() string { return s.httpServer.Addr }

// Run serves until ctx is cancelled, then disconnects clients and shuts the
// listener down within shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("socket server started", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("stopping socket server")
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
