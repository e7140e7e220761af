// Package server is the signaling and room server that mesh call clients
// connect to.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	log     *slog.Logger
	hub     *Hub
	metrics *Metrics
	addr    string
}

func New(log *slog.Logger, addr string) *Server {
	metrics := NewMetrics()
	return &Server{
		log:     log,
		hub:     NewHub(log, metrics),
		metrics: metrics,
		addr:    addr,
	}
}

// Handler returns the HTTP routes. The hub must be running.
func (s *Server) Handler() http.Handler {
	return NewRouter(s.log, s.hub, s.metrics)
}

// Hub returns the room hub so callers can run it alongside a custom listener.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe runs the hub and the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("signaling server listening", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log.Info("shutting down signaling server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
