// Package httpapi exposes the authority's HTTP surface: batch submit,
// worker enrollment and roster, and the health probe.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/safetrack/fieldsign/internal/logging"
	"github.com/safetrack/fieldsign/internal/server/storage"
)

// Server wires the handlers onto a mux router and manages the http.Server
// lifecycle.
type Server struct {
	storage   storage.Storage
	logger    logging.Logger
	secretKey []byte
	srv       *http.Server
}

func NewServer(addr string, st storage.Storage, secretKey []byte, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewSlogLogger(slog.New(slog.DiscardHandler))
	}
	s := &Server{
		storage:   st,
		logger:    logger,
		secretKey: secretKey,
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed separately so tests can drive the
// handlers through httptest without binding a socket.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/sign-requests", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/sign-requests/{id}", s.handleGetRequest).Methods(http.MethodGet)
	api.HandleFunc("/workers", s.handleListWorkers).Methods(http.MethodGet)
	api.HandleFunc("/workers", s.handleEnrollWorker).Methods(http.MethodPost)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.Info(ctx, "http server listening", "addr", s.srv.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
