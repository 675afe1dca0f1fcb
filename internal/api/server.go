package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/history"
	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/workflow"
)

// HistoryReader is the archive surface the API reads from.
type HistoryReader interface {
	List(ctx context.Context, filter history.Filter) ([]history.Record, error)
	Stats(ctx context.Context) (history.Stats, error)
	Path() string
}

// Options wires the server to the daemon's components. History and Logs
// are optional.
type Options struct {
	Config  *config.Config
	Manager *workflow.Manager
	History HistoryReader
	Logs    *logging.StreamHub
	Version string
	Logger  *slog.Logger
}

// Server serves the job API.
type Server struct {
	cfg     *config.Config
	manager *workflow.Manager
	history HistoryReader
	logs    *logging.StreamHub
	version string
	logger  *slog.Logger
	now     func() time.Time

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

// NewServer builds the routing table.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: api server requires configuration", services.ErrConfiguration)
	}
	if opts.Manager == nil {
		return nil, fmt.Errorf("%w: api server requires a workflow manager", services.ErrConfiguration)
	}
	s := &Server{
		cfg:     opts.Config,
		manager: opts.Manager,
		history: opts.History,
		logs:    opts.Logs,
		version: opts.Version,
		logger:  logging.NewComponentLogger(opts.Logger, "api"),
		now:     func() time.Time { return time.Now().UTC() },
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/jobs", s.handleSubmit)
	api.HandleFunc("GET /api/jobs", s.handleList)
	api.HandleFunc("GET /api/jobs/{id}", s.handleGet)
	api.HandleFunc("DELETE /api/jobs/{id}", s.handleDelete)
	api.HandleFunc("POST /api/jobs/{id}/cancel", s.handleCancel)
	api.HandleFunc("GET /api/jobs/{id}/download/{format}", s.handleDownload)
	api.HandleFunc("GET /api/jobs/{id}/events", s.handleEvents)
	api.HandleFunc("GET /api/history", s.handleHistory)
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("GET /api/logs", s.handleLogs)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", s.handleHealth)
	root.Handle("/api/", authMiddleware(strings.TrimSpace(s.cfg.Paths.APIToken), api))
	s.handler = requestIDMiddleware(root)
	return s, nil
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on paths.api_bind and serves until ctx is cancelled or Stop
// is called.
func (s *Server) Start(ctx context.Context) error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		return fmt.Errorf("%w: paths.api_bind is empty", services.ErrConfiguration)
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the listener down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.KindOf(err)
	status := StatusForKind(kind)
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, fileutil.ErrTooLarge) {
		kind, status = services.KindValidation, http.StatusRequestEntityTooLarge
	}
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
			logging.String(logging.FieldErrorKind, string(kind)),
		)
	}
	writeJSON(w, status, ErrorResponse{Error: string(kind), Message: services.Message(err)})
}
