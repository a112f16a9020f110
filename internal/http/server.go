package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"lumenkv/pkg/dberrors"
	"lumenkv/pkg/tracing"
)

const (
	contentTypeJSON        = "application/json"
	contentTypeOctetStream = "application/octet-stream"
	defaultHTTPAddr        = ":8080"
	defaultShutdownTimeout = time.Second * 5
	defaultHeaderTimeout   = time.Second * 5
	defaultMaxValueBytes   = 64 << 20
)

// Store is the part of the engine the REST API needs.
type Store interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, bool)
	Delete(key []byte) (bool, error)
}

// RequestObserver records per-request metrics. *metrics.Metrics implements it.
type RequestObserver interface {
	ObserveRequest(transport, method, code string, d time.Duration)
}

type Options struct {
	Logger *slog.Logger
	Tracer *tracing.Tracer
	// Metrics and MetricsHandler are optional; /metrics is mounted only when
	// MetricsHandler is set.
	Metrics           RequestObserver
	MetricsHandler    http.Handler
	MetricsPath       string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	MaxValueBytes     int64
}

// Server serves the key-value REST API on top of a Store.
type Server struct {
	store      Store
	opts       Options
	log        *slog.Logger
	httpServer *http.Server
	listener   net.Listener
	addr       string
}

// NewServer creates a new server instance
func NewServer(store Store, addr string, opts Options) *Server {
	if addr == "" {
		addr = defaultHTTPAddr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = tracing.Noop()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = defaultHeaderTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.MaxValueBytes <= 0 {
		opts.MaxValueBytes = defaultMaxValueBytes
	}
	return &Server{
		store: store,
		opts:  opts,
		log:   opts.Logger.With("component", "http"),
		addr:  addr,
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.createRouter(),
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", "error", err)
		}
	}()

	s.log.Info("HTTP server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(s.opts.Tracer.Middleware)

	r.Get("/health", s.handleHealth)
	if s.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, s.opts.MetricsPath, s.opts.MetricsHandler)
	}

	r.Put("/v1/kv", s.handlePut)
	r.Get("/v1/kv", s.handleGet)
	r.Delete("/v1/kv", s.handleDelete)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.ObserveRequest("http", r.Method+" "+route, strconv.Itoa(status), elapsed)
		}

		s.log.Debug("request served",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("Error encoding response", "error", err)
	}
}

// writeError maps an engine error to an HTTP status.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		tracing.RecordError(r.Context(), err)
		s.log.Error("request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"error", err,
		)
	}
	s.writeJSON(w, status, NewErrorResponse(err.Error()))
}

func statusFor(err error) int {
	switch dberrors.KindOf(err) {
	case dberrors.KindInvalidArgument:
		return http.StatusBadRequest
	case dberrors.KindClosed, dberrors.KindCorruption:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	var value []byte
	if v, ok := r.URL.Query()["value"]; ok {
		value = []byte(v[0])
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxValueBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.writeJSON(w, http.StatusRequestEntityTooLarge, NewErrorResponse("Value too large"))
				return
			}
			s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Failed to read body"))
			return
		}
		value = body
	}

	if err := s.store.Put([]byte(key), value); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	value, found := s.store.Get([]byte(key))
	if !found {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Key not found"))
		return
	}

	w.Header().Set("Content-Type", contentTypeOctetStream)
	w.Header().Set("Content-Length", strconv.Itoa(len(value)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(value); err != nil {
		s.log.Warn("Error writing value", "error", err)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	existed, err := s.store.Delete([]byte(key))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewDeleteResponse(existed))
}
