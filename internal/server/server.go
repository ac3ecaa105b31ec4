// Package server exposes a small read-only admin API over HTTP: health,
// the derived entity schemas, and drift between those schemas and the live
// database.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/datastore/internal/database"
	"github.com/koustreak/datastore/internal/errs"
	"github.com/koustreak/datastore/internal/logger"
	"github.com/koustreak/datastore/internal/schema"
)

// Server serves the admin API.
type Server struct {
	health  database.Pinger
	catalog *schema.Catalog
	inspect database.Introspector
	dbName  string // schema passed to the introspector; empty means the driver default
	log     *logger.Logger
	timeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithIntrospector enables the drift and database endpoints.
func WithIntrospector(i database.Introspector, schemaName string) Option {
	return func(s *Server) {
		s.inspect = i
		s.dbName = schemaName
	}
}

// WithLogger sets the request logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l.Component("server") }
}

// WithRequestTimeout bounds every request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// New returns a Server reporting health through health and schemas from
// catalog. A nil catalog means schema.Default.
func New(health database.Pinger, catalog *schema.Catalog, opts ...Option) *Server {
	if catalog == nil {
		catalog = schema.Default
	}
	s := &Server{health: health, catalog: catalog, log: logger.Nop(), timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", s.healthz)
	r.Route("/schemas", func(r chi.Router) {
		r.Get("/", s.listSchemas)
		r.Get("/{table}", s.getSchema)
		r.Get("/{table}/drift", s.drift)
	})
	r.Get("/database", s.inspectDatabase)
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	s.log.InfoWith("admin server listening", map[string]any{"addr": addr})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errs.Wrap(errs.ErrKindConnectionFailed, "admin server failed", err).WithOp("server.listen")
	}
	return <-done
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.health.Ping(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSchemas(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Schemas())
}

func (s *Server) getSchema(w http.ResponseWriter, r *http.Request) {
	ts, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) drift(w http.ResponseWriter, r *http.Request) {
	ts, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if s.inspect == nil {
		writeError(w, http.StatusNotImplemented, "the driver does not support introspection")
		return
	}

	name := ts.Table.Schema
	if name == "" {
		name = s.dbName
	}
	live, err := s.inspect.InspectTable(r.Context(), name, ts.Table.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema.Verify(ts, live.ColumnNames()))
}

func (s *Server) inspectDatabase(w http.ResponseWriter, r *http.Request) {
	if s.inspect == nil {
		writeError(w, http.StatusNotImplemented, "the driver does not support introspection")
		return
	}
	info, err := database.InspectSchema(r.Context(), s.inspect, s.dbName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*schema.TableSchema, bool) {
	table := chi.URLParam(r, "table")
	ts, ok := s.catalog.Lookup(table)
	if !ok {
		writeError(w, http.StatusNotFound, "no entity is mapped to table "+table)
	}
	return ts, ok
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorWith("request failed", err, map[string]any{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		})
	}
	writeError(w, status, err.Error())
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.DebugWith("request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"elapsed":    time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput, errs.ErrKindTranslation:
		return http.StatusBadRequest
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
