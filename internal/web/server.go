// Package web exposes the engine status and the action journal over HTTP.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/autotrade/internal/domain"
	"github.com/vadiminshakov/autotrade/internal/engine"
)

const (
	journalPollInterval = 2 * time.Second
	heartbeatInterval   = 30 * time.Second
)

type statusSource interface {
	Statuses() []engine.Status
}

type actionReader interface {
	EntriesAfter(index uint64, account string) ([]domain.ActionRecordEntry, error)
	CurrentIndex() uint64
}

// Server serves the status API.
type Server struct {
	addr    string
	status  statusSource
	actions actionReader
	now     func() time.Time
	l       *zap.Logger
}

// NewServer creates a status server. actions may be nil when the journal is
// disabled.
func NewServer(addr string, status statusSource, actions actionReader, l *zap.Logger) *Server {
	return &Server{
		addr:    addr,
		status:  status,
		actions: actions,
		now:     time.Now,
		l:       l,
	}
}

// Router returns the HTTP handler of the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.logRequests, middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/accounts", s.handleAccounts)
	r.Get("/accounts/{username}", s.handleAccount)
	r.Get("/actions/stream", s.handleActionStream)

	return r
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("status server started", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "status server")
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with ACME certificates for domain.
// An HTTP server on port 80 answers the HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domain, cacheDir string) error {
	if domain == "" {
		return errors.New("no domain provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domain),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.l.Warn("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil {
			s.l.Warn("status server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("acme server", zap.Error(err))
		}
	}()

	s.l.Info("status server started with automatic TLS", zap.String("addr", s.addr), zap.String("domain", domain))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "status server")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Statuses())
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	for _, st := range s.status.Statuses() {
		if st.Account == username {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("account %q not found", username))
}

// handleActionStream streams journaled actions as server-sent events. The
// event id is the journal index so clients resume with Last-Event-ID.
func (s *Server) handleActionStream(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		writeError(w, http.StatusServiceUnavailable, "action journal not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	cursor := &streamCursor{
		actions: s.actions,
		account: r.URL.Query().Get("account"),
		scanned: parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id")),
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(journalPollInterval)
	defer pollTicker.Stop()

	sendActions := func() error {
		entries, err := cursor.next()
		if err != nil {
			return err
		}
		for _, entry := range entries {
			payload, err := json.Marshal(entry.Record)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", entry.Index)
			fmt.Fprintf(w, "event: action\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		flusher.Flush()
		return nil
	}

	if err := sendActions(); err != nil {
		s.l.Error("action stream initial load", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load actions")
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendActions(); err != nil {
				s.l.Warn("action stream poll", zap.Error(err))
			}
		}
	}
}

// streamCursor remembers how far one stream has read the journal. The scan
// position also moves past entries of other accounts.
type streamCursor struct {
	actions actionReader
	account string
	scanned uint64
}

func (c *streamCursor) next() ([]domain.ActionRecordEntry, error) {
	current := c.actions.CurrentIndex()
	entries, err := c.actions.EntriesAfter(c.scanned, c.account)
	if err != nil {
		return nil, err
	}
	if current > c.scanned {
		c.scanned = current
	}
	if n := len(entries); n > 0 && entries[n-1].Index > c.scanned {
		c.scanned = entries[n-1].Index
	}
	return entries, nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.l.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// parseLastEventID prefers the Last-Event-ID header over the query parameter.
func parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
