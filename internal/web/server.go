package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/example/slotscout/internal/archive"
	"github.com/example/slotscout/internal/auth"
	"github.com/example/slotscout/internal/jobs"
	"github.com/example/slotscout/internal/metrics"
	"github.com/example/slotscout/internal/ratelimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

//go:embed templates/*.html
var fs embed.FS

// CityLookup proxies location autocomplete to a booking platform.
type CityLookup interface {
	AutoCity(ctx context.Context, term string) (json.RawMessage, error)
}

type Server struct {
	Jobs    *jobs.Orchestrator
	Limiter *ratelimit.Limiter
	Cities  CityLookup

	// Optional.
	Archive archive.Archive
	Auth    *auth.Store
	Metrics *metrics.Metrics

	// StreamPoll bounds how long the progress stream waits before sending a
	// heartbeat.
	StreamPoll time.Duration
}

type tmplData struct {
	Title string
	Flash string

	RateLimitSeconds int
	Jobs             []archive.Record
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /scrape/check-limit", s.handleCheckLimit)
	mux.HandleFunc("POST /scrape", s.handleSubmit)
	mux.HandleFunc("GET /scrape/progress/{id}", s.handleProgress)
	mux.HandleFunc("GET /scrape/result/{id}", s.handleResult)
	mux.HandleFunc("GET /scrape/download/{id}/{format}", s.handleDownload)
	mux.HandleFunc("GET /autocity", s.handleAutoCity)

	if s.Metrics != nil {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}

	if s.Auth != nil {
		mux.HandleFunc("GET /admin/login", s.handleLoginForm)
		mux.HandleFunc("POST /admin/login", s.handleLogin)
		mux.HandleFunc("POST /admin/logout", s.handleLogout)
		mux.Handle("GET /admin/jobs", s.Auth.RequireAuth(http.HandlerFunc(s.handleAdminJobs)))
		mux.Handle("GET /admin/jobs/{id}", s.Auth.RequireAuth(http.HandlerFunc(s.handleAdminJob)))
	}

	return logging(mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, "templates/index.html", tmplData{
		Title:            "Venue Slot Finder",
		RateLimitSeconds: int(s.Limiter.Cooldown().Seconds()),
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data tmplData) {
	t, err := template.ParseFS(fs,
		"templates/base.html",
		name,
	)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write json", "err", err)
	}
}

// clientIP is the first X-Forwarded-For hop, else X-Real-IP, else the peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the Flusher underneath.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func logging(next http.Handler) http.Handler {
	tracer := otel.Tracer("github.com/example/slotscout/internal/web")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		slog.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func Start(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	slog.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
