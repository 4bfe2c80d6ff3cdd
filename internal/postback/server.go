// Package postback exposes the HTTP listener for affiliate conversion
// callbacks. The affiliate network confirms registrations and deposits
// here; the handlers hand the events to the funnel machine.
package postback

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/funnelbot/core/logger"
	"github.com/m3rciful/funnelbot/internal/segment"

	"log/slog"
)

// secretHeader carries the shared postback secret.
const secretHeader = "X-Postback-Secret"

// Funnel is the slice of the state machine the listener needs.
type Funnel interface {
	Registered(ctx context.Context, userID int64) error
	Deposited(ctx context.Context, userID int64) error
}

// Server handles affiliate postbacks and the segment stats endpoint.
type Server struct {
	funnel   Funnel
	segments segment.Index
	secret   string
	addr     string
}

// NewServer constructs the listener. An empty secret disables the header
// check, matching open affiliate setups.
func NewServer(funnel Funnel, segments segment.Index, secret, host, port string) *Server {
	return &Server{
		funnel:   funnel,
		segments: segments,
		secret:   secret,
		addr:     net.JoinHostPort(host, port),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireSecret)
		pr.Post("/postback/registered", s.handleConversion("registered", func(ctx context.Context, uid int64) error {
			return s.funnel.Registered(ctx, uid)
		}))
		pr.Post("/postback/deposited", s.handleConversion("deposited", func(ctx context.Context, uid int64) error {
			return s.funnel.Deposited(ctx, uid)
		}))
		pr.Get("/segments", s.handleSegments)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("postback listener up",
			slog.String("event", "http.listen"),
			slog.String("addr", s.addr),
			slog.Bool("auth", s.secret != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.HTTP.Info("postback listener stopped",
		slog.String("event", "http.stop"),
	)
	return nil
}

// requireSecret rejects requests whose secret header does not match.
// The comparison is constant time so the secret cannot be probed.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret != "" {
			got := r.Header.Get(secretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
				logger.HTTP.Warn("postback auth failed",
					slog.String("event", "http.auth"),
					slog.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// handleConversion parses the {uid} body and applies the transition.
// Unknown users and internal transition errors both answer 200 so the
// network does not retry-storm; errors are logged instead.
func (s *Server) handleConversion(kind string, apply func(ctx context.Context, uid int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req conversionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false})
			return
		}

		start := time.Now()
		if err := apply(r.Context(), int64(req.UID)); err != nil {
			logger.HTTP.Error("postback apply failed",
				slog.String("event", "http.postback"),
				slog.String("kind", kind),
				slog.Int64("uid", int64(req.UID)),
				slog.String("err", err.Error()),
			)
		} else {
			logger.HTTP.Info("postback applied",
				slog.String("event", "http.postback"),
				slog.String("kind", kind),
				slog.Int64("uid", int64(req.UID)),
				slog.Duration("duration", logger.Took(start)),
			)
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

// handleSegments reports per-stage member counts.
func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	counts, err := s.segments.Counts(r.Context())
	if err != nil {
		logger.HTTP.Error("segment counts failed",
			slog.String("event", "http.segments"),
			slog.String("err", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false})
		return
	}
	out := make(map[string]int, len(counts))
	for stage, n := range counts {
		out[string(stage)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "segments": out})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
