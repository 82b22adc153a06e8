// Package webhook is the inbound HTTP surface: provider webhooks are
// acknowledged immediately and their payloads handed to the bus, so the
// transport never waits on model latency.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mk-162/fixMate/internal/bus"
	"github.com/mk-162/fixMate/internal/channels/respondio"
	"github.com/mk-162/fixMate/internal/channels/twilio"
	"github.com/mk-162/fixMate/internal/store"
)

const maxBodyBytes = 1 << 20

// emptyTwiML tells Twilio not to auto-reply; our responses go out through
// the REST API instead.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// Server hosts the webhook and health endpoints.
type Server struct {
	addr      string
	publicURL string // externally visible base URL, used for Twilio signature checks
	router    bus.MessageRouter
	twilio    *twilio.Channel
	respondio *respondio.Channel
	issues    store.IssueStore
	limiter   *ipRateLimiter

	httpServer *http.Server
}

// New constructs the webhook server.
func New(addr, publicURL string, router bus.MessageRouter, tw *twilio.Channel, rio *respondio.Channel, issues store.IssueStore) *Server {
	s := &Server{
		addr:      addr,
		publicURL: publicURL,
		router:    router,
		twilio:    tw,
		respondio: rio,
		issues:    issues,
		limiter:   newIPRateLimiter(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/twilio", s.rateLimited(s.handleTwilio))
	mux.HandleFunc("POST /webhooks/respondio", s.rateLimited(s.handleRespondIO))
	mux.HandleFunc("GET /webhooks/respondio", s.handleRespondIOVerify)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("webhook server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !s.limiter.Allow(ip) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// handleTwilio accepts a Twilio form post. The signature check is
// advisory in sandbox use: a mismatch is logged, not rejected.
func (s *Server) handleTwilio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form payload", http.StatusBadRequest)
		return
	}

	if s.twilio != nil {
		fullURL := s.publicURL + r.URL.Path
		if !s.twilio.ValidateSignature(fullURL, r.PostForm, r.Header.Get("X-Twilio-Signature")) {
			slog.Warn("twilio signature mismatch", "remote", r.RemoteAddr)
		}
	}

	msg := twilio.ParseInbound(r.PostForm)
	go s.router.PublishInbound(msg)

	w.Header().Set("Content-Type", "text/xml")
	_, _ = io.WriteString(w, emptyTwiML)
}

func (s *Server) handleRespondIO(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if s.respondio != nil && !s.respondio.VerifySignature(body, r.Header.Get("X-Respond-Signature")) {
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	msg, ok, err := respondio.ParseInbound(body)
	if err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if ok {
		go s.router.PublishInbound(msg)
	}

	writeJSON(w, map[string]any{"status": "ok"})
}

func (s *Server) handleRespondIOVerify(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "service": "FixMate WhatsApp Integration"})
}

// handleHealth reports liveness plus agent resolution stats.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{"status": "ok"}
	if stats, err := s.issues.ResolutionStats(r.Context()); err == nil {
		payload["stats"] = stats
	}
	writeJSON(w, payload)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}
