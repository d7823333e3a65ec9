package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/trailguard/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNAL INTAKE - Authenticated webhook, one signal at a time
// ═══════════════════════════════════════════════════════════════════════════════
//
//   POST /hook    {"auth_id": ..., "action": ..., ...} → 202 {"status":"ok"}
//   GET  /healthz → ok
//
// Accepted signals are queued and handled sequentially by a single worker.
//
// ═══════════════════════════════════════════════════════════════════════════════

const maxBodyBytes = 64 << 10

// SignalHandler consumes accepted signals
type SignalHandler interface {
	HandleSignal(ctx context.Context, sig types.Signal) error
}

// Server receives trading signals over HTTP
type Server struct {
	authID  string
	handler SignalHandler
	queue   chan types.Signal
	srv     *http.Server
}

// NewServer creates a webhook server listening on addr
func NewServer(addr, authID string, handler SignalHandler, queueSize int) *Server {
	if queueSize <= 0 {
		queueSize = 16
	}
	s := &Server{
		authID:  authID,
		handler: handler,
		queue:   make(chan types.Signal, queueSize),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/hook", s.handleHook)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// Start serves HTTP and runs the worker until ctx is done
func (s *Server) Start(ctx context.Context) {
	go s.RunWorker(ctx)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("📬 Webhook listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Webhook server failed")
		}
	}()
}

// Shutdown stops accepting requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// RunWorker hands queued signals to the handler one at a time
func (s *Server) RunWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-s.queue:
			if err := s.handler.HandleSignal(ctx, sig); err != nil {
				log.Warn().Err(err).Str("action", string(sig.Action)).Msg("Signal not applied")
			}
		}
	}
}

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeStatus(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var sig types.Signal
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&sig); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid json")
		return
	}

	if subtle.ConstantTimeCompare([]byte(sig.AuthID), []byte(s.authID)) != 1 {
		log.Warn().Str("remote", r.RemoteAddr).Msg("⛔ Webhook auth failed")
		writeStatus(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := sig.Validate(); err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error())
		return
	}

	select {
	case s.queue <- sig:
	default:
		writeStatus(w, http.StatusServiceUnavailable, "busy")
		return
	}

	log.Info().Str("action", string(sig.Action)).Str("order_type", sig.OrderType).Msg("📨 Signal accepted")
	writeStatus(w, http.StatusAccepted, "ok")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
