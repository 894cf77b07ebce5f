// Package server exposes the HTTP surface of the voice-agent: the HTML
// shell, the voice catalogue, static assets, health and metrics endpoints,
// and the /ws WebSocket endpoint where sessions live.
package server

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ariavoice/aria/internal/health"
	"github.com/ariavoice/aria/internal/history"
	"github.com/ariavoice/aria/internal/observe"
	"github.com/ariavoice/aria/internal/ratelimit"
	"github.com/ariavoice/aria/internal/session"
	"github.com/ariavoice/aria/pkg/provider/llm"
	"github.com/ariavoice/aria/pkg/provider/stt"
	"github.com/ariavoice/aria/pkg/provider/tts"
)

//go:embed index.html
var indexHTML []byte

// Config holds all dependencies for a [Server].
type Config struct {
	// Logger receives server-scoped log records. Nil selects slog.Default.
	Logger *slog.Logger

	// STT, LLM, and TTS are handed to each new session.
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider

	// History is the process-wide conversation store shared by all sessions.
	History *history.Store

	// Limiter is the process-wide LLM quota shared by all sessions.
	Limiter *ratelimit.Limiter

	// Metrics records HTTP and pipeline telemetry. Nil selects the default
	// instance.
	Metrics *observe.Metrics

	// Health serves the /healthz and /readyz endpoints. Nil disables them.
	Health *health.Handler

	// Persona is the system instruction for every session's LLM calls.
	Persona string

	// Voice is the default TTS voice profile for new sessions.
	Voice tts.VoiceProfile

	// StaticDir is the directory served under /static/. Empty disables the
	// static file server.
	StaticDir string
}

// Server is the HTTP handler tree for the voice agent. Create with [New] and
// mount via [Server.Handler].
type Server struct {
	cfg Config
	log *slog.Logger
}

// New creates a Server with the given dependencies.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Server{cfg: cfg, log: logger}
}

// Handler returns the full route tree wrapped in the metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /voices", s.handleVoices)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.cfg.StaticDir != "" {
		mux.Handle("GET /static/",
			http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.StaticDir))))
	}
	if s.cfg.Health != nil {
		mux.HandleFunc("GET /healthz", s.cfg.Health.Healthz)
		mux.HandleFunc("GET /readyz", s.cfg.Health.Readyz)
	}
	return observe.HTTPMiddleware(s.cfg.Metrics, mux)
}

// handleIndex serves the embedded HTML shell.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// voicesResponse is the JSON body of GET /voices.
type voicesResponse struct {
	Voices []voiceEntry `json:"voices"`
}

type voiceEntry struct {
	VoiceID string            `json:"voice_id"`
	Name    string            `json:"name"`
	Labels  map[string]string `json:"labels"`
}

// handleVoices returns the TTS provider's voice catalogue.
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.cfg.TTS.ListVoices(r.Context())
	if err != nil {
		s.log.Error("voice catalogue fetch failed", "err", err)
		http.Error(w, "voice catalogue unavailable", http.StatusInternalServerError)
		return
	}

	resp := voicesResponse{Voices: make([]voiceEntry, 0, len(voices))}
	for _, v := range voices {
		resp.Voices = append(resp.Voices, voiceEntry{
			VoiceID: v.ID,
			Name:    v.Name,
			Labels:  map[string]string{"gender": v.Gender},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleWS upgrades the request to a WebSocket and runs a session on it for
// the connection's lifetime.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Error("websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(-1)

	sess := session.New(session.Config{
		Logger:  s.log,
		STT:     s.cfg.STT,
		LLM:     s.cfg.LLM,
		TTS:     s.cfg.TTS,
		History: s.cfg.History,
		Limiter: s.cfg.Limiter,
		Metrics: s.cfg.Metrics,
		Persona: s.cfg.Persona,
		Voice:   s.cfg.Voice,
	})

	s.log.Info("client connected", "session_id", sess.ID(), "remote", r.RemoteAddr)
	err = sess.Run(r.Context(), conn)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "session failed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "session ended")
}
