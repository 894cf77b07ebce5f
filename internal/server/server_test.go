package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ariavoice/aria/internal/health"
	"github.com/ariavoice/aria/internal/history"
	"github.com/ariavoice/aria/internal/ratelimit"
	"github.com/ariavoice/aria/internal/server"
	llmmock "github.com/ariavoice/aria/pkg/provider/llm/mock"
	sttmock "github.com/ariavoice/aria/pkg/provider/stt/mock"
	"github.com/ariavoice/aria/pkg/provider/tts"
	ttsmock "github.com/ariavoice/aria/pkg/provider/tts/mock"
)

func newTestServer(t *testing.T, mutate func(*server.Config)) *httptest.Server {
	t.Helper()
	cfg := server.Config{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		STT:     &sttmock.Provider{},
		LLM:     &llmmock.Provider{},
		TTS:     &ttsmock.Provider{},
		History: history.New(),
		Limiter: ratelimit.New(40, time.Hour),
		Health:  health.New(),
		Persona: "You are Aria.",
		Voice:   tts.VoiceProfile{ID: "en-US-amara"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := httptest.NewServer(server.New(cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestIndex_ServesHTMLShell(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "<html") {
		t.Error("body does not look like an HTML document")
	}
}

func TestVoices_ReturnsCatalogue(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(cfg *server.Config) {
		cfg.TTS = &ttsmock.Provider{Voices: []tts.VoiceProfile{
			{ID: "en-US-amara", Name: "Amara", Gender: "Female"},
			{ID: "en-US-terrell", Name: "Terrell", Gender: "Male"},
		}}
	})

	resp, err := http.Get(srv.URL + "/voices")
	if err != nil {
		t.Fatalf("GET /voices: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Voices []struct {
			VoiceID string            `json:"voice_id"`
			Name    string            `json:"name"`
			Labels  map[string]string `json:"labels"`
		} `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Voices) != 2 {
		t.Fatalf("voices = %d, want 2", len(body.Voices))
	}
	if body.Voices[0].VoiceID != "en-US-amara" || body.Voices[0].Labels["gender"] != "Female" {
		t.Errorf("first voice = %+v, want amara with gender label", body.Voices[0])
	}
}

func TestVoices_ProviderFailureIs500(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(cfg *server.Config) {
		cfg.TTS = &ttsmock.Provider{ListVoicesErr: errors.New("catalogue down")}
	})

	resp, err := http.Get(srv.URL + "/voices")
	if err != nil {
		t.Fatalf("GET /voices: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

// TestWS_SessionHandshake connects a real WebSocket client and reads the
// first two session events off the wire.
func TestWS_SessionHandshake(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	wsAddr := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsAddr, nil)
	if err != nil {
		t.Fatalf("dial /ws: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	readEvent := func() map[string]any {
		t.Helper()
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if typ != websocket.MessageText {
			t.Fatalf("frame type = %v, want text", typ)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return m
	}

	first := readEvent()
	if first["type"] != "connection_established" {
		t.Fatalf("first event = %v, want connection_established", first["type"])
	}
	if id, _ := first["session_id"].(string); id == "" {
		t.Error("connection_established carries no session_id")
	}

	second := readEvent()
	if second["type"] != "session_begin" {
		t.Errorf("second event = %v, want session_begin", second["type"])
	}
}
