package murf_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ariavoice/aria/pkg/provider/tts"
	"github.com/ariavoice/aria/pkg/provider/tts/murf"
)

// ─── fake Murf server ────────────────────────────────────────────────────────

// fakeMurf is an in-process stand-in for the Murf stream-input endpoint. It
// records received frames and plays a scripted list of audio responses once
// the end frame arrives.
type fakeMurf struct {
	// responses are sent, in order, after the {end:true} frame is received.
	responses []map[string]any

	mu       sync.Mutex
	query    map[string]string
	received []map[string]any
}

func (f *fakeMurf) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.query = map[string]string{}
		for k := range r.URL.Query() {
			f.query[k] = r.URL.Query().Get(k)
		}
		f.mu.Unlock()

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			if err := json.Unmarshal(msg, &m); err != nil {
				continue
			}
			f.mu.Lock()
			f.received = append(f.received, m)
			f.mu.Unlock()

			if end, _ := m["end"].(bool); end && len(f.responses) > 0 {
				for _, resp := range f.responses {
					payload, _ := json.Marshal(resp)
					if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
						return
					}
				}
				return
			}
		}
	}
}

func (f *fakeMurf) frames() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.received))
	copy(out, f.received)
	return out
}

func (f *fakeMurf) queryParams() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// wsURL rewrites an httptest server URL to a ws scheme.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// wavMessage builds a base64 audio response with a fake 44-byte RIFF header
// prepended to pcm.
func wavMessage(pcm []byte, final bool) map[string]any {
	header := make([]byte, 44)
	copy(header, "RIFF")
	return map[string]any{
		"audio": base64.StdEncoding.EncodeToString(append(header, pcm...)),
		"final": final,
	}
}

// collect drains up to n chunks from the stream with a deadline.
func collect(t *testing.T, h tts.StreamHandle, n int) []tts.AudioChunk {
	t.Helper()
	var out []tts.AudioChunk
	timeout := time.After(3 * time.Second)
	for len(out) < n {
		select {
		case c, ok := <-h.Chunks():
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatalf("timed out after %d of %d chunks", len(out), n)
		}
	}
	return out
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestOpenStream_HandshakeAndQuery(t *testing.T) {
	t.Parallel()

	fake := &fakeMurf{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p, err := murf.New("test-key", murf.WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h, err := p.OpenStream(context.Background(), tts.VoiceProfile{ID: "en-US-amara"})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer h.Close()

	if err := h.SendText("Hello.", false); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := h.SendText("", true); err != nil {
		t.Fatalf("SendText end: %v", err)
	}

	// Wait until the server has seen all three frames.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && len(fake.frames()) < 3 {
		time.Sleep(5 * time.Millisecond)
	}
	frames := fake.frames()
	if len(frames) != 3 {
		t.Fatalf("server frames = %d, want voice config + text + end", len(frames))
	}

	vc, ok := frames[0]["voice_config"].(map[string]any)
	if !ok {
		t.Fatalf("first frame is not a voice config: %v", frames[0])
	}
	if vc["voiceId"] != "en-US-amara" {
		t.Errorf("voiceId = %v, want en-US-amara", vc["voiceId"])
	}
	if vc["style"] != "Conversational" {
		t.Errorf("style = %v, want the Conversational default", vc["style"])
	}
	if frames[1]["text"] != "Hello." {
		t.Errorf("text frame = %v, want Hello.", frames[1])
	}
	if end, _ := frames[2]["end"].(bool); !end {
		t.Errorf("final frame = %v, want end:true", frames[2])
	}

	q := fake.queryParams()
	if q["api-key"] != "test-key" {
		t.Errorf("api-key = %q, want test-key", q["api-key"])
	}
	if q["sample_rate"] != "44100" || q["channel_type"] != "MONO" || q["format"] != "WAV" {
		t.Errorf("audio query params = %v, want 44100/MONO/WAV", q)
	}
}

func TestOpenStream_WAVHeaderElidedOnFirstChunkOnly(t *testing.T) {
	t.Parallel()

	first := []byte("first-pcm")
	second := []byte("second-pcm-with-no-header")
	fake := &fakeMurf{
		responses: []map[string]any{
			wavMessage(first, false),
			{"audio": base64.StdEncoding.EncodeToString(second), "final": false},
			{"final": true},
		},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p, err := murf.New("test-key", murf.WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := p.OpenStream(context.Background(), tts.VoiceProfile{ID: "en-US-amara"})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer h.Close()

	if err := h.SendText("Hi.", true); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	chunks := collect(t, h, 3)
	if string(chunks[0].Data) != string(first) {
		t.Errorf("first chunk = %q, want header stripped to %q", chunks[0].Data, first)
	}
	if string(chunks[1].Data) != string(second) {
		t.Errorf("second chunk = %q, want untouched %q", chunks[1].Data, second)
	}
	if !chunks[2].Final || len(chunks[2].Data) != 0 {
		t.Errorf("third chunk = %+v, want the empty final marker", chunks[2])
	}
}

func TestOpenStream_HeaderElisionResetsPerStream(t *testing.T) {
	t.Parallel()

	pcm := []byte("turn-pcm")
	newServer := func() (*httptest.Server, *fakeMurf) {
		fake := &fakeMurf{responses: []map[string]any{wavMessage(pcm, false), {"final": true}}}
		return httptest.NewServer(fake.handler()), fake
	}

	srv, _ := newServer()
	defer srv.Close()
	p, err := murf.New("test-key", murf.WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Two consecutive streams from the same provider must each strip their
	// own first-message header.
	for turn := 1; turn <= 2; turn++ {
		h, err := p.OpenStream(context.Background(), tts.VoiceProfile{ID: "en-US-amara"})
		if err != nil {
			t.Fatalf("OpenStream turn %d: %v", turn, err)
		}
		if err := h.SendText("Hi.", true); err != nil {
			t.Fatalf("SendText turn %d: %v", turn, err)
		}
		chunks := collect(t, h, 2)
		if string(chunks[0].Data) != string(pcm) {
			t.Errorf("turn %d first chunk = %q, want %q", turn, chunks[0].Data, pcm)
		}
		h.Close()
	}
}

func TestOpenStream_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	fake := &fakeMurf{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p, err := murf.New("test-key", murf.WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := p.OpenStream(context.Background(), tts.VoiceProfile{ID: "en-US-amara"})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := h.SendText("too late", false); err == nil {
		t.Error("SendText after Close succeeded, want error")
	}
}

func TestOpenStream_SendTextRespectsCancellation(t *testing.T) {
	t.Parallel()

	fake := &fakeMurf{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p, err := murf.New("test-key", murf.WithEndpoint(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h, err := p.OpenStream(ctx, tts.VoiceProfile{ID: "en-US-amara"})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer h.Close()

	// Once the opening context is cancelled, sends must fail instead of
	// blocking on the connection; a turn torn down mid-synthesis depends on
	// this to unwind.
	cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- h.SendText("too late", false) }()
	select {
	case err := <-errCh:
		if err == nil {
			t.Error("SendText after cancellation succeeded, want error")
		}
	case <-time.After(time.Second):
		t.Fatal("SendText blocked past cancellation")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"voiceId": "en-US-amara", "displayName": "Amara", "gender": "Female"},
			{"voiceId": "en-US-terrell", "displayName": "Terrell", "gender": "Male"},
		})
	}))
	defer srv.Close()

	p, err := murf.New("test-key", murf.WithVoicesEndpoint(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("voices = %d, want 2", len(voices))
	}
	if voices[0].ID != "en-US-amara" || voices[0].Name != "Amara" || voices[0].Gender != "Female" {
		t.Errorf("first voice = %+v, want amara/Amara/Female", voices[0])
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := murf.New(""); err == nil {
		t.Error("New with empty key succeeded, want error")
	}
}
