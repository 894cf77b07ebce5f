// Package assemblyai provides an AssemblyAI-backed STT provider using the
// Universal-Streaming WebSocket API (v3). It implements the stt.Provider
// interface.
package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ariavoice/aria/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	streamingEndpoint = "wss://streaming.assemblyai.com/v3/ws"

	defaultSampleRate          = 16000
	defaultEndOfTurnConfidence = 0.7
	defaultMinEndOfTurnSilence = 800 * time.Millisecond
	defaultMaxTurnSilence      = 1500 * time.Millisecond

	// closeGrace is how long Close waits for the provider to acknowledge the
	// Terminate message before dropping the connection.
	closeGrace = 500 * time.Millisecond
)

// Option is a functional option for configuring the AssemblyAI Provider.
type Option func(*Provider)

// WithEndpoint overrides the streaming WebSocket endpoint. Useful for tests
// pointing at an in-process server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the AssemblyAI streaming API.
type Provider struct {
	apiKey   string
	endpoint string
}

// New creates a new AssemblyAI Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: streamingEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with AssemblyAI.
// Zero-value fields in cfg fall back to the defaults the voice pipeline is
// tuned for (16 kHz, 0.7 confidence, 800 ms / 1500 ms silence windows).
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("assemblyai: dial: %w", err)
	}

	sess := &session{
		conn:       conn,
		partials:   make(chan stt.Transcript, 64),
		turns:      make(chan stt.Transcript, 64),
		terminated: make(chan stt.SessionEnd, 1),
		audio:      make(chan []byte, 256),
		done:       make(chan struct{}),
		readDone:   make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}
	conf := cfg.EndOfTurnConfidence
	if conf == 0 {
		conf = defaultEndOfTurnConfidence
	}
	minSil := cfg.MinEndOfTurnSilence
	if minSil == 0 {
		minSil = defaultMinEndOfTurnSilence
	}
	maxSil := cfg.MaxTurnSilence
	if maxSil == 0 {
		maxSil = defaultMaxTurnSilence
	}

	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(sr))
	q.Set("encoding", "pcm_s16le")
	q.Set("end_of_turn_confidence_threshold", strconv.FormatFloat(conf, 'g', -1, 64))
	q.Set("min_end_of_turn_silence_when_confident", strconv.FormatInt(minSil.Milliseconds(), 10))
	q.Set("max_turn_silence", strconv.FormatInt(maxSil.Milliseconds(), 10))
	q.Set("format_turns", strconv.FormatBool(cfg.FormatTurns))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ---- session ----

// streamMessage is the JSON structure received from AssemblyAI. The Type field
// discriminates between Begin, Turn, and Termination messages.
type streamMessage struct {
	Type string `json:"type"`

	// Turn fields.
	Transcript          string  `json:"transcript"`
	EndOfTurn           bool    `json:"end_of_turn"`
	TurnIsFormatted     bool    `json:"turn_is_formatted"`
	EndOfTurnConfidence float64 `json:"end_of_turn_confidence"`

	// Termination fields.
	AudioDurationSeconds float64 `json:"audio_duration_seconds"`
}

// session is a live AssemblyAI streaming session. It implements
// stt.SessionHandle.
type session struct {
	conn       *websocket.Conn
	partials   chan stt.Transcript
	turns      chan stt.Transcript
	terminated chan stt.SessionEnd
	audio      chan []byte

	done     chan struct{}
	readDone chan struct{}
	once     sync.Once
	wg       sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// SendAudio queues a PCM audio chunk for delivery to AssemblyAI. It blocks
// while the outbound buffer is full so that audio is never dropped or
// reordered.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("assemblyai: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("assemblyai: session is closed")
	}
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Turns returns the channel of end-of-turn transcripts.
func (s *session) Turns() <-chan stt.Transcript { return s.turns }

// Terminated returns the channel signalling remote session termination.
func (s *session) Terminated() <-chan stt.SessionEnd { return s.terminated }

// Err returns the transport error that ended the session, if any.
func (s *session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close terminates the session cleanly. A Terminate message is sent so the
// provider flushes pending audio; the connection is dropped once the provider
// acknowledges with a Termination message or the grace period passes.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		wctx, cancel := context.WithTimeout(context.Background(), closeGrace)
		_ = s.conn.Write(wctx, websocket.MessageText, []byte(`{"type":"Terminate"}`))
		cancel()
		select {
		case <-s.readDone:
		case <-time.After(closeGrace):
		}
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

// setErr records the first transport error observed by the read loop.
func (s *session) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// writeLoop reads from the audio channel and sends binary messages to
// AssemblyAI.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain buffered audio before exiting so the Terminate message
			// covers everything the caller handed us.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from AssemblyAI and dispatches them to the
// partials, turns, and terminated channels.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.readDone)
	defer close(s.partials)
	defer close(s.turns)
	defer close(s.terminated)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Local close in progress; not a transport failure.
			default:
				s.setErr(err)
			}
			return
		}

		var m streamMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			continue
		}

		switch m.Type {
		case "Begin":
			// Session handshake; surfaced to the caller via StartStream returning.
		case "Turn":
			t := stt.Transcript{
				Text:       m.Transcript,
				EndOfTurn:  m.EndOfTurn,
				Formatted:  m.TurnIsFormatted,
				Confidence: m.EndOfTurnConfidence,
			}
			var out chan stt.Transcript
			if t.EndOfTurn {
				out = s.turns
			} else {
				out = s.partials
			}
			select {
			case out <- t:
			case <-s.done:
			}
		case "Termination":
			end := stt.SessionEnd{
				AudioDuration: time.Duration(m.AudioDurationSeconds * float64(time.Second)),
			}
			select {
			case s.terminated <- end:
			default:
			}
			return
		}
	}
}
