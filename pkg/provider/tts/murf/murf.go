// Package murf provides a Murf-backed TTS provider using the Murf
// stream-input WebSocket API. It implements the tts.Provider interface.
package murf

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/ariavoice/aria/pkg/provider/tts"
	"github.com/coder/websocket"
)

const (
	streamEndpoint = "wss://api.murf.ai/v1/speech/stream-input"
	voicesEndpoint = "https://api.murf.ai/v1/speech/voices"

	defaultSampleRate  = 44100
	defaultChannelType = "MONO"
	defaultFormat      = "WAV"

	// wavHeaderLen is the RIFF header length preceding the PCM payload in the
	// first audio message of a WAV stream.
	wavHeaderLen = 44
)

// Option is a functional option for configuring the Murf Provider.
type Option func(*Provider)

// WithSampleRate sets the output sample rate in Hz. Default is 44100.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithFormat sets the audio container format ("WAV" or "MP3"). Default is WAV.
func WithFormat(format string) Option {
	return func(p *Provider) {
		p.format = format
	}
}

// WithEndpoint overrides the streaming WebSocket endpoint. Useful for tests
// pointing at an in-process server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithVoicesEndpoint overrides the voice catalogue REST endpoint.
func WithVoicesEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.voicesURL = endpoint
	}
}

// Provider implements tts.Provider backed by the Murf streaming API.
type Provider struct {
	apiKey      string
	endpoint    string
	voicesURL   string
	sampleRate  int
	channelType string
	format      string
	httpClient  *http.Client
}

// New creates a new Murf Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("murf: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:      apiKey,
		endpoint:    streamEndpoint,
		voicesURL:   voicesEndpoint,
		sampleRate:  defaultSampleRate,
		channelType: defaultChannelType,
		format:      defaultFormat,
		httpClient:  &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// voiceConfigMessage is the one-shot configuration frame sent after connect.
type voiceConfigMessage struct {
	VoiceConfig voiceConfig `json:"voice_config"`
}

type voiceConfig struct {
	VoiceID   string `json:"voiceId"`
	Style     string `json:"style"`
	Rate      int    `json:"rate"`
	Pitch     int    `json:"pitch"`
	Variation int    `json:"variation"`
}

// textMessage carries a text fragment; End flushes the synthesis buffer.
type textMessage struct {
	Text string `json:"text,omitempty"`
	End  bool   `json:"end,omitempty"`
}

// audioResponse is the JSON message received from Murf over the WebSocket.
type audioResponse struct {
	Audio string `json:"audio"` // base64-encoded audio
	Final bool   `json:"final"`
}

// OpenStream dials the Murf stream-input endpoint and sends the voice
// configuration frame. The returned handle's Chunks channel emits decoded
// audio with the WAV container header of the first message elided, so chunks
// concatenate into a single PCM stream.
func (p *Provider) OpenStream(ctx context.Context, voice tts.VoiceProfile) (tts.StreamHandle, error) {
	if voice.ID == "" {
		return nil, errors.New("murf: voice.ID must not be empty")
	}

	wsURL, err := p.buildURL()
	if err != nil {
		return nil, fmt.Errorf("murf: build URL: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("murf: dial: %w", err)
	}
	conn.SetReadLimit(-1)

	style := voice.Style
	if style == "" {
		style = "Conversational"
	}
	variation := voice.Variation
	if variation == 0 {
		variation = 1
	}
	cfgMsg := voiceConfigMessage{
		VoiceConfig: voiceConfig{
			VoiceID:   voice.ID,
			Style:     style,
			Rate:      voice.Rate,
			Pitch:     voice.Pitch,
			Variation: variation,
		},
	}
	cfgBytes, _ := json.Marshal(cfgMsg)
	if err := conn.Write(ctx, websocket.MessageText, cfgBytes); err != nil {
		conn.Close(websocket.StatusInternalError, "voice config failed")
		return nil, fmt.Errorf("murf: send voice config: %w", err)
	}

	h := &stream{
		conn:     conn,
		ctx:      ctx,
		chunks:   make(chan tts.AudioChunk, 256),
		done:     make(chan struct{}),
		stripWAV: p.format == "WAV",
	}

	h.wg.Add(1)
	go h.readLoop(ctx)

	return h, nil
}

// buildURL constructs the stream-input endpoint URL with auth and audio
// format query parameters.
func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("api-key", p.apiKey)
	q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	q.Set("channel_type", p.channelType)
	q.Set("format", p.format)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- voice catalogue ----

// murfVoice is one entry of the Murf voice catalogue REST response.
type murfVoice struct {
	VoiceID     string `json:"voiceId"`
	DisplayName string `json:"displayName"`
	Gender      string `json:"gender"`
}

// ListVoices fetches the Murf voice catalogue.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.voicesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("murf: build voices request: %w", err)
	}
	req.Header.Set("api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("murf: fetch voices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("murf: voices endpoint returned %s", resp.Status)
	}

	var voices []murfVoice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("murf: decode voices: %w", err)
	}

	out := make([]tts.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		name := v.DisplayName
		if name == "" {
			name = v.VoiceID
		}
		out = append(out, tts.VoiceProfile{
			ID:     v.VoiceID,
			Name:   name,
			Gender: v.Gender,
		})
	}
	return out, nil
}

// ---- stream ----

// stream is a live Murf synthesis session for one turn. It implements
// tts.StreamHandle.
type stream struct {
	conn *websocket.Conn

	// ctx is the OpenStream context. Outbound writes are bound to it so a
	// cancelled turn unblocks a send stuck on a peer that stopped reading.
	ctx context.Context

	chunks chan tts.AudioChunk

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	// stripWAV records whether the first audio message still carries the WAV
	// container header. Reset is per stream, i.e. per turn.
	stripWAV bool
}

// SendText implements tts.StreamHandle.
func (s *stream) SendText(text string, end bool) error {
	select {
	case <-s.done:
		return errors.New("murf: stream is closed")
	default:
	}
	if text == "" && !end {
		return nil
	}
	msg := textMessage{Text: text, End: end}
	payload, _ := json.Marshal(msg)
	if err := s.conn.Write(s.ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("murf: send text: %w", err)
	}
	return nil
}

// Chunks implements tts.StreamHandle.
func (s *stream) Chunks() <-chan tts.AudioChunk { return s.chunks }

// Close implements tts.StreamHandle.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close(websocket.StatusNormalClosure, "stream closed")
		s.wg.Wait()
	})
	return nil
}

// readLoop receives audio messages, decodes them, elides the WAV header from
// the first message, and forwards chunks until the provider flags final or
// the connection drops.
func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.chunks)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}

		if resp.Audio != "" {
			data, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				continue
			}
			if s.stripWAV {
				s.stripWAV = false
				if len(data) > wavHeaderLen {
					data = data[wavHeaderLen:]
				} else {
					data = nil
				}
			}
			if len(data) > 0 {
				select {
				case s.chunks <- tts.AudioChunk{Data: data}:
				case <-s.done:
					return
				}
			}
		}

		if resp.Final {
			select {
			case s.chunks <- tts.AudioChunk{Final: true}:
			case <-s.done:
			}
			return
		}
	}
}
