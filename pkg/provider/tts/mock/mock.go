// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to capture the text fragments the reply pipeline
// forwards to synthesis and to feed controlled audio chunks back without a
// live TTS connection.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/ariavoice/aria/pkg/provider/tts"
)

// OpenStreamCall records a single invocation of OpenStream.
type OpenStreamCall struct {
	// Ctx is the context passed to OpenStream.
	Ctx context.Context
	// Voice is the VoiceProfile passed to OpenStream.
	Voice tts.VoiceProfile
}

// SentText records a single invocation of SendText on a Stream.
type SentText struct {
	Text string
	End  bool
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// OpenStreamErr, if non-nil, is returned from OpenStream.
	OpenStreamErr error

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned from ListVoices.
	ListVoicesErr error

	// ScriptChunks, when non-nil, is emitted on each new Stream's Chunks
	// channel as soon as an end frame arrives via SendText.
	ScriptChunks []tts.AudioChunk

	// OpenStreamCalls records every invocation of OpenStream in order.
	OpenStreamCalls []OpenStreamCall

	// Streams holds every Stream created by OpenStream, in order.
	Streams []*Stream
}

// OpenStream implements tts.Provider.
func (p *Provider) OpenStream(ctx context.Context, voice tts.VoiceProfile) (tts.StreamHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenStreamCalls = append(p.OpenStreamCalls, OpenStreamCall{Ctx: ctx, Voice: voice})
	if p.OpenStreamErr != nil {
		return nil, p.OpenStreamErr
	}
	s := NewStream()
	if p.ScriptChunks != nil {
		script := make([]tts.AudioChunk, len(p.ScriptChunks))
		copy(script, p.ScriptChunks)
		s.script = script
	}
	p.Streams = append(p.Streams, s)
	return s, nil
}

// Stream returns the i-th stream created by OpenStream, or nil if it does
// not exist yet. Useful for tests that drive a stream manually.
func (p *Provider) Stream(i int) *Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.Streams) {
		return nil
	}
	return p.Streams[i]
}

// StreamCount reports how many streams OpenStream has created.
func (p *Provider) StreamCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Streams)
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	out := make([]tts.VoiceProfile, len(p.Voices))
	copy(out, p.Voices)
	return out, nil
}

// Stream is a mock implementation of tts.StreamHandle. Tests either
// pre-script chunks via Provider.ScriptChunks or push chunks manually with
// PushChunk / Finish / Stall.
type Stream struct {
	ChunkCh chan tts.AudioChunk

	mu     sync.Mutex
	sent   []SentText
	script []tts.AudioChunk
	closed bool
	played bool
}

// NewStream creates a Stream with a buffered chunk channel.
func NewStream() *Stream {
	return &Stream{
		ChunkCh: make(chan tts.AudioChunk, 64),
	}
}

// SendText implements tts.StreamHandle. When an end frame arrives and the
// stream is scripted, the script is played onto the Chunks channel.
func (s *Stream) SendText(text string, end bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("mock: stream is closed")
	}
	s.sent = append(s.sent, SentText{Text: text, End: end})
	play := end && s.script != nil && !s.played
	if play {
		s.played = true
	}
	script := s.script
	s.mu.Unlock()

	if play {
		for _, c := range script {
			s.ChunkCh <- c
		}
		s.closeChunks()
	}
	return nil
}

// Chunks implements tts.StreamHandle.
func (s *Stream) Chunks() <-chan tts.AudioChunk { return s.ChunkCh }

// Close implements tts.StreamHandle.
func (s *Stream) Close() error {
	s.closeChunks()
	return nil
}

// closeChunks closes the chunk channel exactly once.
func (s *Stream) closeChunks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ChunkCh)
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sent returns the recorded SendText calls, in order.
func (s *Stream) Sent() []SentText {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentText, len(s.sent))
	copy(out, s.sent)
	return out
}

// PushChunk emits one non-final audio chunk.
func (s *Stream) PushChunk(data []byte) {
	s.ChunkCh <- tts.AudioChunk{Data: data}
}

// TryPush emits one non-final audio chunk if the stream is still open and the
// channel has room, and reports whether the chunk was delivered. Unlike
// PushChunk it is safe to call concurrently with Close, so tests can keep a
// stream producing until the consumer tears it down.
func (s *Stream) TryPush(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ChunkCh <- tts.AudioChunk{Data: data}:
		return true
	default:
		return false
	}
}

// Finish emits the provider's final marker and closes the channel.
func (s *Stream) Finish() {
	s.ChunkCh <- tts.AudioChunk{Final: true}
	s.closeChunks()
}

// Stall leaves the channel open without emitting anything further, emulating
// a provider that never flags final. Consumers rely on their silence detector.
func (s *Stream) Stall() {}

var _ tts.Provider = (*Provider)(nil)
var _ tts.StreamHandle = (*Stream)(nil)
