// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed scripted transcripts into the session
// controller without a live STT connection. The Session type exposes the
// transcript channels directly so tests can push partials and end-of-turn
// results at controlled points.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/ariavoice/aria/pkg/provider/stt"
)

// StartStreamCall records a single invocation of StartStream.
type StartStreamCall struct {
	// Ctx is the context passed to StartStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to StartStream.
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Handle is returned by StartStream. If nil, a new Session is created per
	// call and appended to Sessions.
	Handle *Session

	// StartStreamErr, if non-nil, is returned from StartStream.
	StartStreamErr error

	// StartStreamCalls records every invocation of StartStream in order.
	StartStreamCalls []StartStreamCall

	// Sessions holds every auto-created Session, in creation order.
	Sessions []*Session
}

// StartStream implements stt.Provider.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Handle != nil {
		return p.Handle, nil
	}
	s := NewSession()
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// Session is a mock implementation of stt.SessionHandle. Tests drive it by
// calling PushPartial, PushTurn, and Terminate.
type Session struct {
	PartialCh    chan stt.Transcript
	TurnCh       chan stt.Transcript
	TerminatedCh chan stt.SessionEnd

	mu         sync.Mutex
	audio      [][]byte
	closed     bool
	sendErr    error
	sessionErr error
}

// NewSession creates a Session with buffered channels ready for use.
func NewSession() *Session {
	return &Session{
		PartialCh:    make(chan stt.Transcript, 64),
		TurnCh:       make(chan stt.Transcript, 64),
		TerminatedCh: make(chan stt.SessionEnd, 1),
	}
}

// SendAudio implements stt.SessionHandle. Chunks are recorded for inspection.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session is closed")
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.audio = append(s.audio, cp)
	return nil
}

// Partials implements stt.SessionHandle.
func (s *Session) Partials() <-chan stt.Transcript { return s.PartialCh }

// Turns implements stt.SessionHandle.
func (s *Session) Turns() <-chan stt.Transcript { return s.TurnCh }

// Terminated implements stt.SessionHandle.
func (s *Session) Terminated() <-chan stt.SessionEnd { return s.TerminatedCh }

// Err implements stt.SessionHandle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionErr
}

// Close implements stt.SessionHandle. It closes the transcript channels so
// consumers observe end-of-session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.PartialCh)
	close(s.TurnCh)
	close(s.TerminatedCh)
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Audio returns the chunks delivered via SendAudio, in order.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// PushPartial emits an interim transcript to the Partials channel.
func (s *Session) PushPartial(text string) {
	s.PartialCh <- stt.Transcript{Text: text}
}

// PushTurn emits an end-of-turn transcript to the Turns channel.
func (s *Session) PushTurn(text string, formatted bool) {
	s.TurnCh <- stt.Transcript{Text: text, EndOfTurn: true, Formatted: formatted, Confidence: 0.9}
}

// Terminate emits a remote termination, then closes all channels.
func (s *Session) Terminate(end stt.SessionEnd) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.TerminatedCh <- end
	close(s.TerminatedCh)
	close(s.PartialCh)
	close(s.TurnCh)
}

// Fail records err as the session error and closes all channels, emulating a
// transport failure.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.sessionErr = err
	s.mu.Unlock()
	close(s.PartialCh)
	close(s.TurnCh)
	close(s.TerminatedCh)
}

var _ stt.Provider = (*Provider)(nil)
var _ stt.SessionHandle = (*Session)(nil)
