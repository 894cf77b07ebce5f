// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming interface. The central abstraction is SessionHandle: once
// opened, a session accepts raw PCM audio frames and emits two streams of
// Transcript values — low-latency partials for responsiveness and end-of-turn
// results that drive the reply pipeline.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package stt

import (
	"context"
	"time"
)

// StreamConfig describes the audio format and turn-detection tuning for a new
// STT session. All fields must be compatible with what the underlying provider
// supports; see each provider's documentation for valid ranges.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The client capture layer
	// delivers 16000 Hz mono PCM.
	SampleRate int

	// EndOfTurnConfidence is the confidence threshold (0.0–1.0) above which
	// the provider may declare end-of-turn after MinEndOfTurnSilence.
	EndOfTurnConfidence float64

	// MinEndOfTurnSilence is the silence the provider requires before a
	// confident end-of-turn is declared.
	MinEndOfTurnSilence time.Duration

	// MaxTurnSilence is the silence after which end-of-turn is declared
	// regardless of confidence.
	MaxTurnSilence time.Duration

	// FormatTurns requests punctuated and cased final transcripts. Providers
	// that format asynchronously re-issue the final transcript once formatting
	// completes; callers must be prepared to receive both versions.
	FormatTurns bool
}

// SessionEnd describes a remote session termination.
type SessionEnd struct {
	// AudioDuration is the total duration of audio processed in the session.
	AudioDuration time.Duration
}

// SessionHandle represents an open STT streaming session. It is an interface
// so that test code can provide mock implementations without a live provider
// connection.
//
// Callers must call Close when the session is no longer needed. Failing to do
// so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. SendAudio blocks while the provider's outbound buffer is
	// full rather than dropping or reordering audio. Calling SendAudio after
	// Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel that emits interim Transcript
	// values (EndOfTurn unset) as the provider makes preliminary guesses.
	// The channel is closed when the session ends.
	Partials() <-chan Transcript

	// Turns returns a read-only channel that emits end-of-turn Transcript
	// values once the provider declares the speaker has finished. When
	// StreamConfig.FormatTurns is set the same turn may be re-emitted with
	// punctuation applied. The channel is closed when the session ends.
	Turns() <-chan Transcript

	// Terminated returns a channel that receives at most one SessionEnd value
	// when the provider closes the session from its side, then is closed.
	// A session torn down locally via Close does not emit a SessionEnd.
	Terminated() <-chan SessionEnd

	// Err returns the transport error that ended the session, if any. It must
	// only be consulted after the Partials and Turns channels have closed.
	Err() error

	// Close terminates the session, requesting graceful termination from the
	// provider, and releases all associated resources. After Close returns the
	// Partials and Turns channels will be closed. Calling Close more than once
	// is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously (one per connected client).
type Provider interface {
	// StartStream opens a new streaming transcription session with the given
	// audio format and turn-detection configuration. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.
	// authentication failure or ctx already cancelled). The caller owns the
	// SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
