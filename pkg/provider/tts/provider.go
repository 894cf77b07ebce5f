// Package tts defines the Provider interface for streaming Text-to-Speech
// backends.
//
// A TTS provider wraps a speech synthesis service and presents a uniform
// streaming interface. The primary entry point is OpenStream, which
// establishes a synthesis session for one reply turn: the caller pushes text
// fragments as the LLM produces them and reads synthesised audio chunks from
// the Chunks channel — enabling low-latency pipelining between LLM output and
// client playback.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any streaming TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// sessions may run in parallel (one per active reply turn across sessions).
type Provider interface {
	// OpenStream establishes a synthesis session using the given voice
	// profile. The returned StreamHandle is ready to accept text immediately;
	// any provider-side voice configuration handshake is performed before
	// OpenStream returns or as the first frame on the wire.
	//
	// Returns an error if the session cannot be established. The caller owns
	// the StreamHandle and must call Close when done.
	OpenStream(ctx context.Context, voice VoiceProfile) (StreamHandle, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}

// StreamHandle represents an open TTS synthesis session for a single turn.
//
// All methods must be safe for concurrent use. Callers must drain Chunks to
// avoid blocking the provider's internal goroutines.
type StreamHandle interface {
	// SendText forwards a text fragment for synthesis. Set end on the last
	// call of the turn; an empty-text end frame is valid and flushes the
	// provider's synthesis buffer.
	SendText(text string, end bool) error

	// Chunks returns a read-only channel emitting synthesised audio. A chunk
	// with Final set carries no data and marks the provider's end-of-stream
	// signal. The channel is closed when the session ends; providers that
	// never flag a final chunk simply close the channel (the caller's silence
	// detector completes the turn).
	Chunks() <-chan AudioChunk

	// Close terminates the session and releases all associated resources.
	// Calling Close more than once is safe and returns nil.
	Close() error
}
