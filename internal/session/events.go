// Package session implements the per-connection voice-agent session: the
// controller that owns the client WebSocket, the audio ingress loop, the
// turn detector consuming STT results, and the reply pipeline that streams
// LLM output through TTS back to the client.
package session

import (
	"encoding/json"
	"time"
)

// Type identifies an event emitted to the client. The string values are part
// of the wire protocol and must not change.
type Type string

const (
	TypeConnectionEstablished  Type = "connection_established"
	TypeSessionBegin           Type = "session_begin"
	TypeSessionTerminated      Type = "session_terminated"
	TypePartialTranscript      Type = "partial_transcript"
	TypeTurnCompleted          Type = "turn_completed"
	TypeTurnUpdated            Type = "turn_updated"
	TypeFinalTranscript        Type = "final_transcript"
	TypeLLMStreamingStart      Type = "llm_streaming_start"
	TypeLLMChunk               Type = "llm_chunk"
	TypeLLMStreamingComplete   Type = "llm_streaming_complete"
	TypeLLMError               Type = "llm_error"
	TypeAudioChunk             Type = "audio_chunk"
	TypeAudioStreamingComplete Type = "audio_streaming_complete"
	TypeError                  Type = "error"
)

// Header carries the fields common to every outbound event. It is embedded
// in each event struct so the JSON serialises flat. The session writer fills
// it in just before the frame goes out, so emitters leave it zero.
type Header struct {
	Type      Type   `json:"type"`
	Timestamp string `json:"timestamp"`
}

func (h *Header) header() *Header { return h }

// Event is an outbound client event. Implementations are pointers to the
// concrete event structs below.
type Event interface {
	EventType() Type
	header() *Header
}

// ConnectionEstablished is the first event of a session and carries the
// server-assigned session id.
type ConnectionEstablished struct {
	Header
	SessionID string `json:"session_id"`
}

func (*ConnectionEstablished) EventType() Type { return TypeConnectionEstablished }

// SessionBegin signals that the STT stream is open and audio may flow.
type SessionBegin struct {
	Header
}

func (*SessionBegin) EventType() Type { return TypeSessionBegin }

// SessionTerminated signals that the STT provider closed the session from
// its side.
type SessionTerminated struct {
	Header
	TotalAudioDuration float64 `json:"total_audio_duration"`
}

func (*SessionTerminated) EventType() Type { return TypeSessionTerminated }

// PartialTranscript carries an interim STT result for the utterance in
// progress.
type PartialTranscript struct {
	Header
	Text string `json:"text"`
}

func (*PartialTranscript) EventType() Type { return TypePartialTranscript }

// TurnCompleted announces a confirmed new turn and its transcript.
type TurnCompleted struct {
	Header
	TurnNumber      int    `json:"turn_number"`
	FinalTranscript string `json:"final_transcript"`
}

func (*TurnCompleted) EventType() Type { return TypeTurnCompleted }

// TurnUpdated re-issues the transcript of the current turn after punctuation
// stabilisation.
type TurnUpdated struct {
	Header
	TurnNumber      int    `json:"turn_number"`
	FinalTranscript string `json:"final_transcript"`
}

func (*TurnUpdated) EventType() Type { return TypeTurnUpdated }

// FinalTranscript carries the authoritative transcript for a turn.
type FinalTranscript struct {
	Header
	TurnNumber int    `json:"turn_number"`
	Text       string `json:"text"`
}

func (*FinalTranscript) EventType() Type { return TypeFinalTranscript }

// LLMStreamingStart marks the beginning of model generation for a turn.
type LLMStreamingStart struct {
	Header
	TurnNumber int `json:"turn_number"`
}

func (*LLMStreamingStart) EventType() Type { return TypeLLMStreamingStart }

// LLMChunk carries one model text fragment and the accumulated reply so far.
type LLMChunk struct {
	Header
	TurnNumber  int    `json:"turn_number"`
	Chunk       string `json:"chunk"`
	Accumulated string `json:"accumulated"`
}

func (*LLMChunk) EventType() Type { return TypeLLMChunk }

// LLMStreamingComplete marks the end of model generation for a turn.
type LLMStreamingComplete struct {
	Header
	TurnNumber   int    `json:"turn_number"`
	FullResponse string `json:"full_response"`
}

func (*LLMStreamingComplete) EventType() Type { return TypeLLMStreamingComplete }

// LLMError reports a failed turn. The session stays usable.
type LLMError struct {
	Header
	TurnNumber int    `json:"turn_number"`
	Error      string `json:"error"`
}

func (*LLMError) EventType() Type { return TypeLLMError }

// AudioChunk carries one base64-encoded synthesised audio chunk. The single
// final chunk of a turn has Final set and empty AudioData.
type AudioChunk struct {
	Header
	TurnNumber int    `json:"turn_number"`
	AudioData  string `json:"audio_data"`
	Final      bool   `json:"final"`
}

func (*AudioChunk) EventType() Type { return TypeAudioChunk }

// AudioStreamingComplete marks the end of synthesised audio for a turn.
type AudioStreamingComplete struct {
	Header
	TurnNumber int `json:"turn_number"`
}

func (*AudioStreamingComplete) EventType() Type { return TypeAudioStreamingComplete }

// ErrorEvent reports a session-level problem that is not scoped to a turn.
type ErrorEvent struct {
	Header
	Message string `json:"message"`
}

func (*ErrorEvent) EventType() Type { return TypeError }

// encodeEvent stamps the event header and serialises the event as a JSON
// text frame.
func encodeEvent(ev Event, now time.Time) ([]byte, error) {
	h := ev.header()
	h.Type = ev.EventType()
	h.Timestamp = now.UTC().Format(time.RFC3339Nano)
	return json.Marshal(ev)
}
