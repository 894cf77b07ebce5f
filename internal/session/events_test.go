package session

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEncodeEvent_StampsTypeAndTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	frame, err := encodeEvent(&LLMChunk{
		TurnNumber:  3,
		Chunk:       "Hi",
		Accumulated: "Hi",
	}, now)
	if err != nil {
		t.Fatalf("encodeEvent: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(frame, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["type"] != "llm_chunk" {
		t.Errorf("type = %v, want llm_chunk", m["type"])
	}
	if m["timestamp"] != "2025-06-01T12:30:00Z" {
		t.Errorf("timestamp = %v, want the UTC RFC3339 stamp", m["timestamp"])
	}
	if m["turn_number"] != float64(3) || m["chunk"] != "Hi" {
		t.Errorf("payload = %v, want turn 3 chunk Hi", m)
	}
}

func TestEncodeEvent_WireFieldNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ev   Event
		typ  string
		keys []string
	}{
		{&ConnectionEstablished{SessionID: "abc"}, "connection_established", []string{"session_id"}},
		{&SessionTerminated{TotalAudioDuration: 1.5}, "session_terminated", []string{"total_audio_duration"}},
		{&TurnCompleted{TurnNumber: 1, FinalTranscript: "hi"}, "turn_completed", []string{"turn_number", "final_transcript"}},
		{&TurnUpdated{TurnNumber: 1, FinalTranscript: "Hi."}, "turn_updated", []string{"turn_number", "final_transcript"}},
		{&AudioChunk{TurnNumber: 1, AudioData: "cGNt", Final: false}, "audio_chunk", []string{"audio_data", "final"}},
		{&LLMError{TurnNumber: 2, Error: "boom"}, "llm_error", []string{"turn_number", "error"}},
		{&ErrorEvent{Message: "nope"}, "error", []string{"message"}},
	}
	for _, tc := range tests {
		frame, err := encodeEvent(tc.ev, time.Now())
		if err != nil {
			t.Fatalf("encodeEvent(%s): %v", tc.typ, err)
		}
		var m map[string]any
		if err := json.Unmarshal(frame, &m); err != nil {
			t.Fatalf("unmarshal(%s): %v", tc.typ, err)
		}
		if m["type"] != tc.typ {
			t.Errorf("type = %v, want %s", m["type"], tc.typ)
		}
		for _, key := range tc.keys {
			if _, ok := m[key]; !ok {
				t.Errorf("%s frame is missing %q: %v", tc.typ, key, m)
			}
		}
	}
}
