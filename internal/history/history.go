// Package history implements the in-memory conversation history store.
//
// The store maps session ids to ordered lists of user/assistant exchanges.
// Entries are appended in pairs only after a turn completes successfully, so
// within a session the roles strictly alternate starting with user. History
// lives in process memory only and is lost on restart.
//
// The map is guarded by one mutex; each list is mutated only by its session's
// reply pipeline, but snapshots are safe to take from any goroutine.
package history

import (
	"sync"

	"github.com/ariavoice/aria/pkg/provider/llm"
)

// Store holds per-session conversation history. The zero value is not usable;
// construct with New. All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string][]llm.Message
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string][]llm.Message),
	}
}

// Snapshot returns a copy of the history for the given session, initialising
// an empty history if the session is new. The copy is safe to hand to an LLM
// call while the live list continues to grow.
func (s *Store) Snapshot(sessionID string) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.sessions[sessionID]
	if !ok {
		s.sessions[sessionID] = nil
		return nil
	}
	out := make([]llm.Message, len(entries))
	copy(out, entries)
	return out
}

// AppendExchange atomically appends one user/assistant pair to the session's
// history. It is invoked only by the reply pipeline after the full assistant
// text is known.
func (s *Store) AppendExchange(sessionID, userText, assistantText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID],
		llm.Message{Role: llm.RoleUser, Content: userText},
		llm.Message{Role: llm.RoleAssistant, Content: assistantText},
	)
}

// Len reports the number of entries stored for the given session.
func (s *Store) Len(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[sessionID])
}

// Drop removes the session's history entirely. Called when a session ends;
// history does not survive the connection.
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
