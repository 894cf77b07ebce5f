package session

import (
	"strings"
	"time"
	"unicode"
)

// mergeWindow is how long after an end-of-turn a re-delivery of the same
// normalised text is treated as punctuation stabilisation rather than a new
// turn.
const mergeWindow = 2 * time.Second

// TurnAction classifies an end-of-turn transcript against the previous one.
type TurnAction int

const (
	// TurnNew starts a fresh turn with an incremented turn number.
	TurnNew TurnAction = iota

	// TurnUpdate replaces the transcript of the current turn in place.
	TurnUpdate

	// TurnDuplicate is an exact re-delivery and produces no events.
	TurnDuplicate
)

// TurnDecision is the outcome of observing one end-of-turn transcript.
type TurnDecision struct {
	Action     TurnAction
	TurnNumber int
}

// TurnDetector assigns turn numbers to end-of-turn transcripts and merges
// punctuation-only re-deliveries into the current turn. STT providers often
// emit a turn twice in quick succession, first raw and then with formatting
// applied; treating the second delivery as a new turn would trigger a second
// LLM reply for the same utterance.
//
// TurnDetector is not safe for concurrent use. The session dispatch loop is
// its only caller.
type TurnDetector struct {
	window  time.Duration
	counter int

	lastRaw        string
	lastNormalized string
	lastAt         time.Time
}

// NewTurnDetector creates a detector with the given merge window. A zero or
// negative window selects the default.
func NewTurnDetector(window time.Duration) *TurnDetector {
	if window <= 0 {
		window = mergeWindow
	}
	return &TurnDetector{window: window}
}

// Observe classifies text arriving at now. For TurnNew the returned number is
// the freshly assigned turn; for TurnUpdate and TurnDuplicate it is the
// number of the turn being stabilised.
func (d *TurnDetector) Observe(text string, now time.Time) TurnDecision {
	norm := normalizeTranscript(text)

	if d.lastRaw != "" && norm == d.lastNormalized && now.Sub(d.lastAt) < d.window {
		if text == d.lastRaw {
			return TurnDecision{Action: TurnDuplicate, TurnNumber: d.counter}
		}
		d.lastRaw = text
		d.lastAt = now
		return TurnDecision{Action: TurnUpdate, TurnNumber: d.counter}
	}

	d.counter++
	d.lastRaw = text
	d.lastNormalized = norm
	d.lastAt = now
	return TurnDecision{Action: TurnNew, TurnNumber: d.counter}
}

// Turns reports how many turns have been assigned so far.
func (d *TurnDetector) Turns() int { return d.counter }

// normalizeTranscript lowercases text, strips punctuation and collapses
// whitespace, so "Hello there" and "Hello there." compare equal.
func normalizeTranscript(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
