package stt

// Transcript represents a speech-to-text result from an STT provider.
// Both partial (interim) and end-of-turn transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// EndOfTurn indicates the provider has declared the speaker finished.
	// Unset for interim results.
	EndOfTurn bool

	// Formatted indicates punctuation and casing have been applied. Providers
	// that format asynchronously first emit the unformatted turn.
	Formatted bool

	// Confidence is the end-of-turn confidence score (0.0–1.0). May be zero
	// if the provider does not report confidence.
	Confidence float64
}
