package tts

// VoiceProfile identifies a synthesis voice and its delivery tuning.
type VoiceProfile struct {
	// ID is the provider-assigned voice identifier (e.g. "en-US-amara").
	ID string

	// Name is the human-readable voice name.
	Name string

	// Gender is the provider-reported voice gender label.
	Gender string

	// Style is the speaking style (e.g. "Conversational").
	Style string

	// Rate adjusts speaking speed. Zero is the provider default.
	Rate int

	// Pitch adjusts voice pitch. Zero is the provider default.
	Pitch int

	// Variation controls prosody variation between renditions.
	Variation int
}

// AudioChunk is a unit of synthesised audio emitted by a StreamHandle.
type AudioChunk struct {
	// Data is raw audio bytes. For WAV-format providers the container header
	// has already been elided, so consecutive chunks concatenate into a
	// single PCM stream.
	Data []byte

	// Final marks the provider's end-of-synthesis signal. A final chunk
	// carries no data.
	Final bool
}
