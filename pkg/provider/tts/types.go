package tts

// VoiceParams carries the abstract voice settings of a synthesis request.
// Providers translate them into their own vocabulary.
type VoiceParams struct {
	// Language is the BCP-47 language code of the text (e.g. "en-US").
	Language string

	// Voice is the catalogue voice identifier (e.g. "en-US-Neural2-C").
	// Providers map it onto one of their own voices and fall back to a
	// documented default when it is unknown.
	Voice string

	// Speed is the speaking rate multiplier (0.5–2.0, 1.0 = default).
	Speed float64

	// Pitch is the pitch offset (-20 to +20, 0 = default).
	Pitch float64
}

// NeutralParams returns params for voice in language at default speed and pitch.
func NeutralParams(language, voice string) VoiceParams {
	return VoiceParams{Language: language, Voice: voice, Speed: 1.0, Pitch: 0}
}
