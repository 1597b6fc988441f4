package tts

// SpeedInstruction returns the natural-language speaking-rate instruction for
// providers that cannot take a numeric rate. The thresholds are exclusive:
// 0.7 is "slowly", 1.2 and 1.5 fall into the next lower band.
func SpeedInstruction(speed float64) string {
	switch {
	case speed < 0.7:
		return "Speak very slowly. "
	case speed < 0.9:
		return "Speak slowly. "
	case speed > 1.5:
		return "Speak very quickly. "
	case speed > 1.2:
		return "Speak quickly. "
	default:
		return ""
	}
}

// PitchInstruction is the pitch counterpart of [SpeedInstruction].
func PitchInstruction(pitch float64) string {
	switch {
	case pitch < -10:
		return "Use a very low pitch. "
	case pitch < -5:
		return "Use a low pitch. "
	case pitch > 10:
		return "Use a very high pitch. "
	case pitch > 5:
		return "Use a high pitch. "
	default:
		return ""
	}
}

// InstructedPrompt prefixes text with the speed and pitch instructions for
// instruction-driven providers.
func InstructedPrompt(text string, params VoiceParams) string {
	return SpeedInstruction(params.Speed) + PitchInstruction(params.Pitch) + "Say: " + text
}
