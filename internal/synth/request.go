package synth

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/narrator/pkg/provider/tts"
)

// Request limits.
const (
	MaxTextChars = 50000
	MinSpeed     = 0.5
	MaxSpeed     = 2.0
	MinPitch     = -20.0
	MaxPitch     = 20.0
)

// Request is one submitted synthesis job. It is immutable once submitted.
type Request struct {
	Text     string
	Language string
	Voice    string
	Speed    float64
	Pitch    float64
}

// Params returns the voice parameters passed to the provider.
func (r Request) Params() tts.VoiceParams {
	return tts.VoiceParams{Language: r.Language, Voice: r.Voice, Speed: r.Speed, Pitch: r.Pitch}
}

// ValidationError lists every problem found in a request. It is raised
// before any segmentation or network activity.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "synth: invalid request: " + strings.Join(e.Problems, "; ")
}

// Validate returns a *ValidationError describing everything wrong with r, or
// nil.
func (r Request) Validate() error {
	var problems []string

	switch n := utf8.RuneCountInString(r.Text); {
	case strings.TrimSpace(r.Text) == "":
		problems = append(problems, "text is required")
	case n > MaxTextChars:
		problems = append(problems, fmt.Sprintf("text must be at most %d characters, got %d", MaxTextChars, n))
	}
	if strings.TrimSpace(r.Language) == "" {
		problems = append(problems, "language is required")
	}
	if strings.TrimSpace(r.Voice) == "" {
		problems = append(problems, "voice is required")
	}
	// Negated comparisons also reject NaN.
	if !(r.Speed >= MinSpeed && r.Speed <= MaxSpeed) {
		problems = append(problems, fmt.Sprintf("speed must be between %.1f and %.1f", MinSpeed, MaxSpeed))
	}
	if !(r.Pitch >= MinPitch && r.Pitch <= MaxPitch) {
		problems = append(problems, fmt.Sprintf("pitch must be between %.0f and %.0f", MinPitch, MaxPitch))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
