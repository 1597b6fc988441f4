package synth

import (
	"context"
	"strings"

	"github.com/MrWong99/narrator/internal/assemble"
	"github.com/MrWong99/narrator/internal/observe"
	"github.com/MrWong99/narrator/internal/segment"
	"github.com/MrWong99/narrator/pkg/provider/tts"
)

// Preview synthesizes the sample sentence for language in voice at neutral
// speed and pitch and returns a playable artifact. Nothing is recorded or
// stored. Concurrent previews of the same language and voice share one
// provider call; each caller still stops waiting when its own ctx ends.
func (s *Service) Preview(ctx context.Context, language, voice string) (assemble.Artifact, error) {
	var problems []string
	if strings.TrimSpace(language) == "" {
		problems = append(problems, "language is required")
	}
	if strings.TrimSpace(voice) == "" {
		problems = append(problems, "voice is required")
	}
	if len(problems) > 0 {
		return assemble.Artifact{}, &ValidationError{Problems: problems}
	}

	// The shared call outlives any single caller, so it gets its own deadline.
	shared := context.WithoutCancel(ctx)
	ch := s.previews.DoChan(language+"\x00"+voice, func() (any, error) {
		callCtx, cancel := context.WithTimeout(shared, s.jobTimeout)
		defer cancel()

		callCtx, span := observe.StartSpan(callCtx, "synth.preview")
		text := tts.PreviewText(language)
		art, err := s.render(callCtx, segment.Split(text, s.maxSegmentChars), tts.NeutralParams(language, voice), text)
		observe.EndSpan(span, err)
		return art, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return assemble.Artifact{}, res.Err
		}
		return res.Val.(assemble.Artifact), nil
	case <-ctx.Done():
		return assemble.Artifact{}, ctx.Err()
	}
}
