// Package tts defines the Synthesizer interface for Text-to-Speech backends.
//
// A Synthesizer wraps a remote speech synthesis service (e.g. Gemini or the
// OpenAI speech endpoint) and turns one bounded piece of text into one audio
// fragment per call. Long documents are split by the caller and synthesised
// one segment at a time; the Synthesizer itself never chunks, retries or
// reorders anything.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/narrator/pkg/audio"
)

// Synthesizer is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Independent jobs may call
// Synthesize in parallel, but the fragments of a single job are always
// requested one after another by the caller.
type Synthesizer interface {
	// Synthesize converts text into a single audio fragment using the voice,
	// speed and pitch in params. The returned bytes are laid out as described
	// by Format: raw PCM samples or a complete encoded container.
	//
	// A non-success response from the remote service is returned as a
	// *ProviderError carrying the status code and message. A response
	// without usable audio is a *ProviderError wrapping ErrNoAudio.
	// Implementations must not retry on their own.
	//
	// When ctx is cancelled the in-flight request is abandoned and ctx.Err()
	// (possibly wrapped) is returned.
	Synthesize(ctx context.Context, text string, params VoiceParams) ([]byte, error)

	// Format describes the layout of every fragment returned by Synthesize.
	// It is fixed for the lifetime of the Synthesizer.
	Format() audio.Format

	// Name is the short provider identifier used in logs and metrics
	// (e.g. "gemini").
	Name() string
}
