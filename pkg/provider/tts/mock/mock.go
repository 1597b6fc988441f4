// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer to return scripted fragments to the synthesis pipeline and
// to verify which segments, in which order, were sent to the backend.
//
// Example:
//
//	s := &mock.Synthesizer{
//	    Fragments: [][]byte{[]byte("seg1"), []byte("seg2")},
//	    Errs:      map[int]error{2: &tts.ProviderError{StatusCode: 500}},
//	}
//	frag, err := s.Synthesize(ctx, "Hello.", params)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/narrator/pkg/audio"
	"github.com/MrWong99/narrator/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the segment passed to Synthesize.
	Text string
	// Params is the VoiceParams passed to Synthesize.
	Params tts.VoiceParams
}

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// AudioFormat is returned by Format. Defaults to audio.PCM24kMono16.
	AudioFormat *audio.Format

	// Fragments are returned in call order. When there are more calls than
	// fragments, Fallback is returned for the remainder.
	Fragments [][]byte

	// Fallback is returned once Fragments is exhausted. When nil, each
	// remaining call returns a copy of its input text as bytes.
	Fallback []byte

	// Errs maps a 1-based call number to the error that call returns.
	Errs map[int]error

	// Hook, if set, runs at the start of every call. A non-nil return is
	// used as the call's error.
	Hook func(ctx context.Context, call int) error

	// --- Call records ---

	// Calls records every call to Synthesize in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns the scripted fragment or error.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, params tts.VoiceParams) ([]byte, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, SynthesizeCall{Text: text, Params: params})
	n := len(s.Calls)
	hook := s.Hook
	scripted := s.Errs[n]
	var frag []byte
	switch {
	case n <= len(s.Fragments):
		frag = append([]byte(nil), s.Fragments[n-1]...)
	case s.Fallback != nil:
		frag = append([]byte(nil), s.Fallback...)
	default:
		frag = []byte(text)
	}
	s.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx, n); herr != nil {
			return nil, herr
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scripted != nil {
		return nil, scripted
	}
	return frag, nil
}

// Format returns AudioFormat or 24 kHz mono 16-bit PCM.
func (s *Synthesizer) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AudioFormat != nil {
		return *s.AudioFormat
	}
	return audio.PCM24kMono16
}

// Name returns ProviderName or "mock".
func (s *Synthesizer) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ProviderName != "" {
		return s.ProviderName
	}
	return "mock"
}

// CallCount returns the number of Synthesize calls so far. Thread-safe.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

// Texts returns the segment texts in call order. Thread-safe.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.Calls))
	for i, c := range s.Calls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
}

// Ensure Synthesizer implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Synthesizer)(nil)
