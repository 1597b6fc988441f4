package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/MrWong99/narrator/pkg/provider/tts"
	"github.com/MrWong99/narrator/pkg/provider/tts/mock"
)

func TestGuard_PassesThrough(t *testing.T) {
	t.Parallel()
	m := &mock.Synthesizer{ProviderName: "gemini", Fragments: [][]byte{[]byte("pcm")}}
	g := NewGuard(m, CircuitBreakerConfig{})

	got, err := g.Synthesize(context.Background(), "Hello.", tts.NeutralParams("en-US", "v"))
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got) != "pcm" {
		t.Errorf("got %q", got)
	}
	if g.Name() != "gemini" || g.Breaker().Name() != "gemini" {
		t.Errorf("names: %q / %q", g.Name(), g.Breaker().Name())
	}
	if g.Format() != m.Format() {
		t.Errorf("format mismatch")
	}
}

func TestGuard_OpensOnServerErrorsAndFailsFast(t *testing.T) {
	t.Parallel()
	serverErr := &tts.ProviderError{Provider: "gemini", StatusCode: 500, Message: "boom"}
	m := &mock.Synthesizer{ProviderName: "gemini", Errs: map[int]error{1: serverErr, 2: serverErr}}
	g := NewGuard(m, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		if _, err := g.Synthesize(context.Background(), "x", tts.VoiceParams{}); !errors.Is(err, serverErr) {
			t.Fatalf("call %d: err = %v", i, err)
		}
	}

	_, err := g.Synthesize(context.Background(), "x", tts.VoiceParams{})
	var pe *tts.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusServiceUnavailable || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("unexpected fast-fail error: %+v", pe)
	}
	if m.CallCount() != 2 {
		t.Errorf("provider calls = %d, want 2", m.CallCount())
	}
}

func TestGuard_ClientErrorsDoNotTrip(t *testing.T) {
	t.Parallel()
	badRequest := &tts.ProviderError{Provider: "openai", StatusCode: 400, Message: "bad voice"}
	m := &mock.Synthesizer{Errs: map[int]error{1: badRequest, 2: badRequest, 3: badRequest}}
	g := NewGuard(m, CircuitBreakerConfig{MaxFailures: 1})

	for i := 0; i < 3; i++ {
		_, _ = g.Synthesize(context.Background(), "x", tts.VoiceParams{})
	}
	if g.Breaker().State() != StateClosed {
		t.Fatalf("state = %v, want closed", g.Breaker().State())
	}
}

func TestGuard_CancelledTrialKeepsBreakerHalfOpen(t *testing.T) {
	t.Parallel()
	serverErr := &tts.ProviderError{Provider: "gemini", StatusCode: 503, Message: "overloaded"}
	m := &mock.Synthesizer{ProviderName: "gemini", Errs: map[int]error{1: serverErr}}
	g := NewGuard(m, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Second})
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	g.cb.now = clk.Now

	_, _ = g.Synthesize(context.Background(), "x", tts.VoiceParams{})
	clk.Advance(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Synthesize(ctx, "x", tts.VoiceParams{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := g.Breaker().State(); got != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", got)
	}
}

func TestGuard_UpstreamTimeoutTrips(t *testing.T) {
	t.Parallel()
	timeout := &tts.ProviderError{Provider: "gemini", Message: "request failed", Err: context.DeadlineExceeded}
	m := &mock.Synthesizer{ProviderName: "gemini", Errs: map[int]error{1: timeout}}
	g := NewGuard(m, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	_, _ = g.Synthesize(context.Background(), "x", tts.VoiceParams{})
	if got := g.Breaker().State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}
}

func TestIsCallerCancellation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, true},
		{"wrapped deadline", fmt.Errorf("openai: %w", context.DeadlineExceeded), true},
		{"provider timeout", &tts.ProviderError{Provider: "coqui", Err: context.DeadlineExceeded}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := IsCallerCancellation(tt.err); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsProviderFailure(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), false},
		{"cancelled", context.Canceled, false},
		{"transport", &tts.ProviderError{Err: errors.New("dial")}, true},
		{"no audio", &tts.ProviderError{Err: tts.ErrNoAudio}, true},
		{"429", &tts.ProviderError{StatusCode: 429}, true},
		{"503", &tts.ProviderError{StatusCode: 503}, true},
		{"401", &tts.ProviderError{StatusCode: 401}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsProviderFailure(tt.err); got != tt.want {
				t.Errorf("IsProviderFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
