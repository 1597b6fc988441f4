package resilience

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrWong99/narrator/pkg/audio"
	"github.com/MrWong99/narrator/pkg/provider/tts"
)

// Guard implements [tts.Synthesizer] by forwarding to another synthesizer
// through a [CircuitBreaker]. Rejected calls surface as a *tts.ProviderError
// with status 503 wrapping [ErrCircuitOpen].
type Guard struct {
	next tts.Synthesizer
	cb   *CircuitBreaker
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Guard)(nil)

// NewGuard wraps next. When cfg.Name is empty the provider name is used; when
// cfg.IsFailure is nil, [IsProviderFailure] decides what trips the breaker,
// and when cfg.IsNeutral is nil, [IsCallerCancellation] decides what is
// ignored.
func NewGuard(next tts.Synthesizer, cfg CircuitBreakerConfig) *Guard {
	if cfg.Name == "" {
		cfg.Name = next.Name()
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = IsProviderFailure
	}
	if cfg.IsNeutral == nil {
		cfg.IsNeutral = IsCallerCancellation
	}
	return &Guard{next: next, cb: NewCircuitBreaker(cfg)}
}

// Synthesize forwards to the wrapped synthesizer unless the breaker is open.
func (g *Guard) Synthesize(ctx context.Context, text string, params tts.VoiceParams) ([]byte, error) {
	var out []byte
	err := g.cb.Execute(func() error {
		var err error
		out, err = g.next.Synthesize(ctx, text, params)
		return err
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, &tts.ProviderError{
			Provider:   g.next.Name(),
			StatusCode: http.StatusServiceUnavailable,
			Message:    "provider temporarily unavailable",
			Err:        ErrCircuitOpen,
		}
	}
	return out, err
}

// Format delegates to the wrapped synthesizer.
func (g *Guard) Format() audio.Format { return g.next.Format() }

// Name delegates to the wrapped synthesizer.
func (g *Guard) Name() string { return g.next.Name() }

// Breaker exposes the underlying breaker for health reporting.
func (g *Guard) Breaker() *CircuitBreaker { return g.cb }

// IsCallerCancellation reports whether err is the caller's own cancellation
// or deadline. A *tts.ProviderError never is, even when it wraps a context
// error: an upstream timeout is a provider failure.
func IsCallerCancellation(err error) bool {
	var pe *tts.ProviderError
	if errors.As(err, &pe) {
		return false
	}
	return IsCancellation(err)
}

// IsProviderFailure reports whether err indicates an unhealthy provider:
// transport failures, missing audio, throttling and 5xx responses. Client
// errors (other 4xx) and cancellation do not count.
func IsProviderFailure(err error) bool {
	var pe *tts.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch {
	case pe.StatusCode == 0:
		return true
	case pe.StatusCode == http.StatusTooManyRequests:
		return true
	case pe.StatusCode >= 500:
		return true
	default:
		return false
	}
}
