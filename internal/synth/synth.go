// Package synth runs synthesis jobs end to end: validate the request, record
// it, split the text into provider-sized segments, synthesize each segment in
// order, assemble the fragments into one artifact, store the artifact and
// finalize the record.
//
// Segments of one job are always synthesized strictly one after another; the
// order of issuance is the order of reassembly. A failure or cancellation at
// any point marks the record failed and persists no audio.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/narrator/internal/assemble"
	"github.com/MrWong99/narrator/internal/observe"
	"github.com/MrWong99/narrator/internal/resilience"
	"github.com/MrWong99/narrator/internal/segment"
	"github.com/MrWong99/narrator/pkg/provider/tts"
	"github.com/MrWong99/narrator/pkg/store"
)

// Defaults applied by [New].
const (
	DefaultJobTimeout     = 5 * time.Minute
	DefaultAudioURLPrefix = "/api/audio/"
)

// ArtifactStore persists finished audio. [audiofile.Dir] implements it.
type ArtifactStore interface {
	// Save stores data under a new unique name ending in ext and returns
	// the name.
	Save(data []byte, ext string) (string, error)

	// Remove deletes a stored artifact.
	Remove(name string) error
}

// Service runs synthesis jobs. It is safe for concurrent use; independent
// jobs share nothing but the provider and the stores.
type Service struct {
	provider tts.Synthesizer
	records  store.Store
	files    ArtifactStore

	maxSegmentChars int
	jobTimeout      time.Duration
	audioURLPrefix  string
	metrics         *observe.Metrics

	previews singleflight.Group
}

// Option configures a [Service].
type Option func(*Service)

// WithMaxSegmentChars sets the per-call character ceiling. Non-positive values
// select [segment.DefaultMaxChars].
func WithMaxSegmentChars(n int) Option {
	return func(s *Service) { s.maxSegmentChars = n }
}

// WithJobTimeout bounds the total time of one job. Non-positive values keep
// [DefaultJobTimeout].
func WithJobTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.jobTimeout = d
		}
	}
}

// WithAudioURLPrefix sets the prefix of the access URL stored on completed
// records. The artifact name is appended to it.
func WithAudioURLPrefix(prefix string) Option {
	return func(s *Service) { s.audioURLPrefix = prefix }
}

// WithMetrics records job and provider metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New returns a Service that synthesizes with provider, tracks jobs in
// records and writes artifacts to files.
func New(provider tts.Synthesizer, records store.Store, files ArtifactStore, opts ...Option) *Service {
	s := &Service{
		provider:       provider,
		records:        records,
		files:          files,
		jobTimeout:     DefaultJobTimeout,
		audioURLPrefix: DefaultAudioURLPrefix,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Provider returns the name of the synthesis backend.
func (s *Service) Provider() string { return s.provider.Name() }

// Generate runs one job to completion and returns the completed record.
//
// Validation problems are returned as *ValidationError before anything is
// recorded. Provider failures are returned unchanged (a *tts.ProviderError)
// after the record has been marked failed.
func (s *Service) Generate(ctx context.Context, req Request) (*store.Record, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "synth.generate")
	start := time.Now()
	s.metrics.ActiveJobs.Add(ctx, 1)
	defer s.metrics.ActiveJobs.Add(context.WithoutCancel(ctx), -1)

	rec, segments, size, err := s.generate(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordJob(context.WithoutCancel(ctx), s.provider.Name(), status, time.Since(start), segments, size)
	observe.EndSpan(span, err)
	return rec, err
}

func (s *Service) generate(ctx context.Context, req Request) (*store.Record, int, int, error) {
	log := observe.Logger(ctx)

	rec, err := s.records.Create(ctx, store.NewRecord{
		Text:     req.Text,
		Language: req.Language,
		Voice:    req.Voice,
		Speed:    req.Speed,
		Pitch:    req.Pitch,
	})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("synth: create record: %w", err)
	}
	log = log.With(slog.Int64("request_id", rec.ID))

	segments := segment.Split(req.Text, s.maxSegmentChars)
	artifact, err := s.render(ctx, segments, req.Params(), req.Text)
	if err != nil {
		s.fail(ctx, rec.ID, err)
		return nil, len(segments), 0, err
	}

	// Cancellation after the last fragment still discards the artifact.
	if err := ctx.Err(); err != nil {
		s.fail(ctx, rec.ID, err)
		return nil, len(segments), 0, err
	}

	name, err := s.files.Save(artifact.Data, artifact.Extension())
	if err != nil {
		err = fmt.Errorf("synth: save artifact: %w", err)
		s.fail(ctx, rec.ID, err)
		return nil, len(segments), 0, err
	}

	done, err := s.records.Complete(context.WithoutCancel(ctx), rec.ID, store.Completion{
		AudioURL: s.audioURLPrefix + name,
		Duration: artifact.DurationSeconds,
		FileSize: int64(artifact.Size()),
	})
	if err != nil {
		if rmErr := s.files.Remove(name); rmErr != nil {
			log.Warn("failed to remove orphaned artifact", "file", name, "err", rmErr)
		}
		return nil, len(segments), 0, fmt.Errorf("synth: complete record: %w", err)
	}

	log.Info("synthesis completed",
		slog.String("provider", s.provider.Name()),
		slog.Int("segments", len(segments)),
		slog.Int("bytes", artifact.Size()),
		slog.Float64("duration_s", artifact.DurationSeconds),
	)
	return done, len(segments), artifact.Size(), nil
}

// render synthesizes segments strictly in order and assembles the fragments.
// The first error aborts; fragments gathered so far are dropped.
func (s *Service) render(ctx context.Context, segments []string, params tts.VoiceParams, text string) (assemble.Artifact, error) {
	if len(segments) == 0 {
		return assemble.Artifact{}, &ValidationError{Problems: []string{"text is required"}}
	}

	name := s.provider.Name()
	fragments := make([][]byte, 0, len(segments))
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return assemble.Artifact{}, err
		}

		segCtx, span := observe.StartSpan(ctx, "synth.segment")
		span.SetAttributes(
			observe.Attr("provider", name),
			observe.Attr("segment", strconv.Itoa(i+1)+"/"+strconv.Itoa(len(segments))),
		)
		start := time.Now()
		frag, err := s.provider.Synthesize(segCtx, seg, params)
		elapsed := time.Since(start)
		observe.EndSpan(span, err)

		if err != nil {
			s.metrics.RecordProviderRequest(ctx, name, "error", elapsed)
			s.metrics.RecordProviderError(ctx, name, errorKind(err))
			observe.Logger(ctx).Warn("segment synthesis failed",
				slog.String("provider", name),
				slog.Int("segment", i+1),
				slog.Int("segments", len(segments)),
				slog.Any("err", err),
			)
			return assemble.Artifact{}, err
		}
		s.metrics.RecordProviderRequest(ctx, name, "ok", elapsed)
		fragments = append(fragments, frag)
	}

	artifact, err := assemble.Assemble(fragments, s.provider.Format(), text)
	if err != nil {
		return assemble.Artifact{}, fmt.Errorf("synth: %w", err)
	}
	return artifact, nil
}

// fail marks the record failed. It runs even when ctx is already cancelled.
func (s *Service) fail(ctx context.Context, id int64, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := s.records.Fail(ctx, id, cause.Error()); err != nil {
		observe.Logger(ctx).Error("failed to mark request failed",
			slog.Int64("request_id", id), slog.Any("err", err))
	}
}

// errorKind classifies err for the provider error counter.
func errorKind(err error) string {
	var pe *tts.ProviderError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, tts.ErrNoAudio):
		return "no_audio"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &pe) && pe.StatusCode != 0:
		return "http_" + strconv.Itoa(pe.StatusCode)
	default:
		return "transport"
	}
}
