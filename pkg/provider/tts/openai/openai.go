// Package openai implements the tts.Synthesizer interface using the OpenAI
// speech endpoint (POST /v1/audio/speech) via the official openai-go client.
//
// Speed is sent as the numeric "speed" field. OpenAI has no pitch control, so
// pitch is expressed through the banded "instructions" field on models that
// accept it (gpt-4o-mini-tts); tts-1 and tts-1-hd ignore pitch.
//
// Audio is requested either as raw 24 kHz mono 16-bit PCM (the default,
// assembled into a WAV container downstream) or as MP3.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/narrator/pkg/audio"
	"github.com/MrWong99/narrator/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Provider)(nil)

const (
	providerName   = "openai"
	defaultModel   = oai.SpeechModelGPT4oMiniTTS
	defaultTimeout = 60 * time.Second

	// DefaultVoice is used for catalogue ids without a mapping.
	DefaultVoice = oai.AudioSpeechNewParamsVoiceAlloy
)

// genderVoices maps catalogue genders onto OpenAI voices.
var genderVoices = map[tts.Gender]oai.AudioSpeechNewParamsVoice{
	tts.GenderFemale:  oai.AudioSpeechNewParamsVoiceShimmer,
	tts.GenderMale:    oai.AudioSpeechNewParamsVoiceEcho,
	tts.GenderNeutral: oai.AudioSpeechNewParamsVoiceAlloy,
}

var nativeVoices = map[string]bool{
	"alloy": true, "ash": true, "ballad": true, "coral": true, "echo": true,
	"fable": true, "onyx": true, "nova": true, "sage": true, "shimmer": true, "verse": true,
}

// MapVoice returns the OpenAI voice for id. Native OpenAI voice names pass
// through, catalogue voices map by gender and anything else gets
// [DefaultVoice].
func MapVoice(id string) oai.AudioSpeechNewParamsVoice {
	if nativeVoices[strings.ToLower(id)] {
		return oai.AudioSpeechNewParamsVoice(strings.ToLower(id))
	}
	if v, ok := tts.LookupVoice(id); ok {
		if ov, ok := genderVoices[v.Gender]; ok {
			return ov
		}
	}
	return DefaultVoice
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the speech model (tts-1, tts-1-hd, gpt-4o-mini-tts).
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the API endpoint, e.g. for an OpenAI-compatible server
// or a local mock in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithResponseFormat selects "pcm" (default) or "mp3".
func WithResponseFormat(format string) Option {
	return func(p *Provider) {
		if format != "" {
			p.responseFormat = strings.ToLower(format)
		}
	}
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements tts.Synthesizer for the OpenAI speech endpoint.
// It is safe for concurrent use.
type Provider struct {
	client         oai.Client
	model          string
	baseURL        string
	responseFormat string
	httpClient     *http.Client
}

// New creates an OpenAI Provider. An empty apiKey yields a
// *tts.ConfigurationError, as does an unsupported response format.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, tts.MissingCredential(providerName)
	}
	p := &Provider{
		model:          defaultModel,
		responseFormat: "pcm",
		httpClient:     &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.responseFormat != "pcm" && p.responseFormat != "mp3" {
		return nil, &tts.ConfigurationError{
			Provider: providerName,
			Setting:  "response_format",
			Reason:   fmt.Sprintf("unsupported value %q (want pcm or mp3)", p.responseFormat),
		}
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Name returns "openai".
func (p *Provider) Name() string { return providerName }

// Format reports PCM 24 kHz mono 16-bit or MP3 depending on the configured
// response format.
func (p *Provider) Format() audio.Format {
	if p.responseFormat == "mp3" {
		return audio.MP3
	}
	return audio.PCM24kMono16
}

// Synthesize requests one fragment from the speech endpoint.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.VoiceParams) ([]byte, error) {
	req := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          MapVoice(params.Voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(p.responseFormat),
	}
	if params.Speed > 0 {
		req.Speed = param.NewOpt(params.Speed)
	}
	if instr := tts.PitchInstruction(params.Pitch); instr != "" && acceptsInstructions(p.model) {
		req.Instructions = param.NewOpt(strings.TrimSpace(instr))
	}

	resp, err := p.client.Audio.Speech.New(ctx, req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("openai: read audio: %w", ctx.Err())
		}
		return nil, &tts.ProviderError{Provider: providerName, Message: "read audio", Err: err}
	}
	if len(data) == 0 {
		return nil, &tts.ProviderError{Provider: providerName, Message: "empty audio body", Err: tts.ErrNoAudio}
	}
	return data, nil
}

// acceptsInstructions reports whether model honours the instructions field.
func acceptsInstructions(model string) bool {
	return model != oai.SpeechModelTTS1 && model != oai.SpeechModelTTS1HD
}

func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return fmt.Errorf("openai: %w", err)
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &tts.ProviderError{
			Provider:   providerName,
			StatusCode: apiErr.StatusCode,
			Message:    msg,
			Err:        err,
		}
	}
	return &tts.ProviderError{Provider: providerName, Message: "request failed", Err: err}
}
