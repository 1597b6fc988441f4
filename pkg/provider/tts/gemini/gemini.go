// Package gemini implements the tts.Synthesizer interface on top of the
// Gemini speech generation models (gemini-2.5-*-tts) through the official
// google.golang.org/genai client.
//
// Gemini only accepts natural-language steering, so speed and pitch are
// rendered as banded instructions ("Speak slowly. Use a high pitch. Say: ...")
// and catalogue voice ids are mapped onto Gemini's prebuilt voices. The model
// answers with base64 inline data containing raw 24 kHz mono 16-bit PCM.
//
// Typical usage:
//
//	p, err := gemini.New(ctx, os.Getenv("GEMINI_API_KEY"),
//	    gemini.WithModel("gemini-2.5-flash-preview-tts"),
//	)
//	pcm, err := p.Synthesize(ctx, "Hello there.", params)
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/narrator/pkg/audio"
	"github.com/MrWong99/narrator/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Provider)(nil)

const (
	providerName   = "gemini"
	defaultModel   = "gemini-2.5-flash-preview-tts"
	defaultTimeout = 60 * time.Second

	// DefaultVoice is used for catalogue ids without a mapping.
	DefaultVoice = "Kore"
)

// voiceMap assigns a Gemini prebuilt voice to each catalogue voice.
var voiceMap = map[string]string{
	"en-US-Neural2-A": "Kore",
	"en-US-Neural2-C": "Charon",
	"en-US-Neural2-D": "Kore",
	"en-US-Neural2-E": "Charon",
	"en-US-Neural2-F": "Puck",
	"en-US-Neural2-G": "Charon",
	"en-US-Neural2-H": "Puck",
	"en-US-Neural2-I": "Kore",
	"en-US-Neural2-J": "Kore",
	"es-ES-Neural2-A": "Charon",
	"es-ES-Neural2-B": "Kore",
	"es-ES-Neural2-C": "Puck",
	"es-ES-Neural2-D": "Charon",
	"es-ES-Neural2-E": "Puck",
	"es-ES-Neural2-F": "Kore",
	"fr-FR-Neural2-A": "Charon",
	"fr-FR-Neural2-B": "Kore",
	"fr-FR-Neural2-C": "Puck",
	"fr-FR-Neural2-D": "Kore",
	"fr-FR-Neural2-E": "Charon",
	"de-DE-Neural2-A": "Charon",
	"de-DE-Neural2-B": "Kore",
	"de-DE-Neural2-C": "Puck",
	"de-DE-Neural2-D": "Kore",
	"de-DE-Neural2-F": "Charon",
}

// MapVoice returns the Gemini voice for a catalogue voice id, or
// [DefaultVoice] when the id is unknown.
func MapVoice(id string) string {
	if v, ok := voiceMap[id]; ok {
		return v
	}
	return DefaultVoice
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini TTS model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the API endpoint. Primarily used in tests to point at
// a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithTimeout sets the per-request timeout. Defaults to 60 s. It is applied
// to a copy of the HTTP client, so a client passed to [WithHTTPClient] is
// never modified.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements tts.Synthesizer for Gemini speech generation.
// It is safe for concurrent use.
type Provider struct {
	client     *genai.Client
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Gemini Provider. An empty apiKey yields a
// *tts.ConfigurationError.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, tts.MissingCredential(providerName)
	}
	p := &Provider{model: defaultModel}
	for _, o := range opts {
		o(p)
	}
	switch {
	case p.httpClient == nil:
		timeout := defaultTimeout
		if p.timeout > 0 {
			timeout = p.timeout
		}
		p.httpClient = &http.Client{Timeout: timeout}
	case p.timeout > 0:
		c := *p.httpClient
		c.Timeout = p.timeout
		p.httpClient = &c
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name returns "gemini".
func (p *Provider) Name() string { return providerName }

// Format reports raw 24 kHz mono 16-bit PCM.
func (p *Provider) Format() audio.Format { return audio.PCM24kMono16 }

// Synthesize renders text with the mapped prebuilt voice. Speed and pitch are
// expressed as banded instructions prepended to the prompt.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.VoiceParams) ([]byte, error) {
	prompt := tts.InstructedPrompt(text, params)
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: MapVoice(params.Voice),
				},
			},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, classify(ctx, err)
	}

	pcm := inlineAudio(resp)
	if len(pcm) == 0 {
		return nil, &tts.ProviderError{
			Provider: providerName,
			Message:  "no audio content received",
			Err:      tts.ErrNoAudio,
		}
	}
	return pcm, nil
}

// inlineAudio returns the first inline data payload of the first candidate.
func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil {
		return nil
	}
	for _, part := range c.Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data
		}
	}
	return nil
}

// classify turns a genai error into a *tts.ProviderError. Cancellation is
// passed through so callers can tell it apart from provider failures.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return fmt.Errorf("gemini: %w", err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &tts.ProviderError{
			Provider:   providerName,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &tts.ProviderError{
			Provider:   providerName,
			StatusCode: apiErrPtr.Code,
			Message:    apiErrPtr.Message,
			Err:        err,
		}
	}
	return &tts.ProviderError{Provider: providerName, Message: "request failed", Err: err}
}
