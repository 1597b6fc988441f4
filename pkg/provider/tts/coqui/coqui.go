// Package coqui implements the tts.Synthesizer interface against a
// self-hosted Coqui TTS server. It needs no API key.
//
// Two server flavours are supported:
//
//   - APIModeStandard (default): the stock Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). One GET /api/tts per segment, with text,
//     speaker_id and language_id as query parameters.
//
//   - APIModeXTTS: the XTTS v2 API server. One POST /tts_to_audio/ per segment
//     with a JSON body naming the reference speaker.
//
// Both answer with a WAV file. The header is parsed and dropped, and the
// samples are returned as a raw PCM fragment. Coqui models differ in sample
// rate, so fragments are resampled to the configured rate when the server
// answers at a different one. Neither server has speed or pitch controls, so
// those parameters are ignored.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithSpeaker("p225"),
//	    coqui.WithSampleRate(22050),
//	)
//	pcm, err := p.Synthesize(ctx, "Hello there.", params)
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/narrator/pkg/audio"
	"github.com/MrWong99/narrator/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Provider)(nil)

const (
	providerName      = "coqui"
	defaultTimeout    = 30 * time.Second
	defaultSampleRate = 22050

	standardEndpoint = "/api/tts"
	xttsEndpoint     = "/tts_to_audio/"

	// maxErrorBody caps how much of an error response is kept as the message.
	maxErrorBody = 512
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"

	// APIModeXTTS targets the XTTS v2 API server (/tts_to_audio/). It always
	// needs a reference speaker.
	APIModeXTTS APIMode = "xtts"
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithAPIMode selects the server flavour. Defaults to [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		if mode != "" {
			p.apiMode = APIMode(strings.ToLower(string(mode)))
		}
	}
}

// WithSpeaker sets the speaker used for catalogue voices: a speaker id for
// multi-speaker standard models, or the reference speaker for XTTS.
func WithSpeaker(speaker string) Option {
	return func(p *Provider) { p.speaker = speaker }
}

// WithSampleRate sets the sample rate of every returned fragment. Defaults to
// 22050 Hz, the rate of most standard Coqui models.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		if rate > 0 {
			p.sampleRate = rate
		}
	}
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithTimeout sets the per-request timeout. Defaults to 30 s. It is applied
// to a copy of the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements tts.Synthesizer for a Coqui TTS server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	apiMode    APIMode
	speaker    string
	sampleRate int
	timeout    time.Duration
	httpClient *http.Client
}

// New creates a Coqui Provider for the server at serverURL
// (e.g. "http://localhost:5002"). A missing URL, an unknown API mode or an
// XTTS setup without a speaker yields a *tts.ConfigurationError.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, &tts.ConfigurationError{Provider: providerName, Setting: "base_url", Reason: "server url is not set"}
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		apiMode:    APIModeStandard,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}

	switch p.apiMode {
	case APIModeStandard:
	case APIModeXTTS:
		if p.speaker == "" {
			return nil, &tts.ConfigurationError{Provider: providerName, Setting: "speaker", Reason: "xtts mode needs a reference speaker"}
		}
	default:
		return nil, &tts.ConfigurationError{
			Provider: providerName,
			Setting:  "api_mode",
			Reason:   fmt.Sprintf("unsupported value %q (want standard or xtts)", p.apiMode),
		}
	}

	timeout := defaultTimeout
	if p.timeout > 0 {
		timeout = p.timeout
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: timeout}
	} else if p.timeout > 0 {
		c := *p.httpClient
		c.Timeout = timeout
		p.httpClient = &c
	}
	return p, nil
}

// Name returns "coqui".
func (p *Provider) Name() string { return providerName }

// Format reports mono 16-bit PCM at the configured sample rate.
func (p *Provider) Format() audio.Format {
	return audio.Format{SampleRate: p.sampleRate, Channels: 1, BitDepth: 16}
}

// Synthesize renders one segment and returns its PCM samples.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.VoiceParams) ([]byte, error) {
	req, err := p.newRequest(ctx, text, params)
	if err != nil {
		return nil, err
	}
	wav, err := p.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.extractPCM(wav)
}

// xttsRequest is the JSON body of POST /tts_to_audio/.
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (p *Provider) newRequest(ctx context.Context, text string, params tts.VoiceParams) (*http.Request, error) {
	speaker := p.speakerFor(params.Voice)
	lang := languageCode(params.Language)

	if p.apiMode == APIModeXTTS {
		body, err := json.Marshal(xttsRequest{Text: text, SpeakerWav: speaker, Language: lang})
		if err != nil {
			return nil, fmt.Errorf("coqui: marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("coqui: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "audio/wav")
		return req, nil
	}

	q := url.Values{}
	q.Set("text", text)
	if speaker != "" {
		q.Set("speaker_id", speaker)
	}
	if lang != "" {
		q.Set("language_id", lang)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+standardEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")
	return req, nil
}

// speakerFor maps a voice id onto a Coqui speaker. Catalogue voices and the
// empty id use the configured speaker; anything else is taken as a native
// Coqui speaker name.
func (p *Provider) speakerFor(voice string) string {
	if voice == "" {
		return p.speaker
	}
	if _, ok := tts.LookupVoice(voice); ok {
		return p.speaker
	}
	return voice
}

// languageCode reduces a BCP-47 tag to the primary subtag Coqui expects
// ("en-US" → "en").
func languageCode(tag string) string {
	primary, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(primary)
}

func (p *Provider) do(ctx context.Context, req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("coqui: %w", ctx.Err())
		}
		return nil, &tts.ProviderError{Provider: providerName, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		return nil, &tts.ProviderError{Provider: providerName, StatusCode: resp.StatusCode, Message: text}
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("coqui: read audio: %w", ctx.Err())
		}
		return nil, &tts.ProviderError{Provider: providerName, Message: "read audio", Err: err}
	}
	return wav, nil
}

// extractPCM strips the WAV container and brings the samples to the
// configured rate.
func (p *Provider) extractPCM(wav []byte) ([]byte, error) {
	info, err := audio.ParseWAV(wav)
	if err != nil {
		return nil, &tts.ProviderError{Provider: providerName, Message: "malformed WAV response", Err: err}
	}
	if info.Format.Channels != 1 || info.Format.BitDepth != 16 {
		return nil, &tts.ProviderError{
			Provider: providerName,
			Message: fmt.Sprintf("unsupported sample layout: %d channels, %d bit",
				info.Format.Channels, info.Format.BitDepth),
		}
	}

	// Streaming servers leave the data size at 0 or 0xFFFFFFFF.
	end := info.DataOffset + info.DataSize
	if info.DataSize <= 0 || end > len(wav) {
		end = len(wav)
	}
	pcm := wav[info.DataOffset:end]
	pcm = pcm[:len(pcm)&^1]
	if len(pcm) == 0 {
		return nil, &tts.ProviderError{Provider: providerName, Message: "empty WAV response", Err: tts.ErrNoAudio}
	}

	if info.Format.SampleRate != p.sampleRate {
		pcm = resampleMono16(pcm, info.Format.SampleRate, p.sampleRate)
	}
	return pcm, nil
}

// resampleMono16 converts little-endian 16-bit mono PCM from srcRate to
// dstRate by linear interpolation.
func resampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	sample := func(i int) float64 {
		return float64(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sample(idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sample(idx + 1)
		}
		v := int16(s0*(1-frac) + s1*frac)
		out[2*i] = byte(v)
		out[2*i+1] = byte(uint16(v) >> 8)
	}
	return out
}
