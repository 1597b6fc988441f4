// Package elevenlabs implements the tts.Synthesizer interface using the
// ElevenLabs stream-input WebSocket API.
//
// Every Synthesize call opens its own socket: the segment is sent in one text
// message with a flush, the input is closed, and the base64 audio chunks are
// collected until the server marks the stream final. Nothing is shared across
// segments, so a failed segment cannot leak state into the next one.
//
// Speed maps onto voice_settings.speed, clamped to the 0.7–1.2 range the API
// accepts. ElevenLabs has no pitch control; pitch is ignored.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/narrator/pkg/audio"
	"github.com/MrWong99/narrator/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Provider)(nil)

const (
	providerName     = "elevenlabs"
	defaultBaseURL   = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_24000"
	defaultTimeout   = 60 * time.Second

	// readLimit bounds a single server message. Audio chunks arrive base64
	// encoded and easily exceed the library's 32 KiB default.
	readLimit = 4 << 20

	minSpeed = 0.7
	maxSpeed = 1.2
)

// Premade voices used for catalogue voices.
const (
	VoiceRachel = "21m00Tcm4TlvDq8ikWAM"
	VoiceAdam   = "pNInz6obpgDQGcFmaJgB"
)

var genderVoices = map[tts.Gender]string{
	tts.GenderFemale:  VoiceRachel,
	tts.GenderMale:    VoiceAdam,
	tts.GenderNeutral: VoiceRachel,
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model id (e.g. "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithOutputFormat sets the audio output format: "pcm_<rate>" (default
// pcm_24000) or "mp3_<rate>_<kbps>".
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		if format != "" {
			p.outputFormat = strings.ToLower(format)
		}
	}
}

// WithBaseURL overrides the WebSocket endpoint root. Used in tests to point at
// a local server.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithDefaultVoice sets the voice used when a request names none.
func WithDefaultVoice(id string) Option {
	return func(p *Provider) {
		if id != "" {
			p.defaultVoice = id
		}
	}
}

// WithTimeout bounds a whole segment: dial, send and receive. Defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements tts.Synthesizer for ElevenLabs.
// It is safe for concurrent use.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	baseURL      string
	defaultVoice string
	timeout      time.Duration
	format       audio.Format
}

// New creates an ElevenLabs Provider. An empty apiKey or an unsupported
// output format yields a *tts.ConfigurationError.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, tts.MissingCredential(providerName)
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		baseURL:      defaultBaseURL,
		defaultVoice: VoiceRachel,
		timeout:      defaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}

	f, err := parseOutputFormat(p.outputFormat)
	if err != nil {
		return nil, &tts.ConfigurationError{Provider: providerName, Setting: "output_format", Reason: err.Error()}
	}
	p.format = f
	return p, nil
}

// parseOutputFormat turns an ElevenLabs output format name into the fragment
// layout it produces.
func parseOutputFormat(name string) (audio.Format, error) {
	kind, rest, _ := strings.Cut(name, "_")
	switch kind {
	case "pcm":
		rate, err := strconv.Atoi(rest)
		if err != nil || rate <= 0 {
			return audio.Format{}, fmt.Errorf("bad sample rate in %q", name)
		}
		return audio.Format{SampleRate: rate, Channels: 1, BitDepth: 16}, nil
	case "mp3":
		return audio.MP3, nil
	default:
		return audio.Format{}, fmt.Errorf("unsupported value %q (want pcm_<rate> or mp3_<rate>_<kbps>)", name)
	}
}

// Name returns "elevenlabs".
func (p *Provider) Name() string { return providerName }

// Format reports the layout selected by the output format.
func (p *Provider) Format() audio.Format { return p.format }

// MapVoice returns the ElevenLabs voice for id. Catalogue voices map by
// gender, the empty id gets the default voice and anything else is taken as
// a native ElevenLabs voice id.
func (p *Provider) MapVoice(id string) string {
	if id == "" {
		return p.defaultVoice
	}
	if v, ok := tts.LookupVoice(id); ok {
		if ev, ok := genderVoices[v.Gender]; ok {
			return ev
		}
		return p.defaultVoice
	}
	return id
}

// ---- wire messages ----

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	Flush         bool           `json:"flush,omitempty"`
}

type serverMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (p *Provider) streamURL(voice string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.baseURL, url.PathEscape(voice), q.Encode())
}

// clampSpeed keeps speed inside the range ElevenLabs accepts. Zero means
// "not set".
func clampSpeed(speed float64) float64 {
	if speed <= 0 {
		return 0
	}
	return min(max(speed, minSpeed), maxSpeed)
}

// Synthesize streams one segment and returns the concatenated audio.
func (p *Provider) Synthesize(ctx context.Context, text string, params tts.VoiceParams) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, resp, err := websocket.Dial(callCtx, p.streamURL(p.MapVoice(params.Voice)), &websocket.DialOptions{
		HTTPHeader: http.Header{"xi-api-key": []string{p.apiKey}},
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &tts.ProviderError{
				Provider:   providerName,
				StatusCode: resp.StatusCode,
				Message:    http.StatusText(resp.StatusCode),
				Err:        err,
			}
		}
		return nil, p.transportError(ctx, callCtx, "dial", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	messages := []textMessage{
		{Text: " ", VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: clampSpeed(params.Speed)}},
		{Text: text + " ", Flush: true},
		{Text: ""},
	}
	for _, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: marshal message: %w", err)
		}
		if err := conn.Write(callCtx, websocket.MessageText, data); err != nil {
			return nil, p.transportError(ctx, callCtx, "send", err)
		}
	}

	var out []byte
	for {
		_, data, err := conn.Read(callCtx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return nil, p.transportError(ctx, callCtx, "receive", err)
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, &tts.ProviderError{Provider: providerName, Message: "malformed server message", Err: err}
		}
		if msg.Error != "" || (msg.Message != "" && msg.Audio == "") {
			return nil, &tts.ProviderError{Provider: providerName, Message: serverError(msg)}
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, &tts.ProviderError{Provider: providerName, Message: "malformed audio chunk", Err: err}
			}
			out = append(out, chunk...)
		}
		if msg.IsFinal {
			break
		}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")

	if len(out) == 0 {
		return nil, &tts.ProviderError{Provider: providerName, Message: "no audio received", Err: tts.ErrNoAudio}
	}
	return out, nil
}

func serverError(msg serverMessage) string {
	switch {
	case msg.Error != "" && msg.Message != "":
		return msg.Error + ": " + msg.Message
	case msg.Error != "":
		return msg.Error
	default:
		return msg.Message
	}
}

// transportError separates the caller's cancellation from provider trouble.
// The per-segment timeout is a provider failure and must not wrap the
// context error.
func (p *Provider) transportError(ctx, callCtx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("elevenlabs: %s: %w", op, ctx.Err())
	}
	if callCtx.Err() != nil {
		return &tts.ProviderError{Provider: providerName, Message: fmt.Sprintf("%s: timed out after %s", op, p.timeout)}
	}
	if status := websocket.CloseStatus(err); status != -1 {
		return &tts.ProviderError{Provider: providerName, Message: fmt.Sprintf("%s: stream closed with %v", op, status), Err: err}
	}
	return &tts.ProviderError{Provider: providerName, Message: op + " failed", Err: err}
}
