package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/narrator/internal/assemble"
	"github.com/MrWong99/narrator/internal/audiofile"
	"github.com/MrWong99/narrator/internal/observe"
	"github.com/MrWong99/narrator/internal/synth"
	"github.com/MrWong99/narrator/pkg/audio"
	"github.com/MrWong99/narrator/pkg/provider/tts"
	"github.com/MrWong99/narrator/pkg/provider/tts/mock"
	"github.com/MrWong99/narrator/pkg/store"
	"github.com/MrWong99/narrator/pkg/store/memory"
)

type testEnv struct {
	srv     *httptest.Server
	synth   *mock.Synthesizer
	records *memory.Store
	files   *audiofile.Dir
}

func newTestEnv(t *testing.T, synthesizer *mock.Synthesizer) *testEnv {
	t.Helper()
	files, err := audiofile.New(filepath.Join(t.TempDir(), "audio"))
	if err != nil {
		t.Fatalf("audiofile.New: %v", err)
	}
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	records := memory.New()
	svc := synth.New(synthesizer, records, files, synth.WithMetrics(m))
	srv := httptest.NewServer(New(svc, records, files).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, synth: synthesizer, records: records, files: files}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestGenerate_OK(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Synthesizer{Fragments: [][]byte{make([]byte, 48000)}})

	resp := env.do(t, "POST", "/api/tts/generate",
		`{"text":"Hello there.","language":"en-US","voice":"en-US-Neural2-F"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[generateResponse](t, resp)
	if got.ID != 1 || got.FileSize != 48044 || got.Duration != 1 {
		t.Errorf("response = %+v", got)
	}
	if !strings.HasPrefix(got.AudioURL, "/api/audio/") {
		t.Errorf("audioUrl = %q", got.AudioURL)
	}

	// Omitted speed and pitch default to neutral.
	if p := env.synth.Calls[0].Params; p.Speed != 1 || p.Pitch != 0 {
		t.Errorf("params = %+v, want speed 1 pitch 0", p)
	}

	audioResp := env.do(t, "GET", got.AudioURL, "")
	data, _ := io.ReadAll(audioResp.Body)
	if audioResp.StatusCode != http.StatusOK || len(data) != 48044 || string(data[:4]) != "RIFF" {
		t.Errorf("audio fetch: status %d, %d bytes", audioResp.StatusCode, len(data))
	}
}

func TestGenerate_ValidationError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Synthesizer{})

	resp := env.do(t, "POST", "/api/tts/generate", `{"text":"","language":"en-US","voice":"v","speed":5}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decode[errorResponse](t, resp)
	if body.Error != "validation error" || len(body.Details) != 2 {
		t.Errorf("body = %+v", body)
	}
	if env.synth.CallCount() != 0 || env.records.Len() != 0 {
		t.Error("invalid request reached the pipeline")
	}
}

func TestGenerate_MalformedBody(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Synthesizer{})
	for _, body := range []string{`{"text":`, `[]`, `{"speed":"fast"}`} {
		resp := env.do(t, "POST", "/api/tts/generate", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestGenerate_BodyTooLarge(t *testing.T) {
	t.Parallel()
	h := New(stubSynth{}, memory.New(), nil).Handler()
	big := `{"text":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/tts/generate", strings.NewReader(big)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestGenerate_ProviderErrorIsBadGateway(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Synthesizer{
		Errs: map[int]error{1: &tts.ProviderError{Provider: "gemini", StatusCode: 500, Message: "backend down"}},
	})

	resp := env.do(t, "POST", "/api/tts/generate", `{"text":"Hi.","language":"en-US","voice":"v"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	body := decode[errorResponse](t, resp)
	if body.Error != "failed to generate speech" || len(body.Details) != 1 || !strings.Contains(body.Details[0], "backend down") {
		t.Errorf("body = %+v", body)
	}

	// The job is recorded as failed.
	status := decode[store.Record](t, env.do(t, "GET", "/api/tts/1", ""))
	if status.Status != store.StatusFailed {
		t.Errorf("record status = %q, want failed", status.Status)
	}
}

// stubSynth returns fixed errors for the status mapping table.
type stubSynth struct{ err error }

func (s stubSynth) Generate(context.Context, synth.Request) (*store.Record, error) { return nil, s.err }
func (s stubSynth) Preview(context.Context, string, string) (assemble.Artifact, error) {
	return assemble.Artifact{}, s.err
}

func TestSynthErrorMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &synth.ValidationError{Problems: []string{"x"}}, http.StatusBadRequest},
		{"provider", &tts.ProviderError{Provider: "openai", StatusCode: 429}, http.StatusBadGateway},
		{"wrapped provider", fmt.Errorf("outer: %w", &tts.ProviderError{Provider: "openai", Err: tts.ErrNoAudio}), http.StatusBadGateway},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
		{"timeout", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(stubSynth{err: tt.err}, memory.New(), nil).Handler()
			for _, path := range []string{"/api/tts/generate", "/api/voices/preview"} {
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, httptest.NewRequest("POST", path, strings.NewReader(`{}`)))
				if rec.Code != tt.want {
					t.Errorf("%s: status = %d, want %d", path, rec.Code, tt.want)
				}
				if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
					t.Errorf("%s: content type = %q", path, ct)
				}
			}
		})
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Synthesizer{})
	if _, err := env.records.Create(context.Background(), store.NewRecord{Text: "queued", Language: "en-US", Voice: "v", Speed: 1}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/tts/1", http.StatusOK},
		{"/api/tts/99", http.StatusNotFound},
		{"/api/tts/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp := env.do(t, "GET", tt.path, "")
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s: status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}

	raw, _ := io.ReadAll(env.do(t, "GET", "/api/tts/1", "").Body)
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"audioUrl", "duration", "fileSize"} {
		if v, ok := fields[k]; !ok || v != nil {
			t.Errorf("pending record field %s = %v, want null", k, v)
		}
	}
	if fields["status"] != "pending" || fields["text"] != "queued" {
		t.Errorf("record = %s", raw)
	}
}

func TestAudio_RangeRequests(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Synthesizer{})
	payload := bytes.Repeat([]byte("0123456789"), 10)
	name, err := env.files.Save(payload, ".wav")
	if err != nil {
		t.Fatal(err)
	}
	path := "/api/audio/" + name

	full := env.do(t, "GET", path, "")
	if full.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", full.StatusCode)
	}
	for header, want := range map[string]string{
		"Accept-Ranges":  "bytes",
		"Cache-Control":  "public, max-age=31536000",
		"Content-Type":   "audio/wav",
		"Content-Length": "100",
	} {
		if got := full.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	partial := env.do(t, "GET", path, "", "Range", "bytes=10-19")
	body, _ := io.ReadAll(partial.Body)
	if partial.StatusCode != http.StatusPartialContent {
		t.Fatalf("range status = %d, want 206", partial.StatusCode)
	}
	if got := partial.Header.Get("Content-Range"); got != "bytes 10-19/100" {
		t.Errorf("Content-Range = %q", got)
	}
	if string(body) != "0123456789" {
		t.Errorf("range body = %q", body)
	}

	open := env.do(t, "GET", path, "", "Range", "bytes=95-")
	body, _ = io.ReadAll(open.Body)
	if open.StatusCode != http.StatusPartialContent || string(body) != "56789" {
		t.Errorf("open-ended range: status %d, body %q", open.StatusCode, body)
	}

	bad := env.do(t, "GET", path, "", "Range", "bytes=500-600")
	if bad.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("unsatisfiable range: status = %d, want 416", bad.StatusCode)
	}
}

func TestAudio_NotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Synthesizer{})
	for _, path := range []string{"/api/audio/missing.wav", "/api/audio/..%2F..%2Fetc%2Fpasswd"} {
		resp := env.do(t, "GET", path, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s: status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestVoicesAndLanguages(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Synthesizer{})

	voices := decode[[]tts.Voice](t, env.do(t, "GET", "/api/voices/en-US", ""))
	if len(voices) == 0 || voices[0].Name == "" {
		t.Errorf("en-US voices = %+v", voices)
	}

	raw, _ := io.ReadAll(env.do(t, "GET", "/api/voices/xx-XX", "").Body)
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Errorf("unknown language body = %s, want []", raw)
	}

	langs := decode[[]string](t, env.do(t, "GET", "/api/languages", ""))
	if len(langs) != len(tts.Languages()) {
		t.Errorf("languages = %v", langs)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &mock.Synthesizer{Fragments: [][]byte{make([]byte, 100)}})

	resp := env.do(t, "POST", "/api/voices/preview", `{"language":"es-ES","voice":"es-ES-Neural2-A"}`)
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}
	if resp.Header.Get("Content-Type") != "audio/wav" || len(data) != audio.WAVHeaderSize+100 {
		t.Errorf("content type %q, %d bytes", resp.Header.Get("Content-Type"), len(data))
	}
	if env.synth.Texts()[0] != tts.PreviewText("es-ES") {
		t.Errorf("preview text = %q", env.synth.Texts()[0])
	}

	missing := env.do(t, "POST", "/api/voices/preview", `{"language":"es-ES"}`)
	if missing.StatusCode != http.StatusBadRequest {
		t.Errorf("missing voice: status = %d, want 400", missing.StatusCode)
	}
}
