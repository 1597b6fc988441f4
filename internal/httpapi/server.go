// Package httpapi exposes the synthesis service over HTTP.
//
// Routes:
//
//	POST /api/tts/generate        run a job, respond with its artifact metadata
//	GET  /api/tts/{id}            fetch a job record
//	GET  /api/audio/{filename}    stream a stored artifact (range capable)
//	GET  /api/voices/{language}   list catalog voices for a language
//	GET  /api/languages           list languages with catalog voices
//	POST /api/voices/preview      synthesize a short sample in a voice
//
// Errors are JSON objects of the form {"error": "...", "details": [...]}.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/MrWong99/narrator/internal/assemble"
	"github.com/MrWong99/narrator/internal/audiofile"
	"github.com/MrWong99/narrator/internal/observe"
	"github.com/MrWong99/narrator/internal/synth"
	"github.com/MrWong99/narrator/pkg/audio"
	"github.com/MrWong99/narrator/pkg/provider/tts"
	"github.com/MrWong99/narrator/pkg/store"
)

// maxBodyBytes bounds request bodies. 50,000 characters of escaped JSON fit
// comfortably.
const maxBodyBytes = 1 << 20

// audioCacheControl is sent with stored artifacts, which never change.
const audioCacheControl = "public, max-age=31536000"

// Synthesizer runs jobs and previews. [synth.Service] implements it.
type Synthesizer interface {
	Generate(ctx context.Context, req synth.Request) (*store.Record, error)
	Preview(ctx context.Context, language, voice string) (assemble.Artifact, error)
}

// RecordReader looks up job records. Every [store.Store] implements it.
type RecordReader interface {
	Get(ctx context.Context, id int64) (*store.Record, error)
}

// FileOpener opens stored artifacts. [audiofile.Dir] implements it.
type FileOpener interface {
	Open(name string) (*os.File, fs.FileInfo, error)
}

// Server holds the HTTP handlers.
type Server struct {
	synth   Synthesizer
	records RecordReader
	files   FileOpener
}

// New returns a Server backed by the given collaborators.
func New(s Synthesizer, records RecordReader, files FileOpener) *Server {
	return &Server{synth: s, records: records, files: files}
}

// Register adds all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tts/generate", s.handleGenerate)
	mux.HandleFunc("GET /api/tts/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/audio/{filename}", s.handleAudio)
	mux.HandleFunc("GET /api/voices/{language}", s.handleVoices)
	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	mux.HandleFunc("POST /api/voices/preview", s.handlePreview)
}

// Handler returns a ServeMux with all API routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type generateRequest struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Voice    string   `json:"voice"`
	Speed    *float64 `json:"speed"`
	Pitch    *float64 `json:"pitch"`
}

type generateResponse struct {
	ID       int64   `json:"id"`
	AudioURL string  `json:"audioUrl"`
	Duration float64 `json:"duration"`
	FileSize int64   `json:"fileSize"`
}

type previewRequest struct {
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	req := synth.Request{
		Text:     body.Text,
		Language: body.Language,
		Voice:    body.Voice,
		Speed:    1.0,
	}
	if body.Speed != nil {
		req.Speed = *body.Speed
	}
	if body.Pitch != nil {
		req.Pitch = *body.Pitch
	}

	rec, err := s.synth.Generate(r.Context(), req)
	if err != nil {
		writeSynthError(w, r, err, "failed to generate speech")
		return
	}

	resp := generateResponse{ID: rec.ID}
	if rec.AudioURL != nil {
		resp.AudioURL = *rec.AudioURL
	}
	if rec.Duration != nil {
		resp.Duration = *rec.Duration
	}
	if rec.FileSize != nil {
		resp.FileSize = *rec.FileSize
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	rec, err := s.records.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "TTS request not found")
		return
	}
	if err != nil {
		observe.Logger(r.Context()).Error("fetch record", slog.Int64("request_id", id), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to fetch TTS request")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	f, info, err := s.files.Open(r.PathValue("filename"))
	if errors.Is(err, audiofile.ErrNotFound) {
		writeError(w, http.StatusNotFound, "audio file not found")
		return
	}
	if err != nil {
		observe.Logger(r.Context()).Error("open audio", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "failed to serve audio file")
		return
	}
	defer f.Close()

	h := w.Header()
	h.Set("Content-Type", audio.ContentTypeForExtension(filepath.Ext(info.Name())))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", audioCacheControl)
	// ServeContent answers Range requests with 206 and unsatisfiable ones
	// with 416.
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tts.Voices(r.PathValue("language")))
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, tts.Languages())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var body previewRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	art, err := s.synth.Preview(r.Context(), body.Language, body.Voice)
	if err != nil {
		writeSynthError(w, r, err, "failed to generate voice preview")
		return
	}

	h := w.Header()
	h.Set("Content-Type", art.ContentType())
	h.Set("Content-Length", strconv.Itoa(art.Size()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}

// decodeJSON reads a bounded JSON body into v. On failure it writes the error
// response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Details: []string{err.Error()}})
	return false
}

// writeSynthError maps pipeline errors onto status codes: validation problems
// are the client's fault, provider failures are a bad gateway, anything else
// is internal.
func writeSynthError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	var (
		ve *synth.ValidationError
		pe *tts.ProviderError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation error", Details: ve.Problems})
	case errors.As(err, &pe):
		observe.Logger(r.Context()).Warn(msg, slog.Any("err", err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: msg, Details: []string{pe.Error()}})
	default:
		observe.Logger(r.Context()).Error(msg, slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
