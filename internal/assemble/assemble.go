// Package assemble joins the ordered audio fragments of a synthesis job into
// one playable artifact.
//
// Raw PCM fragments are concatenated and wrapped in a single RIFF/WAVE
// header; encoded fragments (e.g. MP3 frames) are concatenated as-is.
// Durations are estimates, not measurements: PCM durations are derived from
// the byte count and sample layout, encoded durations from the word count of
// the source text at a fixed speaking rate. Nothing is decoded.
package assemble

import (
	"errors"
	"math"
	"strings"

	"github.com/MrWong99/narrator/pkg/audio"
)

// WordsPerMinute is the speaking rate assumed for encoded audio, whose sample
// layout is unknown.
const WordsPerMinute = 150

// ErrNoFragments is returned when there is nothing to assemble.
var ErrNoFragments = errors.New("assemble: no fragments")

// Artifact is the final audio object of a job.
type Artifact struct {
	// Data is the complete playable file.
	Data []byte

	// Format is the fragment format the artifact was built from.
	Format audio.Format

	// DurationSeconds is the estimated playback length.
	DurationSeconds float64
}

// Size returns the artifact size in bytes.
func (a Artifact) Size() int { return len(a.Data) }

// ContentType returns the MIME type to serve the artifact with.
func (a Artifact) ContentType() string { return a.Format.ContentType() }

// Extension returns the file extension, including the leading dot.
func (a Artifact) Extension() string { return a.Format.Extension() }

// Assemble concatenates fragments in the given order. For PCM formats a
// single 44-byte WAV header describing the total payload is prepended; the
// result is exactly len(header) + sum(len(fragment)) bytes. text is the
// source text and is only used for the encoded-audio duration estimate.
func Assemble(fragments [][]byte, format audio.Format, text string) (Artifact, error) {
	if len(fragments) == 0 {
		return Artifact{}, ErrNoFragments
	}

	total := 0
	for _, f := range fragments {
		total += len(f)
	}

	if format.Encoded {
		data := make([]byte, 0, total)
		for _, f := range fragments {
			data = append(data, f...)
		}
		return Artifact{
			Data:            data,
			Format:          format,
			DurationSeconds: SpokenDuration(text),
		}, nil
	}

	data, err := audio.EncodeWAV(format, fragments...)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		Data:            data,
		Format:          format,
		DurationSeconds: PCMDuration(total, format),
	}, nil
}

// PCMDuration estimates the playback time of dataLen bytes of PCM as
// dataLen / (sampleRate * channels * bytesPerSample).
func PCMDuration(dataLen int, format audio.Format) float64 {
	rate := format.ByteRate()
	if rate <= 0 {
		return 0
	}
	return float64(dataLen) / float64(rate)
}

// SpokenDuration estimates the playback time of text read aloud at
// [WordsPerMinute], rounded up to whole seconds.
func SpokenDuration(text string) float64 {
	words := len(strings.Fields(text))
	return math.Ceil(float64(words) / WordsPerMinute * 60)
}
