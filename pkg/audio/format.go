// Package audio describes the audio payloads produced by speech providers and
// implements the canonical 44-byte RIFF/WAVE container used to make raw PCM
// playable by standard decoders.
package audio

import (
	"errors"
	"fmt"
	"strings"
)

// Format describes the bytes a provider returns for one synthesized segment.
//
// A Format is either raw PCM (Encoded is false and SampleRate, Channels and
// BitDepth describe the interleaved little-endian samples) or already-encoded
// audio such as MP3 (Encoded is true and MIMEType names the container).
type Format struct {
	// Encoded reports whether fragments are a playable container on their own.
	Encoded bool

	// MIMEType is the content type of encoded fragments (e.g. "audio/mpeg").
	// Ignored for PCM, which is always served as "audio/wav".
	MIMEType string

	// SampleRate in Hz (e.g. 24000).
	SampleRate int

	// Channels: 1 for mono.
	Channels int

	// BitDepth is the number of bits per sample (16 for linear PCM).
	BitDepth int
}

// PCM24kMono16 is the raw sample layout returned by both Gemini and the
// OpenAI "pcm" response format.
var PCM24kMono16 = Format{SampleRate: 24000, Channels: 1, BitDepth: 16}

// MP3 is the encoded format used when a provider returns MPEG audio.
var MP3 = Format{Encoded: true, MIMEType: "audio/mpeg"}

// BytesPerSample returns the size of a single sample of one channel.
func (f Format) BytesPerSample() int { return f.BitDepth / 8 }

// BlockAlign returns the size in bytes of one frame (one sample per channel).
func (f Format) BlockAlign() int { return f.Channels * f.BytesPerSample() }

// ByteRate returns the number of PCM bytes per second of audio.
func (f Format) ByteRate() int { return f.SampleRate * f.BlockAlign() }

// ContentType returns the MIME type of an artifact built from this format.
func (f Format) ContentType() string {
	if f.Encoded {
		if f.MIMEType == "" {
			return "application/octet-stream"
		}
		return f.MIMEType
	}
	return "audio/wav"
}

// Extension returns the file extension (with leading dot) for artifacts built
// from this format.
func (f Format) Extension() string {
	if !f.Encoded {
		return ".wav"
	}
	switch f.MIMEType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/aac":
		return ".aac"
	case "audio/flac":
		return ".flac"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	default:
		return ".bin"
	}
}

// Validate reports whether a PCM format can be described by a WAV header.
// Encoded formats are always valid.
func (f Format) Validate() error {
	if f.Encoded {
		return nil
	}
	var errs []error
	if f.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate))
	}
	if f.Channels <= 0 {
		errs = append(errs, fmt.Errorf("audio: channel count must be positive, got %d", f.Channels))
	}
	if f.BitDepth <= 0 || f.BitDepth%8 != 0 {
		errs = append(errs, fmt.Errorf("audio: bit depth must be a positive multiple of 8, got %d", f.BitDepth))
	}
	return errors.Join(errs...)
}

// ContentTypeForExtension returns the MIME type for a stored artifact file
// extension such as ".wav" or ".mp3". Unknown extensions map to
// "application/octet-stream".
func ContentTypeForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case ".aac":
		return "audio/aac"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
