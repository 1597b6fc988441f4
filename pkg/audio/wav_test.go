package audio_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/MrWong99/narrator/pkg/audio"
)

func TestWAVHeader_Layout(t *testing.T) {
	t.Parallel()
	h, err := audio.WAVHeader(audio.PCM24kMono16, 1000)
	if err != nil {
		t.Fatalf("WAVHeader: %v", err)
	}
	if len(h) != audio.WAVHeaderSize {
		t.Fatalf("header length: got %d, want %d", len(h), audio.WAVHeaderSize)
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"chunk id", string(h[0:4]), "RIFF"},
		{"riff size", le.Uint32(h[4:8]), uint32(36 + 1000)},
		{"format", string(h[8:12]), "WAVE"},
		{"fmt id", string(h[12:16]), "fmt "},
		{"fmt size", le.Uint32(h[16:20]), uint32(16)},
		{"audio format", le.Uint16(h[20:22]), uint16(1)},
		{"channels", le.Uint16(h[22:24]), uint16(1)},
		{"sample rate", le.Uint32(h[24:28]), uint32(24000)},
		{"byte rate", le.Uint32(h[28:32]), uint32(48000)},
		{"block align", le.Uint16(h[32:34]), uint16(2)},
		{"bits per sample", le.Uint16(h[34:36]), uint16(16)},
		{"data id", string(h[36:40]), "data"},
		{"data size", le.Uint32(h[40:44]), uint32(1000)},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestWAVHeader_RejectsEncoded(t *testing.T) {
	t.Parallel()
	if _, err := audio.WAVHeader(audio.MP3, 10); err == nil {
		t.Fatal("expected error for encoded format")
	}
}

func TestWAVHeader_RejectsInvalidFormat(t *testing.T) {
	t.Parallel()
	bad := []audio.Format{
		{SampleRate: 0, Channels: 1, BitDepth: 16},
		{SampleRate: 24000, Channels: 0, BitDepth: 16},
		{SampleRate: 24000, Channels: 1, BitDepth: 12},
	}
	for _, f := range bad {
		if _, err := audio.WAVHeader(f, 10); err == nil {
			t.Errorf("WAVHeader(%+v): expected error", f)
		}
	}
}

func TestEncodeWAV_ParseRoundTrip(t *testing.T) {
	t.Parallel()
	pcm := []byte{1, 2, 3, 4, 5, 6}
	stereo := audio.Format{SampleRate: 16000, Channels: 2, BitDepth: 16}

	wav, err := audio.EncodeWAV(stereo, pcm)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(wav) != audio.WAVHeaderSize+len(pcm) {
		t.Fatalf("length: got %d, want %d", len(wav), audio.WAVHeaderSize+len(pcm))
	}

	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.Format != stereo {
		t.Errorf("format: got %+v, want %+v", info.Format, stereo)
	}
	if info.DataOffset != audio.WAVHeaderSize {
		t.Errorf("data offset: got %d, want %d", info.DataOffset, audio.WAVHeaderSize)
	}
	if !bytes.Equal(wav[info.DataOffset:], pcm) {
		t.Errorf("payload mismatch")
	}
}

func TestEncodeWAV_ConcatenatesFragments(t *testing.T) {
	t.Parallel()
	wav, err := audio.EncodeWAV(audio.PCM24kMono16, []byte{1, 2}, nil, []byte{3, 4, 5, 6})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.DataSize != 6 || !bytes.Equal(wav[info.DataOffset:], []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("data size %d, payload %v", info.DataSize, wav[info.DataOffset:])
	}
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()
	wav, _ := audio.EncodeWAV(audio.PCM24kMono16, []byte{9, 9})

	// Insert an odd-sized LIST chunk between fmt and data.
	var buf bytes.Buffer
	buf.Write(wav[:36])
	buf.WriteString("LIST")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0}) // 3 bytes + pad
	buf.Write(wav[36:])

	info, err := audio.ParseWAV(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.DataSize != 2 {
		t.Errorf("data size: got %d, want 2", info.DataSize)
	}
	if got := buf.Bytes()[info.DataOffset:]; !bytes.Equal(got, []byte{9, 9}) {
		t.Errorf("payload: got %v", got)
	}
}

func TestParseWAV_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []byte
	}{
		{"short", []byte("RIFF")},
		{"not riff", append([]byte("RIFX\x00\x00\x00\x00WAVE"), make([]byte, 32)...)},
		{"not wave", append([]byte("RIFF\x00\x00\x00\x00AVI "), make([]byte, 32)...)},
		{"no data", []byte("RIFF\x04\x00\x00\x00WAVE")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := audio.ParseWAV(tt.in); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFormat_ContentTypeAndExtension(t *testing.T) {
	t.Parallel()
	tests := []struct {
		f        audio.Format
		wantType string
		wantExt  string
	}{
		{audio.PCM24kMono16, "audio/wav", ".wav"},
		{audio.MP3, "audio/mpeg", ".mp3"},
		{audio.Format{Encoded: true, MIMEType: "audio/opus"}, "audio/opus", ".ogg"},
		{audio.Format{Encoded: true}, "application/octet-stream", ".bin"},
	}
	for _, tt := range tests {
		if got := tt.f.ContentType(); got != tt.wantType {
			t.Errorf("%+v ContentType: got %q, want %q", tt.f, got, tt.wantType)
		}
		if got := tt.f.Extension(); got != tt.wantExt {
			t.Errorf("%+v Extension: got %q, want %q", tt.f, got, tt.wantExt)
		}
	}
}

func TestContentTypeForExtension(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		".wav":  "audio/wav",
		".WAV":  "audio/wav",
		".mp3":  "audio/mpeg",
		".flac": "audio/flac",
		".bin":  "application/octet-stream",
		"":      "application/octet-stream",
	}
	for ext, want := range tests {
		if got := audio.ContentTypeForExtension(ext); got != want {
			t.Errorf("ContentTypeForExtension(%q) = %q, want %q", ext, got, want)
		}
	}
}
