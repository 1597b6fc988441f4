package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// WAVHeaderSize is the size of the canonical RIFF/WAVE header written by
// [WAVHeader]: a 12-byte RIFF descriptor, a 24-byte "fmt " chunk and the
// 8-byte "data" chunk preamble.
const WAVHeaderSize = 44

// WAVHeader returns the canonical 44-byte header describing dataSize bytes of
// PCM in format f. All integers are little-endian.
func WAVHeader(f Format, dataSize int) ([]byte, error) {
	if f.Encoded {
		return nil, errors.New("audio: WAV header requires a PCM format")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if dataSize < 0 || uint64(dataSize) > uint64(^uint32(0))-36 {
		return nil, fmt.Errorf("audio: data size %d does not fit a RIFF container", dataSize)
	}

	le := binary.LittleEndian
	h := make([]byte, WAVHeaderSize)

	// RIFF chunk descriptor.
	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], uint32(36+dataSize))
	copy(h[8:12], "WAVE")

	// fmt sub-chunk.
	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], 16)
	le.PutUint16(h[20:22], 1) // linear PCM
	le.PutUint16(h[22:24], uint16(f.Channels))
	le.PutUint32(h[24:28], uint32(f.SampleRate))
	le.PutUint32(h[28:32], uint32(f.ByteRate()))
	le.PutUint16(h[32:34], uint16(f.BlockAlign()))
	le.PutUint16(h[34:36], uint16(f.BitDepth))

	// data sub-chunk.
	copy(h[36:40], "data")
	le.PutUint32(h[40:44], uint32(dataSize))
	return h, nil
}

// EncodeWAV writes a single header followed by the PCM fragments in order and
// returns the playable file.
func EncodeWAV(f Format, fragments ...[]byte) ([]byte, error) {
	total := 0
	for _, frag := range fragments {
		total += len(frag)
	}
	h, err := WAVHeader(f, total)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(h)+total)
	out = append(out, h...)
	for _, frag := range fragments {
		out = append(out, frag...)
	}
	return out, nil
}

// WAVInfo is the result of [ParseWAV].
type WAVInfo struct {
	Format Format

	// DataOffset is the byte offset of the first PCM sample.
	DataOffset int

	// DataSize is the value of the "data" chunk size field.
	DataSize int
}

// ParseWAV walks the RIFF chunks of wav and returns the PCM layout and the
// location of the sample data. Chunks other than "fmt " and "data" are skipped.
func ParseWAV(wav []byte) (WAVInfo, error) {
	if len(wav) < 12 {
		return WAVInfo{}, errors.New("audio: too short to be a RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return WAVInfo{}, errors.New("audio: missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("audio: missing WAVE identifier")
	}

	le := binary.LittleEndian
	var info WAVInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(le.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || offset+8+16 > len(wav) {
				return WAVInfo{}, errors.New("audio: truncated fmt chunk")
			}
			fmtData := wav[offset+8:]
			if code := le.Uint16(fmtData[0:2]); code != 1 {
				return WAVInfo{}, fmt.Errorf("audio: unsupported format code %d", code)
			}
			info.Format.Channels = int(le.Uint16(fmtData[2:4]))
			info.Format.SampleRate = int(le.Uint32(fmtData[4:8]))
			info.Format.BitDepth = int(le.Uint16(fmtData[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return WAVInfo{}, errors.New("audio: data chunk before fmt chunk")
			}
			info.DataOffset = offset + 8
			info.DataSize = chunkSize
			return info, nil
		}

		// Chunks are word-aligned.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, errors.New("audio: missing data chunk")
}
