package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotWAV is returned when the input does not start with a RIFF/WAVE header.
	ErrNotWAV = errors.New("not a RIFF/WAVE file")

	// ErrUnsupportedFormat is returned for non-PCM or non-16-bit audio.
	ErrUnsupportedFormat = errors.New("unsupported WAV format")
)

// Audio is a decoded PCM WAV file.
type Audio struct {
	SampleRate    int
	Channels      int
	BitsPerSample int

	// Data holds the raw little-endian PCM payload of the data chunk.
	Data []byte
}

// Format returns the PCM layout of the decoded audio.
func (a *Audio) Format() Format {
	return Format{SampleRate: a.SampleRate, Channels: a.Channels, BitDepth: a.BitsPerSample}
}

// Samples returns the data chunk as int16 values.
func (a *Audio) Samples() []int16 {
	out := make([]int16, len(a.Data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(a.Data[i*2:])) //nolint:gosec
	}
	return out
}

// Duration returns the playback length of the audio.
func (a *Audio) Duration() time.Duration {
	return a.Format().Duration(len(a.Data))
}

// Decode parses a PCM WAV file. Chunks other than "fmt " and "data" are
// skipped, so files written by other encoders (with LIST chunks and the
// like) decode as well.
func Decode(b []byte) (*Audio, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		a      Audio
		gotFmt bool
	)

	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(b) || end < body {
			// Streaming encoders write 0xFFFFFFFF as the data size.
			if id == "data" {
				end = len(b)
			} else {
				return nil, fmt.Errorf("truncated %q chunk", id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("short fmt chunk: %d bytes", size)
			}
			le := binary.LittleEndian
			if tag := le.Uint16(b[body:]); tag != formatPCM {
				return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, tag)
			}
			a.Channels = int(le.Uint16(b[body+2:]))
			a.SampleRate = int(le.Uint32(b[body+4:]))
			a.BitsPerSample = int(le.Uint16(b[body+14:]))
			if a.Channels < 1 || a.SampleRate <= 0 {
				return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedFormat, a.Channels, a.SampleRate)
			}
			gotFmt = true
		case "data":
			if !gotFmt {
				return nil, errors.New("data chunk before fmt chunk")
			}
			a.Data = b[body:end]
			if a.BitsPerSample != bitsPerSample {
				return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, a.BitsPerSample)
			}
			return &a, nil
		}

		// chunks are padded to an even size
		pos = end + size%2
	}

	return nil, errors.New("missing data chunk")
}
