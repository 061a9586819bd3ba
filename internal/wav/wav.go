// Package wav encodes and decodes the mono 16-bit PCM WAV containers that
// carry generated speech between the backends, the artifact store and the
// audio device.
package wav

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// HeaderSize is the size of the canonical RIFF/WAVE header written by Encode.
const HeaderSize = 44

const (
	formatPCM     = 1
	channelsMono  = 1
	bitsPerSample = 16
	maxAmplitude  = 32767
)

// EncodingError is returned when a sample buffer cannot be turned into a WAV
// container.
type EncodingError struct {
	Reason string
}

func (e *EncodingError) Error() string {
	return "wav encoding failed: " + e.Reason
}

// Encode converts mono float samples into a canonical 44-byte header WAV
// file. Samples are clamped to [-1, 1], scaled by 32767 and truncated.
func Encode(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, &EncodingError{Reason: "no samples"}
	}
	if sampleRate <= 0 {
		return nil, &EncodingError{Reason: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}

	dataSize := uint32(len(samples) * 2) //nolint:gosec
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+int(dataSize)))

	writeHeader(buf, uint32(sampleRate), dataSize) //nolint:gosec

	pcm := make([]byte, 2)
	for _, s := range samples {
		binary.LittleEndian.PutUint16(pcm, uint16(Quantize(s))) //nolint:gosec
		buf.Write(pcm)
	}

	return buf.Bytes(), nil
}

// Quantize maps one float sample to the int16 value Encode writes for it.
// NaN is silence.
func Quantize(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(v * maxAmplitude)
}

// Dequantize maps a 16-bit PCM value to the float sample that Quantize
// turns back into the same value. The half step keeps truncation from
// losing a unit; -32768 has no float source and comes back as -32767.
func Dequantize(v int16) float32 {
	switch {
	case v > 0:
		return float32((float64(v) + 0.5) / maxAmplitude)
	case v < 0:
		return float32((float64(v) - 0.5) / maxAmplitude)
	}
	return 0
}

func writeHeader(buf *bytes.Buffer, sampleRate, dataSize uint32) {
	le := binary.LittleEndian

	buf.WriteString("RIFF")
	_ = binary.Write(buf, le, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, le, uint32(16))
	_ = binary.Write(buf, le, uint16(formatPCM))
	_ = binary.Write(buf, le, uint16(channelsMono))
	_ = binary.Write(buf, le, sampleRate)
	_ = binary.Write(buf, le, sampleRate*channelsMono*bitsPerSample/8)
	_ = binary.Write(buf, le, uint16(channelsMono*bitsPerSample/8))
	_ = binary.Write(buf, le, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, le, dataSize)
}
