package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Format describes a raw 16-bit little-endian PCM stream.
type Format struct {
	SampleRate int // Hz
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // only 16 is supported
}

// DeviceFormat is the layout the audio device is opened with. Kokoro
// produces 24 kHz mono, so this avoids resampling in the common case.
func DeviceFormat() Format {
	return Format{SampleRate: 24000, Channels: 1, BitDepth: 16}
}

// BytesPerFrame returns the number of bytes for one sample across all channels.
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitDepth / 8
}

// Duration returns how long n bytes of PCM in this format play for.
func (f Format) Duration(n int) time.Duration {
	bpf := f.BytesPerFrame()
	if bpf <= 0 || f.SampleRate <= 0 {
		return 0
	}
	frames := n / bpf
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Validate checks that data is a whole number of frames in format f.
func (f Format) Validate(data []byte) error {
	if f.BitDepth != 16 {
		return fmt.Errorf("%w: %d-bit PCM", ErrUnsupportedFormat, f.BitDepth)
	}
	if f.Channels < 1 || f.SampleRate <= 0 {
		return fmt.Errorf("%w: %d channels at %d Hz", ErrUnsupportedFormat, f.Channels, f.SampleRate)
	}
	if len(data)%f.BytesPerFrame() != 0 {
		return fmt.Errorf("PCM data length %d is not aligned to %d-byte frames", len(data), f.BytesPerFrame())
	}
	return nil
}

// ToMono averages all channels of interleaved PCM into a single channel.
func ToMono(data []byte, f Format) ([]byte, error) {
	if err := f.Validate(data); err != nil {
		return nil, err
	}
	if f.Channels == 1 {
		return data, nil
	}

	frames := len(data) / f.BytesPerFrame()
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < f.Channels; ch++ {
			off := (i*f.Channels + ch) * 2
			sum += int(int16(binary.LittleEndian.Uint16(data[off:]))) //nolint:gosec
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(sum/f.Channels))) //nolint:gosec
	}
	return out, nil
}

// Resample converts mono 16-bit PCM between sample rates using linear
// interpolation.
func Resample(data []byte, from, to int) ([]byte, error) {
	if from <= 0 || to <= 0 {
		return nil, errors.New("sample rates must be positive")
	}
	if len(data)%2 != 0 {
		return nil, errors.New("PCM data length must be even")
	}
	if from == to || len(data) == 0 {
		return data, nil
	}

	in := make([]int16, len(data)/2)
	for i := range in {
		in[i] = int16(binary.LittleEndian.Uint16(data[i*2:])) //nolint:gosec
	}

	ratio := float64(to) / float64(from)
	n := int(float64(len(in)) * ratio)
	out := make([]byte, n*2)

	for i := 0; i < n; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		frac := pos - float64(idx)

		var v int16
		if idx >= len(in)-1 {
			v = in[len(in)-1]
		} else {
			v = int16(float64(in[idx])*(1-frac) + float64(in[idx+1])*frac)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v)) //nolint:gosec
	}

	return out, nil
}

// ForDevice decodes a WAV file and converts its PCM to the device format.
func ForDevice(b []byte, device Format) ([]byte, time.Duration, error) {
	a, err := Decode(b)
	if err != nil {
		return nil, 0, err
	}

	pcm, err := ToMono(a.Data[:len(a.Data)-len(a.Data)%a.Format().BytesPerFrame()], a.Format())
	if err != nil {
		return nil, 0, err
	}

	pcm, err = Resample(pcm, a.SampleRate, device.SampleRate)
	if err != nil {
		return nil, 0, err
	}

	return pcm, device.Duration(len(pcm)), nil
}
