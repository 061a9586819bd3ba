//go:build nocgo

package audio

import "github.com/dgnsrekt/kokoro-tts/internal/wav"

// NewDevicePlayer reports that this build has no audio output. Generated
// audio can still be written to files.
func NewDevicePlayer(wav.Format) (Player, error) {
	return nil, ErrNoDevice
}
