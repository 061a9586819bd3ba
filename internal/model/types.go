// Package model runs Kokoro speech synthesis locally. The model assets are
// fetched once per process and shared by every caller; synthesis itself is
// delegated to a Runtime.
package model

import (
	"fmt"
	"math"
	"strings"
)

const (
	// ModelID is the repository the assets are fetched from.
	ModelID = "onnx-community/Kokoro-82M-ONNX"

	// DefaultVoice is used when no voice is given.
	DefaultVoice = "af_sky"

	// DefaultSpeed is used when no speed is given.
	DefaultSpeed = 1.0

	// DefaultSampleRate is assumed unless the runtime reports its own.
	DefaultSampleRate = 24000
)

// State is the lifecycle of the local model.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Dtype is the quantization profile of the model weights.
type Dtype string

const (
	FP32  Dtype = "fp32"
	FP16  Dtype = "fp16"
	Q8    Dtype = "q8"
	Q4    Dtype = "q4"
	Q4F16 Dtype = "q4f16"

	DefaultDtype = Q8
)

// modelFiles maps each profile to its weight file in the repository.
var modelFiles = map[Dtype]string{
	FP32:  "model.onnx",
	FP16:  "model_fp16.onnx",
	Q8:    "model_quantized.onnx",
	Q4:    "model_q4.onnx",
	Q4F16: "model_q4f16.onnx",
}

// ParseDtype validates a quantization profile name. An empty string yields
// the default.
func ParseDtype(s string) (Dtype, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DefaultDtype, nil
	}
	d := Dtype(s)
	if _, ok := modelFiles[d]; !ok {
		return "", fmt.Errorf("unknown quantization profile %q (want fp32, fp16, q8, q4 or q4f16)", s)
	}
	return d, nil
}

// File returns the weight file name for the profile.
func (d Dtype) File() string {
	return modelFiles[d]
}

// Progress is reported while assets are fetched.
type Progress struct {
	Status string // "initiate", "progress" or "done"
	File   string
	Loaded int64
	Total  int64
}

// Percent returns loaded/total rounded to a whole percentage, or -1 when
// the total is unknown.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return -1
	}
	pct := int(math.Round(float64(p.Loaded) / float64(p.Total) * 100))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ProgressFunc receives load progress.
type ProgressFunc func(Progress)

// Options are the per-call synthesis parameters.
type Options struct {
	Voice    string
	Speed    float64
	Language string
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.Voice) == "" {
		o.Voice = DefaultVoice
	}
	if o.Speed <= 0 {
		o.Speed = DefaultSpeed
	}
	return o
}

// Output is raw synthesized audio.
type Output struct {
	Samples    []float32
	SampleRate int
}
