package model

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kokoro-tts/internal/wav"
)

const (
	// DefaultRuntimeTimeout bounds one synthesis run.
	DefaultRuntimeTimeout = 2 * time.Minute

	// maxOutputSize rejects runaway output (about 20 minutes of 24 kHz float audio).
	maxOutputSize = 128 * 1024 * 1024
)

// SubprocessRuntime synthesizes by running an external Kokoro program. The
// text is written to its stdin. It writes either a WAV file or raw
// little-endian float32 mono samples at SampleRate to stdout.
type SubprocessRuntime struct {
	Command    string
	Args       []string
	ModelPath  string
	SampleRate int
	Timeout    time.Duration

	fetcher *Fetcher
}

var _ Runtime = (*SubprocessRuntime)(nil)

// Generate runs the program once. The voice style vector is fetched first
// if it is not present yet.
func (r *SubprocessRuntime) Generate(ctx context.Context, text string, opts Options) (*Output, error) {
	args := append([]string{}, r.Args...)
	args = append(args,
		"--model", r.ModelPath,
		"--speed", strconv.FormatFloat(opts.Speed, 'f', 2, 64),
	)

	if r.fetcher != nil {
		paths, err := r.fetcher.Fetch(ctx, []string{VoiceAsset(opts.Voice)}, nil)
		if err != nil {
			return nil, fmt.Errorf("voice %s: %w", opts.Voice, err)
		}
		args = append(args, "--voice", paths[0])
	} else {
		args = append(args, "--voice", opts.Voice)
	}
	if opts.Language != "" {
		args = append(args, "--lang", opts.Language)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultRuntimeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(r.Command, args...) //nolint:gosec
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// children that outlive the runtime must not keep Wait blocked on the pipes
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.Command, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w, stderr: %s", r.Command, err, strings.TrimSpace(stderr.String()))
		}
	case <-ctx.Done():
		// ask politely, then kill
		_ = cmd.Process.Signal(os.Interrupt)
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
			_ = cmd.Process.Kill()
			<-done
		}
		return nil, fmt.Errorf("synthesis timeout after %s: %w", timeout, ctx.Err())
	}

	if stdout.Len() > maxOutputSize {
		return nil, fmt.Errorf("runtime output too large: %d bytes", stdout.Len())
	}

	return r.decode(stdout.Bytes(), stderr.String())
}

func (r *SubprocessRuntime) decode(out []byte, stderr string) (*Output, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("runtime produced no audio, stderr: %s", strings.TrimSpace(stderr))
	}

	if bytes.HasPrefix(out, []byte("RIFF")) {
		a, err := wav.Decode(out)
		if err != nil {
			return nil, fmt.Errorf("decode runtime output: %w", err)
		}
		mono, err := wav.ToMono(a.Data, a.Format())
		if err != nil {
			return nil, err
		}
		pcm := (&wav.Audio{Data: mono}).Samples()
		samples := make([]float32, len(pcm))
		for i, s := range pcm {
			samples[i] = wav.Dequantize(s)
		}
		return &Output{Samples: samples, SampleRate: a.SampleRate}, nil
	}

	if len(out)%4 != 0 {
		return nil, fmt.Errorf("runtime output is %d bytes, not whole float32 samples", len(out))
	}

	samples := make([]float32, len(out)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
	}

	rate := r.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &Output{Samples: samples, SampleRate: rate}, nil
}

// Close is a no-op; every run is its own process.
func (r *SubprocessRuntime) Close() error {
	return nil
}

// SubprocessLoader fetches the Kokoro weights and hands them to a
// SubprocessRuntime.
type SubprocessLoader struct {
	Fetcher *Fetcher
	Command string
	Args    []string
	Timeout time.Duration

	// Voice is fetched together with the weights so the first generation
	// does not wait on it.
	Voice string
}

var _ Loader = (*SubprocessLoader)(nil)

// Load implements Loader.
func (l *SubprocessLoader) Load(ctx context.Context, dtype Dtype, progress ProgressFunc) (Runtime, error) {
	if l.Command == "" {
		return nil, errors.New("no model runtime configured (set runtime.command)")
	}
	command, err := exec.LookPath(l.Command)
	if err != nil {
		return nil, fmt.Errorf("model runtime %q not found: %w", l.Command, err)
	}

	voice := l.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	paths, err := l.Fetcher.Fetch(ctx, []string{ModelAsset(dtype), VoiceAsset(voice)}, progress)
	if err != nil {
		return nil, err
	}

	log.Debug("Model assets ready", "weights", paths[0], "runtime", command)

	return &SubprocessRuntime{
		Command:   command,
		Args:      l.Args,
		ModelPath: paths[0],
		Timeout:   l.Timeout,
		fetcher:   l.Fetcher,
	}, nil
}
