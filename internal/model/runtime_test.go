package model

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/kokoro-tts/internal/wav"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "kokoro-runtime")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil { //nolint:gosec
		t.Fatal(err)
	}
	return path
}

func TestSubprocessRuntime_RawFloat(t *testing.T) {
	// 0.5 as little-endian float32 is 00 00 00 3f
	script := writeScript(t, "cat >/dev/null\nprintf '\\000\\000\\000\\077'\n")

	r := &SubprocessRuntime{Command: script, ModelPath: "model.onnx"}
	out, err := r.Generate(context.Background(), "hello", Options{Voice: "af_sky", Speed: 1})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(out.Samples) != 1 || out.Samples[0] != 0.5 {
		t.Errorf("samples = %v, want [0.5]", out.Samples)
	}
	if out.SampleRate != DefaultSampleRate {
		t.Errorf("rate = %d, want %d", out.SampleRate, DefaultSampleRate)
	}
}

func TestSubprocessRuntime_PassesArguments(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	textFile := filepath.Join(dir, "text")
	script := writeScript(t, "echo \"$@\" > "+argsFile+"\ncat > "+textFile+"\nprintf '\\000\\000\\000\\000'\n")

	r := &SubprocessRuntime{Command: script, Args: []string{"--quiet"}, ModelPath: "/m.onnx"}
	if _, err := r.Generate(context.Background(), "read me", Options{Voice: "bf_emma", Speed: 1.5, Language: "b"}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	args, _ := os.ReadFile(argsFile)
	want := "--quiet --model /m.onnx --speed 1.50 --voice bf_emma --lang b"
	if got := strings.TrimSpace(string(args)); got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
	text, _ := os.ReadFile(textFile)
	if string(text) != "read me" {
		t.Errorf("stdin = %q", text)
	}
}

func TestSubprocessRuntime_Failure(t *testing.T) {
	script := writeScript(t, "echo 'no such voice' >&2\nexit 3\n")

	r := &SubprocessRuntime{Command: script}
	_, err := r.Generate(context.Background(), "x", Options{Voice: "af_sky", Speed: 1})
	if err == nil || !strings.Contains(err.Error(), "no such voice") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestSubprocessRuntime_Timeout(t *testing.T) {
	script := writeScript(t, "exec sleep 5\n")

	r := &SubprocessRuntime{Command: script, Timeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := r.Generate(context.Background(), "x", Options{Voice: "af_sky", Speed: 1})
	if err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout error, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("runtime was not stopped")
	}
}

func TestSubprocessRuntime_DecodeWAV(t *testing.T) {
	b, _ := wav.Encode([]float32{0.5, -0.5}, 22050)

	out, err := (&SubprocessRuntime{}).decode(b, "")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.SampleRate != 22050 {
		t.Errorf("rate = %d, want 22050", out.SampleRate)
	}
	if len(out.Samples) != 2 || math.Abs(float64(out.Samples[0])-0.5) > 0.001 {
		t.Errorf("samples = %v", out.Samples)
	}
}

func TestSubprocessRuntime_DecodeWAVKeepsAmplitude(t *testing.T) {
	pcm := []int16{100, 16384, -100, 32767, -32767, 1, -1}

	b, _ := wav.Encode(make([]float32, len(pcm)), 24000)
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(b[wav.HeaderSize+i*2:], uint16(v)) //nolint:gosec
	}

	out, err := (&SubprocessRuntime{}).decode(b, "")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	again, err := wav.Encode(out.Samples, out.SampleRate)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(again, b) {
		t.Errorf("re-encoded runtime WAV differs:\n got %v\nwant %v", again[wav.HeaderSize:], b[wav.HeaderSize:])
	}
}

func TestSubprocessRuntime_DecodeRejectsPartialFloat(t *testing.T) {
	raw := make([]byte, 6)
	binary.LittleEndian.PutUint32(raw, math.Float32bits(0.25))
	if _, err := (&SubprocessRuntime{}).decode(raw, ""); err == nil {
		t.Error("expected error for misaligned output")
	}
}

func TestSubprocessLoader_MissingCommand(t *testing.T) {
	l := &SubprocessLoader{Fetcher: NewFetcher(t.TempDir()), Command: "definitely-not-a-kokoro-binary"}
	if _, err := l.Load(context.Background(), Q8, nil); err == nil {
		t.Error("expected error for missing runtime command")
	}

	l.Command = ""
	if _, err := l.Load(context.Background(), Q8, nil); err == nil {
		t.Error("expected error for unset runtime command")
	}
}
