package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"
)

// DefaultHubURL is the model hub assets are downloaded from.
const DefaultHubURL = "https://huggingface.co"

// Fetcher downloads model assets into a local directory, skipping files
// that are already present.
type Fetcher struct {
	HubURL string
	Repo   string
	Dir    string
	HTTP   *http.Client
}

// DefaultAssetDir returns the per-user directory model assets are kept in.
func DefaultAssetDir() (string, error) {
	dir, err := gap.NewScope(gap.User, "kokoro-tts").CacheDir()
	if err != nil {
		return "", fmt.Errorf("could not find cache directory: %w", err)
	}
	return filepath.Join(dir, "models"), nil
}

// NewFetcher returns a Fetcher for the Kokoro repository storing into dir.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{
		HubURL: DefaultHubURL,
		Repo:   ModelID,
		Dir:    dir,
		HTTP:   http.DefaultClient,
	}
}

// ModelAsset returns the repository path of the weights for dtype.
func ModelAsset(dtype Dtype) string {
	return path.Join("onnx", dtype.File())
}

// VoiceAsset returns the repository path of a voice style vector.
func VoiceAsset(voice string) string {
	return path.Join("voices", voice+".bin")
}

// LocalPath returns where a repository file is stored.
func (f *Fetcher) LocalPath(file string) string {
	return filepath.Join(f.Dir, filepath.FromSlash(f.Repo), filepath.FromSlash(file))
}

func (f *Fetcher) url(file string) string {
	return strings.TrimRight(f.HubURL, "/") + "/" + f.Repo + "/resolve/main/" + file
}

// Fetch makes sure every file is present locally and returns their paths.
// Progress is reported across all missing files together.
func (f *Fetcher) Fetch(ctx context.Context, files []string, progress ProgressFunc) ([]string, error) {
	if progress == nil {
		progress = func(Progress) {}
	}

	paths := make([]string, len(files))
	var missing []string
	for i, file := range files {
		paths[i] = f.LocalPath(file)
		if st, err := os.Stat(paths[i]); err == nil && st.Size() > 0 {
			continue
		}
		missing = append(missing, file)
	}

	if len(missing) == 0 {
		progress(Progress{Status: "done", Loaded: 1, Total: 1})
		return paths, nil
	}

	sizes := make(map[string]int64, len(missing))
	var total int64
	for _, file := range missing {
		size := f.size(ctx, file)
		sizes[file] = size
		if size > 0 {
			total += size
		}
	}

	var loaded int64
	for _, file := range missing {
		progress(Progress{Status: "initiate", File: file, Loaded: loaded, Total: total})

		n, err := f.download(ctx, file, func(delta int64) {
			loaded += delta
			t := total
			if loaded > t {
				t = loaded
			}
			progress(Progress{Status: "progress", File: file, Loaded: loaded, Total: t})
		})
		if err != nil {
			return nil, err
		}
		if sizes[file] <= 0 {
			total += n
		}

		log.Info("Downloaded model asset", "file", file, "size", humanize.Bytes(uint64(n))) //nolint:gosec
	}

	progress(Progress{Status: "done", Loaded: total, Total: total})
	return paths, nil
}

// size asks the hub for the length of file, or -1 when unknown.
func (f *Fetcher) size(ctx context.Context, file string) int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.url(file), nil)
	if err != nil {
		return -1
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return -1
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return -1
	}
	return resp.ContentLength
}

func (f *Fetcher) download(ctx context.Context, file string, onRead func(int64)) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url(file), nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", file, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch %s: %s", file, resp.Status)
	}

	dst := f.LocalPath(file)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil { //nolint:gosec
		return 0, fmt.Errorf("create asset directory: %w", err)
	}

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmp, err)
	}

	n, err := io.Copy(out, &countingReader{r: resp.Body, onRead: onRead})
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n == 0 {
		err = errors.New("empty response")
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("download %s: %w", file, err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		return 0, fmt.Errorf("store %s: %w", file, err)
	}
	return n, nil
}

// countingReader reports every read to onRead.
type countingReader struct {
	r      io.Reader
	onRead func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.onRead(int64(n))
	}
	return n, err
}
