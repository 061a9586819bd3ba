// Package utils provides small helpers shared by the commands.
package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// ExpandPath expands tilde and all environment variables from the given
// path.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return os.ExpandEnv(path)
}

// OutputPath resolves where a WAV file should be written. A directory (or
// a path ending in a separator) gets name appended.
func OutputPath(target, name string) string {
	target = ExpandPath(target)
	if target == "" {
		return name
	}
	if strings.HasSuffix(target, string(filepath.Separator)) {
		return filepath.Join(target, name)
	}
	if st, err := os.Stat(target); err == nil && st.IsDir() {
		return filepath.Join(target, name)
	}
	return target
}
