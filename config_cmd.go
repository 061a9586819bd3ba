package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# generation mode: "service" posts to a Kokoro server, "model" runs locally
mode: "service"
# voice id (empty picks af_heart for the server and af_sky for the model)
voice: ""
# speaking speed, 0.25 to 4.0
speed: 1.0
# language code ("a" American English, "b" British English, ...)
language: "a"

# Kokoro server
apiEndpoint: "http://localhost:8000"
# bearer token, if the server wants one
apiKey: ""
# use the OpenAI compatible /v1/audio/speech route
useOpenAIFormat: false
# bound for each request (0 disables it)
timeout: "60s"
# requests per minute (0 disables limiting)
rateLimit: 60

# local model quantization: fp32, fp16, q8, q4 or q4f16
dtype: "q8"
runtime:
  # program that runs the Kokoro weights
  command: "kokoro-onnx"
  args: []
  # bound for one synthesis run
  timeout: "2m"

# where saved audio goes
outputDir: "."
cache:
  # reuse audio generated for the same request
  enabled: true
`

var printConfigPath bool

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the kokoro-tts config file",
	Long:    paragraph(fmt.Sprintf("\n%s the kokoro-tts config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("kokoro-tts config\nkokoro-tts config --config path/to/config.yml\nkokoro-tts config --path"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}
		if printConfigPath {
			fmt.Println(configFile)
			return nil
		}

		c, err := editor.Cmd("kokoro-tts", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&printConfigPath, "path", false, "print the config file path instead of editing it")
}

// ensureConfigFile writes the default config to configFile unless a file
// is already there. The file may hold an API key so it is private.
func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	if configFile == "" {
		return errors.New("no config file location")
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	_, err := os.Stat(configFile)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("unable to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return fmt.Errorf("unable create directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	log.Debug("Wrote default configuration", "path", configFile)
	return nil
}
