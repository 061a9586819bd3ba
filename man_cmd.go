package main

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generates manpages",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Hidden:                true,
	Args:                  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		page, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return err
		}

		page = page.WithSection("Files", "Settings are read from kokoro-tts.yml in the user config directory, "+
			"or from $KOKORO_TTS_CONFIG_HOME when it is set. Every setting can be overridden with a "+
			"KOKORO_TTS_ prefixed environment variable.")
		page = page.WithSection("Copyright", "(C) 2025 dgnsrekt.\nReleased under MIT license.")
		fmt.Println(page.Build(roff.NewDocument()))
		return nil
	},
}
