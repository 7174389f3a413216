package main

import (
	"github.com/spf13/cobra"

	"github.com/storymill/storymill/version"
)

var (
	cfgFile string
	homeDir string
)

var rootCmd = &cobra.Command{
	Use:   "storymill",
	Short: "Narrated story pipeline with LLM scripts, speech synthesis, and media assets",
	Long: `Storymill turns a topic into a packaged, narrated audio story.

The pipeline includes:
  - Chapter script generation with schema-validated structured output
  - Narration synthesis with per-speaker line joining
  - Background music, sound effects, and chapter imagery
  - Batch queue processing and zip packaging with an assembly script`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.storymill/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "storymill home directory (default: ~/.storymill)",
	)

	rootCmd.AddCommand(versionCmd)
}
