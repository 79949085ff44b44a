package cli

import (
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:     "neodify",
	Short:   "Neodify agent orchestration daemon",
	Long:    "Neodify runs configured agents against LLM providers and streams sequenced run events to subscribers.",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default ~/.neodify/neodify.json)")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
