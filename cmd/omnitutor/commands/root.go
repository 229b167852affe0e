package commands

import (
	"github.com/spf13/cobra"
)

// Global flags.
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "omnitutor",
	Short: "AI tutoring gateway",
	Long: `omnitutor - an AI tutoring gateway.

It routes chat questions to subject-specialist agents, analyzes
uploaded files, answers with live web search, transcribes voice
recordings, and runs realtime duplex voice sessions over WebSocket.

Examples:
  # Run with the defaults and OPENAI_API_KEY from the environment
  omnitutor serve

  # Run with a config file
  omnitutor serve --config /etc/omnitutor/omnitutor.yaml`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
