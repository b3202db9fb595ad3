package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "patchloop",
	Short: "Autonomous coding agent loop for a local project",
	Long: `patchloop observes a project through its import graph, asks a language
model for one step at a time (read a file, write a file, run a command),
executes it, and repeats until the model reports the goal is done.

Running 'patchloop' without a subcommand is equivalent to 'patchloop run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: run the 'run' command
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(observeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)

	// Root accepts the run flags so the default command behaves like 'run'
	addRunFlags(rootCmd)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to patchloop.json config file (default: search up directory tree)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
