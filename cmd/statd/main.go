package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/libstat/cmd/statd/commands"
	"github.com/teranos/libstat/logger"
)

var rootCmd = &cobra.Command{
	Use:   "statd",
	Short: "statd - statistical classifier bootstrap and maintenance",
	Long: `statd - bootstrap, inspect and train libstat classifiers.

statd loads a libstat.toml configuration, builds the classifier graph
from the bundled providers and runs one-shot operations against it.

Available commands:
  check   - Bootstrap the configuration and report loaded statfiles
  learn   - Learn a message as spam or ham
  classify - Classify a message
  stat    - Show per-statfile statistics
  config  - Show, create and check configuration files
  serve   - Keep a context open, expose metrics, reload on change

Examples:
  statd config init                # Write a sample libstat.toml
  statd check                      # Verify every provider resolves
  statd learn --spam message.eml   # Train the spam class
  statd stat                       # Show learns and tokens per statfile`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().StringVarP(&commands.ConfigPath, "config", "c", "", "Path to libstat.toml (default: search ./, user config dir, /etc/libstat)")

	rootCmd.AddCommand(commands.CheckCmd)
	rootCmd.AddCommand(commands.LearnCmd)
	rootCmd.AddCommand(commands.ClassifyCmd)
	rootCmd.AddCommand(commands.StatCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
