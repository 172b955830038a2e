package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "seceval",
	Short: "seceval - Adaptive Security Evaluation Orchestrator",
	Long: `seceval orchestrates adaptive security evaluations of guarded AI
subjects. Worker coalitions probe, attack, judge, and remediate across
budgeted rounds; Thompson sampling steers attack categories and consensus
calibration scores the outcome from both the attacker's and the defender's
perspective.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with signal handling.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "seceval.yaml", "path to the evaluation config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override configured log format (text|json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level=debug")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
