package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "rategate",
	Short: "rategate - sliding-window admission gate",
	Long: `rategate bounds how many operations are admitted within any rolling time window,
on top of bounding how many run at the same time.

The simulate command runs concurrent callers through a gate and reports how many
were admitted, so limits can be tried out before they are used in code.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and RATEGATE_* variables apply without one)")
}
