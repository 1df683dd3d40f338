package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/nyx/internal/config"
	"github.com/rileyhilliard/nyx/internal/ui"
)

// Global flags
var (
	cfgFile string
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "nyx",
	Short: "Monitor a tor relay from the terminal",
	Long: `nyx watches a local tor process: its connections, cpu and memory use,
and the events it logs.

Run 'nyx config init' to write a starting config, then 'nyx watch'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColorMode(ui.ColorNever, cmd.OutOrStdout())
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./nyx.yaml, then ~/.config/nyx/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.ErrorStyle().Render(strings.TrimRight(err.Error(), "\n")))
		os.Exit(1)
	}
}

// Config returns the --config flag value.
func Config() string {
	return cfgFile
}

// loadConfig loads and validates the config, then applies its color mode.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(Config())
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	if noColor {
		ui.SetColorMode(ui.ColorNever, cmd.OutOrStdout())
	} else {
		ui.SetColorMode(cfg.Output.Color, cmd.OutOrStdout())
	}
	return cfg, nil
}
