package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/nyx/internal/errors"
)

// Command-specific flags
var (
	watchPIDFlag      int
	watchIntervalFlag string
	watchCountFlag    int
	watchNoLogFlag    bool
	logLimitFlag      int
	logFilterFlag     string
	logNoDedupFlag    bool
	configInitForce   bool
)

// watchCmd runs the trackers and prints a status line on each interval
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a local tor process",
	Long: `Start the connection, resource and port usage trackers against a local
tor process and print a status line on every interval until interrupted.

When log.path is configured, new tor log events are followed too and the
newest are printed as they arrive.

Examples:
  nyx watch
  nyx watch --pid 4242
  nyx watch --interval 2s --count 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, err := ParseInterval(watchIntervalFlag)
		if err != nil {
			return err
		}
		return watchCommand(cmd, watchOptions{
			PID:      watchPIDFlag,
			Interval: interval,
			Count:    watchCountFlag,
			NoLog:    watchNoLogFlag,
		})
	},
}

// logCmd prints a tor log with duplicate events folded together
var logCmd = &cobra.Command{
	Use:   "log [file]",
	Short: "Print tor's log with duplicates folded",
	Long: `Read a tor log file and print its events newest first.

Events that repeat (the same type and a matching message) are shown once,
with a note of how many were hidden. Only the current run of tor is shown.

The file defaults to log.path from the config.

Examples:
  nyx log /var/log/tor/notices.log
  nyx log --limit 50 --filter "Bootstrapped"
  nyx log --no-dedup`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return logCommand(cmd, path, logOptions{
			Limit:   logLimitFlag,
			Filter:  logFilterFlag,
			NoDedup: logNoDedupFlag,
		})
	},
}

// configCmd groups config file subcommands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the nyx config file",
}

// configInitCmd writes a default config
var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default nyx.yaml",
	Long: `Write a config file with every setting at its default.

The file is written to nyx.yaml in the current directory unless a path is
given. An existing file is left alone unless --force is set.

Examples:
  nyx config init
  nyx config init ~/.config/nyx/config.yaml
  nyx config init --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return configInitCommand(cmd, path, configInitForce)
	},
}

// configPathCmd prints which config file would be used
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show which config file nyx uses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configPathCommand(cmd)
	},
}

// completionCmd generates shell completion scripts
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for nyx.

Examples:
  # Bash
  nyx completion bash > /etc/bash_completion.d/nyx

  # Zsh
  nyx completion zsh > "${fpath[1]}/_nyx"

  # Fish
  nyx completion fish > ~/.config/fish/completions/nyx.fish`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(os.Stdout)
		case "zsh":
			return rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			return rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletion(os.Stdout)
		default:
			return errors.New(errors.ErrConfig,
				"Unknown shell: "+args[0],
				"Supported shells: bash, zsh, fish, powershell")
		}
	},
}

func init() {
	// watch command flags
	watchCmd.Flags().IntVar(&watchPIDFlag, "pid", 0, "tor's pid (overrides control.pid)")
	watchCmd.Flags().StringVar(&watchIntervalFlag, "interval", "", "how often to print status (e.g., 1s, 5s)")
	watchCmd.Flags().IntVar(&watchCountFlag, "count", 0, "exit after this many status lines")
	watchCmd.Flags().BoolVar(&watchNoLogFlag, "no-log", false, "don't follow tor's log")

	// log command flags
	logCmd.Flags().IntVarP(&logLimitFlag, "limit", "n", 0, "maximum number of events to read")
	logCmd.Flags().StringVar(&logFilterFlag, "filter", "", "only show events matching this regular expression")
	logCmd.Flags().BoolVar(&logNoDedupFlag, "no-dedup", false, "show duplicate events")

	// config init flags
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing config")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)
}
