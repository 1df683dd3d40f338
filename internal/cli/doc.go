// Package cli implements the nyx command-line interface.
//
// Each cobra command is a thin shell over a function that does the work, so
// the work can be tested without going through flag parsing:
//
//	nyx watch            - Run the trackers against a local tor and print status
//	nyx log <file>       - Print a tor log with duplicates folded together
//	nyx config init      - Write a default nyx.yaml
//	nyx version          - Print version information
//
// # Configuration
//
// The root command's --config flag picks the config file. Without it nyx.yaml
// in the current directory is used, then ~/.config/nyx/config.yaml, then the
// built in defaults. Any key can be overridden from the environment, e.g.
// NYX_CONTROL_PID=1234.
//
// # Output
//
// Color follows output.color in the config, and --no-color always wins.
package cli
