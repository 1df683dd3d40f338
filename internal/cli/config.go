package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/nyx/internal/config"
	"github.com/rileyhilliard/nyx/internal/ui"
)

// configInitCommand writes the default config to path, or nyx.yaml.
func configInitCommand(cmd *cobra.Command, path string, force bool) error {
	return writeDefaultConfig(cmd.OutOrStdout(), path, force)
}

func writeDefaultConfig(w io.Writer, path string, force bool) error {
	if path == "" {
		path = config.ConfigFileName
	}
	path = config.ExpandTilde(path)

	if err := config.WriteDefault(path, force); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s Wrote %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), path)
	fmt.Fprintln(w, ui.MutedStyle().Render("Set control.pid or control.name, then run 'nyx watch'."))
	return nil
}

// configPathCommand prints the config file that would be loaded.
func configPathCommand(cmd *cobra.Command) error {
	return printConfigPath(cmd.OutOrStdout(), Config())
}

func printConfigPath(w io.Writer, explicit string) error {
	path, err := config.Find(explicit)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintln(w, ui.MutedStyle().Render("No config file found, using defaults"))
		return nil
	}
	fmt.Fprintln(w, path)
	return nil
}
