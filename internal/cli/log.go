package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/nyx/internal/config"
	"github.com/rileyhilliard/nyx/internal/errors"
	"github.com/rileyhilliard/nyx/internal/eventlog"
	"github.com/rileyhilliard/nyx/internal/ui"
)

type logOptions struct {
	Limit   int
	Filter  string
	NoDedup bool
}

// logCommand prints the events of a tor log file.
func logCommand(cmd *cobra.Command, path string, opts logOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return printLog(cmd.OutOrStdout(), cfg, path, opts)
}

func printLog(w io.Writer, cfg *config.Config, path string, opts logOptions) error {
	if path == "" {
		path = cfg.Log.Path
	}
	if path == "" {
		return errors.New(errors.ErrLog,
			"No log file to read",
			"Pass the file as an argument, or set log.path in your nyx.yaml.")
	}
	path = config.Expand(path)

	filter := eventlog.NewFilter(cfg.Log.Filters, cfg.Log.FilterHistory)
	if err := filter.Select(opts.Filter); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' isn't a valid filter", opts.Filter),
			"Filters are regular expressions, e.g. 'Bootstrapped [0-9]+%'.")
	}

	size := cfg.Log.MaxSize
	if opts.Limit > 0 {
		size = opts.Limit
	}

	read, err := eventlog.ReadTorLog(path, size)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrLog,
			"Can't read the tor log",
			"Check that "+path+" exists and is readable.")
	}

	group, err := eventlog.NewGroup(size, cfg.Log.GroupByDay, cfg.Log.DedupRules())
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Invalid log settings", "Check log.max_size in your nyx.yaml.")
	}
	eventlog.Replay(group, read)

	entries := filter.Apply(group.Entries())
	if len(entries) == 0 {
		fmt.Fprintln(w, ui.MutedStyle().Render("No events in "+path))
		return nil
	}

	fmt.Fprintln(w, ui.LabelStyle().Render(logHeader(path, entries)))
	for _, line := range ui.RenderEntries(entries, !opts.NoDedup) {
		fmt.Fprintln(w, line)
	}
	return nil
}

// logHeader names the file and the event types shown, like
// "notices.log (NOTICE-ERR)".
func logHeader(path string, entries []*eventlog.Entry) string {
	types := make([]string, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.Type)
	}
	return fmt.Sprintf("%s (%s)", path, strings.Join(eventlog.CondenseRunlevels(types...), ", "))
}
