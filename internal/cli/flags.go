package cli

import (
	"fmt"
	"time"

	"github.com/rileyhilliard/nyx/internal/errors"
)

// minInterval keeps watch from redrawing faster than anyone can read.
const minInterval = 100 * time.Millisecond

// ParseInterval parses the watch --interval flag. Returns zero duration if
// the flag is empty.
func ParseInterval(flag string) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	duration, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a valid interval", flag),
			"Try something like 1s, 5s, or 500ms.")
	}
	if duration < minInterval {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("The interval %s is too short", duration),
			fmt.Sprintf("Use at least %s.", minInterval))
	}
	return duration, nil
}
