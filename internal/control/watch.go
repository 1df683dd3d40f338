package control

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay lets tor finish replacing the consensus before it's read.
const settleDelay = 250 * time.Millisecond

// WatchConsensus publishes the consensus file again whenever tor rewrites it,
// until ctx is cancelled.
func (s *Static) WatchConsensus(ctx context.Context) error {
	s.mu.RLock()
	path := s.cfg.ConsensusFile
	s.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("no consensus file configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// tor writes a temp file and renames it over the old one
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				settle = time.After(settleDelay)
			}

		case <-settle:
			settle = nil
			if err := s.ReloadConsensus(); err != nil {
				s.log.Info("unable to reload the consensus: %v", err)
			} else {
				s.log.Debug("reloaded the consensus from %s", path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("consensus watcher error: %v", err)
		}
	}
}
