package eventlog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rileyhilliard/nyx/internal/logger"
)

// Follow tails a tor log file, adding each new line to the group until ctx is
// cancelled. Only lines written after Follow starts are added. A truncated or
// recreated file (log rotation) is read again from the start.
func Follow(ctx context.Context, path string, group *Group, log logger.Logger) error {
	if log == nil {
		log = logger.Noop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// rotation replaces the file, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	t := &tail{path: path, group: group}
	if info, err := os.Stat(path); err == nil {
		t.offset = info.Size()
	}

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

			switch {
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				t.offset, t.partial = 0, ""
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if err := t.read(time.Now()); err != nil {
					log.Debug("reading %s: %v", path, err)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("log watcher error: %v", err)
		}
	}
}

type tail struct {
	path    string
	group   *Group
	offset  int64
	partial string
}

// read adds any complete lines past the last offset.
func (t *tail) read(now time.Time) error {
	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < t.offset {
		t.offset = 0
		t.partial = ""
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	for {
		chunk, err := reader.ReadString('\n')
		t.offset += int64(len(chunk))

		if err != nil {
			// hold incomplete lines until tor finishes writing them
			t.partial += chunk
			if err == io.EOF {
				return nil
			}
			return err
		}

		line := t.partial + chunk
		t.partial = ""
		if entry, perr := ParseTorLogLine(line, now); perr == nil {
			t.group.AddEntry(entry)
		}
	}
}
