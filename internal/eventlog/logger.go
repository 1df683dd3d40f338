package eventlog

import (
	"fmt"
	"time"

	"github.com/rileyhilliard/nyx/internal/logger"
)

// groupLogger records our own log messages in a Group as NYX_<LEVEL>
// entries, so they show up alongside tor's events.
type groupLogger struct {
	group    *Group
	fallback logger.Logger
	now      func() time.Time
}

// NewLogger returns a logger.Logger that adds each message to group and
// forwards it to fallback, if non-nil.
func NewLogger(group *Group, fallback logger.Logger) logger.Logger {
	if fallback == nil {
		fallback = logger.Noop()
	}
	return &groupLogger{group: group, fallback: fallback, now: time.Now}
}

func (l *groupLogger) add(eventType, format string, args ...interface{}) {
	l.group.Add(l.now(), eventType, fmt.Sprintf(format, args...))
}

func (l *groupLogger) Debug(format string, args ...interface{}) {
	l.add(TypeNyxDebug, format, args...)
	l.fallback.Debug(format, args...)
}

func (l *groupLogger) Info(format string, args ...interface{}) {
	l.add(TypeNyxInfo, format, args...)
	l.fallback.Info(format, args...)
}

func (l *groupLogger) Notice(format string, args ...interface{}) {
	l.add(TypeNyxNotice, format, args...)
	l.fallback.Notice(format, args...)
}

func (l *groupLogger) Warn(format string, args ...interface{}) {
	l.add(TypeNyxWarn, format, args...)
	l.fallback.Warn(format, args...)
}

func (l *groupLogger) Error(format string, args ...interface{}) {
	l.add(TypeNyxErr, format, args...)
	l.fallback.Error(format, args...)
}
