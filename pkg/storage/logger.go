package storage

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger routes BadgerDB's printf-style logging into slog. Badger's
// info chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(badgerMessage(format, args))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(badgerMessage(format, args))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(badgerMessage(format, args))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(badgerMessage(format, args))
}

func badgerMessage(format string, args []any) string {
	return "badger: " + strings.TrimSpace(fmt.Sprintf(format, args...))
}
