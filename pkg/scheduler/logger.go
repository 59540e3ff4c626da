package scheduler

import (
	"log/slog"

	cronlib "github.com/robfig/cron/v3"
)

// cronLogger adapts slog to cron.Logger. The library's chatty scheduling
// messages go to debug.
type cronLogger struct {
	logger *slog.Logger
}

var _ cronlib.Logger = cronLogger{}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{slog.String("error", err.Error())}, keysAndValues...)
	c.logger.Error("cron: "+msg, args...)
}
