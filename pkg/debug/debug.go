// Package debug provides category-based debug logging for ribamar.
//
// Categories select WHAT is traced, independently of the log level:
//
//	debug.Log(debug.Transport, "request body", "bytes", len(raw))
//	if debug.Enabled(debug.Storage) { /* expensive formatting */ }
//
// Categories: dispatch, transport, scheduler, storage, mailer, all. They
// are set from logger.debug or RIBAMAR_DEBUG. Messages are emitted at debug
// level, so the sink must also run at debug to show them.
package debug

import (
	"context"
	"log/slog"
	"slices"
	"strings"
)

// Known categories.
const (
	Dispatch  = "dispatch"
	Transport = "transport"
	Scheduler = "scheduler"
	Storage   = "storage"
	Mailer    = "mailer"
	All       = "all"
)

// categories and logger are written by Init at startup and read-only after.
var (
	categories = map[string]bool{}
	logger     *slog.Logger
)

// Init enables the comma-separated categories and directs their output to
// l. A nil logger uses slog.Default at each call.
func Init(cats string, l *slog.Logger) {
	categories = parseCategories(cats)
	logger = l
}

// Enabled reports whether debug output is active for category.
func Enabled(category string) bool {
	return categories[All] || categories[category]
}

// Log emits a debug message tagged with category when it is enabled.
func Log(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	l := logger
	if l == nil {
		l = slog.Default()
	}
	l.Log(context.Background(), slog.LevelDebug, msg, append([]any{"debug", category}, args...)...)
}

// Categories returns the enabled categories, sorted.
func Categories() []string {
	out := make([]string, 0, len(categories))
	for k := range categories {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Truncate returns s cut to maxLen bytes, with "..." appended if cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) map[string]bool {
	m := make(map[string]bool)
	for _, cat := range strings.Split(s, ",") {
		cat = strings.TrimSpace(strings.ToLower(cat))
		if cat != "" {
			m[cat] = true
		}
	}
	return m
}
