package scheduler

import (
	"errors"
	"fmt"
)

// ErrSchedulingConfig matches every scheduling configuration failure.
var ErrSchedulingConfig = errors.New("scheduler: invalid scheduling configuration")

// SchedulingConfigError reports the task whose cron expression is missing
// or cannot be parsed.
type SchedulingConfigError struct {
	Task string
	Expr string
	Err  error // parse failure, nil when the expression is missing
}

func (e *SchedulingConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("scheduler: task %q has no cron expression", e.Task)
	}
	return fmt.Sprintf("scheduler: task %q: invalid cron expression %q: %v", e.Task, e.Expr, e.Err)
}

// Unwrap exposes both ErrSchedulingConfig and the parse failure.
func (e *SchedulingConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSchedulingConfig}
	}
	return []error{ErrSchedulingConfig, e.Err}
}
