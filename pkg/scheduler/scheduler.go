package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	rdebug "runtime/debug"
	"sync"

	cronlib "github.com/robfig/cron/v3"

	"github.com/rhuss/ribamar/pkg/debug"
	"github.com/rhuss/ribamar/pkg/dispatch"
	"github.com/rhuss/ribamar/pkg/observability"
)

// Dispatcher runs a route descriptor.
type Dispatcher interface {
	Run(ctx context.Context, descriptor string, in *dispatch.Envelope) (any, error)
}

// Task binds a configuration name to the descriptor it runs.
type Task struct {
	Name       string
	Descriptor string
}

// DefaultTasks are the maintenance routes run in the background.
var DefaultTasks = []Task{
	{Name: "expireResets", Descriptor: "EXPIRE reset"},
	{Name: "ping", Descriptor: "GET "},
}

// parser accepts standard 5-field expressions, an optional leading seconds
// field and descriptors such as "@every 30s".
var parser = cronlib.NewParser(
	cronlib.SecondOptional | cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Tick results recorded in ribamar_scheduler_ticks_total.
const (
	resultOK    = "ok"
	resultPanic = "panic"
)

// Scheduler fires the configured tasks on their cron schedules.
type Scheduler struct {
	engine       Dispatcher
	logger       *slog.Logger
	tasks        []Task
	allowOverlap bool

	mu   sync.Mutex
	cron *cronlib.Cron
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithOverlap controls whether a task may fire while its previous run is
// still in progress. When false such firings are skipped.
func WithOverlap(allow bool) Option {
	return func(s *Scheduler) { s.allowOverlap = allow }
}

// WithTasks replaces DefaultTasks.
func WithTasks(tasks ...Task) Option {
	return func(s *Scheduler) { s.tasks = tasks }
}

// New creates a Scheduler for engine. Nothing runs until Start.
func New(engine Dispatcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		engine:       engine,
		logger:       slog.Default(),
		tasks:        DefaultTasks,
		allowOverlap: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Start parses the expression of every task from specs and schedules
// them. If any expression is missing or invalid it returns a
// *SchedulingConfigError and schedules nothing. Firings run with ctx.
func (s *Scheduler) Start(ctx context.Context, specs map[string]string) error {
	schedules := make([]cronlib.Schedule, len(s.tasks))
	for i, t := range s.tasks {
		expr, ok := specs[t.Name]
		if !ok || expr == "" {
			return &SchedulingConfigError{Task: t.Name}
		}
		sched, err := parser.Parse(expr)
		if err != nil {
			return &SchedulingConfigError{Task: t.Name, Expr: expr, Err: err}
		}
		schedules[i] = sched
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler: already started")
	}

	logger := cronLogger{logger: s.logger}
	var wrappers []cronlib.JobWrapper
	if !s.allowOverlap {
		wrappers = append(wrappers, cronlib.SkipIfStillRunning(logger))
	}
	c := cronlib.New(cronlib.WithLogger(logger), cronlib.WithChain(wrappers...))

	for i, t := range s.tasks {
		c.Schedule(schedules[i], cronlib.FuncJob(func() { s.fire(ctx, t) }))
		s.logger.Info("task scheduled",
			slog.String("task", t.Name),
			slog.String("descriptor", t.Descriptor),
			slog.String("expr", specs[t.Name]),
		)
	}

	c.Start()
	s.cron = c
	return nil
}

// Stop cancels every scheduled task. It does not wait for running
// firings; the returned context is done once they have finished. Stop is
// safe to call more than once and before Start.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := s.cron.Stop()
	s.cron = nil
	s.logger.Info("scheduler stopped")
	return ctx
}

// fire runs one task. The outcome is discarded.
func (s *Scheduler) fire(ctx context.Context, t Task) {
	result := resultOK
	defer func() {
		if r := recover(); r != nil {
			result = resultPanic
			s.logger.Error("scheduled task panic",
				slog.String("task", t.Name),
				slog.String("error", fmt.Sprint(r)),
				slog.String("stack", string(rdebug.Stack())),
			)
		}
		observability.SchedulerTicksTotal.WithLabelValues(t.Name, result).Inc()
	}()

	debug.Log(debug.Scheduler, "task fired", "task", t.Name, "descriptor", t.Descriptor)
	_, err := s.engine.Run(ctx, t.Descriptor, dispatch.NewEnvelope())
	if err == nil {
		return
	}

	kind := dispatch.KindOf(err)
	result = string(kind)
	if kind == dispatch.KindHandlerFault {
		s.logger.Error("scheduled task failed",
			slog.String("task", t.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Warn("scheduled task rejected",
		slog.String("task", t.Name),
		slog.String("kind", result),
		slog.String("error", err.Error()),
	)
}
