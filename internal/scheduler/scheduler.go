package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/example/slotclaim/internal/retry"
	"github.com/example/slotclaim/internal/runs"
)

// Workflow is one unit of work against the shared browser session.
type Workflow func(ctx context.Context) error

// Trigger fires Workflow on Schedule, retrying it per Retry.
type Trigger struct {
	Name     string
	Schedule cron.Schedule
	Retry    retry.Config
	Workflow Workflow
}

// Scheduler drives the login and signup triggers. Both share one browser
// session, so workflow attempts are serialized; retry pauses are not.
type Scheduler struct {
	Triggers []Trigger
	Recorder runs.Store
	Logger   *slog.Logger

	// Sleep overrides the pause between retries (tests).
	Sleep retry.SleepFunc

	mu sync.Mutex
}

// Run starts every trigger and blocks until ctx is cancelled. Firings in
// progress finish before it returns. A trigger with an invalid retry policy
// fails Run before anything is scheduled.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, t := range s.Triggers {
		if err := t.Retry.Validate(); err != nil {
			return fmt.Errorf("trigger %s: %w", t.Name, err)
		}
	}
	logger := cronLogger{s.Logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	for _, t := range s.Triggers {
		t := t
		id := c.Schedule(t.Schedule, cron.FuncJob(func() {
			s.Logger.Info("starting workflow", "workflow", t.Name)
			s.Fire(ctx, t)
		}))
		if next := c.Entry(id).Schedule.Next(time.Now()); next.IsZero() {
			s.Logger.Warn("trigger will never fire", "workflow", t.Name)
		} else {
			s.Logger.Info("workflow scheduled", "workflow", t.Name, "next", next)
		}
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Fire runs t's workflow under its retry policy, logs and records the
// outcome. A failed outcome is reported, never returned.
func (s *Scheduler) Fire(ctx context.Context, t Trigger) retry.Outcome[struct{}] {
	started := time.Now()
	opts := []retry.Option{retry.WithLogger(s.Logger), retry.WithName(t.Name)}
	if s.Sleep != nil {
		opts = append(opts, retry.WithSleep(s.Sleep))
	}

	out := retry.Do(ctx, t.Retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.exclusive(ctx, t.Workflow)
	}, opts...)

	run := runs.Run{
		ID:         uuid.New(),
		Workflow:   t.Name,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Attempts:   out.Attempts,
		OK:         out.OK,
	}
	if out.OK {
		s.Logger.Info("workflow succeeded", "workflow", t.Name, "attempts", out.Attempts)
	} else {
		run.Detail = out.Err().Error()
		s.Logger.Error("workflow failed", "workflow", t.Name, "attempts", out.Attempts, "err", out.Err())
	}
	s.record(ctx, run)
	return out
}

// Rehearse is the dry-run path: one login, then exactly one claim pass
// with no retries.
func (s *Scheduler) Rehearse(ctx context.Context, login, claim Workflow) error {
	started := time.Now()
	if err := s.exclusive(ctx, login); err != nil {
		s.record(ctx, runs.Run{ID: uuid.New(), Workflow: "prelogin", DryRun: true, StartedAt: started,
			FinishedAt: time.Now(), Attempts: 1, Detail: err.Error()})
		return fmt.Errorf("dry run login: %w", err)
	}
	s.record(ctx, runs.Run{ID: uuid.New(), Workflow: "prelogin", DryRun: true, StartedAt: started,
		FinishedAt: time.Now(), Attempts: 1, OK: true})

	started = time.Now()
	err := s.exclusive(ctx, claim)
	run := runs.Run{ID: uuid.New(), Workflow: "signup", DryRun: true, StartedAt: started,
		FinishedAt: time.Now(), Attempts: 1, OK: err == nil}
	if err != nil {
		run.Detail = err.Error()
	}
	s.record(ctx, run)
	if err != nil {
		return fmt.Errorf("dry run signup: %w", err)
	}
	s.Logger.Info("dry run finished")
	return nil
}

func (s *Scheduler) exclusive(ctx context.Context, w Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return w(ctx)
}

func (s *Scheduler) record(ctx context.Context, r runs.Run) {
	if s.Recorder == nil {
		return
	}
	// Recording must outlive a shutdown that interrupted the run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Recorder.Record(ctx, r); err != nil {
		s.Logger.Warn("record run", "workflow", r.Workflow, "err", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
