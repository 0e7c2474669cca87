package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slotclaim/internal/config"
	"github.com/example/slotclaim/internal/retry"
	"github.com/example/slotclaim/internal/runs"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func noSleep(context.Context, time.Duration) error { return nil }

func intp(v int) *int { return &v }

func TestFire_RetriesAndRecords(t *testing.T) {
	store := &runs.Memory{}
	s := &Scheduler{Recorder: store, Logger: quiet(), Sleep: noSleep}

	calls := 0
	out := s.Fire(context.Background(), Trigger{
		Name:  "signup",
		Retry: retry.Config{Interval: time.Second, MaxAttempts: 4},
		Workflow: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("no suitable group found, tried 3")
			}
			return nil
		},
	})

	assert.True(t, out.OK)
	assert.Equal(t, 3, calls)

	recent, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "signup", recent[0].Workflow)
	assert.Equal(t, 3, recent[0].Attempts)
	assert.True(t, recent[0].OK)
}

func TestFire_ExhaustionIsReportedNotReturned(t *testing.T) {
	store := &runs.Memory{}
	s := &Scheduler{Recorder: store, Logger: quiet(), Sleep: noSleep}

	out := s.Fire(context.Background(), Trigger{
		Name:     "prelogin",
		Retry:    retry.Config{MaxAttempts: 2},
		Workflow: func(context.Context) error { return errors.New("auth flow failed at username") },
	})

	assert.False(t, out.OK)
	assert.Equal(t, 2, out.Attempts)
	recent, _ := store.Recent(context.Background(), 1)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].OK)
	assert.Contains(t, recent[0].Detail, "auth flow failed at username")
}

func TestFire_SerializesSharedSession(t *testing.T) {
	s := &Scheduler{Logger: quiet(), Sleep: noSleep}

	var inFlight, maxInFlight int32
	work := func(context.Context) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}

	var wg sync.WaitGroup
	for _, name := range []string{"prelogin", "signup", "prelogin", "signup"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			s.Fire(context.Background(), Trigger{Name: name, Retry: retry.Config{MaxAttempts: 1}, Workflow: work})
		}(name)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight)
}

func TestRehearse_LoginThenOneClaim(t *testing.T) {
	store := &runs.Memory{}
	s := &Scheduler{Recorder: store, Logger: quiet()}

	var order []string
	err := s.Rehearse(context.Background(),
		func(context.Context) error { order = append(order, "login"); return nil },
		func(context.Context) error { order = append(order, "claim"); return errors.New("full") },
	)

	require.Error(t, err)
	assert.Equal(t, []string{"login", "claim"}, order)
	recent, _ := store.Recent(context.Background(), 10)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].DryRun)
	assert.Equal(t, "signup", recent[0].Workflow)
}

func TestRehearse_LoginFailureSkipsClaim(t *testing.T) {
	s := &Scheduler{Logger: quiet()}
	claimed := false

	err := s.Rehearse(context.Background(),
		func(context.Context) error { return errors.New("no username input") },
		func(context.Context) error { claimed = true; return nil },
	)

	require.Error(t, err)
	assert.False(t, claimed)
}

type soon struct{ every time.Duration }

func (s soon) Next(t time.Time) time.Time { return t.Add(s.every) }

func TestRun_FiresUntilCancelled(t *testing.T) {
	s := &Scheduler{Logger: quiet(), Sleep: noSleep}

	var fired int32
	s.Triggers = []Trigger{{
		Name:     "prelogin",
		Schedule: soon{20 * time.Millisecond},
		Retry:    retry.Config{MaxAttempts: 1},
		Workflow: func(context.Context) error {
			atomic.AddInt32(&fired, 1)
			return errors.New("still failing")
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) >= 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRun_RejectsInvalidRetryPolicy(t *testing.T) {
	fired := false
	s := &Scheduler{Logger: quiet(), Triggers: []Trigger{{
		Name:     "signup",
		Schedule: soon{time.Millisecond},
		Retry:    retry.Config{Interval: time.Second, MaxAttempts: 0},
		Workflow: func(context.Context) error { fired = true; return nil },
	}}}

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trigger signup")
	assert.False(t, fired)
}

func TestFromConfig_Cron(t *testing.T) {
	vienna, err := time.LoadLocation("Europe/Vienna")
	require.NoError(t, err)

	sched, err := FromConfig(config.Schedule{Cron: "0 0 8 * * *", Location: vienna})
	require.NoError(t, err)

	from := time.Date(2026, 10, 17, 9, 0, 0, 0, vienna)
	assert.Equal(t, time.Date(2026, 10, 18, 8, 0, 0, 0, vienna), sched.Next(from).In(vienna))
}

func TestFromConfig_DateRule(t *testing.T) {
	vienna, err := time.LoadLocation("Europe/Vienna")
	require.NoError(t, err)

	sched, err := FromConfig(config.Schedule{
		Location: vienna,
		Second:   intp(0),
		Minute:   intp(0),
		Hour:     intp(8),
		Date:     intp(3),
		Month:    intp(11),
		Year:     intp(2026),
	})
	require.NoError(t, err)

	want := time.Date(2026, 11, 3, 8, 0, 0, 0, vienna)
	assert.Equal(t, want, sched.Next(time.Date(2025, 1, 1, 0, 0, 0, 0, vienna)).In(vienna))
	assert.Equal(t, want, sched.Next(time.Date(2026, 10, 17, 12, 0, 0, 0, vienna)).In(vienna))
	assert.True(t, sched.Next(want).IsZero())
}

func TestFromConfig_DateRuleEveryUnsetField(t *testing.T) {
	sched, err := FromConfig(config.Schedule{Location: time.UTC, Second: intp(30)})
	require.NoError(t, err)

	from := time.Date(2026, 10, 17, 12, 0, 45, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 17, 12, 1, 30, 0, time.UTC), sched.Next(from))
}
