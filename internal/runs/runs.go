// Package runs stores the outcome of every scheduled workflow firing.
package runs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/slotclaim/internal/db"
)

type Run struct {
	ID         uuid.UUID `json:"id"`
	Workflow   string    `json:"workflow"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Attempts   int       `json:"attempts"`
	OK         bool      `json:"ok"`
	Detail     string    `json:"detail"`
}

func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Store records runs and lists the most recent ones, newest first.
type Store interface {
	Record(ctx context.Context, r Run) error
	Recent(ctx context.Context, limit int) ([]Run, error)
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Record(ctx context.Context, run Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	return r.db.Exec(ctx, `
INSERT INTO runs(id,workflow,dry_run,started_at,finished_at,attempts,ok,detail)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		run.ID, run.Workflow, run.DryRun, run.StartedAt, run.FinishedAt, run.Attempts, run.OK, run.Detail,
	)
}

func (r *Repo) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.Query(ctx, `
SELECT id,workflow,dry_run,started_at,finished_at,attempts,ok,detail
FROM runs
ORDER BY started_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, db.WrapNotFound(err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Workflow, &run.DryRun, &run.StartedAt, &run.FinishedAt, &run.Attempts, &run.OK, &run.Detail); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Memory keeps the last Size runs in process. It backs the status endpoint
// when no database is configured.
type Memory struct {
	Size int

	mu   sync.Mutex
	runs []Run
}

func (m *Memory) Record(_ context.Context, run Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	if size := m.size(); len(m.runs) > size {
		m.runs = append([]Run(nil), m.runs[len(m.runs)-size:]...)
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	out := make([]Run, 0, limit)
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.runs[i])
	}
	return out, nil
}

func (m *Memory) size() int {
	if m.Size <= 0 {
		return 100
	}
	return m.Size
}
