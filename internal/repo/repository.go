package repo

import (
	"context"
	"time"

	"conncheck/internal/domain"
)

// RunSummary is the compact view of one stored run used in listings.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Rows       int       `json:"rows"`
	Failures   int       `json:"failures"`
	Errors     int       `json:"errors"`
}

// RunStore is implemented by a persistence layer holding past runs.
// Swap in any adapter; the API server only talks to this interface.
type RunStore interface {
	Append(ctx context.Context, rep *domain.Report) error
	// Latest returns nil, nil if no run has been stored yet.
	Latest(ctx context.Context) (*domain.Report, error)
	List(ctx context.Context) ([]RunSummary, error)
}

// Summarize reduces a report to the fields shown in run listings.
func Summarize(rep *domain.Report) RunSummary {
	rows := rep.Flatten()
	return RunSummary{
		RunID:      rep.Meta.RunID,
		StartedAt:  rep.Meta.StartedAt,
		FinishedAt: rep.Meta.FinishedAt,
		Rows:       len(rows),
		Failures:   rep.Failures(),
		Errors:     len(rep.Errors),
	}
}
