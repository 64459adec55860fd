package ports

import (
	"context"

	"klineforge/internal/domain"
)

// RunRepository stores the reports of finished pipeline runs.
type RunRepository interface {
	// SaveRun inserts a run report. Saving the same ID twice returns ErrDuplicateEntry.
	SaveRun(ctx context.Context, r *domain.RunReport) error
	// FindRun retrieves a run by ID.
	// Returns nil, nil if not found.
	FindRun(ctx context.Context, id string) (*domain.RunReport, error)
	// ListRuns retrieves the most recent runs for a symbol, newest first, up to a limit.
	ListRuns(ctx context.Context, symbol string, limit int) ([]*domain.RunReport, error)
}
