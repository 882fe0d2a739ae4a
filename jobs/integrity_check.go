package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/campusledger/campusledger/internal/fees"
)

// IntegrityChecker re-sums payment details per ledger entry and reports rows
// whose stored totals drifted.
type IntegrityChecker struct {
	repo   *fees.Repository
	logger *slog.Logger
}

// NewIntegrityChecker constructs the checker.
func NewIntegrityChecker(repo *fees.Repository, logger *slog.Logger) *IntegrityChecker {
	return &IntegrityChecker{repo: repo, logger: logger}
}

// HandleCheck processes TaskFeesIntegrityCheck.
func (c *IntegrityChecker) HandleCheck(ctx context.Context, t *asynq.Task) error {
	drift, err := c.repo.IntegrityDrift(ctx)
	if err != nil {
		return err
	}
	for _, d := range drift {
		c.logger.Warn("ledger drift",
			slog.Int64("entry_id", d.EntryID),
			slog.Int64("student_id", d.StudentID),
			slog.String("month", d.Month),
			slog.Float64("stored_paid", d.StoredPaid),
			slog.Float64("actual_paid", d.ActualPaid),
		)
	}
	c.logger.Info("integrity check complete", slog.Int("drift_rows", len(drift)))
	return nil
}
