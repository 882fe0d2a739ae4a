package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/campusledger/campusledger/internal/fees"
)

const defaultScanLimit = 500

// OverdueScanner finds unpaid ledger entries past their due date and fans out
// one reminder task per entry.
type OverdueScanner struct {
	repo    *fees.Repository
	client  *Client
	logger  *slog.Logger
	printer *message.Printer
	now     func() time.Time
}

// NewOverdueScanner constructs the scanner.
func NewOverdueScanner(repo *fees.Repository, client *Client, logger *slog.Logger) *OverdueScanner {
	return &OverdueScanner{
		repo:    repo,
		client:  client,
		logger:  logger,
		printer: message.NewPrinter(language.English),
		now:     time.Now,
	}
}

// HandleScan processes TaskFeesOverdueScan.
func (s *OverdueScanner) HandleScan(ctx context.Context, t *asynq.Task) error {
	var payload OverdueScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = defaultScanLimit
	}

	overdue, err := s.repo.OverdueEntries(ctx, s.now(), limit)
	if err != nil {
		return err
	}
	for _, o := range overdue {
		if _, err := s.client.EnqueueFeeReminder(ctx, FeeReminderPayload{
			EntryID:       o.EntryID,
			BranchID:      o.BranchID,
			StudentID:     o.StudentID,
			StudentName:   o.StudentName,
			GuardianPhone: o.GuardianPhone,
			Month:         o.Month,
			BalanceAmount: o.BalanceAmount,
			DueDate:       o.DueDate,
		}); err != nil {
			return err
		}
	}
	s.logger.Info("overdue scan complete", slog.Int("reminders", len(overdue)))
	return nil
}

// HandleReminder processes TaskFeeReminder. Delivery is a log line for now;
// the SMS gateway integration hangs off this handler.
func (s *OverdueScanner) HandleReminder(ctx context.Context, t *asynq.Task) error {
	var payload FeeReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	amount := s.printer.Sprintf("%.2f", payload.BalanceAmount)
	s.logger.Info("fee reminder",
		slog.Int64("student_id", payload.StudentID),
		slog.String("student", payload.StudentName),
		slog.String("phone", payload.GuardianPhone),
		slog.String("month", payload.Month),
		slog.String("balance", amount),
		slog.Time("due_date", payload.DueDate),
	)
	return nil
}
