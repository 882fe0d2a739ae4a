// Package jobs defines the background tasks processed by the worker binary:
// the overdue-fee reminder scan and the ledger integrity check.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFeesOverdueScan sweeps the ledger for unpaid entries past due date.
	TaskFeesOverdueScan = "fees:overdue_scan"
	// TaskFeesIntegrityCheck re-sums payment details and reports drift.
	TaskFeesIntegrityCheck = "fees:integrity_check"
	// TaskFeeReminder notifies one guardian about one overdue month.
	TaskFeeReminder = "fees:reminder"
)

// OverdueScanPayload bounds one scan run.
type OverdueScanPayload struct {
	Limit int `json:"limit"`
}

// FeeReminderPayload carries everything the reminder needs; the scan resolves
// it up front so the reminder handler does no database reads.
type FeeReminderPayload struct {
	EntryID       int64     `json:"entryId"`
	BranchID      int64     `json:"branchId"`
	StudentID     int64     `json:"studentId"`
	StudentName   string    `json:"studentName"`
	GuardianPhone string    `json:"guardianPhone"`
	Month         string    `json:"month"`
	BalanceAmount float64   `json:"balanceAmount"`
	DueDate       time.Time `json:"dueDate"`
}

// NewOverdueScanTask constructs an overdue scan task.
func NewOverdueScanTask(payload OverdueScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFeesOverdueScan, data), nil
}

// NewIntegrityCheckTask constructs an integrity check task.
func NewIntegrityCheckTask() *asynq.Task {
	return asynq.NewTask(TaskFeesIntegrityCheck, nil)
}

// NewFeeReminderTask constructs a reminder task.
func NewFeeReminderTask(payload FeeReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFeeReminder, data), nil
}
