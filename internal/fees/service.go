package fees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campusledger/campusledger/internal/masterdata"
	"github.com/campusledger/campusledger/internal/shared"
)

// ReferenceData is the slice of masterdata the ledger engine reads.
// Satisfied by *masterdata.Service.
type ReferenceData interface {
	GetStudent(ctx context.Context, branchID, id int64) (*masterdata.Student, error)
	GetSession(ctx context.Context, branchID, id int64) (*masterdata.AcademicSession, error)
	ActiveSession(ctx context.Context, branchID int64) (*masterdata.AcademicSession, error)
	GetConcession(ctx context.Context, branchID, id int64) (*masterdata.ConcessionCategory, error)
	ListFeeGroupsForClass(ctx context.Context, branchID, classID int64) ([]masterdata.FeeGroup, error)
}

// PaymentCounter records payment metrics. Satisfied by *observability.Metrics.
type PaymentCounter interface {
	CountPayment(mode string)
}

// Auditor persists audit trail rows. Satisfied by *shared.AuditLogger.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyGuard deduplicates retried collect requests. Satisfied by
// *shared.IdempotencyStore.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service implements the fee ledger engine and payment recording.
type Service struct {
	repo    RepositoryPort
	refdata ReferenceData
	audit   Auditor
	idem    IdempotencyGuard
	metrics PaymentCounter
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the fee service. audit, idem and metrics may be nil.
func NewService(repo RepositoryPort, refdata ReferenceData, audit Auditor, idem IdempotencyGuard, metrics PaymentCounter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		refdata: refdata,
		audit:   audit,
		idem:    idem,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// PaymentInput is the caller-supplied part of a payment detail.
type PaymentInput struct {
	Mode            PaymentMode
	CollectionDate  time.Time
	AmountPaid      float64
	TransactionNo   string
	TransactionDate *time.Time
	ChequeNo        string
	ChequeDate      *time.Time
	BankName        string
	Remarks         string
	InternalNotes   string
}

// CollectRequest records one payment against a ledger entry, creating the
// entry first if the month has not been generated yet.
type CollectRequest struct {
	StudentID        int64
	SessionID        int64 // 0 = active session
	Month            string
	Payment          PaymentInput
	ExcessAmount     *float64
	DiscountOverride *float64
	IdempotencyKey   string
}

// EditRequest replaces one existing payment detail in place.
type EditRequest struct {
	StudentID int64
	SessionID int64
	Month     string
	PaymentID int64
	Payment   PaymentInput
}

// MonthOverview is one slot of the twelve-month session view. Entry is nil
// for months whose ledger row was never generated.
type MonthOverview struct {
	Month  string          `json:"month"`
	Status Status          `json:"status"`
	Entry  *FeeLedgerEntry `json:"entry,omitempty"`
}

var electronicModes = map[PaymentMode]bool{
	ModeBankTransfer: true,
	ModeCardPayment:  true,
	ModeWallet:       true,
	ModeIMPS:         true,
}

// validatePayment enforces mode-conditional fields and returns the normalised
// detail. It runs before any write.
func validatePayment(in PaymentInput) (PaymentDetail, error) {
	if in.AmountPaid <= 0 {
		return PaymentDetail{}, shared.ValidationError("amountPaid must be greater than zero")
	}
	if in.CollectionDate.IsZero() {
		return PaymentDetail{}, shared.ValidationError("collectionDate is required")
	}
	switch in.Mode {
	case ModeCash, ModeBankTransfer, ModeCheque, ModeCardPayment, ModeWallet, ModeIMPS:
	default:
		return PaymentDetail{}, shared.ValidationError("unknown payment mode %q", in.Mode)
	}

	detail := PaymentDetail{
		Mode:            in.Mode,
		CollectionDate:  in.CollectionDate,
		AmountPaid:      Round2(in.AmountPaid),
		TransactionNo:   in.TransactionNo,
		TransactionDate: in.TransactionDate,
		ChequeNo:        in.ChequeNo,
		ChequeDate:      in.ChequeDate,
		BankName:        in.BankName,
		Remarks:         in.Remarks,
		InternalNotes:   in.InternalNotes,
	}

	if in.Mode == ModeCheque {
		if in.BankName == "" || in.ChequeNo == "" || in.ChequeDate == nil {
			return PaymentDetail{}, shared.ValidationError("cheque payments require bankName, chequeNo and chequeDate")
		}
	}
	if electronicModes[in.Mode] {
		if in.TransactionNo == "" {
			return PaymentDetail{}, shared.ValidationError("%s payments require transactionNo", in.Mode)
		}
		if in.TransactionDate == nil {
			d := in.CollectionDate
			detail.TransactionDate = &d
		}
	}
	return detail, nil
}

// resolveSession maps sessionID 0 to the branch's active session.
func (s *Service) resolveSession(ctx context.Context, branchID, sessionID int64) (*masterdata.AcademicSession, error) {
	if sessionID == 0 {
		return s.refdata.ActiveSession(ctx, branchID)
	}
	return s.refdata.GetSession(ctx, branchID, sessionID)
}

// buildEntry assembles a fresh ledger entry from the student's class fee
// groups and concession rules. Nothing is persisted here.
func (s *Service) buildEntry(ctx context.Context, branchID int64, studentID int64, sess *masterdata.AcademicSession, month string) (*FeeLedgerEntry, error) {
	student, err := s.refdata.GetStudent(ctx, branchID, studentID)
	if err != nil {
		return nil, err
	}
	groups, err := s.refdata.ListFeeGroupsForClass(ctx, branchID, student.ClassID)
	if err != nil {
		return nil, err
	}

	discounts := map[int64]float64{}
	if student.ConcessionID != 0 {
		concession, err := s.refdata.GetConcession(ctx, branchID, student.ConcessionID)
		if err != nil {
			return nil, err
		}
		for _, rule := range concession.Rules {
			discounts[rule.FeeGroupID] = rule.PercentDiscount
		}
	}

	firstMonth := sess.StartDate.Format("Jan")
	var lines []FeeLine
	var totalDiscount float64
	for _, g := range groups {
		if !chargedIn(g.Periodicity, month, firstMonth) {
			continue
		}
		discount := Round2(g.Amount * discounts[g.ID] / 100)
		lines = append(lines, FeeLine{
			FeeGroupID:     g.ID,
			Name:           g.Name,
			OriginalAmount: g.Amount,
			Discount:       discount,
			Amount:         Round2(g.Amount - discount),
		})
		totalDiscount += discount
	}

	due := dueDate(sess, month)
	entry := &FeeLedgerEntry{
		BranchID:  branchID,
		StudentID: student.ID,
		SessionID: sess.ID,
		Month:     month,
		Lines:     lines,
		Discount:  Round2(totalDiscount),
		DueDate:   &due,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	entry.Recompute()
	return entry, nil
}

// chargedIn reports whether a fee group of the given periodicity is charged
// in the given month. One-time groups bill only in the session's first month;
// quarterly groups bill at quarter starts.
func chargedIn(periodicity, month, firstMonth string) bool {
	switch periodicity {
	case masterdata.PeriodicityMonthly:
		return true
	case masterdata.PeriodicityOneTime:
		return month == firstMonth
	case masterdata.PeriodicityQuarterly:
		return quarterStarts[month]
	default:
		return false
	}
}

// dueDate is the 10th of the ledger month, in the session's calendar year.
func dueDate(sess *masterdata.AcademicSession, month string) time.Time {
	m, _ := time.Parse("Jan", month)
	year := sess.StartDate.Year()
	if m.Month() < sess.StartDate.Month() {
		year++
	}
	return time.Date(year, m.Month(), 10, 0, 0, 0, 0, time.UTC)
}

// GetOrCreateLedgerEntry returns the entry for (student, session, month),
// materialising it on first access. Safe under concurrent creation: the
// unique index wins and the surviving row is re-read.
func (s *Service) GetOrCreateLedgerEntry(ctx context.Context, branchID, studentID, sessionID int64, month string) (*FeeLedgerEntry, error) {
	if !IsValidMonth(month) {
		return nil, shared.ValidationError("unknown month %q", month)
	}
	sess, err := s.resolveSession(ctx, branchID, sessionID)
	if err != nil {
		return nil, err
	}
	entry, err := s.repo.GetEntry(ctx, branchID, studentID, sess.ID, month)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	fresh, err := s.buildEntry(ctx, branchID, studentID, sess, month)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.CreateEntry(ctx, fresh)
	if errors.Is(err, shared.ErrDuplicate) {
		return s.repo.GetEntry(ctx, branchID, studentID, sess.ID, month)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

// FeesByMonth returns the student's ledger entry for one month, creating it
// if the month has not been generated yet.
func (s *Service) FeesByMonth(ctx context.Context, branchID, studentID, sessionID int64, month string) (*FeeLedgerEntry, error) {
	return s.GetOrCreateLedgerEntry(ctx, branchID, studentID, sessionID, month)
}

// FeesBySession returns the twelve-month overview for a student. Months with
// no ledger row report status not_generated.
func (s *Service) FeesBySession(ctx context.Context, branchID, studentID, sessionID int64) ([]MonthOverview, error) {
	sess, err := s.resolveSession(ctx, branchID, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.refdata.GetStudent(ctx, branchID, studentID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntriesBySession(ctx, branchID, studentID, sess.ID)
	if err != nil {
		return nil, err
	}
	byMonth := make(map[string]*FeeLedgerEntry, len(entries))
	for i := range entries {
		byMonth[entries[i].Month] = &entries[i]
	}

	overview := make([]MonthOverview, 0, len(Months))
	for _, m := range Months {
		slot := MonthOverview{Month: m, Status: StatusNotGenerated}
		if e, ok := byMonth[m]; ok {
			slot.Status = e.Status
			slot.Entry = e
		}
		overview = append(overview, slot)
	}
	return overview, nil
}

// Collect records a payment atomically: the ledger row is locked, the detail
// appended with a fresh receipt number, totals re-summed and status derived,
// all inside one transaction.
func (s *Service) Collect(ctx context.Context, branchID, actorID int64, req CollectRequest) (*FeeLedgerEntry, *PaymentDetail, error) {
	if !IsValidMonth(req.Month) {
		return nil, nil, shared.ValidationError("unknown month %q", req.Month)
	}
	detail, err := validatePayment(req.Payment)
	if err != nil {
		return nil, nil, err
	}
	if req.DiscountOverride != nil && *req.DiscountOverride < 0 {
		return nil, nil, shared.ValidationError("discount cannot be negative")
	}
	if req.ExcessAmount != nil && *req.ExcessAmount < 0 {
		return nil, nil, shared.ValidationError("excessAmount cannot be negative")
	}
	sess, err := s.resolveSession(ctx, branchID, req.SessionID)
	if err != nil {
		return nil, nil, err
	}
	// Build the prospective entry up front so no masterdata reads happen
	// while the ledger row is locked.
	fresh, err := s.buildEntry(ctx, branchID, req.StudentID, sess, req.Month)
	if err != nil {
		return nil, nil, err
	}

	if req.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, req.IdempotencyKey, "fees.collect"); err != nil {
			return nil, nil, err
		}
	}

	var entry *FeeLedgerEntry
	txErr := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.GetEntryForUpdate(ctx, branchID, req.StudentID, sess.ID, req.Month)
		if errors.Is(err, shared.ErrNotFound) {
			if err = tx.InsertEntry(ctx, fresh); errors.Is(err, shared.ErrDuplicate) {
				e, err = tx.GetEntryForUpdate(ctx, branchID, req.StudentID, sess.ID, req.Month)
			} else if err == nil {
				e = fresh
			}
		}
		if err != nil {
			return err
		}

		if req.DiscountOverride != nil {
			e.Discount = Round2(*req.DiscountOverride)
		}
		if req.ExcessAmount != nil {
			e.ExcessAmount = Round2(*req.ExcessAmount)
		}

		seq, err := tx.NextReceiptSeq(ctx, branchID)
		if err != nil {
			return err
		}
		detail.ReceiptNo = FormatReceiptNo(seq)
		detail.CreatedAt = s.now()
		if err := tx.InsertPayment(ctx, branchID, e.ID, &detail); err != nil {
			return err
		}
		e.PaymentDetails = append(e.PaymentDetails, detail)
		e.UpdatedAt = s.now()
		e.Recompute()
		if err := tx.UpdateEntry(ctx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if txErr != nil {
		if req.IdempotencyKey != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, req.IdempotencyKey)
		}
		return nil, nil, txErr
	}

	s.recordAudit(ctx, actorID, branchID, "fees.collect", entry, map[string]any{
		"receiptNo":  detail.ReceiptNo,
		"amountPaid": detail.AmountPaid,
		"mode":       string(detail.Mode),
	})
	if s.metrics != nil {
		s.metrics.CountPayment(string(detail.Mode))
	}
	s.logger.Info("payment collected",
		slog.Int64("student_id", entry.StudentID),
		slog.String("month", entry.Month),
		slog.String("receipt", detail.ReceiptNo),
		slog.Float64("amount", detail.AmountPaid),
	)
	return entry, &detail, nil
}

// EditPayment replaces an existing payment detail and recomputes the entry
// from the full payment list. The receipt number is preserved.
func (s *Service) EditPayment(ctx context.Context, branchID, actorID int64, req EditRequest) (*FeeLedgerEntry, error) {
	if !IsValidMonth(req.Month) {
		return nil, shared.ValidationError("unknown month %q", req.Month)
	}
	detail, err := validatePayment(req.Payment)
	if err != nil {
		return nil, err
	}
	sess, err := s.resolveSession(ctx, branchID, req.SessionID)
	if err != nil {
		return nil, err
	}

	var entry *FeeLedgerEntry
	txErr := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.GetEntryForUpdate(ctx, branchID, req.StudentID, sess.ID, req.Month)
		if err != nil {
			return err
		}
		idx := -1
		for i := range e.PaymentDetails {
			if e.PaymentDetails[i].ID == req.PaymentID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return shared.NotFoundError("payment detail")
		}

		existing := e.PaymentDetails[idx]
		detail.ID = existing.ID
		detail.ReceiptNo = existing.ReceiptNo
		detail.CreatedAt = existing.CreatedAt
		e.PaymentDetails[idx] = detail

		if err := tx.UpdatePayment(ctx, e.ID, detail); err != nil {
			return err
		}
		e.UpdatedAt = s.now()
		e.Recompute()
		if err := tx.UpdateEntry(ctx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.recordAudit(ctx, actorID, branchID, "fees.edit_payment", entry, map[string]any{
		"paymentId":  req.PaymentID,
		"amountPaid": detail.AmountPaid,
		"mode":       string(detail.Mode),
	})
	return entry, nil
}

// PreviewNextReceiptNumber reads the counter without committing an increment.
func (s *Service) PreviewNextReceiptNumber(ctx context.Context, branchID int64) (string, error) {
	seq, err := s.repo.PeekReceiptSeq(ctx, branchID)
	if err != nil {
		return "", err
	}
	return FormatReceiptNo(seq + 1), nil
}

// FormatReceiptNo renders a counter value as a receipt number.
func FormatReceiptNo(seq int64) string {
	return fmt.Sprintf("REC-%06d", seq)
}

func (s *Service) recordAudit(ctx context.Context, actorID, branchID int64, action string, entry *FeeLedgerEntry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		BranchID: branchID,
		Action:   action,
		Entity:   "fee_ledger_entry",
		EntityID: fmt.Sprintf("%d", entry.ID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
