package fees

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusledger/campusledger/internal/platform/db"
	"github.com/campusledger/campusledger/internal/shared"
)

// TxRepository is the data surface available inside a ledger transaction.
type TxRepository interface {
	GetEntryForUpdate(ctx context.Context, branchID, studentID, sessionID int64, month string) (*FeeLedgerEntry, error)
	InsertEntry(ctx context.Context, e *FeeLedgerEntry) error
	UpdateEntry(ctx context.Context, e *FeeLedgerEntry) error
	InsertPayment(ctx context.Context, branchID, entryID int64, p *PaymentDetail) error
	UpdatePayment(ctx context.Context, entryID int64, p PaymentDetail) error
	NextReceiptSeq(ctx context.Context, branchID int64) (int64, error)
}

// RepositoryPort defines ledger persistence.
type RepositoryPort interface {
	GetEntry(ctx context.Context, branchID, studentID, sessionID int64, month string) (*FeeLedgerEntry, error)
	CreateEntry(ctx context.Context, e *FeeLedgerEntry) (*FeeLedgerEntry, error)
	ListEntriesBySession(ctx context.Context, branchID, studentID, sessionID int64) ([]FeeLedgerEntry, error)
	PeekReceiptSeq(ctx context.Context, branchID int64) (int64, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides PostgreSQL backed ledger persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `id, branch_id, student_id, session_id, month, amount, discount,
	net_payable, excess_amount, amount_paid, balance_amount, status, due_date,
	created_at, updated_at`

func scanEntry(row pgx.Row) (*FeeLedgerEntry, error) {
	var e FeeLedgerEntry
	err := row.Scan(&e.ID, &e.BranchID, &e.StudentID, &e.SessionID, &e.Month,
		&e.Amount, &e.Discount, &e.NetPayable, &e.ExcessAmount, &e.AmountPaid,
		&e.BalanceAmount, &e.Status, &e.DueDate, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFoundError("fee ledger entry")
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func loadLines(ctx context.Context, q querier, entryID int64) ([]FeeLine, error) {
	rows, err := q.Query(ctx, `
		SELECT fee_group_id, name, original_amount, discount, amount
		FROM fee_ledger_lines
		WHERE entry_id = $1
		ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []FeeLine
	for rows.Next() {
		var l FeeLine
		if err := rows.Scan(&l.FeeGroupID, &l.Name, &l.OriginalAmount, &l.Discount, &l.Amount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func loadPayments(ctx context.Context, q querier, entryID int64) ([]PaymentDetail, error) {
	rows, err := q.Query(ctx, `
		SELECT id, receipt_no, mode, collection_date, amount_paid,
			COALESCE(transaction_no, ''), transaction_date,
			COALESCE(cheque_no, ''), cheque_date, COALESCE(bank_name, ''),
			COALESCE(remarks, ''), COALESCE(internal_notes, ''), created_at
		FROM fee_payments
		WHERE entry_id = $1
		ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []PaymentDetail
	for rows.Next() {
		var p PaymentDetail
		if err := rows.Scan(&p.ID, &p.ReceiptNo, &p.Mode, &p.CollectionDate, &p.AmountPaid,
			&p.TransactionNo, &p.TransactionDate, &p.ChequeNo, &p.ChequeDate, &p.BankName,
			&p.Remarks, &p.InternalNotes, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func getEntry(ctx context.Context, q querier, branchID, studentID, sessionID int64, month string, forUpdate bool) (*FeeLedgerEntry, error) {
	query := `SELECT ` + entryColumns + `
		FROM fee_ledger_entries
		WHERE branch_id = $1 AND student_id = $2 AND session_id = $3 AND month = $4`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	e, err := scanEntry(q.QueryRow(ctx, query, branchID, studentID, sessionID, month))
	if err != nil {
		return nil, err
	}
	if e.Lines, err = loadLines(ctx, q, e.ID); err != nil {
		return nil, err
	}
	if e.PaymentDetails, err = loadPayments(ctx, q, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

func insertEntry(ctx context.Context, q querier, e *FeeLedgerEntry) error {
	err := q.QueryRow(ctx, `
		INSERT INTO fee_ledger_entries (branch_id, student_id, session_id, month,
			amount, discount, net_payable, excess_amount, amount_paid, balance_amount,
			status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		e.BranchID, e.StudentID, e.SessionID, e.Month,
		e.Amount, e.Discount, e.NetPayable, e.ExcessAmount, e.AmountPaid, e.BalanceAmount,
		e.Status, e.DueDate,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if isUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	if err != nil {
		return err
	}
	for _, l := range e.Lines {
		if _, err := q.Exec(ctx, `
			INSERT INTO fee_ledger_lines (entry_id, fee_group_id, name, original_amount, discount, amount)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, l.FeeGroupID, l.Name, l.OriginalAmount, l.Discount, l.Amount); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetEntry fetches one ledger entry with lines and payments.
func (r *Repository) GetEntry(ctx context.Context, branchID, studentID, sessionID int64, month string) (*FeeLedgerEntry, error) {
	return getEntry(ctx, r.pool, branchID, studentID, sessionID, month, false)
}

// CreateEntry inserts a fresh ledger entry and its line items in one
// transaction. Returns shared.ErrDuplicate when the unique
// (student, session, month) index rejects the row.
func (r *Repository) CreateEntry(ctx context.Context, e *FeeLedgerEntry) (*FeeLedgerEntry, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := insertEntry(ctx, tx, e); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// ListEntriesBySession returns all generated months for a student, in
// school-calendar order.
func (r *Repository) ListEntriesBySession(ctx context.Context, branchID, studentID, sessionID int64) ([]FeeLedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM fee_ledger_entries
		WHERE branch_id = $1 AND student_id = $2 AND session_id = $3
		ORDER BY id`, branchID, studentID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []FeeLedgerEntry
	for rows.Next() {
		var e FeeLedgerEntry
		if err := rows.Scan(&e.ID, &e.BranchID, &e.StudentID, &e.SessionID, &e.Month,
			&e.Amount, &e.Discount, &e.NetPayable, &e.ExcessAmount, &e.AmountPaid,
			&e.BalanceAmount, &e.Status, &e.DueDate, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].Lines, err = loadLines(ctx, r.pool, entries[i].ID); err != nil {
			return nil, err
		}
		if entries[i].PaymentDetails, err = loadPayments(ctx, r.pool, entries[i].ID); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// PeekReceiptSeq reads the current counter value without incrementing.
func (r *Repository) PeekReceiptSeq(ctx context.Context, branchID int64) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE((SELECT value FROM counters WHERE branch_id = $1 AND scope = 'receipt'), 0)`,
		branchID).Scan(&seq)
	return seq, err
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

// GetEntryForUpdate locks and loads the ledger row.
func (t *txRepository) GetEntryForUpdate(ctx context.Context, branchID, studentID, sessionID int64, month string) (*FeeLedgerEntry, error) {
	return getEntry(ctx, t.tx, branchID, studentID, sessionID, month, true)
}

// InsertEntry inserts the entry and its lines inside the transaction.
func (t *txRepository) InsertEntry(ctx context.Context, e *FeeLedgerEntry) error {
	return insertEntry(ctx, t.tx, e)
}

// UpdateEntry persists recomputed totals and status.
func (t *txRepository) UpdateEntry(ctx context.Context, e *FeeLedgerEntry) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE fee_ledger_entries
		SET amount = $1, discount = $2, net_payable = $3, excess_amount = $4,
			amount_paid = $5, balance_amount = $6, status = $7, updated_at = NOW()
		WHERE id = $8`,
		e.Amount, e.Discount, e.NetPayable, e.ExcessAmount,
		e.AmountPaid, e.BalanceAmount, e.Status, e.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundError("fee ledger entry")
	}
	return nil
}

// InsertPayment appends a payment detail row and fills its id. Receipt
// numbers are unique per branch; a collision surfaces as ErrDuplicate.
func (t *txRepository) InsertPayment(ctx context.Context, branchID, entryID int64, p *PaymentDetail) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO fee_payments (branch_id, entry_id, receipt_no, mode, collection_date, amount_paid,
			transaction_no, transaction_date, cheque_no, cheque_date, bank_name,
			remarks, internal_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), $10, NULLIF($11, ''),
			NULLIF($12, ''), NULLIF($13, ''), NOW())
		RETURNING id, created_at`,
		branchID, entryID, p.ReceiptNo, p.Mode, p.CollectionDate, p.AmountPaid,
		p.TransactionNo, p.TransactionDate, p.ChequeNo, p.ChequeDate, p.BankName,
		p.Remarks, p.InternalNotes,
	).Scan(&p.ID, &p.CreatedAt)
	if isUniqueViolation(err) {
		return shared.ErrDuplicate
	}
	return err
}

// UpdatePayment replaces an existing detail in place.
func (t *txRepository) UpdatePayment(ctx context.Context, entryID int64, p PaymentDetail) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE fee_payments
		SET mode = $1, collection_date = $2, amount_paid = $3,
			transaction_no = NULLIF($4, ''), transaction_date = $5,
			cheque_no = NULLIF($6, ''), cheque_date = $7, bank_name = NULLIF($8, ''),
			remarks = NULLIF($9, ''), internal_notes = NULLIF($10, '')
		WHERE id = $11 AND entry_id = $12`,
		p.Mode, p.CollectionDate, p.AmountPaid,
		p.TransactionNo, p.TransactionDate,
		p.ChequeNo, p.ChequeDate, p.BankName,
		p.Remarks, p.InternalNotes, p.ID, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFoundError("payment detail")
	}
	return nil
}

// NextReceiptSeq increments and returns the per-branch receipt counter.
func (t *txRepository) NextReceiptSeq(ctx context.Context, branchID int64) (int64, error) {
	var seq int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO counters (branch_id, scope, value)
		VALUES ($1, 'receipt', 1)
		ON CONFLICT (branch_id, scope) DO UPDATE SET value = counters.value + 1
		RETURNING value`, branchID).Scan(&seq)
	return seq, err
}

// OverdueEntry is one reminder candidate found by the overdue scan.
type OverdueEntry struct {
	EntryID       int64
	BranchID      int64
	StudentID     int64
	StudentName   string
	GuardianPhone string
	Month         string
	BalanceAmount float64
	DueDate       time.Time
}

// OverdueEntries returns unpaid entries past their due date, used by the
// reminder scan job.
func (r *Repository) OverdueEntries(ctx context.Context, asOf time.Time, limit int) ([]OverdueEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.branch_id, e.student_id, s.name, COALESCE(s.guardian_phone, ''),
			e.month, e.balance_amount, e.due_date
		FROM fee_ledger_entries e
		JOIN students s ON s.id = e.student_id
		WHERE e.status IN ('pending', 'partially_paid')
			AND e.due_date IS NOT NULL AND e.due_date < $1
		ORDER BY e.due_date
		LIMIT $2`, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overdue []OverdueEntry
	for rows.Next() {
		var o OverdueEntry
		if err := rows.Scan(&o.EntryID, &o.BranchID, &o.StudentID, &o.StudentName,
			&o.GuardianPhone, &o.Month, &o.BalanceAmount, &o.DueDate); err != nil {
			return nil, err
		}
		overdue = append(overdue, o)
	}
	return overdue, rows.Err()
}

// DriftRow reports an entry whose stored totals disagree with its payments.
type DriftRow struct {
	EntryID    int64
	StudentID  int64
	Month      string
	StoredPaid float64
	ActualPaid float64
}

// IntegrityDrift re-sums payment details per entry and returns the rows whose
// stored amount_paid disagrees.
func (r *Repository) IntegrityDrift(ctx context.Context) ([]DriftRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT e.id, e.student_id, e.month, e.amount_paid,
			COALESCE(SUM(p.amount_paid), 0) AS actual
		FROM fee_ledger_entries e
		LEFT JOIN fee_payments p ON p.entry_id = e.id
		GROUP BY e.id
		HAVING ROUND(e.amount_paid::numeric, 2) <> ROUND(COALESCE(SUM(p.amount_paid), 0)::numeric, 2)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drift []DriftRow
	for rows.Next() {
		var d DriftRow
		if err := rows.Scan(&d.EntryID, &d.StudentID, &d.Month, &d.StoredPaid, &d.ActualPaid); err != nil {
			return nil, err
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
var _ TxRepository = (*txRepository)(nil)
