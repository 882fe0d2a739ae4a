// Package fees implements the student fee ledger: one entry per student,
// session and month, carrying line items, concession discounts and the
// payments recorded against it.
package fees

import (
	"math"
	"time"
)

// Status enumerates ledger entry states. Status is never stored by clients;
// it is derived from the amount invariant after every mutation.
type Status string

const (
	StatusNotGenerated  Status = "not_generated"
	StatusPending       Status = "pending"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
)

// PaymentMode enumerates accepted payment modes.
type PaymentMode string

const (
	ModeCash         PaymentMode = "Cash"
	ModeBankTransfer PaymentMode = "BankTransfer"
	ModeCheque       PaymentMode = "Cheque"
	ModeCardPayment  PaymentMode = "CardPayment"
	ModeWallet       PaymentMode = "Wallet"
	ModeIMPS         PaymentMode = "IMPS"
)

// Months is the school-year calendar, April through March.
var Months = []string{"Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec", "Jan", "Feb", "Mar"}

// quarterStarts are the months in which quarterly fee groups are charged.
var quarterStarts = map[string]bool{"Apr": true, "Jul": true, "Oct": true, "Jan": true}

// IsValidMonth reports whether the token is part of the school calendar.
func IsValidMonth(month string) bool {
	for _, m := range Months {
		if m == month {
			return true
		}
	}
	return false
}

// FeeLine is one fee group's share of a ledger entry.
type FeeLine struct {
	FeeGroupID     int64   `json:"feeGroupId"`
	Name           string  `json:"name"`
	OriginalAmount float64 `json:"originalAmount"`
	Discount       float64 `json:"discount"`
	Amount         float64 `json:"amount"`
}

// PaymentDetail is one payment recorded against a ledger entry.
type PaymentDetail struct {
	ID              int64       `json:"id"`
	ReceiptNo       string      `json:"paymentId"`
	Mode            PaymentMode `json:"modeOfPayment"`
	CollectionDate  time.Time   `json:"collectionDate"`
	AmountPaid      float64     `json:"amountPaid"`
	TransactionNo   string      `json:"transactionNo,omitempty"`
	TransactionDate *time.Time  `json:"transactionDate,omitempty"`
	ChequeNo        string      `json:"chequeNo,omitempty"`
	ChequeDate      *time.Time  `json:"chequeDate,omitempty"`
	BankName        string      `json:"bankName,omitempty"`
	Remarks         string      `json:"remarks,omitempty"`
	InternalNotes   string      `json:"internalNotes,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// FeeLedgerEntry is one student's fee obligation for one month of a session.
type FeeLedgerEntry struct {
	ID             int64           `json:"id"`
	BranchID       int64           `json:"branchId"`
	StudentID      int64           `json:"studentId"`
	SessionID      int64           `json:"sessionId"`
	Month          string          `json:"month"`
	Lines          []FeeLine       `json:"fees"`
	Amount         float64         `json:"amount"`
	Discount       float64         `json:"discount"`
	NetPayable     float64         `json:"netPayable"`
	ExcessAmount   float64         `json:"excessAmount"`
	AmountPaid     float64         `json:"amountPaid"`
	BalanceAmount  float64         `json:"balanceAmount"`
	Status         Status          `json:"status"`
	DueDate        *time.Time      `json:"dueDate,omitempty"`
	PaymentDetails []PaymentDetail `json:"paymentDetails"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// DeriveStatus computes the entry status from the amount invariant. It is a
// pure function: every mutation recomputes status through it rather than
// setting the field directly.
func DeriveStatus(netPayable, excessAmount, amountPaid float64) Status {
	total := netPayable + excessAmount
	switch {
	case amountPaid <= 0:
		return StatusPending
	case amountPaid < total:
		return StatusPartiallyPaid
	default:
		return StatusPaid
	}
}

// Recompute restores the entry invariants from its line items and payments:
// amount = sum(lines), discount = sum(line discounts) unless overridden,
// netPayable = amount - discount, amountPaid = sum(payments),
// balance = max(0, netPayable + excess - paid), status = DeriveStatus.
func (e *FeeLedgerEntry) Recompute() {
	var amount float64
	for _, line := range e.Lines {
		amount += line.OriginalAmount
	}
	e.Amount = Round2(amount)
	e.NetPayable = Round2(e.Amount - e.Discount)

	var paid float64
	for _, p := range e.PaymentDetails {
		paid += p.AmountPaid
	}
	e.AmountPaid = Round2(paid)
	e.BalanceAmount = Round2(math.Max(0, e.NetPayable+e.ExcessAmount-e.AmountPaid))
	e.Status = DeriveStatus(e.NetPayable, e.ExcessAmount, e.AmountPaid)
}

// Round2 rounds to currency precision.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
