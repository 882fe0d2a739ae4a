// Package masterdata manages the reference records the fee ledger depends on:
// academic sessions, classes, students, fee groups and concession categories.
// All records are scoped to a branch (tenant).
package masterdata

import "time"

// FeeGroup periodicity values.
const (
	PeriodicityMonthly   = "monthly"
	PeriodicityQuarterly = "quarterly"
	PeriodicityOneTime   = "one_time"
)

// AcademicSession is one school year, e.g. "2025-2026".
type AcademicSession struct {
	ID        int64     `json:"id"`
	BranchID  int64     `json:"branchId"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// Class belongs to an academic session.
type Class struct {
	ID        int64     `json:"id"`
	BranchID  int64     `json:"branchId"`
	SessionID int64     `json:"sessionId"`
	Name      string    `json:"name"`
	Section   string    `json:"section,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Student is enrolled in one class; the concession category is optional.
type Student struct {
	ID            int64     `json:"id"`
	BranchID      int64     `json:"branchId"`
	ClassID       int64     `json:"classId"`
	AdmissionNo   string    `json:"admissionNo"`
	Name          string    `json:"name"`
	GuardianName  string    `json:"guardianName,omitempty"`
	GuardianPhone string    `json:"guardianPhone,omitempty"`
	ConcessionID  int64     `json:"concessionId,omitempty"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FeeGroup is one charge head (tuition, transport, ...) with a periodicity.
type FeeGroup struct {
	ID          int64     `json:"id"`
	BranchID    int64     `json:"branchId"`
	Name        string    `json:"name"`
	Periodicity string    `json:"periodicity"`
	Amount      float64   `json:"amount"`
	ClassIDs    []int64   `json:"classIds"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ConcessionRule reduces one fee group by a percentage.
type ConcessionRule struct {
	FeeGroupID      int64   `json:"feeGroupId"`
	PercentDiscount float64 `json:"percentDiscount"`
}

// ConcessionCategory is a named discount bundle, e.g. "sibling" or "staff".
type ConcessionCategory struct {
	ID        int64            `json:"id"`
	BranchID  int64            `json:"branchId"`
	Name      string           `json:"name"`
	Rules     []ConcessionRule `json:"rules"`
	CreatedAt time.Time        `json:"createdAt"`
}
