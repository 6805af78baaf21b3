package model

import (
	"github.com/shopspring/decimal"
)

// RunStatus is the terminal state of a sync run that reached Reporting.
type RunStatus string

const (
	RunCompleted             RunStatus = "completed"
	RunCompletedWithFailures RunStatus = "completed-with-partial-failures"
	RunAborted               RunStatus = "aborted"
)

// Inserted is one ledger transaction created by a run.
type Inserted struct {
	LedgerID   int64
	ExternalID string
	Amount     decimal.Decimal
	Payee      string
}

// Failure is one ledger transaction that could not be submitted.
type Failure struct {
	ExternalID string
	Amount     decimal.Decimal
	Payee      string
	Reason     string
}

// SyncReport summarizes a sync run.
type SyncReport struct {
	RunID     string
	Window    SyncWindow
	Status    RunStatus
	DryRun    bool
	Beginning decimal.Decimal
	Ending    decimal.Decimal
	Inserted  []Inserted
	Pending   []LedgerTransaction // dry runs only: what would have been inserted
	Skipped   int                 // already on the ledger
	Failures  []Failure
	Flags     []string
}

// InsertedIDs returns the ledger ids of inserted transactions in order.
func (r *SyncReport) InsertedIDs() []int64 {
	ids := make([]int64, 0, len(r.Inserted))
	for _, ins := range r.Inserted {
		ids = append(ids, ins.LedgerID)
	}
	return ids
}
