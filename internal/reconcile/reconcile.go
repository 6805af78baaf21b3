// Package reconcile holds the two pre-submission gates of a sync run: the
// balance check and the idempotency filter.
package reconcile

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/walletsync/internal/model"
)

// DefaultTolerance is the largest drift accepted between the computed and
// reported ending balance.
var DefaultTolerance = decimal.New(1, -2)

// ErrReconciliationMismatch is matched by every *MismatchError.
var ErrReconciliationMismatch = errors.New("reconciliation mismatch")

// MismatchError reports a window whose transactions do not explain the
// wallet's balance change.
type MismatchError struct {
	Window     model.SyncWindow
	Beginning  decimal.Decimal
	Ending     decimal.Decimal
	Computed   decimal.Decimal
	Difference decimal.Decimal // Ending - Computed
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("balance mismatch for %s: beginning %s + transactions = %s, wallet reports %s (off by %s)",
		e.Window, e.Beginning.StringFixed(2), e.Computed.StringFixed(2),
		e.Ending.StringFixed(2), e.Difference.StringFixed(2))
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrReconciliationMismatch
}

// Reconcile checks beginning + sum(amounts) against the snapshot's ending
// balance. amounts must be the full sequence for the window, including
// transactions already on the ledger.
func Reconcile(window model.SyncWindow, snapshot model.BalanceSnapshot, amounts []decimal.Decimal, tolerance decimal.Decimal) error {
	computed := snapshot.Beginning
	for _, a := range amounts {
		computed = computed.Add(a)
	}
	diff := snapshot.Ending.Sub(computed)
	if diff.Abs().GreaterThan(tolerance.Abs()) {
		return &MismatchError{
			Window:     window,
			Beginning:  snapshot.Beginning,
			Ending:     snapshot.Ending,
			Computed:   computed,
			Difference: diff,
		}
	}
	return nil
}

// Amounts extracts the signed amounts of txns in order.
func Amounts(txns []model.LedgerTransaction) []decimal.Decimal {
	out := make([]decimal.Decimal, len(txns))
	for i, tx := range txns {
		out[i] = tx.Amount
	}
	return out
}

// Step is the wallet balance after one transaction.
type Step struct {
	ExternalID string
	Amount     decimal.Decimal
	Balance    decimal.Decimal
}

// Trace returns the running balance after each transaction.
func Trace(beginning decimal.Decimal, txns []model.LedgerTransaction) []Step {
	steps := make([]Step, 0, len(txns))
	bal := beginning
	for _, tx := range txns {
		bal = bal.Add(tx.Amount)
		steps = append(steps, Step{ExternalID: tx.ExternalID, Amount: tx.Amount, Balance: bal})
	}
	return steps
}

// FirstNegative returns the first step whose balance is below zero.
func FirstNegative(steps []Step) (Step, bool) {
	for _, s := range steps {
		if s.Balance.IsNegative() {
			return s, true
		}
	}
	return Step{}, false
}
