package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletBalance is the funding source / destination label the wallet uses
// for its own cash balance. Anything else names a linked bank or card.
const WalletBalance = "Venmo balance"

// WalletEntry is one raw statement row describing a single wallet event.
type WalletEntry struct {
	ID             string
	Time           time.Time
	Type           string          // raw type code ("Payment", "Standard Transfer", ...)
	Status         string          // "Complete", "Issued", ...
	Amount         decimal.Decimal // negative = money left the wallet
	CurrencySymbol string          // "$"
	Note           string
	From           string
	To             string
	FundingSource  string
	Destination    string
}

// FundedExternally reports whether the entry was paid from a linked bank or
// card instead of the wallet balance.
func (e WalletEntry) FundedExternally() bool {
	return isExternal(e.FundingSource)
}

// DepositedExternally reports whether the entry was paid out to a linked
// bank or card instead of the wallet balance.
func (e WalletEntry) DepositedExternally() bool {
	return isExternal(e.Destination)
}

func isExternal(source string) bool {
	return source != "" && source != WalletBalance
}

// BalanceSnapshot is the wallet's reported balance at each end of a window.
type BalanceSnapshot struct {
	Beginning decimal.Decimal
	Ending    decimal.Decimal
}

// Statement is everything the wallet reports for one window.
type Statement struct {
	Snapshot BalanceSnapshot
	Entries  []WalletEntry
}

// SyncWindow bounds a sync run. A zero End means "now".
type SyncWindow struct {
	Start time.Time
	End   time.Time
}

// Resolve pins a zero End to now so the window cannot drift during a run.
func (w SyncWindow) Resolve(now time.Time) SyncWindow {
	if w.End.IsZero() {
		w.End = now
	}
	return w
}

// Contains reports whether t falls inside the window (inclusive).
func (w SyncWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func (w SyncWindow) String() string {
	return w.Start.Format("2006-01-02") + ".." + w.End.Format("2006-01-02")
}
