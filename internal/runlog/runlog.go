// Package runlog keeps an append-only CSV audit trail of sync runs.
package runlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cleared-dev/walletsync/internal/model"
)

// Actions recorded in the log.
const (
	ActionRun     = "run"     // one summary row per run
	ActionInsert  = "insert"  // a transaction created on the ledger
	ActionFail    = "fail"    // a transaction the ledger refused
	ActionPending = "pending" // dry run: would have been inserted
	ActionFlag    = "flag"    // an entry with an unrecognized funding combination
)

// FileName is the log file inside the audit directory.
const FileName = "sync-log.csv"

// Entry is one row in the run log.
type Entry struct {
	Timestamp  time.Time
	RunID      string
	Action     string
	ExternalID string
	LedgerID   int64 // zero when nothing was inserted
	Amount     string
	Details    string
}

// Header is the CSV header for sync-log.csv.
const Header = "timestamp,run_id,action,external_id,ledger_id,amount,details"

const (
	numFields     = 7
	colTimestamp  = 0
	colRunID      = 1
	colAction     = 2
	colExternalID = 3
	colLedgerID   = 4
	colAmount     = 5
	colDetails    = 6
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colRunID] = e.RunID
	row[colAction] = e.Action
	row[colExternalID] = e.ExternalID
	if e.LedgerID != 0 {
		row[colLedgerID] = strconv.FormatInt(e.LedgerID, 10)
	}
	row[colAmount] = e.Amount
	row[colDetails] = e.Details
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	var ledgerID int64
	if s := record[colLedgerID]; s != "" {
		ledgerID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("parsing ledger_id %q: %w", s, err)
		}
	}

	return Entry{
		Timestamp:  ts,
		RunID:      record[colRunID],
		Action:     record[colAction],
		ExternalID: record[colExternalID],
		LedgerID:   ledgerID,
		Amount:     record[colAmount],
		Details:    record[colDetails],
	}, nil
}

// FromReport flattens a sync report into log rows: a summary row followed by
// one row per flag, insert, failure and pending transaction.
func FromReport(r *model.SyncReport, at time.Time) []Entry {
	summary := fmt.Sprintf("status=%s window=%s beginning=%s ending=%s inserted=%d failed=%d skipped=%d dry_run=%t",
		r.Status, r.Window, r.Beginning.StringFixed(2), r.Ending.StringFixed(2),
		len(r.Inserted), len(r.Failures), r.Skipped, r.DryRun)
	entries := []Entry{{Timestamp: at, RunID: r.RunID, Action: ActionRun, Details: summary}}

	for _, f := range r.Flags {
		entries = append(entries, Entry{Timestamp: at, RunID: r.RunID, Action: ActionFlag, Details: f})
	}
	for _, ins := range r.Inserted {
		entries = append(entries, Entry{
			Timestamp:  at,
			RunID:      r.RunID,
			Action:     ActionInsert,
			ExternalID: ins.ExternalID,
			LedgerID:   ins.LedgerID,
			Amount:     ins.Amount.StringFixed(2),
			Details:    ins.Payee,
		})
	}
	for _, f := range r.Failures {
		entries = append(entries, Entry{
			Timestamp:  at,
			RunID:      r.RunID,
			Action:     ActionFail,
			ExternalID: f.ExternalID,
			Amount:     f.Amount.StringFixed(2),
			Details:    f.Reason,
		})
	}
	for _, p := range r.Pending {
		entries = append(entries, Entry{
			Timestamp:  at,
			RunID:      r.RunID,
			Action:     ActionPending,
			ExternalID: p.ExternalID,
			Amount:     p.Amount.StringFixed(2),
			Details:    p.Payee,
		})
	}
	return entries
}

// Path returns the log file location inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Append writes entries to <dir>/sync-log.csv, creating the file and header if needed.
func Append(dir string, entries []Entry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}

	path := Path(dir)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Read returns all entries from <dir>/sync-log.csv.
// Returns an empty slice if the file does not exist.
func Read(dir string) ([]Entry, error) {
	f, err := os.Open(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading run log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
