package statement

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/walletsync/internal/model"
)

// VenmoParser parses Venmo account statement CSV exports.
type VenmoParser struct{}

const (
	venmoDateFormat = "2006-01-02T15:04:05"
	// headerSearchRows bounds how many preamble rows may precede the header.
	headerSearchRows = 5
)

const (
	colID        = "ID"
	colDatetime  = "Datetime"
	colType      = "Type"
	colStatus    = "Status"
	colNote      = "Note"
	colFrom      = "From"
	colTo        = "To"
	colAmount    = "Amount (total)"
	colFunding   = "Funding Source"
	colDest      = "Destination"
	colBeginning = "Beginning Balance"
	colEnding    = "Ending Balance"
)

var requiredColumns = []string{colID, colDatetime, colType, colStatus, colAmount, colFunding, colDest, colBeginning, colEnding}

// venmoAmountRe matches "- $339.11", "+ $25.00", "$1,200.00".
var venmoAmountRe = regexp.MustCompile(`^([-+]?)\s?([^0-9\s])([0-9][0-9,]*(?:\.[0-9]+)?)$`)

// Format returns the parser name.
func (p *VenmoParser) Format() string { return "venmo" }

// Parse reads a Venmo statement CSV and returns its entries and balances.
func (p *VenmoParser) Parse(r io.Reader) (*model.Statement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading venmo CSV: %w", err)
	}

	headerRow, cols, err := findHeader(records)
	if err != nil {
		return nil, err
	}

	var (
		stmt         model.Statement
		hasBeginning bool
		hasEnding    bool
	)
	for i, rec := range records[headerRow+1:] {
		rowNum := headerRow + i + 2
		row := rowView{rec: rec, cols: cols}

		if v := row.get(colBeginning); v != "" && !hasBeginning {
			amt, _, err := ParseAmount(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: parsing beginning balance: %w", rowNum, err)
			}
			stmt.Snapshot.Beginning = amt
			hasBeginning = true
		}
		if v := row.get(colEnding); v != "" {
			amt, _, err := ParseAmount(v)
			if err != nil {
				return nil, fmt.Errorf("row %d: parsing ending balance: %w", rowNum, err)
			}
			stmt.Snapshot.Ending = amt
			hasEnding = true
		}
		if row.get(colID) == "" {
			continue
		}

		entry, err := parseVenmoRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rowNum, err)
		}
		stmt.Entries = append(stmt.Entries, entry)
	}

	if !hasBeginning {
		return nil, errors.New("venmo statement has no beginning balance")
	}
	if !hasEnding {
		return nil, errors.New("venmo statement has no ending balance")
	}
	return &stmt, nil
}

func findHeader(records [][]string) (int, map[string]int, error) {
	for i := 0; i < len(records) && i < headerSearchRows; i++ {
		cols := make(map[string]int, len(records[i]))
		for j, name := range records[i] {
			cols[strings.TrimSpace(name)] = j
		}
		if _, ok := cols[colID]; !ok {
			continue
		}
		if _, ok := cols[colDatetime]; !ok {
			continue
		}
		for _, name := range requiredColumns {
			if _, ok := cols[name]; !ok {
				return 0, nil, fmt.Errorf("venmo statement header missing column %q", name)
			}
		}
		return i, cols, nil
	}
	return 0, nil, errors.New("venmo statement header not found")
}

type rowView struct {
	rec  []string
	cols map[string]int
}

func (r rowView) get(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func parseVenmoRow(row rowView) (model.WalletEntry, error) {
	for _, name := range []string{colDatetime, colType, colStatus, colAmount} {
		if row.get(name) == "" {
			return model.WalletEntry{}, fmt.Errorf("entry %s: missing %q", row.get(colID), name)
		}
	}

	ts, err := time.Parse(venmoDateFormat, row.get(colDatetime))
	if err != nil {
		return model.WalletEntry{}, fmt.Errorf("parsing datetime %q: %w", row.get(colDatetime), err)
	}

	amount, symbol, err := ParseAmount(row.get(colAmount))
	if err != nil {
		return model.WalletEntry{}, fmt.Errorf("parsing amount: %w", err)
	}

	return model.WalletEntry{
		ID:             row.get(colID),
		Time:           ts.UTC(),
		Type:           row.get(colType),
		Status:         row.get(colStatus),
		Amount:         amount,
		CurrencySymbol: symbol,
		Note:           row.get(colNote),
		From:           row.get(colFrom),
		To:             row.get(colTo),
		FundingSource:  row.get(colFunding),
		Destination:    row.get(colDest),
	}, nil
}

// ParseAmount parses a Venmo amount like "- $339.11" into a signed decimal
// and the currency symbol it was printed with.
func ParseAmount(s string) (decimal.Decimal, string, error) {
	m := venmoAmountRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return decimal.Zero, "", fmt.Errorf("invalid amount %q", s)
	}
	val, err := decimal.NewFromString(strings.ReplaceAll(m[3], ",", ""))
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if m[1] == "-" {
		val = val.Neg()
	}
	return val, m[2], nil
}
