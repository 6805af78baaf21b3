package convert

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/walletsync/internal/id"
	"github.com/cleared-dev/walletsync/internal/model"
)

// Synthesize expands classified transactions into postings. Entries that
// moved the wallet balance become a single posting. Entries that bypassed it
// become a net-zero pair: the bank/card side of the money plus the payment
// itself, both at the entry's timestamp.
//
// The result is ordered by time; at equal timestamps incoming postings come
// before outgoing ones so a running balance never dips below zero spuriously.
func Synthesize(txns []model.ClassifiedTransaction) []model.Posting {
	postings := make([]model.Posting, 0, len(txns))
	for _, ct := range txns {
		postings = append(postings, expand(ct)...)
	}
	sort.SliceStable(postings, func(i, j int) bool {
		a, b := postings[i], postings[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return !a.Amount.IsNegative() && b.Amount.IsNegative()
	})
	return postings
}

func expand(ct model.ClassifiedTransaction) []model.Posting {
	payment := model.Posting{
		Origin:     ct,
		Tag:        model.LegPayment,
		ExternalID: id.LegExternalID(ct.Entry.ID, string(model.LegPayment)),
		Time:       ct.Entry.Time,
		Amount:     ct.Entry.Amount,
		Payee:      ct.Payee,
		Notes:      ct.Entry.Note,
	}
	if ct.AffectsWalletBalance {
		return []model.Posting{payment}
	}

	payment.Synthetic = true
	if ct.Entry.Amount.IsNegative() {
		funding := model.Posting{
			Origin:     ct,
			Tag:        model.LegFunding,
			Synthetic:  true,
			ExternalID: id.LegExternalID(ct.Entry.ID, string(model.LegFunding)),
			Time:       ct.Entry.Time,
			Amount:     ct.Entry.Amount.Neg(),
			Payee:      "TRANSFER FROM " + linkedAccount(ct.Entry.FundingSource),
			Notes:      legNote("To fund", ct.Entry.Note),
		}
		return []model.Posting{funding, payment}
	}

	deposit := model.Posting{
		Origin:     ct,
		Tag:        model.LegDeposit,
		Synthetic:  true,
		ExternalID: id.LegExternalID(ct.Entry.ID, string(model.LegDeposit)),
		Time:       ct.Entry.Time,
		Amount:     ct.Entry.Amount.Neg(),
		Payee:      "TRANSFER TO " + linkedAccount(ct.Entry.Destination),
		Notes:      legNote("From", ct.Entry.Note),
	}
	return []model.Posting{payment, deposit}
}

// UnknownLinkedAccount names the bank side of a leg when the statement left it blank.
const UnknownLinkedAccount = "linked bank/card"

func linkedAccount(name string) string {
	if name == "" {
		return UnknownLinkedAccount
	}
	return name
}

func legNote(prefix, note string) string {
	if note == "" {
		return prefix + " wallet transaction"
	}
	return fmt.Sprintf("%s wallet transaction with note: '%s'", prefix, note)
}

// PairError describes a synthesized pair that does not net to zero.
type PairError struct {
	EntryID string
	Sum     decimal.Decimal
	Legs    int
}

func (e PairError) Error() string {
	return fmt.Sprintf("entry %s: %d synthetic legs sum to %s, want 0", e.EntryID, e.Legs, e.Sum.StringFixed(2))
}

// ValidatePairs checks that the synthetic postings of every entry come in
// pairs summing to zero.
func ValidatePairs(postings []model.Posting) []PairError {
	sums := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	var order []string
	for _, p := range postings {
		if !p.Synthetic {
			continue
		}
		key := p.Origin.Entry.ID
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		sums[key] = sums[key].Add(p.Amount)
		counts[key]++
	}

	var errs []PairError
	for _, key := range order {
		if counts[key] != 2 || !sums[key].IsZero() {
			errs = append(errs, PairError{EntryID: key, Sum: sums[key], Legs: counts[key]})
		}
	}
	return errs
}
