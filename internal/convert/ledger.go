package convert

import (
	"fmt"
	"strings"

	"github.com/cleared-dev/walletsync/internal/model"
)

// CheckCurrency verifies every entry was printed with the expected symbol.
func CheckCurrency(entries []model.WalletEntry, code, symbol string) error {
	for _, e := range entries {
		if e.CurrencySymbol != symbol {
			return fmt.Errorf("%w: expected currency marker %s for %s, got %s on entry %s",
				model.ErrCurrencyMismatch, symbol, strings.ToUpper(code), e.CurrencySymbol, e.ID)
		}
	}
	return nil
}

// ToLedger maps postings to ledger transactions for assetID, preserving order.
func ToLedger(postings []model.Posting, currency string, assetID int64) []model.LedgerTransaction {
	out := make([]model.LedgerTransaction, 0, len(postings))
	for _, p := range postings {
		out = append(out, model.LedgerTransaction{
			Date:       p.Time,
			Payee:      p.Payee,
			Amount:     p.Amount,
			Currency:   strings.ToLower(currency),
			Notes:      p.Notes,
			AssetID:    assetID,
			ExternalID: p.ExternalID,
			Status:     model.StatusUncleared,
		})
	}
	return out
}
