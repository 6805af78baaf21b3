package reconcile

import "github.com/cleared-dev/walletsync/internal/model"

// FilterNew returns the candidates not yet recorded on the ledger, in order.
// A candidate whose external id appears in existing is dropped, as is any
// repeat of an external id earlier in candidates.
func FilterNew(candidates []model.LedgerTransaction, existing map[string]struct{}) []model.LedgerTransaction {
	seen := make(map[string]struct{}, len(candidates))
	var out []model.LedgerTransaction
	for _, tx := range candidates {
		if _, ok := existing[tx.ExternalID]; ok {
			continue
		}
		if _, ok := seen[tx.ExternalID]; ok {
			continue
		}
		seen[tx.ExternalID] = struct{}{}
		out = append(out, tx)
	}
	return out
}
