package lunchmoney

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cleared-dev/walletsync/internal/id"
	"github.com/cleared-dev/walletsync/internal/model"
)

// Transaction is the insert shape described at https://lunchmoney.dev/#insert-transactions.
type Transaction struct {
	Date       string `json:"date"`
	Payee      string `json:"payee,omitempty"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency,omitempty"`
	Notes      string `json:"notes,omitempty"`
	AssetID    int64  `json:"asset_id,omitempty"`
	Status     string `json:"status,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

type insertRequest struct {
	Transactions      []Transaction `json:"transactions"`
	ApplyRules        bool          `json:"apply_rules"`
	CheckForRecurring bool          `json:"check_for_recurring"`
	DebitAsNegative   bool          `json:"debit_as_negative"`
}

type insertResponse struct {
	IDs []int64 `json:"ids"`
}

type listResponse struct {
	Transactions []struct {
		ID         idString `json:"id"`
		ExternalID idString `json:"external_id"`
	} `json:"transactions"`
	HasMore bool `json:"has_more"`
}

// FromLedger maps a ledger transaction to its API shape.
func FromLedger(tx model.LedgerTransaction) Transaction {
	return Transaction{
		Date:       tx.Date.Format(dateFormat),
		Payee:      tx.Payee,
		Amount:     tx.Amount.StringFixed(2),
		Currency:   tx.Currency,
		Notes:      tx.Notes,
		AssetID:    tx.AssetID,
		Status:     string(tx.Status),
		ExternalID: tx.ExternalID,
	}
}

// Submit inserts one transaction and returns the id Lunch Money assigned.
func (c *Client) Submit(ctx context.Context, tx model.LedgerTransaction) (int64, error) {
	req := insertRequest{
		Transactions:      []Transaction{FromLedger(tx)},
		ApplyRules:        true,
		CheckForRecurring: true,
		DebitAsNegative:   true,
	}

	var resp insertResponse
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", nil, req, &resp); err != nil {
		return 0, err
	}
	if len(resp.IDs) != 1 {
		return 0, fmt.Errorf("expected 1 inserted id for %s, got %d", tx.ExternalID, len(resp.IDs))
	}

	c.logger.Debug().
		Str("external_id", tx.ExternalID).
		Int64("ledger_id", resp.IDs[0]).
		Msg("Inserted Lunch Money transaction")
	return resp.IDs[0], nil
}

// ListExistingExternalIDs returns the external ids already recorded on assetID
// within window. Ids outside this tool's scheme are ignored.
func (c *Client) ListExistingExternalIDs(ctx context.Context, assetID int64, window model.SyncWindow) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	offset := 0
	for {
		q := url.Values{}
		q.Set("asset_id", formatAssetID(assetID))
		q.Set("start_date", window.Start.Format(dateFormat))
		q.Set("end_date", window.End.Format(dateFormat))
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(c.pageSize))

		var page listResponse
		if err := c.do(ctx, http.MethodGet, "/v1/transactions", q, nil, &page); err != nil {
			return nil, err
		}

		for _, tx := range page.Transactions {
			ext := string(tx.ExternalID)
			if ext == "" {
				continue
			}
			if !id.IsRecognized(ext) {
				c.logger.Debug().Str("external_id", ext).Msg("Ignoring foreign ledger transaction")
				continue
			}
			existing[ext] = struct{}{}
		}

		if !page.HasMore || len(page.Transactions) == 0 {
			break
		}
		offset += len(page.Transactions)
	}

	c.logger.Debug().
		Int64("asset_id", assetID).
		Str("window", window.String()).
		Int("existing", len(existing)).
		Msg("Listed recorded external ids")
	return existing, nil
}
