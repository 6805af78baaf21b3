package lunchmoney

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// Asset is a manually-managed account as described at https://lunchmoney.dev/#assets-object.
type Asset struct {
	ID              int64           `json:"id"`
	TypeName        string          `json:"type_name"`
	SubtypeName     string          `json:"subtype_name"`
	Name            string          `json:"name"`
	DisplayName     string          `json:"display_name"`
	Balance         decimal.Decimal `json:"balance"`
	Currency        string          `json:"currency"`
	InstitutionName string          `json:"institution_name"`
}

// Label returns the display name, falling back to the name.
func (a Asset) Label() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Name
}

type assetsResponse struct {
	Assets []Asset `json:"assets"`
}

// ListAssets returns every asset on the account.
func (c *Client) ListAssets(ctx context.Context) ([]Asset, error) {
	var resp assetsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/assets", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Assets, nil
}
