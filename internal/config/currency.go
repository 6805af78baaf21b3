package config

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
)

// CurrencySymbol returns the amount prefix the wallet statement prints for an
// ISO 4217 code: the CLDR narrow symbol, so "$" for usd, cad and aud.
func CurrencySymbol(code string) (string, bool) {
	unit, err := currency.ParseISO(strings.ToUpper(code))
	if err != nil {
		return "", false
	}
	return fmt.Sprint(currency.NarrowSymbol(unit)), true
}
