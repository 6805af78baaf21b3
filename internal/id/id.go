package id

import "fmt"

// Leg suffixes appended to a wallet entry id. Kept in sync with model.LegTag.
const (
	fundingSuffix = "T"
	depositSuffix = "TDEPOSIT"
)

// LegExternalID returns the ledger external id for a leg derived from entryID.
// The payment leg (empty tag) keeps the entry id so re-runs match records
// created before any legs were synthesized.
//
//	LegExternalID("3468", "")         -> "3468"
//	LegExternalID("3468", "T")        -> "3468T"
//	LegExternalID("3468", "TDEPOSIT") -> "3468TDEPOSIT"
func LegExternalID(entryID, tag string) string {
	return entryID + tag
}

// ParseExternalID splits an external id into the originating entry id and
// its leg tag. Wallet entry ids are numeric, so any trailing letters form the tag.
func ParseExternalID(externalID string) (entryID, tag string, err error) {
	if externalID == "" {
		return "", "", fmt.Errorf("empty external id")
	}
	i := len(externalID)
	for i > 0 && externalID[i-1] >= 'A' && externalID[i-1] <= 'Z' {
		i--
	}
	entryID, tag = externalID[:i], externalID[i:]
	if entryID == "" {
		return "", "", fmt.Errorf("invalid external id %q: no entry id", externalID)
	}
	switch tag {
	case "", fundingSuffix, depositSuffix:
	default:
		return "", "", fmt.Errorf("invalid external id %q: unknown leg tag %q", externalID, tag)
	}
	return entryID, tag, nil
}

// IsRecognized reports whether externalID follows this tool's id scheme:
// a numeric wallet entry id with an optional known leg tag.
func IsRecognized(externalID string) bool {
	entryID, _, err := ParseExternalID(externalID)
	if err != nil {
		return false
	}
	for _, r := range entryID {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
