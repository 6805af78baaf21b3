package model

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth marks a rejected or expired access token. Never retried.
	ErrAuth = errors.New("authentication failed")
	// ErrTransient marks a failure worth retrying (network, 429, 5xx).
	ErrTransient = errors.New("transient failure")
	// ErrCurrencyMismatch marks a statement in a different currency than configured.
	ErrCurrencyMismatch = errors.New("currency mismatch")
)

// SubmissionError is a per-transaction failure to insert into the ledger.
type SubmissionError struct {
	ExternalID string
	Err        error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submitting %s: %v", e.ExternalID, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
