// Package convert turns raw wallet statement entries into signed ledger
// postings: classification, transfer-leg synthesis, and the ledger mapping.
package convert

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/cleared-dev/walletsync/internal/model"
)

// Raw wallet type codes.
const (
	TypePayment          = "Payment"
	TypeCharge           = "Charge"
	TypeStandardTransfer = "Standard Transfer"
	TypeInstantTransfer  = "Instant Transfer"
	TypeTransfer         = "Transfer"
	TypeMerchant         = "Merchant Transaction"
	TypeRefund           = "Refund"
)

// Flags attached to entries whose funding tags don't fit any known pattern.
const (
	FlagInflowFundedExternally     = "inflow carries an external funding source"
	FlagTransferFundedExternally   = "outbound transfer funded from a linked bank/card"
	FlagOutflowDepositedExternally = "outflow carries an external destination"
)

// Classifier maps wallet entries to classified transactions.
type Classifier struct {
	logger zerolog.Logger
}

// NewClassifier returns a Classifier that reports unrecognized entries to logger.
func NewClassifier(logger zerolog.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Classify never fails: unknown raw types become KindOther.
func (c *Classifier) Classify(e model.WalletEntry) model.ClassifiedTransaction {
	kind := kindOf(e)
	if kind == model.KindOther {
		c.logger.Warn().
			Str("external_id", e.ID).
			Str("type", e.Type).
			Str("amount", e.Amount.StringFixed(2)).
			Msg("Unrecognized wallet entry type, classifying as other")
	}

	ct := model.ClassifiedTransaction{
		Entry:                e,
		Kind:                 kind,
		Payee:                payeeOf(e, kind),
		Category:             e.Type,
		AffectsWalletBalance: true,
	}

	outflow := e.Amount.IsNegative()
	switch {
	case kind == model.KindBankTransferIn:
		// Funded from the bank by definition; the wallet side is real.
	case kind == model.KindBankTransferOut && e.FundedExternally():
		ct.AffectsWalletBalance = false
		ct.Flag = FlagTransferFundedExternally
	case kind == model.KindBankTransferOut:
		// The destination of a transfer is the bank side; the wallet leg is real.
	case outflow && e.FundedExternally():
		ct.AffectsWalletBalance = false
	case !outflow && e.DepositedExternally():
		ct.AffectsWalletBalance = false
	case !outflow && e.FundedExternally():
		ct.Flag = FlagInflowFundedExternally
	case outflow && e.DepositedExternally():
		ct.Flag = FlagOutflowDepositedExternally
	}

	if ct.Flag != "" {
		c.logger.Warn().
			Str("external_id", e.ID).
			Str("type", e.Type).
			Str("funding_source", e.FundingSource).
			Str("destination", e.Destination).
			Bool("affects_wallet_balance", ct.AffectsWalletBalance).
			Msg("Unrecognized funding combination: " + ct.Flag)
	}
	return ct
}

// ClassifyAll classifies every entry, preserving order.
func (c *Classifier) ClassifyAll(entries []model.WalletEntry) []model.ClassifiedTransaction {
	out := make([]model.ClassifiedTransaction, 0, len(entries))
	for _, e := range entries {
		out = append(out, c.Classify(e))
	}
	return out
}

func kindOf(e model.WalletEntry) model.TransactionKind {
	inflow := !e.Amount.IsNegative()
	switch e.Type {
	case TypePayment, TypeCharge:
		return model.KindPeerPayment
	case TypeStandardTransfer, TypeInstantTransfer, TypeTransfer:
		if inflow {
			return model.KindBankTransferIn
		}
		return model.KindBankTransferOut
	case TypeMerchant:
		if inflow {
			return model.KindRefund
		}
		return model.KindMerchantCharge
	case TypeRefund:
		return model.KindRefund
	}
	if strings.Contains(strings.ToLower(e.Type), "fee") {
		return model.KindFee
	}
	return model.KindOther
}

// payeeOf picks the counterparty shown on the ledger. Charges list the
// charger in From, payments list the payer in From.
func payeeOf(e model.WalletEntry, kind model.TransactionKind) string {
	inflow := !e.Amount.IsNegative()
	var primary, secondary string
	switch {
	case kind == model.KindBankTransferOut:
		if e.Destination != "" {
			return "TRANSFER TO " + e.Destination
		}
	case kind == model.KindBankTransferIn:
		if e.FundingSource != "" {
			return "TRANSFER FROM " + e.FundingSource
		}
	case e.Type == TypeCharge:
		primary, secondary = e.From, e.To
		if inflow {
			primary, secondary = e.To, e.From
		}
	default:
		primary, secondary = e.To, e.From
		if inflow {
			primary, secondary = e.From, e.To
		}
	}
	for _, p := range []string{primary, secondary, e.Type} {
		if p != "" {
			return p
		}
	}
	return string(kind)
}
