package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind is the semantic class of a wallet entry.
type TransactionKind string

const (
	KindPeerPayment     TransactionKind = "peer-payment"
	KindBankTransferIn  TransactionKind = "bank-transfer-in"
	KindBankTransferOut TransactionKind = "bank-transfer-out"
	KindMerchantCharge  TransactionKind = "merchant-charge"
	KindFee             TransactionKind = "fee"
	KindRefund          TransactionKind = "refund"
	KindOther           TransactionKind = "other" // unrecognized raw type
)

// IsTransfer reports whether the kind moves money between the wallet and a
// linked bank or card.
func (k TransactionKind) IsTransfer() bool {
	return k == KindBankTransferIn || k == KindBankTransferOut
}

// ClassifiedTransaction is a WalletEntry with its semantic kind attached.
type ClassifiedTransaction struct {
	Entry                WalletEntry
	Kind                 TransactionKind
	Payee                string
	Category             string
	AffectsWalletBalance bool
	Flag                 string // set when the funding/destination combination was not recognized
}

// LegTag distinguishes the postings derived from one wallet entry.
type LegTag string

const (
	LegPayment LegTag = ""         // the payment itself; keeps the entry's id
	LegFunding LegTag = "T"        // funded from a linked bank/card
	LegDeposit LegTag = "TDEPOSIT" // paid out to a linked bank/card
)

// Posting is one signed movement to record on the ledger. Postings derived
// from balance-bypassing entries come in pairs (Tag != LegPayment on one side).
type Posting struct {
	Origin     ClassifiedTransaction
	Tag        LegTag
	Synthetic  bool
	ExternalID string
	Time       time.Time
	Amount     decimal.Decimal
	Payee      string
	Notes      string
}

// TransactionStatus mirrors the ledger's transaction status values.
type TransactionStatus string

const (
	StatusCleared   TransactionStatus = "cleared"
	StatusUncleared TransactionStatus = "uncleared"
)

// LedgerTransaction is the outbound record submitted to the ledger.
type LedgerTransaction struct {
	Date       time.Time
	Payee      string
	Amount     decimal.Decimal
	Currency   string // lowercase ISO 4217 code
	Notes      string
	AssetID    int64
	ExternalID string // idempotency key
	Status     TransactionStatus
}
