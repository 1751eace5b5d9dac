package enums

import "fmt"

// LedgerTxnType maps to the ledger_txn_type enum in Postgres.
type LedgerTxnType string

const (
	LedgerTxnInvoice    LedgerTxnType = "invoice"
	LedgerTxnPayment    LedgerTxnType = "payment"
	LedgerTxnAdjustment LedgerTxnType = "adjustment"
)

var validLedgerTxnTypes = []LedgerTxnType{
	LedgerTxnInvoice,
	LedgerTxnPayment,
	LedgerTxnAdjustment,
}

// IsValid reports whether the value matches the canonical ledger_txn_type enum.
func (t LedgerTxnType) IsValid() bool {
	for _, candidate := range validLedgerTxnTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseLedgerTxnType converts raw input into LedgerTxnType.
func ParseLedgerTxnType(value string) (LedgerTxnType, error) {
	for _, candidate := range validLedgerTxnTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger txn type %q", value)
}
