package core

import (
	"time"

	"github.com/google/uuid"
)

// ReconciliationEpoch is the worksheet cutoff of an account that was never
// reconciled.
var ReconciliationEpoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

type (
	// Reconciliation is a checkpoint asserting that the account matched a
	// bank statement when it was created.
	Reconciliation struct {
		ID                         uuid.UUID
		AccountID                  string
		CreatedAt                  time.Time
		StatementDate              Date
		StatementBalanceMinor      int64
		StatementPendingTotalMinor int64
		// ClearedBalanceMinor is the ledger's cleared balance at CreatedAt.
		ClearedBalanceMinor int64
		PreviousID          uuid.NullUUID
	}

	// Worksheet lists what needs review before the next checkpoint: every
	// active transaction recorded or edited since the last one, plus anything
	// still pending however old.
	Worksheet struct {
		AccountID           string
		Since               time.Time
		Latest              *Reconciliation
		ClearedBalanceMinor int64
		PendingBalanceMinor int64
		Transactions        []TransactionVersion
	}
)

// DifferenceMinor is how far the cleared ledger balance was from the
// statement at checkpoint time. Zero means the account reconciled.
func (r Reconciliation) DifferenceMinor() int64 {
	return r.ClearedBalanceMinor - r.StatementBalanceMinor
}

// ReconciliationPayload is the statement an operator reconciles against.
type ReconciliationPayload struct {
	StatementDate              Date `validate:"-"`
	StatementBalanceMinor      int64
	StatementPendingTotalMinor int64
}

func (p ReconciliationPayload) Validate(today Date) error {
	return validateDate(p.StatementDate, today, 0)
}
