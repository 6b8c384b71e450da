package core

import (
	"time"

	"github.com/google/uuid"
)

type (
	// TransactionView is returned to callers after a transaction mutation.
	TransactionView struct {
		ConceptID           uuid.UUID
		VersionID           uuid.UUID
		TransferID          uuid.NullUUID
		TransactionDate     Date
		AccountID           string
		CategoryID          string
		AmountMinor         int64
		Memo                string
		Status              TransactionStatus
		ValidFrom           time.Time
		RecordedAt          time.Time
		AccountBalanceMinor int64
	}

	TransferView struct {
		TransferID  uuid.UUID
		Source      TransactionView
		Destination TransactionView
	}

	AllocationView struct {
		ConceptID          uuid.UUID
		VersionID          uuid.UUID
		AllocationDate     Date
		FromCategoryID     string
		ToCategoryID       string
		AmountMinor        int64
		Memo               string
		ValidFrom          time.Time
		ReadyToAssignMinor int64
	}
)

func NewTransactionView(v TransactionVersion, balance int64) TransactionView {
	return TransactionView{
		ConceptID:           v.ConceptID,
		VersionID:           v.VersionID,
		TransferID:          v.TransferID,
		TransactionDate:     v.TransactionDate,
		AccountID:           v.AccountID,
		CategoryID:          v.CategoryID,
		AmountMinor:         v.AmountMinor,
		Memo:                v.Memo,
		Status:              v.Status,
		ValidFrom:           v.ValidFrom,
		RecordedAt:          v.RecordedAt,
		AccountBalanceMinor: balance,
	}
}

func NewAllocationView(v AllocationVersion, readyToAssign int64) AllocationView {
	return AllocationView{
		ConceptID:          v.ConceptID,
		VersionID:          v.VersionID,
		AllocationDate:     v.AllocationDate,
		FromCategoryID:     v.FromCategoryID,
		ToCategoryID:       v.ToCategoryID,
		AmountMinor:        v.AmountMinor,
		Memo:               v.Memo,
		ValidFrom:          v.ValidFrom,
		ReadyToAssignMinor: readyToAssign,
	}
}
