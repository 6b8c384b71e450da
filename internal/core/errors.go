package core

import (
	"errors"
)

// Kind groups ledger errors by how a caller should react to them.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindConflict          Kind = "conflict"
	KindNotFound          Kind = "not_found"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindStorage           Kind = "storage"
)

// Error is a classified ledger error. Values below are sentinels and are
// matched with errors.Is after wrapping.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidAmount       = newError(KindValidation, "invalid_amount", "invalid amount")
	ErrInvalidDate         = newError(KindValidation, "invalid_date", "invalid date")
	ErrDateTooFarAhead     = newError(KindValidation, "date_too_far_ahead", "date is too far in the future")
	ErrInvalidPayload      = newError(KindValidation, "invalid_payload", "invalid payload")
	ErrAccountInactive     = newError(KindValidation, "account_inactive", "account is inactive")
	ErrCategoryInactive    = newError(KindValidation, "category_inactive", "category is inactive")
	ErrGroupInactive       = newError(KindValidation, "group_inactive", "category group is inactive")
	ErrSameAccount         = newError(KindValidation, "same_account", "source and destination accounts must differ")
	ErrSameCategory        = newError(KindValidation, "same_category", "source and destination categories must differ")
	ErrSystemCategory      = newError(KindValidation, "system_category", "system categories cannot be used here")
	ErrTransferCategory    = newError(KindValidation, "transfer_category", "category cannot tag a transfer")
	ErrTransferLeg         = newError(KindValidation, "transfer_leg", "transfer legs cannot be edited individually")
	ErrInvalidAccountRole  = newError(KindValidation, "invalid_account_role", "investment accounts must be tracking accounts")
	ErrUnsupportedCurrency = newError(KindValidation, "unsupported_currency", "unsupported currency")
	ErrReservedCategoryID  = newError(KindValidation, "reserved_category_id", "category id uses a reserved prefix")
	ErrInvalidGoal         = newError(KindValidation, "invalid_goal", "invalid category goal")

	ErrAccountNotFound     = newError(KindNotFound, "account_not_found", "account not found")
	ErrCategoryNotFound    = newError(KindNotFound, "category_not_found", "category not found")
	ErrGroupNotFound       = newError(KindNotFound, "group_not_found", "category group not found")
	ErrTransactionNotFound = newError(KindNotFound, "transaction_not_found", "transaction not found")
	ErrTransferNotFound    = newError(KindNotFound, "transfer_not_found", "transfer not found")
	ErrAllocationNotFound  = newError(KindNotFound, "allocation_not_found", "allocation not found")
	ErrNoReconciliation    = newError(KindNotFound, "no_reconciliation", "account has never been reconciled")

	ErrAccountExists        = newError(KindConflict, "account_exists", "account already exists")
	ErrCategoryExists       = newError(KindConflict, "category_exists", "category already exists")
	ErrGroupExists          = newError(KindConflict, "group_exists", "category group already exists")
	ErrActiveVersionExists  = newError(KindConflict, "active_version_exists", "concept already has an active version")
	ErrConcurrentEdit       = newError(KindConflict, "concurrent_edit", "version was superseded by a concurrent edit")
	ErrPaymentCategoryTaken = newError(KindConflict, "payment_category_taken", "payment category id belongs to another category")

	ErrInsufficientFunds         = newError(KindInsufficientFunds, "insufficient_funds", "source category does not have enough available funds")
	ErrReadyToAssignInsufficient = newError(KindInsufficientFunds, "ready_to_assign_insufficient", "ready to assign is insufficient for this allocation")
)

// KindOf classifies err. Unclassified errors are storage errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// CodeOf returns the stable code of a classified error, or "storage_error".
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "storage_error"
}
