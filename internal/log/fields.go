package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldErrorCode   = "error_code"
	FieldOperation   = "operation"
	FieldDuration    = "duration_ms"
	FieldConceptID   = "concept_id"
	FieldVersionID   = "version_id"
	FieldTransferID  = "transfer_id"
	FieldAccountID   = "account_id"
	FieldCategoryID  = "category_id"
	FieldAmountMinor = "amount_minor"
	FieldMonth       = "month"
	FieldEventType   = "event_type"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentLedger  = "ledger"
	ComponentReader  = "reader"
	ComponentAdmin   = "admin"
	ComponentAudit   = "audit"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentCache   = "cache"
	ComponentCLI     = "cli"
	ComponentHTTP    = "http"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpEdit      = "edit"
	OpDelete    = "delete"
	OpTransfer  = "transfer"
	OpAllocate  = "allocate"
	OpRebuild   = "rebuild"
	OpAudit     = "audit"
	OpPublish   = "publish"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
	OpReconcile = "reconcile"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation        = "validation_error"
	ErrorTypeConfiguration     = "configuration_error"
	ErrorTypeDatabase          = "database_error"
	ErrorTypeNetwork           = "network_error"
	ErrorTypeNotFound          = "not_found_error"
	ErrorTypeConflict          = "conflict_error"
	ErrorTypeInsufficientFunds = "insufficient_funds_error"
	ErrorTypeInternal          = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error classification
func (f LogFields) WithErrorType(errorType, code string) LogFields {
	f[FieldErrorType] = errorType
	if code != "" {
		f[FieldErrorCode] = code
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithConcept adds the concept and version identifiers of a mutation
func (f LogFields) WithConcept(conceptID, versionID string) LogFields {
	f[FieldConceptID] = conceptID
	if versionID != "" {
		f[FieldVersionID] = versionID
	}
	return f
}

// WithPosting adds the account, category, amount and month a posting touched
func (f LogFields) WithPosting(accountID, categoryID string, amountMinor int64, month string) LogFields {
	if accountID != "" {
		f[FieldAccountID] = accountID
	}
	if categoryID != "" {
		f[FieldCategoryID] = categoryID
	}
	f[FieldAmountMinor] = amountMinor
	if month != "" {
		f[FieldMonth] = month
	}
	return f
}

// With adds an arbitrary field
func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
