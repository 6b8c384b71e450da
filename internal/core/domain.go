package core

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	Asset     AccountType = "asset"
	Liability AccountType = "liability"

	ClassCash       AccountClass = "cash"
	ClassCredit     AccountClass = "credit"
	ClassInvestment AccountClass = "investment"
	ClassLoan       AccountClass = "loan"
	ClassAccessible AccountClass = "accessible"
	ClassTangible   AccountClass = "tangible"

	OnBudget AccountRole = "on_budget"
	Tracking AccountRole = "tracking"

	StatusPending TransactionStatus = "pending"
	StatusCleared TransactionStatus = "cleared"
)

// System category and group identifiers seeded by the schema migrations.
const (
	CategoryOpeningBalance    = "opening_balance"
	CategoryAvailableToBudget = "available_to_budget"
	CategoryAccountTransfer   = "account_transfer"
	CategoryBalanceAdjustment = "balance_adjustment"

	GroupCreditCardPayments     = "credit_card_payments"
	GroupCreditCardPaymentsName = "Credit Card Payments"

	paymentCategoryPrefix = "payment_"
)

type (
	AccountType       string
	AccountClass      string
	AccountRole       string
	TransactionStatus string

	Date struct {
		time.Time
	}

	Account struct {
		ID           string
		Name         string
		Type         AccountType
		Class        AccountClass
		Role         AccountRole
		BalanceMinor int64
		Currency     string
		IsActive     bool
		OpenedOn     Date
	}

	CategoryGroup struct {
		ID        string
		Name      string
		SortOrder int
		IsSystem  bool
		IsActive  bool
	}

	Category struct {
		ID               string
		GroupID          string // empty when the category has no group
		Name             string
		IsSystem         bool
		PaymentAccountID string // set only on credit-payment categories
		IsActive         bool
		SortOrder        int
		Goal             *Goal
	}

	// TransactionVersion is one immutable snapshot of a transaction concept.
	TransactionVersion struct {
		ConceptID       uuid.UUID
		VersionID       uuid.UUID
		TransferID      uuid.NullUUID
		TransactionDate Date
		AccountID       string
		CategoryID      string
		AmountMinor     int64
		Memo            string
		Status          TransactionStatus
		ValidFrom       time.Time
		ValidTo         *time.Time
		RecordedAt      time.Time
	}

	// AllocationVersion is one immutable snapshot of an allocation concept.
	// An empty FromCategoryID means the money came from Ready to Assign.
	AllocationVersion struct {
		ConceptID      uuid.UUID
		VersionID      uuid.UUID
		AllocationDate Date
		FromCategoryID string
		ToCategoryID   string
		AmountMinor    int64
		Memo           string
		ValidFrom      time.Time
		ValidTo        *time.Time
		RecordedAt     time.Time
	}

	// MonthlyState is the cached envelope figures of one category for one month.
	MonthlyState struct {
		CategoryID              string
		Month                   Date
		AllocatedMinor          int64
		InflowMinor             int64
		ActivityMinor           int64
		AvailableMinor          int64
		LastMonthAvailableMinor int64
	}
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// MonthStart returns the first day of the month d falls in.
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

// NextMonth returns the first day of the month after d.
func (d Date) NextMonth() Date {
	return Date{Time: d.MonthStart().AddDate(0, 1, 0)}
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// IsCredit reports whether spending on the account should be mirrored into
// a payment envelope.
func (a Account) IsCredit() bool {
	return a.Type == Liability && a.Class == ClassCredit
}

// IsOnBudget reports whether the account's cash belongs to the budget.
// Tracking accounts only report a balance.
func (a Account) IsOnBudget() bool {
	return a.Role == OnBudget
}

func (c Category) IsPayment() bool {
	return c.PaymentAccountID != ""
}

// TracksEnvelope reports whether the category keeps monthly state rows.
// Normal categories and credit-payment categories do, the other system
// categories only post to the ledger.
func (c Category) TracksEnvelope() bool {
	return !c.IsSystem || c.IsPayment()
}

// FundsReadyToAssign reports whether on-budget transactions in this
// category count as cash inflow for Ready to Assign.
func (c Category) FundsReadyToAssign() bool {
	return IsReadyToAssignSource(c.ID)
}

// IsReadyToAssignSource reports whether categoryID is one of the system
// categories whose on-budget transactions fund Ready to Assign.
func IsReadyToAssignSource(categoryID string) bool {
	for _, id := range ReadyToAssignSources() {
		if id == categoryID {
			return true
		}
	}
	return false
}

// ReadyToAssignSources lists the categories that count as cash inflow.
func ReadyToAssignSources() []string {
	return []string{CategoryAvailableToBudget, CategoryOpeningBalance, CategoryBalanceAdjustment}
}

// PaymentCategoryID derives the credit-payment category of a credit account.
func PaymentCategoryID(accountID string) string {
	return paymentCategoryPrefix + accountID
}

// IsReservedCategoryID reports whether categoryID is in the namespace of
// derived payment categories, which only credit accounts may claim.
func IsReservedCategoryID(categoryID string) bool {
	return strings.HasPrefix(categoryID, paymentCategoryPrefix)
}

// PaymentCategoryName derives the display name of a credit-payment category.
func PaymentCategoryName(accountName string) string {
	return accountName + " Payment"
}

func (v TransactionVersion) IsActive() bool {
	return v.ValidTo == nil
}

func (v TransactionVersion) IsTransferLeg() bool {
	return v.TransferID.Valid
}

func (v AllocationVersion) IsActive() bool {
	return v.ValidTo == nil
}

// FromReadyToAssign reports whether the allocation drew on Ready to Assign.
func (v AllocationVersion) FromReadyToAssign() bool {
	return v.FromCategoryID == ""
}
