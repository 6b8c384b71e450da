package core

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type (
	// TransactionPayload is the caller-supplied content of a transaction
	// version, used for both create and edit.
	TransactionPayload struct {
		TransactionDate Date              `validate:"-"`
		AccountID       string            `validate:"required,max=64"`
		CategoryID      string            `validate:"required,max=64"`
		AmountMinor     int64             `validate:"required"`
		Memo            string            `validate:"max=500"`
		Status          TransactionStatus `validate:"omitempty,oneof=pending cleared"`
	}

	// TransferPayload moves AmountMinor from the source to the destination
	// account under a single category.
	TransferPayload struct {
		SourceAccountID      string `validate:"required,max=64"`
		DestinationAccountID string `validate:"required,max=64,nefield=SourceAccountID"`
		CategoryID           string `validate:"required,max=64"`
		AmountMinor          int64  `validate:"gt=0"`
		TransactionDate      Date   `validate:"-"`
		Memo                 string `validate:"max=500"`
	}

	// AllocationPayload moves budgeted money into ToCategoryID. An empty
	// FromCategoryID draws on Ready to Assign.
	AllocationPayload struct {
		FromCategoryID string `validate:"omitempty,max=64,nefield=ToCategoryID"`
		ToCategoryID   string `validate:"required,max=64"`
		AmountMinor    int64  `validate:"gt=0"`
		AllocationDate Date   `validate:"-"`
		Memo           string `validate:"max=500"`
	}

	AccountPayload struct {
		AccountID           string       `validate:"required,max=64"`
		Name                string       `validate:"required,max=120"`
		Type                AccountType  `validate:"required,oneof=asset liability"`
		Class               AccountClass `validate:"required,oneof=cash credit investment loan accessible tangible"`
		Role                AccountRole  `validate:"required,oneof=on_budget tracking"`
		Currency            string       `validate:"omitempty,len=3"`
		OpeningBalanceMinor int64
		OpenedOn            Date `validate:"-"`
	}

	CategoryGroupPayload struct {
		GroupID   string `validate:"required,max=64"`
		Name      string `validate:"required,max=120"`
		SortOrder int
	}

	CategoryPayload struct {
		CategoryID string `validate:"required,max=64"`
		GroupID    string `validate:"omitempty,max=64"`
		Name       string `validate:"required,max=120"`
		SortOrder  int
		Goal       *Goal `validate:"-"`
	}

	// AccountUpdatePayload carries the mutable fields of an account. Type,
	// class, role and currency drive the derived caches and stay fixed.
	AccountUpdatePayload struct {
		Name string `validate:"required,max=120"`
	}

	CategoryGroupUpdatePayload struct {
		Name      string `validate:"required,max=120"`
		SortOrder int
	}

	// CategoryUpdatePayload replaces the mutable fields of a category. A nil
	// Goal clears the goal.
	CategoryUpdatePayload struct {
		GroupID   string `validate:"omitempty,max=64"`
		Name      string `validate:"required,max=120"`
		SortOrder int
		Goal      *Goal `validate:"-"`
	}
)

// fieldErrors maps a failing field and rule to the ledger error reported for it.
var fieldErrors = map[string]*Error{
	"AmountMinor.required":         ErrInvalidAmount,
	"AmountMinor.gt":               ErrInvalidAmount,
	"DestinationAccountID.nefield": ErrSameAccount,
	"FromCategoryID.nefield":       ErrSameCategory,
}

// Validate checks the payload against today's date. Dates more than
// maxFutureDays ahead are rejected; a negative limit disables the check.
func (p TransactionPayload) Validate(today Date, maxFutureDays int) error {
	if err := structError(validate.Struct(p)); err != nil {
		return err
	}
	return validateDate(p.TransactionDate, today, maxFutureDays)
}

// StatusOrDefault returns the payload status, cleared when unset.
func (p TransactionPayload) StatusOrDefault() TransactionStatus {
	if p.Status == "" {
		return StatusCleared
	}
	return p.Status
}

func (p TransferPayload) Validate(today Date, maxFutureDays int) error {
	if err := structError(validate.Struct(p)); err != nil {
		return err
	}
	return validateDate(p.TransactionDate, today, maxFutureDays)
}

func (p AllocationPayload) Validate() error {
	if err := structError(validate.Struct(p)); err != nil {
		return err
	}
	if p.AllocationDate.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (p AccountPayload) Validate() error {
	if err := structError(validate.Struct(p)); err != nil {
		return err
	}
	if p.Class == ClassInvestment && p.Role == OnBudget {
		return ErrInvalidAccountRole
	}
	if p.Currency != "" && !SupportedCurrency(p.Currency) {
		return fmt.Errorf("%w: %s", ErrUnsupportedCurrency, p.Currency)
	}
	return nil
}

func (p CategoryGroupPayload) Validate() error {
	return structError(validate.Struct(p))
}

func (p CategoryPayload) Validate() error {
	if err := structError(validate.Struct(p)); err != nil {
		return err
	}
	if IsReservedCategoryID(p.CategoryID) {
		return fmt.Errorf("%w: %s", ErrReservedCategoryID, p.CategoryID)
	}
	return validateGoal(p.Goal)
}

func (p AccountUpdatePayload) Validate() error {
	return structError(validate.Struct(p))
}

func (p CategoryGroupUpdatePayload) Validate() error {
	return structError(validate.Struct(p))
}

func (p CategoryUpdatePayload) Validate() error {
	if err := structError(validate.Struct(p)); err != nil {
		return err
	}
	return validateGoal(p.Goal)
}

func validateGoal(g *Goal) error {
	if g == nil {
		return nil
	}
	return g.Validate()
}

func validateDate(d, today Date, maxFutureDays int) error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	if maxFutureDays >= 0 {
		limit := today.AddDate(0, 0, maxFutureDays)
		if d.After(limit) {
			return fmt.Errorf("%w: %s is more than %d days after %s", ErrDateTooFarAhead, d, maxFutureDays, today)
		}
	}
	return nil
}

// structError translates validator output into ledger errors.
func structError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	fe := verrs[0]
	if sentinel, ok := fieldErrors[fe.Field()+"."+fe.Tag()]; ok {
		return fmt.Errorf("%w: %s failed %q", sentinel, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %s failed %q", ErrInvalidPayload, fe.Field(), fe.Tag())
}
