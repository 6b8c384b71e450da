package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/blogle/dojo-sub001/internal/amqp"
	"github.com/blogle/dojo-sub001/internal/core"
	"github.com/blogle/dojo-sub001/internal/log"
	"github.com/blogle/dojo-sub001/internal/storage"
)

func (l *Ledger) adminLogger() *log.Logger {
	return l.logger.WithComponent(log.ComponentAdmin)
}

// CreateAccount opens an account. A non-zero opening balance is posted as
// an ordinary transaction in the opening_balance category on the opening
// date, so it funds Ready to Assign exactly like any other inflow. Credit
// accounts get their payment category up front.
func (l *Ledger) CreateAccount(ctx context.Context, p core.AccountPayload) (account core.Account, err error) {
	ctx, span := startSpan(ctx, "Ledger.CreateAccount")
	defer func() { endSpan(span, err) }()

	logger := l.adminLogger()
	fields := log.NewFields().WithPosting(p.AccountID, "", p.OpeningBalanceMinor, "")
	defer func() {
		if err != nil {
			logger.LogFailure(ctx, "Account rejected", log.OpCreate, err, fields)
		}
	}()

	if err := p.Validate(); err != nil {
		return core.Account{}, err
	}
	if p.Currency == "" {
		p.Currency = core.DefaultCurrency
	}
	if p.OpenedOn.IsZero() {
		p.OpenedOn = l.today()
	}

	account = core.Account{
		ID:       p.AccountID,
		Name:     p.Name,
		Type:     p.Type,
		Class:    p.Class,
		Role:     p.Role,
		Currency: p.Currency,
		IsActive: true,
		OpenedOn: p.OpenedOn,
	}

	var opening *core.TransactionVersion
	if p.OpeningBalanceMinor != 0 {
		payload := core.TransactionPayload{
			TransactionDate: p.OpenedOn,
			AccountID:       p.AccountID,
			CategoryID:      core.CategoryOpeningBalance,
			AmountMinor:     p.OpeningBalanceMinor,
			Memo:            "Opening balance",
		}
		if err := payload.Validate(l.today(), l.config.MaxFutureDays); err != nil {
			return core.Account{}, err
		}
		now := l.clock.Now()
		opening = &core.TransactionVersion{
			ConceptID:       uuid.New(),
			VersionID:       uuid.New(),
			TransactionDate: payload.TransactionDate,
			AccountID:       payload.AccountID,
			CategoryID:      payload.CategoryID,
			AmountMinor:     payload.AmountMinor,
			Memo:            payload.Memo,
			Status:          core.StatusCleared,
			ValidFrom:       now,
			RecordedAt:      now,
		}
	}

	event := amqp.NewLedgerEvent(amqp.EventAccountCreated, "")
	event.TouchAccount(account.ID)

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		if err := tx.InsertAccount(ctx, account); err != nil {
			return err
		}
		if err := ensurePaymentEnvelope(ctx, tx, account); err != nil {
			return err
		}
		if opening == nil {
			return nil
		}

		category, err := tx.GetCategory(ctx, core.CategoryOpeningBalance)
		if err != nil {
			return err
		}
		if err := tx.CreateTransactionVersion(ctx, *opening); err != nil {
			return err
		}
		fx := newEffects()
		fx.postTransaction(*opening, account, category, 1)
		if err := fx.apply(ctx, tx); err != nil {
			return err
		}
		fx.touch(event)
		event.ConceptID = opening.ConceptID.String()
		event.VersionID = opening.VersionID.String()

		account.BalanceMinor, err = tx.AccountBalance(ctx, account.ID)
		return err
	})
	if err != nil {
		return core.Account{}, err
	}

	logger.LogMutation(ctx, "Account created", log.OpCreate, fields)
	return account, nil
}

// DeactivateAccount retires accountID and, for credit accounts, its payment
// category. Existing history stays in place and remains editable.
func (l *Ledger) DeactivateAccount(ctx context.Context, accountID string) (err error) {
	ctx, span := startSpan(ctx, "Ledger.DeactivateAccount")
	defer func() { endSpan(span, err) }()

	logger := l.adminLogger()
	fields := log.NewFields().With(log.FieldAccountID, accountID)

	event := amqp.NewLedgerEvent(amqp.EventAccountDeactivated, "")
	event.TouchAccount(accountID)

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if err := tx.SetAccountActive(ctx, accountID, false); err != nil {
			return err
		}
		if !account.IsCredit() {
			return nil
		}
		paymentID := core.PaymentCategoryID(accountID)
		err = tx.SetCategoryActive(ctx, paymentID, false)
		if errors.Is(err, core.ErrCategoryNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		logger.LogFailure(ctx, "Account deactivation failed", log.OpDelete, err, fields)
		return err
	}

	logger.LogMutation(ctx, "Account deactivated", log.OpDelete, fields)
	return nil
}

func (l *Ledger) CreateCategoryGroup(ctx context.Context, p core.CategoryGroupPayload) (group core.CategoryGroup, err error) {
	ctx, span := startSpan(ctx, "Ledger.CreateCategoryGroup")
	defer func() { endSpan(span, err) }()

	logger := l.adminLogger()
	fields := log.NewFields().With("group_id", p.GroupID)

	if err := p.Validate(); err != nil {
		logger.LogFailure(ctx, "Category group rejected", log.OpCreate, err, fields)
		return core.CategoryGroup{}, err
	}

	group = core.CategoryGroup{ID: p.GroupID, Name: p.Name, SortOrder: p.SortOrder, IsActive: true}
	event := amqp.NewLedgerEvent(amqp.EventCategoryChanged, "")

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		return tx.InsertCategoryGroup(ctx, group)
	})
	if err != nil {
		logger.LogFailure(ctx, "Category group rejected", log.OpCreate, err, fields)
		return core.CategoryGroup{}, err
	}

	logger.LogMutation(ctx, "Category group created", log.OpCreate, fields)
	return group, nil
}

// DeactivateCategoryGroup retires groupID and detaches its categories,
// which stay usable without a group.
func (l *Ledger) DeactivateCategoryGroup(ctx context.Context, groupID string) (err error) {
	ctx, span := startSpan(ctx, "Ledger.DeactivateCategoryGroup")
	defer func() { endSpan(span, err) }()

	logger := l.adminLogger()
	fields := log.NewFields().With("group_id", groupID)
	event := amqp.NewLedgerEvent(amqp.EventCategoryChanged, "")

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		group, err := tx.GetCategoryGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if group.IsSystem {
			return fmt.Errorf("%w: group %s", core.ErrSystemCategory, groupID)
		}
		return tx.DeactivateCategoryGroup(ctx, groupID)
	})
	if err != nil {
		logger.LogFailure(ctx, "Category group deactivation failed", log.OpDelete, err, fields)
		return err
	}

	logger.LogMutation(ctx, "Category group deactivated", log.OpDelete, fields)
	return nil
}

// CreateCategory adds an envelope category, optionally inside an active
// group. Ids in the payment namespace are refused: those belong to the
// envelopes credit accounts derive.
func (l *Ledger) CreateCategory(ctx context.Context, p core.CategoryPayload) (category core.Category, err error) {
	ctx, span := startSpan(ctx, "Ledger.CreateCategory")
	defer func() { endSpan(span, err) }()

	logger := l.adminLogger()
	fields := log.NewFields().With(log.FieldCategoryID, p.CategoryID)
	defer func() {
		if err != nil {
			logger.LogFailure(ctx, "Category rejected", log.OpCreate, err, fields)
		}
	}()

	if err := p.Validate(); err != nil {
		return core.Category{}, err
	}

	category = core.Category{
		ID:        p.CategoryID,
		GroupID:   p.GroupID,
		Name:      p.Name,
		IsActive:  true,
		SortOrder: p.SortOrder,
		Goal:      p.Goal,
	}
	event := amqp.NewLedgerEvent(amqp.EventCategoryChanged, "")
	event.TouchCategory(category.ID, "")

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		if err := requireActiveGroup(ctx, tx, p.GroupID); err != nil {
			return err
		}
		return tx.InsertCategory(ctx, category)
	})
	if err != nil {
		return core.Category{}, err
	}

	logger.LogMutation(ctx, "Category created", log.OpCreate, fields)
	return category, nil
}

// DeactivateCategory retires an envelope category. System categories,
// payment categories included, are refused.
func (l *Ledger) DeactivateCategory(ctx context.Context, categoryID string) (err error) {
	ctx, span := startSpan(ctx, "Ledger.DeactivateCategory")
	defer func() { endSpan(span, err) }()

	logger := l.adminLogger()
	fields := log.NewFields().With(log.FieldCategoryID, categoryID)
	event := amqp.NewLedgerEvent(amqp.EventCategoryChanged, "")
	event.TouchCategory(categoryID, "")

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		category, err := tx.GetCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		if category.IsSystem {
			return fmt.Errorf("%w: %s", core.ErrSystemCategory, categoryID)
		}
		return tx.SetCategoryActive(ctx, categoryID, false)
	})
	if err != nil {
		logger.LogFailure(ctx, "Category deactivation failed", log.OpDelete, err, fields)
		return err
	}

	logger.LogMutation(ctx, "Category deactivated", log.OpDelete, fields)
	return nil
}

// UpdateAccount renames accountID. The payment category of an active credit
// account follows the new name.
func (l *Ledger) UpdateAccount(ctx context.Context, accountID string, p core.AccountUpdatePayload) (account core.Account, err error) {
	ctx, span := startSpan(ctx, "Ledger.UpdateAccount")
	defer func() { endSpan(span, err) }()

	logger := l.adminLogger()
	fields := log.NewFields().With(log.FieldAccountID, accountID)
	defer func() {
		if err != nil {
			logger.LogFailure(ctx, "Account update rejected", log.OpEdit, err, fields)
		}
	}()

	if err := p.Validate(); err != nil {
		return core.Account{}, err
	}

	event := amqp.NewLedgerEvent(amqp.EventAccountUpdated, "")
	event.TouchAccount(accountID)

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		if err := tx.RenameAccount(ctx, accountID, p.Name); err != nil {
			return err
		}
		account, err = tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return nil
		}
		return ensurePaymentEnvelope(ctx, tx, account)
	})
	if err != nil {
		return core.Account{}, err
	}

	logger.LogMutation(ctx, "Account updated", log.OpEdit, fields)
	return account, nil
}

// UpdateCategoryGroup renames and reorders groupID. System groups are
// refused.
func (l *Ledger) UpdateCategoryGroup(ctx context.Context, groupID string, p core.CategoryGroupUpdatePayload) (group core.CategoryGroup, err error) {
	ctx, span := startSpan(ctx, "Ledger.UpdateCategoryGroup")
	defer func() { endSpan(span, err) }()

	logger := l.adminLogger()
	fields := log.NewFields().With("group_id", groupID)
	defer func() {
		if err != nil {
			logger.LogFailure(ctx, "Category group update rejected", log.OpEdit, err, fields)
		}
	}()

	if err := p.Validate(); err != nil {
		return core.CategoryGroup{}, err
	}

	event := amqp.NewLedgerEvent(amqp.EventCategoryChanged, "")
	err = l.commit(ctx, event, func(tx storage.Tx) error {
		current, err := tx.GetCategoryGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if current.IsSystem {
			return fmt.Errorf("%w: group %s", core.ErrSystemCategory, groupID)
		}
		current.Name = p.Name
		current.SortOrder = p.SortOrder
		if err := tx.UpdateCategoryGroup(ctx, current); err != nil {
			return err
		}
		group = current
		return nil
	})
	if err != nil {
		return core.CategoryGroup{}, err
	}

	logger.LogMutation(ctx, "Category group updated", log.OpEdit, fields)
	return group, nil
}

// UpdateCategory replaces the name, group, sort order and goal of
// categoryID. System categories are refused, and a new group must be
// active.
func (l *Ledger) UpdateCategory(ctx context.Context, categoryID string, p core.CategoryUpdatePayload) (category core.Category, err error) {
	ctx, span := startSpan(ctx, "Ledger.UpdateCategory")
	defer func() { endSpan(span, err) }()

	logger := l.adminLogger()
	fields := log.NewFields().With(log.FieldCategoryID, categoryID)
	defer func() {
		if err != nil {
			logger.LogFailure(ctx, "Category update rejected", log.OpEdit, err, fields)
		}
	}()

	if err := p.Validate(); err != nil {
		return core.Category{}, err
	}

	event := amqp.NewLedgerEvent(amqp.EventCategoryChanged, "")
	event.TouchCategory(categoryID, "")

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		current, err := tx.GetCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		if current.IsSystem {
			return fmt.Errorf("%w: %s", core.ErrSystemCategory, categoryID)
		}
		if p.GroupID != current.GroupID {
			if err := requireActiveGroup(ctx, tx, p.GroupID); err != nil {
				return err
			}
		}
		current.GroupID = p.GroupID
		current.Name = p.Name
		current.SortOrder = p.SortOrder
		current.Goal = p.Goal
		if err := tx.UpdateCategory(ctx, current); err != nil {
			return err
		}
		category = current
		return nil
	})
	if err != nil {
		return core.Category{}, err
	}

	logger.LogMutation(ctx, "Category updated", log.OpEdit, fields)
	return category, nil
}

// requireActiveGroup accepts an empty groupID, meaning no group.
func requireActiveGroup(ctx context.Context, tx storage.Tx, groupID string) error {
	if groupID == "" {
		return nil
	}
	group, err := tx.GetCategoryGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.IsActive {
		return fmt.Errorf("%w: %s", core.ErrGroupInactive, groupID)
	}
	return nil
}
