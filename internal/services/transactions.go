package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/blogle/dojo-sub001/internal/amqp"
	"github.com/blogle/dojo-sub001/internal/core"
	"github.com/blogle/dojo-sub001/internal/log"
	"github.com/blogle/dojo-sub001/internal/storage"
)

// CreateTransaction records a new transaction concept and applies its
// balance, envelope and credit-payment effects atomically.
func (l *Ledger) CreateTransaction(ctx context.Context, p core.TransactionPayload) (view core.TransactionView, err error) {
	ctx, span := startSpan(ctx, "Ledger.CreateTransaction")
	defer func() { endSpan(span, err) }()

	fields := log.NewFields().WithPosting(p.AccountID, p.CategoryID, p.AmountMinor, p.TransactionDate.String())
	defer func() {
		if err != nil {
			l.logger.LogFailure(ctx, "Transaction rejected", log.OpCreate, err, fields)
		}
	}()

	if err := p.Validate(l.today(), l.config.MaxFutureDays); err != nil {
		return core.TransactionView{}, err
	}

	now := l.clock.Now()
	v := core.TransactionVersion{
		ConceptID:       uuid.New(),
		VersionID:       uuid.New(),
		TransactionDate: p.TransactionDate,
		AccountID:       p.AccountID,
		CategoryID:      p.CategoryID,
		AmountMinor:     p.AmountMinor,
		Memo:            p.Memo,
		Status:          p.StatusOrDefault(),
		ValidFrom:       now,
		RecordedAt:      now,
	}

	event := amqp.NewLedgerEvent(amqp.EventTransactionCreated, v.ConceptID.String())
	event.VersionID = v.VersionID.String()

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		account, category, err := loadPostingRefs(ctx, tx, p.AccountID, p.CategoryID)
		if err != nil {
			return err
		}
		if err := ensurePaymentEnvelope(ctx, tx, account); err != nil {
			return err
		}
		if err := tx.CreateTransactionVersion(ctx, v); err != nil {
			return err
		}

		fx := newEffects()
		fx.postTransaction(v, account, category, 1)
		if err := fx.apply(ctx, tx); err != nil {
			return err
		}
		fx.touch(event)

		balance, err := tx.AccountBalance(ctx, account.ID)
		if err != nil {
			return err
		}
		view = core.NewTransactionView(v, balance)
		return nil
	})
	if err != nil {
		return core.TransactionView{}, err
	}

	l.logger.LogMutation(ctx, "Transaction created", log.OpCreate,
		fields.WithConcept(v.ConceptID.String(), v.VersionID.String()))
	return view, nil
}

// EditTransaction supersedes the active version of conceptID with p. The
// old version's effects are reversed and the new ones applied as one net
// delta per account and per envelope month.
func (l *Ledger) EditTransaction(ctx context.Context, conceptID uuid.UUID, p core.TransactionPayload) (view core.TransactionView, err error) {
	ctx, span := startSpan(ctx, "Ledger.EditTransaction", conceptAttr(conceptID))
	defer func() { endSpan(span, err) }()

	fields := log.NewFields().
		WithConcept(conceptID.String(), "").
		WithPosting(p.AccountID, p.CategoryID, p.AmountMinor, p.TransactionDate.String())
	defer func() {
		if err != nil {
			l.logger.LogFailure(ctx, "Transaction edit rejected", log.OpEdit, err, fields)
		}
	}()

	if err := p.Validate(l.today(), l.config.MaxFutureDays); err != nil {
		return core.TransactionView{}, err
	}

	event := amqp.NewLedgerEvent(amqp.EventTransactionEdited, conceptID.String())

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		prior, err := tx.ActiveTransaction(ctx, conceptID)
		if err != nil {
			return err
		}
		if prior.IsTransferLeg() {
			return fmt.Errorf("%w: %s belongs to transfer %s", core.ErrTransferLeg, conceptID, prior.TransferID.UUID)
		}

		oldAccount, oldCategory, err := loadPostedRefs(ctx, tx, prior.AccountID, prior.CategoryID)
		if err != nil {
			return err
		}
		account, category, err := loadPostingRefs(ctx, tx, p.AccountID, p.CategoryID)
		if err != nil {
			return err
		}
		if err := ensurePaymentEnvelope(ctx, tx, account); err != nil {
			return err
		}

		now := l.nextValidFrom(prior.ValidFrom)
		next := core.TransactionVersion{
			ConceptID:       conceptID,
			VersionID:       uuid.New(),
			TransactionDate: p.TransactionDate,
			AccountID:       p.AccountID,
			CategoryID:      p.CategoryID,
			AmountMinor:     p.AmountMinor,
			Memo:            p.Memo,
			Status:          p.StatusOrDefault(),
			ValidFrom:       now,
			RecordedAt:      now,
		}
		if err := tx.CloseThenInsertTransaction(ctx, prior.VersionID, next); err != nil {
			return err
		}

		fx := newEffects()
		fx.postTransaction(prior, oldAccount, oldCategory, -1)
		fx.postTransaction(next, account, category, 1)
		if err := fx.apply(ctx, tx); err != nil {
			return err
		}
		fx.touch(event)
		event.VersionID = next.VersionID.String()

		balance, err := tx.AccountBalance(ctx, account.ID)
		if err != nil {
			return err
		}
		view = core.NewTransactionView(next, balance)
		return nil
	})
	if err != nil {
		return core.TransactionView{}, err
	}

	l.logger.LogMutation(ctx, "Transaction edited", log.OpEdit,
		fields.WithConcept(conceptID.String(), view.VersionID.String()))
	return view, nil
}

// DeleteTransaction closes the active version of conceptID and reverses its
// effects. Deleting either leg of a transfer deletes the whole transfer.
func (l *Ledger) DeleteTransaction(ctx context.Context, conceptID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "Ledger.DeleteTransaction", conceptAttr(conceptID))
	defer func() { endSpan(span, err) }()

	fields := log.NewFields().WithConcept(conceptID.String(), "")
	event := amqp.NewLedgerEvent(amqp.EventTransactionDeleted, conceptID.String())

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		prior, err := tx.ActiveTransaction(ctx, conceptID)
		if err != nil {
			return err
		}
		if prior.IsTransferLeg() {
			event.Type = amqp.EventTransferDeleted
			event.TransferID = prior.TransferID.UUID.String()
			return l.closeTransfer(ctx, tx, prior.TransferID.UUID, event)
		}
		return l.closeTransactions(ctx, tx, event, prior)
	})
	if err != nil {
		l.logger.LogFailure(ctx, "Transaction delete failed", log.OpDelete, err, fields)
		return err
	}

	l.logger.LogMutation(ctx, "Transaction deleted", log.OpDelete, fields)
	return nil
}

// closeTransactions closes every version in versions and reverses their
// combined effects.
func (l *Ledger) closeTransactions(ctx context.Context, tx storage.Tx, event *amqp.LedgerEvent, versions ...core.TransactionVersion) error {
	fx := newEffects()
	for _, v := range versions {
		account, category, err := loadPostedRefs(ctx, tx, v.AccountID, v.CategoryID)
		if err != nil {
			return err
		}
		if err := tx.CloseTransaction(ctx, v.ConceptID, l.nextValidFrom(v.ValidFrom)); err != nil {
			return err
		}
		fx.postTransaction(v, account, category, -1)
	}
	if err := fx.apply(ctx, tx); err != nil {
		return err
	}
	fx.touch(event)
	return nil
}
