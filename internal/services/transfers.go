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

// CreateTransfer moves p.AmountMinor from the source account to the
// destination account. Each leg is its own transaction concept; the legs
// share a transfer id and only ever move account balances.
func (l *Ledger) CreateTransfer(ctx context.Context, p core.TransferPayload) (view core.TransferView, err error) {
	ctx, span := startSpan(ctx, "Ledger.CreateTransfer")
	defer func() { endSpan(span, err) }()

	fields := log.NewFields().
		WithPosting(p.SourceAccountID, p.CategoryID, p.AmountMinor, p.TransactionDate.String()).
		With("destination_account_id", p.DestinationAccountID)
	defer func() {
		if err != nil {
			l.logger.LogFailure(ctx, "Transfer rejected", log.OpTransfer, err, fields)
		}
	}()

	if err := p.Validate(l.today(), l.config.MaxFutureDays); err != nil {
		return core.TransferView{}, err
	}

	transferID := uuid.New()
	now := l.clock.Now()
	leg := func(accountID string, amount int64) core.TransactionVersion {
		return core.TransactionVersion{
			ConceptID:       uuid.New(),
			VersionID:       uuid.New(),
			TransferID:      uuid.NullUUID{UUID: transferID, Valid: true},
			TransactionDate: p.TransactionDate,
			AccountID:       accountID,
			CategoryID:      p.CategoryID,
			AmountMinor:     amount,
			Memo:            p.Memo,
			Status:          core.StatusCleared,
			ValidFrom:       now,
			RecordedAt:      now,
		}
	}
	source := leg(p.SourceAccountID, -p.AmountMinor)
	destination := leg(p.DestinationAccountID, p.AmountMinor)

	event := amqp.NewLedgerEvent(amqp.EventTransferCreated, source.ConceptID.String())
	event.TransferID = transferID.String()

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		sourceAccount, category, err := loadPostingRefs(ctx, tx, p.SourceAccountID, p.CategoryID)
		if err != nil {
			return err
		}
		destinationAccount, _, err := loadPostingRefs(ctx, tx, p.DestinationAccountID, p.CategoryID)
		if err != nil {
			return err
		}
		if !category.TracksEnvelope() && category.ID != core.CategoryAccountTransfer {
			return fmt.Errorf("%w: %s", core.ErrTransferCategory, category.ID)
		}

		fx := newEffects()
		for _, posting := range []struct {
			v       core.TransactionVersion
			account core.Account
		}{
			{source, sourceAccount},
			{destination, destinationAccount},
		} {
			if err := tx.CreateTransactionVersion(ctx, posting.v); err != nil {
				return err
			}
			fx.postTransaction(posting.v, posting.account, category, 1)
		}
		if err := fx.apply(ctx, tx); err != nil {
			return err
		}
		fx.touch(event)

		sourceBalance, err := tx.AccountBalance(ctx, sourceAccount.ID)
		if err != nil {
			return err
		}
		destinationBalance, err := tx.AccountBalance(ctx, destinationAccount.ID)
		if err != nil {
			return err
		}
		view = core.TransferView{
			TransferID:  transferID,
			Source:      core.NewTransactionView(source, sourceBalance),
			Destination: core.NewTransactionView(destination, destinationBalance),
		}
		return nil
	})
	if err != nil {
		return core.TransferView{}, err
	}

	l.logger.LogMutation(ctx, "Transfer created", log.OpTransfer, fields.With(log.FieldTransferID, transferID.String()))
	return view, nil
}

// DeleteTransfer closes both legs of transferID.
func (l *Ledger) DeleteTransfer(ctx context.Context, transferID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "Ledger.DeleteTransfer", transferAttr(transferID))
	defer func() { endSpan(span, err) }()

	fields := log.NewFields().With(log.FieldTransferID, transferID.String())
	event := amqp.NewLedgerEvent(amqp.EventTransferDeleted, "")
	event.TransferID = transferID.String()

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		return l.closeTransfer(ctx, tx, transferID, event)
	})
	if err != nil {
		l.logger.LogFailure(ctx, "Transfer delete failed", log.OpDelete, err, fields)
		return err
	}

	l.logger.LogMutation(ctx, "Transfer deleted", log.OpDelete, fields)
	return nil
}

func (l *Ledger) closeTransfer(ctx context.Context, tx storage.Tx, transferID uuid.UUID, event *amqp.LedgerEvent) error {
	legs, err := tx.ActiveTransferLegs(ctx, transferID)
	if err != nil {
		return err
	}
	if len(legs) == 0 {
		return fmt.Errorf("%w: %s", core.ErrTransferNotFound, transferID)
	}
	if event.ConceptID == "" {
		event.ConceptID = legs[0].ConceptID.String()
	}
	return l.closeTransactions(ctx, tx, event, legs...)
}
