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

// Reconcile records a statement checkpoint for accountID. The checkpoint
// stores the ledger's cleared balance next to the statement's, links to the
// previous checkpoint and becomes the cutoff of the next worksheet.
func (l *Ledger) Reconcile(ctx context.Context, accountID string, p core.ReconciliationPayload) (rec core.Reconciliation, err error) {
	ctx, span := startSpan(ctx, "Ledger.Reconcile")
	defer func() { endSpan(span, err) }()

	logger := l.adminLogger()
	fields := log.NewFields().With(log.FieldAccountID, accountID)
	defer func() {
		if err != nil {
			logger.LogFailure(ctx, "Reconciliation rejected", log.OpReconcile, err, fields)
		}
	}()

	if err := p.Validate(l.today()); err != nil {
		return core.Reconciliation{}, err
	}

	event := amqp.NewLedgerEvent(amqp.EventAccountReconciled, "")
	event.TouchAccount(accountID)

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return fmt.Errorf("%w: %s", core.ErrAccountInactive, accountID)
		}

		rec = core.Reconciliation{
			ID:                         uuid.New(),
			AccountID:                  accountID,
			CreatedAt:                  l.clock.Now(),
			StatementDate:              p.StatementDate,
			StatementBalanceMinor:      p.StatementBalanceMinor,
			StatementPendingTotalMinor: p.StatementPendingTotalMinor,
		}
		latest, err := tx.LatestReconciliation(ctx, accountID)
		switch {
		case err == nil:
			rec.PreviousID = uuid.NullUUID{UUID: latest.ID, Valid: true}
			if rec.CreatedAt.Before(latest.CreatedAt) {
				rec.CreatedAt = latest.CreatedAt
			}
		case !errors.Is(err, core.ErrNoReconciliation):
			return err
		}

		if rec.ClearedBalanceMinor, _, err = tx.StatusBalances(ctx, accountID); err != nil {
			return err
		}
		return tx.InsertReconciliation(ctx, rec)
	})
	if err != nil {
		return core.Reconciliation{}, err
	}

	fields = fields.With("difference_minor", rec.DifferenceMinor())
	logger.LogMutation(ctx, "Account reconciled", log.OpReconcile, fields)
	return rec, nil
}

// LatestReconciliation returns the newest checkpoint of accountID, or
// ErrNoReconciliation when it was never reconciled.
func (l *Ledger) LatestReconciliation(ctx context.Context, accountID string) (core.Reconciliation, error) {
	if _, err := l.store.GetAccount(ctx, accountID); err != nil {
		return core.Reconciliation{}, err
	}
	return l.store.LatestReconciliation(ctx, accountID)
}

// ReconciliationWorksheet gathers what an operator reviews against the next
// statement: the transactions recorded or edited since the latest
// checkpoint, every pending one, and the current cleared and pending
// balances.
func (l *Ledger) ReconciliationWorksheet(ctx context.Context, accountID string) (ws core.Worksheet, err error) {
	ctx, span := startSpan(ctx, "Ledger.ReconciliationWorksheet")
	defer func() { endSpan(span, err) }()

	if _, err := l.store.GetAccount(ctx, accountID); err != nil {
		return core.Worksheet{}, err
	}

	ws = core.Worksheet{AccountID: accountID, Since: core.ReconciliationEpoch}
	latest, err := l.store.LatestReconciliation(ctx, accountID)
	switch {
	case err == nil:
		ws.Latest = &latest
		ws.Since = latest.CreatedAt
	case !errors.Is(err, core.ErrNoReconciliation):
		return core.Worksheet{}, err
	}

	if ws.Transactions, err = l.store.ReconciliationWorksheet(ctx, accountID, ws.Since); err != nil {
		return core.Worksheet{}, err
	}
	if ws.ClearedBalanceMinor, ws.PendingBalanceMinor, err = l.store.StatusBalances(ctx, accountID); err != nil {
		return core.Worksheet{}, err
	}
	return ws, nil
}
