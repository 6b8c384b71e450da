package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blogle/dojo-sub001/internal/core"
)

const reconciliationColumns = `reconciliation_id, account_id, created_at, statement_date, statement_balance_minor,
    statement_pending_total_minor, cleared_balance_minor, previous_reconciliation_id`

func scanReconciliation(row rowScanner) (core.Reconciliation, error) {
	var (
		r                  core.Reconciliation
		created, statement string
	)
	if err := row.Scan(&r.ID, &r.AccountID, &created, &statement, &r.StatementBalanceMinor,
		&r.StatementPendingTotalMinor, &r.ClearedBalanceMinor, &r.PreviousID); err != nil {
		return core.Reconciliation{}, err
	}
	var err error
	if r.CreatedAt, err = parseTimestamp(created); err != nil {
		return core.Reconciliation{}, fmt.Errorf("parse created_at: %w", err)
	}
	if r.StatementDate, err = parseDate(statement); err != nil {
		return core.Reconciliation{}, fmt.Errorf("parse statement_date: %w", err)
	}
	return r, nil
}

func (q *Queries) InsertReconciliation(ctx context.Context, r core.Reconciliation) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO account_reconciliations (reconciliation_id, account_id, created_at, statement_date,
    statement_balance_minor, statement_pending_total_minor, cleared_balance_minor, previous_reconciliation_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AccountID, formatTimestamp(r.CreatedAt), formatDate(r.StatementDate),
		r.StatementBalanceMinor, r.StatementPendingTotalMinor, r.ClearedBalanceMinor, r.PreviousID)
	if err != nil {
		return fmt.Errorf("insert reconciliation %s: %w", r.ID, err)
	}
	return nil
}

// LatestReconciliation returns the newest checkpoint of accountID, or
// ErrNoReconciliation.
func (q *Queries) LatestReconciliation(ctx context.Context, accountID string) (core.Reconciliation, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+reconciliationColumns+` FROM account_reconciliations
WHERE account_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, accountID)
	r, err := scanReconciliation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Reconciliation{}, fmt.Errorf("%w: %s", core.ErrNoReconciliation, accountID)
	}
	if err != nil {
		return core.Reconciliation{}, fmt.Errorf("get latest reconciliation of %s: %w", accountID, err)
	}
	return r, nil
}

// ReconciliationWorksheet lists the active transactions of accountID that
// became active after since, plus every active pending one.
func (q *Queries) ReconciliationWorksheet(ctx context.Context, accountID string, since time.Time) ([]core.TransactionVersion, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
WHERE account_id = ? AND valid_to IS NULL AND (valid_from > ? OR status = ?)
ORDER BY transaction_date, recorded_at, concept_id`,
		accountID, formatTimestamp(since), core.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list reconciliation worksheet of %s: %w", accountID, err)
	}
	return collectTransactions(rows)
}

// StatusBalances splits the active balance of accountID into its cleared
// and pending parts.
func (q *Queries) StatusBalances(ctx context.Context, accountID string) (cleared, pending int64, err error) {
	err = q.db.QueryRowContext(ctx, `
SELECT
    COALESCE(SUM(CASE WHEN status = ? THEN amount_minor END), 0),
    COALESCE(SUM(CASE WHEN status = ? THEN amount_minor END), 0)
FROM transactions
WHERE account_id = ? AND valid_to IS NULL`,
		core.StatusCleared, core.StatusPending, accountID).Scan(&cleared, &pending)
	if err != nil {
		return 0, 0, fmt.Errorf("sum status balances of %s: %w", accountID, err)
	}
	return cleared, pending, nil
}
