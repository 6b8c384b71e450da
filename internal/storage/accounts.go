package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blogle/dojo-sub001/internal/core"
)

const accountColumns = `account_id, name, account_type, account_class, account_role,
    current_balance_minor, currency, is_active, opened_on`

func scanAccount(row rowScanner) (core.Account, error) {
	var (
		a        core.Account
		openedOn sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Type, &a.Class, &a.Role,
		&a.BalanceMinor, &a.Currency, &a.IsActive, &openedOn); err != nil {
		return core.Account{}, err
	}
	if openedOn.Valid {
		d, err := parseDate(openedOn.String)
		if err != nil {
			return core.Account{}, fmt.Errorf("parse opened_on of %s: %w", a.ID, err)
		}
		a.OpenedOn = d
	}
	return a, nil
}

func (q *Queries) GetAccount(ctx context.Context, accountID string) (core.Account, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = ?`, accountID)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %s: %w", accountID, err)
	}
	return a, nil
}

func (q *Queries) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// InsertAccount stores a new account with a zero balance cache. The
// balance only moves through ApplyAccountDelta.
func (q *Queries) InsertAccount(ctx context.Context, a core.Account) error {
	var openedOn sql.NullString
	if !a.OpenedOn.IsZero() {
		openedOn = nullString(formatDate(a.OpenedOn))
	}
	_, err := q.db.ExecContext(ctx, `
INSERT INTO accounts (account_id, name, account_type, account_class, account_role,
    current_balance_minor, currency, is_active, opened_on)
VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		a.ID, a.Name, a.Type, a.Class, a.Role, a.Currency, a.IsActive, openedOn)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", core.ErrAccountExists, a.ID)
	}
	if err != nil {
		return fmt.Errorf("insert account %s: %w", a.ID, err)
	}
	return nil
}

func (q *Queries) SetAccountActive(ctx context.Context, accountID string, active bool) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET is_active = ?, updated_at = `+nowSQL+` WHERE account_id = ?`,
		active, accountID)
	if err != nil {
		return fmt.Errorf("set account %s active=%v: %w", accountID, active, err)
	}
	return expectOneRow(res, core.ErrAccountNotFound, accountID)
}

// RenameAccount changes the display name of an account.
func (q *Queries) RenameAccount(ctx context.Context, accountID, name string) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, updated_at = `+nowSQL+` WHERE account_id = ?`, name, accountID)
	if err != nil {
		return fmt.Errorf("rename account %s: %w", accountID, err)
	}
	return expectOneRow(res, core.ErrAccountNotFound, accountID)
}

// ApplyAccountDelta adds the net effect of one version transition to the
// account's balance cache.
func (q *Queries) ApplyAccountDelta(ctx context.Context, accountID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	res, err := q.db.ExecContext(ctx, `
UPDATE accounts
SET current_balance_minor = current_balance_minor + ?, updated_at = `+nowSQL+`
WHERE account_id = ?`, delta, accountID)
	if err != nil {
		return fmt.Errorf("apply balance delta to %s: %w", accountID, err)
	}
	return expectOneRow(res, core.ErrAccountNotFound, accountID)
}

func (q *Queries) AccountBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := q.db.QueryRowContext(ctx,
		`SELECT current_balance_minor FROM accounts WHERE account_id = ?`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", core.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return 0, fmt.Errorf("get balance of %s: %w", accountID, err)
	}
	return balance, nil
}

func expectOneRow(res sql.Result, notFound *core.Error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}
