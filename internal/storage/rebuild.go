package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/blogle/dojo-sub001/internal/core"
)

// The queries below recompute the caches from active versions alone. They
// back the rebuild command and let the auditor compare the incrementally
// maintained figures against a from-scratch answer.

const balanceSQL = `SELECT COALESCE(SUM(amount_minor), 0) FROM transactions
WHERE account_id = ? AND valid_to IS NULL`

// ComputeAccountBalance sums the active versions of the account without
// touching the cache.
func (q *Queries) ComputeAccountBalance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	if err := q.db.QueryRowContext(ctx, balanceSQL, accountID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("compute balance of %s: %w", accountID, err)
	}
	return balance, nil
}

// AccountBalanceAsOf sums the versions of the account that were valid at ts.
func (q *Queries) AccountBalanceAsOf(ctx context.Context, accountID string, ts time.Time) (int64, error) {
	at := formatTimestamp(ts)
	var balance int64
	if err := q.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(amount_minor), 0) FROM transactions
WHERE account_id = ? AND `+asOfPredicate, accountID, at, at).Scan(&balance); err != nil {
		return 0, fmt.Errorf("compute balance of %s as of %s: %w", accountID, at, err)
	}
	return balance, nil
}

// RebuildAccountBalance recomputes and stores the balance cache of one account.
func (q *Queries) RebuildAccountBalance(ctx context.Context, accountID string) (int64, error) {
	balance, err := q.ComputeAccountBalance(ctx, accountID)
	if err != nil {
		return 0, err
	}
	res, err := q.db.ExecContext(ctx, `
UPDATE accounts SET current_balance_minor = ?, updated_at = `+nowSQL+`
WHERE account_id = ?`, balance, accountID)
	if err != nil {
		return 0, fmt.Errorf("store balance of %s: %w", accountID, err)
	}
	if err := expectOneRow(res, core.ErrAccountNotFound, accountID); err != nil {
		return 0, err
	}
	return balance, nil
}

func (q *Queries) RebuildAllAccountBalances(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, `
UPDATE accounts SET current_balance_minor = (
    SELECT COALESCE(SUM(t.amount_minor), 0) FROM transactions t
    WHERE t.account_id = accounts.account_id AND t.valid_to IS NULL
), updated_at = `+nowSQL); err != nil {
		return fmt.Errorf("rebuild account balances: %w", err)
	}
	return nil
}

type monthKey struct {
	categoryID string
	month      string
}

// ComputeMonthlyState derives every monthly-state row from the active
// transaction and allocation versions. Rows come back ordered by category
// then month with the carry-forward already applied.
func (q *Queries) ComputeMonthlyState(ctx context.Context) ([]core.MonthlyState, error) {
	categories, err := q.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	tracked := make(map[string]core.Category, len(categories))
	for _, c := range categories {
		if c.TracksEnvelope() {
			tracked[c.ID] = c
		}
	}

	accounts, err := q.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	credit := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		credit[a.ID] = a.IsCredit()
	}

	agg := make(map[monthKey]*core.MonthlyState)
	entry := func(categoryID, month string) (*core.MonthlyState, error) {
		k := monthKey{categoryID, month}
		if s, ok := agg[k]; ok {
			return s, nil
		}
		m, err := parseDate(month)
		if err != nil {
			return nil, fmt.Errorf("parse month %q: %w", month, err)
		}
		s := &core.MonthlyState{CategoryID: categoryID, Month: m}
		agg[k] = s
		return s, nil
	}

	rows, err := q.db.QueryContext(ctx, `
SELECT account_id, category_id, transaction_date, amount_minor
FROM transactions
WHERE valid_to IS NULL AND transfer_id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("list active transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			accountID, categoryID, txDate string
			amount                        int64
		)
		if err := rows.Scan(&accountID, &categoryID, &txDate, &amount); err != nil {
			return nil, fmt.Errorf("scan active transaction: %w", err)
		}
		d, err := parseDate(txDate)
		if err != nil {
			return nil, fmt.Errorf("parse transaction_date %q: %w", txDate, err)
		}
		month := formatMonth(d)

		cat, ok := tracked[categoryID]
		if !ok {
			continue
		}
		s, err := entry(categoryID, month)
		if err != nil {
			return nil, err
		}
		s.ActivityMinor += amount

		if !cat.IsSystem && credit[accountID] {
			paymentID := core.PaymentCategoryID(accountID)
			if _, ok := tracked[paymentID]; !ok {
				slog.WarnContext(ctx, "Skipping credit inflow for missing payment category",
					"category_id", paymentID)
				continue
			}
			p, err := entry(paymentID, month)
			if err != nil {
				return nil, err
			}
			p.InflowMinor -= amount
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active transactions: %w", err)
	}

	allocRows, err := q.db.QueryContext(ctx, `
SELECT allocation_date, from_category_id, to_category_id, amount_minor
FROM budget_allocations WHERE valid_to IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("list active allocations: %w", err)
	}
	defer allocRows.Close()

	for allocRows.Next() {
		var (
			allocDate, to string
			from          *string
			amount        int64
		)
		if err := allocRows.Scan(&allocDate, &from, &to, &amount); err != nil {
			return nil, fmt.Errorf("scan active allocation: %w", err)
		}
		d, err := parseDate(allocDate)
		if err != nil {
			return nil, fmt.Errorf("parse allocation_date %q: %w", allocDate, err)
		}
		month := formatMonth(d)

		s, err := entry(to, month)
		if err != nil {
			return nil, err
		}
		s.AllocatedMinor += amount
		if from != nil {
			src, err := entry(*from, month)
			if err != nil {
				return nil, err
			}
			src.AllocatedMinor -= amount
		}
	}
	if err := allocRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active allocations: %w", err)
	}

	out := make([]core.MonthlyState, 0, len(agg))
	for _, s := range agg {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CategoryID != out[j].CategoryID {
			return out[i].CategoryID < out[j].CategoryID
		}
		return out[i].Month.Before(out[j].Month.Time)
	})

	var (
		current string
		running int64
	)
	for i := range out {
		if out[i].CategoryID != current {
			current = out[i].CategoryID
			running = 0
		}
		out[i].LastMonthAvailableMinor = running
		running += out[i].AllocatedMinor + out[i].InflowMinor + out[i].ActivityMinor
		out[i].AvailableMinor = running
	}
	return out, nil
}

// ReplaceMonthlyState swaps the whole monthly-state table for rows.
func (q *Queries) ReplaceMonthlyState(ctx context.Context, rows []core.MonthlyState) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM budget_category_monthly_state`); err != nil {
		return fmt.Errorf("clear monthly state: %w", err)
	}
	for _, s := range rows {
		if _, err := q.db.ExecContext(ctx, `
INSERT INTO budget_category_monthly_state (category_id, month_start, allocated_minor, inflow_minor,
    activity_minor, available_minor, last_month_available_minor)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.CategoryID, formatMonth(s.Month), s.AllocatedMinor, s.InflowMinor,
			s.ActivityMinor, s.AvailableMinor, s.LastMonthAvailableMinor); err != nil {
			return fmt.Errorf("insert monthly state %s/%s: %w", s.CategoryID, formatMonth(s.Month), err)
		}
	}
	return nil
}

// RebuildStats summarizes one cache rebuild.
type RebuildStats struct {
	Accounts         int
	MonthlyStateRows int
	Duration         time.Duration
}

// RebuildCaches recomputes every account balance and the whole monthly-state
// table from active versions in a single transaction.
func (r *SQLiteRepository) RebuildCaches(ctx context.Context) (RebuildStats, error) {
	start := time.Now()
	var stats RebuildStats
	err := r.InTx(ctx, func(tx Tx) error {
		if err := tx.RebuildAllAccountBalances(ctx); err != nil {
			return err
		}
		accounts, err := tx.ListAccounts(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.ComputeMonthlyState(ctx)
		if err != nil {
			return err
		}
		if err := tx.ReplaceMonthlyState(ctx, rows); err != nil {
			return err
		}
		stats.Accounts = len(accounts)
		stats.MonthlyStateRows = len(rows)
		return nil
	})
	if err != nil {
		return RebuildStats{}, fmt.Errorf("rebuild caches: %w", err)
	}
	stats.Duration = time.Since(start)

	slog.InfoContext(ctx, "Rebuilt ledger caches",
		"accounts", stats.Accounts,
		"monthly_state_rows", stats.MonthlyStateRows,
		"duration", stats.Duration)
	return stats, nil
}
