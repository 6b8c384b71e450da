package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/blogle/dojo-sub001/internal/core"
)

// ReadyToAssign returns the money not yet given a job as of the month of
// date: cash inflow on on-budget accounts dated before the next month,
// minus everything allocated up to and including the month.
func (q *Queries) ReadyToAssign(ctx context.Context, date core.Date) (int64, error) {
	sources := core.ReadyToAssignSources()
	args := []any{core.OnBudget}
	for _, id := range sources {
		args = append(args, id)
	}
	args = append(args, formatDate(date.NextMonth()))

	var inflow int64
	if err := q.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(t.amount_minor), 0)
FROM transactions t
JOIN accounts a ON a.account_id = t.account_id
WHERE t.valid_to IS NULL
  AND a.account_role = ?
  AND t.category_id IN (`+placeholders(len(sources))+`)
  AND t.transaction_date < ?`, args...).Scan(&inflow); err != nil {
		return 0, fmt.Errorf("sum ready-to-assign inflow: %w", err)
	}

	var allocated int64
	if err := q.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(allocated_minor), 0)
FROM budget_category_monthly_state
WHERE month_start <= ?`, formatMonth(date)).Scan(&allocated); err != nil {
		return 0, fmt.Errorf("sum allocated: %w", err)
	}

	return inflow - allocated, nil
}

// placeholders returns n comma-separated bind markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
