package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blogle/dojo-sub001/internal/core"
)

// monthlyColumn names one of the three figures a delta can move. Only these
// constants are ever interpolated into SQL.
type monthlyColumn string

const (
	columnAllocated monthlyColumn = "allocated_minor"
	columnInflow    monthlyColumn = "inflow_minor"
	columnActivity  monthlyColumn = "activity_minor"
)

const monthlyColumns = `category_id, month_start, allocated_minor, inflow_minor, activity_minor,
    available_minor, last_month_available_minor`

func scanMonthlyState(row rowScanner) (core.MonthlyState, error) {
	var (
		s     core.MonthlyState
		month string
	)
	if err := row.Scan(&s.CategoryID, &month, &s.AllocatedMinor, &s.InflowMinor, &s.ActivityMinor,
		&s.AvailableMinor, &s.LastMonthAvailableMinor); err != nil {
		return core.MonthlyState{}, err
	}
	m, err := parseDate(month)
	if err != nil {
		return core.MonthlyState{}, fmt.Errorf("parse month_start: %w", err)
	}
	s.Month = m
	return s, nil
}

// ApplyTransactionDelta moves the category's activity for the month of date.
func (q *Queries) ApplyTransactionDelta(ctx context.Context, categoryID string, date core.Date, delta int64) error {
	return q.applyMonthlyDelta(ctx, columnActivity, categoryID, date, delta)
}

// ApplyAllocationDelta moves the category's allocated amount for the month of date.
func (q *Queries) ApplyAllocationDelta(ctx context.Context, categoryID string, date core.Date, delta int64) error {
	return q.applyMonthlyDelta(ctx, columnAllocated, categoryID, date, delta)
}

// ApplyInflowDelta moves the category's inflow for the month of date.
func (q *Queries) ApplyInflowDelta(ctx context.Context, categoryID string, date core.Date, delta int64) error {
	return q.applyMonthlyDelta(ctx, columnInflow, categoryID, date, delta)
}

// applyMonthlyDelta adds delta to column and to available for the month of
// date, then carries the change into every later month of the category so
// each row keeps available = last_month_available + allocated + inflow + activity.
func (q *Queries) applyMonthlyDelta(ctx context.Context, column monthlyColumn, categoryID string, date core.Date, delta int64) error {
	if delta == 0 {
		return nil
	}
	month := formatMonth(date)

	if err := q.ensureMonthlyRow(ctx, categoryID, month); err != nil {
		return err
	}

	if _, err := q.db.ExecContext(ctx, `
UPDATE budget_category_monthly_state
SET `+string(column)+` = `+string(column)+` + ?, available_minor = available_minor + ?
WHERE category_id = ? AND month_start = ?`, delta, delta, categoryID, month); err != nil {
		return fmt.Errorf("apply %s delta to %s/%s: %w", column, categoryID, month, err)
	}

	if _, err := q.db.ExecContext(ctx, `
UPDATE budget_category_monthly_state
SET available_minor = available_minor + ?, last_month_available_minor = last_month_available_minor + ?
WHERE category_id = ? AND month_start > ?`, delta, delta, categoryID, month); err != nil {
		return fmt.Errorf("roll %s delta forward from %s/%s: %w", column, categoryID, month, err)
	}
	return nil
}

// ensureMonthlyRow creates the row for month if missing, carrying over the
// available balance of the nearest earlier month.
func (q *Queries) ensureMonthlyRow(ctx context.Context, categoryID, month string) error {
	var exists bool
	if err := q.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM budget_category_monthly_state WHERE category_id = ? AND month_start = ?)`,
		categoryID, month).Scan(&exists); err != nil {
		return fmt.Errorf("check monthly state %s/%s: %w", categoryID, month, err)
	}
	if exists {
		return nil
	}

	carry, err := q.carriedAvailable(ctx, categoryID, month)
	if err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, `
INSERT INTO budget_category_monthly_state (category_id, month_start, allocated_minor, inflow_minor,
    activity_minor, available_minor, last_month_available_minor)
VALUES (?, ?, 0, 0, 0, ?, ?)`, categoryID, month, carry, carry); err != nil {
		return fmt.Errorf("insert monthly state %s/%s: %w", categoryID, month, err)
	}
	return nil
}

// carriedAvailable returns the available balance of the latest row strictly
// before month, or zero when the category has no earlier history.
func (q *Queries) carriedAvailable(ctx context.Context, categoryID, month string) (int64, error) {
	var carry int64
	err := q.db.QueryRowContext(ctx, `
SELECT available_minor FROM budget_category_monthly_state
WHERE category_id = ? AND month_start < ?
ORDER BY month_start DESC LIMIT 1`, categoryID, month).Scan(&carry)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read carried available %s/%s: %w", categoryID, month, err)
	}
	return carry, nil
}

// CategoryMonthlyState returns the envelope figures of a category for the
// month of date. A month with no row yet reports zero activity and the
// balance carried from the nearest earlier month; nothing is written.
func (q *Queries) CategoryMonthlyState(ctx context.Context, categoryID string, date core.Date) (core.MonthlyState, error) {
	month := formatMonth(date)
	row := q.db.QueryRowContext(ctx,
		`SELECT `+monthlyColumns+` FROM budget_category_monthly_state WHERE category_id = ? AND month_start = ?`,
		categoryID, month)
	s, err := scanMonthlyState(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyState{}, fmt.Errorf("get monthly state %s/%s: %w", categoryID, month, err)
	}

	carry, err := q.carriedAvailable(ctx, categoryID, month)
	if err != nil {
		return core.MonthlyState{}, err
	}
	return core.MonthlyState{
		CategoryID:              categoryID,
		Month:                   date.MonthStart(),
		AvailableMinor:          carry,
		LastMonthAvailableMinor: carry,
	}, nil
}

// ListMonthlyState returns every stored row ordered by category then month.
func (q *Queries) ListMonthlyState(ctx context.Context) ([]core.MonthlyState, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+monthlyColumns+` FROM budget_category_monthly_state ORDER BY category_id, month_start`)
	if err != nil {
		return nil, fmt.Errorf("list monthly state: %w", err)
	}
	defer rows.Close()

	var out []core.MonthlyState
	for rows.Next() {
		s, err := scanMonthlyState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monthly state: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
