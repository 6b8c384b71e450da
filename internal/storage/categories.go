package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/blogle/dojo-sub001/internal/core"
)

const categoryColumns = `category_id, group_id, name, is_system, payment_account_id, is_active, sort_order,
    goal_type, goal_amount_minor, goal_target_date, goal_frequency`

func scanCategory(row rowScanner) (core.Category, error) {
	var (
		c          core.Category
		groupID    sql.NullString
		paymentID  sql.NullString
		goalType   sql.NullString
		goalAmount sql.NullInt64
		goalDate   sql.NullString
		goalFreq   sql.NullString
	)
	if err := row.Scan(&c.ID, &groupID, &c.Name, &c.IsSystem, &paymentID, &c.IsActive, &c.SortOrder,
		&goalType, &goalAmount, &goalDate, &goalFreq); err != nil {
		return core.Category{}, err
	}
	c.GroupID = groupID.String
	c.PaymentAccountID = paymentID.String
	if goalType.Valid {
		g := &core.Goal{
			Type:        core.GoalType(goalType.String),
			AmountMinor: goalAmount.Int64,
			Frequency:   core.GoalFrequency(goalFreq.String),
		}
		if goalDate.Valid {
			d, err := parseDate(goalDate.String)
			if err != nil {
				return core.Category{}, fmt.Errorf("parse goal_target_date of %s: %w", c.ID, err)
			}
			g.TargetDate = d
		}
		c.Goal = g
	}
	return c, nil
}

// goalArgs flattens g into the four goal columns, all NULL when g is nil.
func goalArgs(g *core.Goal) []any {
	if g == nil {
		return []any{nil, nil, nil, nil}
	}
	var target sql.NullString
	if !g.TargetDate.IsZero() {
		target = nullString(formatDate(g.TargetDate))
	}
	return []any{string(g.Type), g.AmountMinor, target, nullString(string(g.Frequency))}
}

func (q *Queries) GetCategoryGroup(ctx context.Context, groupID string) (core.CategoryGroup, error) {
	var g core.CategoryGroup
	err := q.db.QueryRowContext(ctx, `
SELECT group_id, name, sort_order, is_system, is_active
FROM budget_category_groups WHERE group_id = ?`, groupID).
		Scan(&g.ID, &g.Name, &g.SortOrder, &g.IsSystem, &g.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CategoryGroup{}, fmt.Errorf("%w: %s", core.ErrGroupNotFound, groupID)
	}
	if err != nil {
		return core.CategoryGroup{}, fmt.Errorf("get category group %s: %w", groupID, err)
	}
	return g, nil
}

func (q *Queries) ListCategoryGroups(ctx context.Context) ([]core.CategoryGroup, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT group_id, name, sort_order, is_system, is_active
FROM budget_category_groups ORDER BY sort_order, group_id`)
	if err != nil {
		return nil, fmt.Errorf("list category groups: %w", err)
	}
	defer rows.Close()

	var groups []core.CategoryGroup
	for rows.Next() {
		var g core.CategoryGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.SortOrder, &g.IsSystem, &g.IsActive); err != nil {
			return nil, fmt.Errorf("scan category group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (q *Queries) InsertCategoryGroup(ctx context.Context, g core.CategoryGroup) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO budget_category_groups (group_id, name, sort_order, is_system, is_active)
VALUES (?, ?, ?, ?, ?)`, g.ID, g.Name, g.SortOrder, g.IsSystem, g.IsActive)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", core.ErrGroupExists, g.ID)
	}
	if err != nil {
		return fmt.Errorf("insert category group %s: %w", g.ID, err)
	}
	return nil
}

// DeactivateCategoryGroup marks the group inactive and detaches its
// categories, which stay usable without a group.
func (q *Queries) DeactivateCategoryGroup(ctx context.Context, groupID string) error {
	res, err := q.db.ExecContext(ctx, `
UPDATE budget_category_groups SET is_active = 0, updated_at = `+nowSQL+`
WHERE group_id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("deactivate category group %s: %w", groupID, err)
	}
	if err := expectOneRow(res, core.ErrGroupNotFound, groupID); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, `
UPDATE budget_categories SET group_id = NULL, updated_at = `+nowSQL+`
WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("detach categories of %s: %w", groupID, err)
	}
	return nil
}

func (q *Queries) GetCategory(ctx context.Context, categoryID string) (core.Category, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM budget_categories WHERE category_id = ?`, categoryID)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("%w: %s", core.ErrCategoryNotFound, categoryID)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %s: %w", categoryID, err)
	}
	return c, nil
}

func (q *Queries) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM budget_categories ORDER BY sort_order, category_id`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (q *Queries) InsertCategory(ctx context.Context, c core.Category) error {
	args := append([]any{c.ID, nullString(c.GroupID), c.Name, c.IsSystem, nullString(c.PaymentAccountID), c.IsActive, c.SortOrder},
		goalArgs(c.Goal)...)
	_, err := q.db.ExecContext(ctx, `
INSERT INTO budget_categories (category_id, group_id, name, is_system, payment_account_id, is_active, sort_order,
    goal_type, goal_amount_minor, goal_target_date, goal_frequency)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", core.ErrCategoryExists, c.ID)
	}
	if err != nil {
		return fmt.Errorf("insert category %s: %w", c.ID, err)
	}
	return nil
}

func (q *Queries) SetCategoryActive(ctx context.Context, categoryID string, active bool) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE budget_categories SET is_active = ?, updated_at = `+nowSQL+` WHERE category_id = ?`,
		active, categoryID)
	if err != nil {
		return fmt.Errorf("set category %s active=%v: %w", categoryID, active, err)
	}
	return expectOneRow(res, core.ErrCategoryNotFound, categoryID)
}

// UpdateCategory replaces the name, group, sort order and goal of a
// category.
func (q *Queries) UpdateCategory(ctx context.Context, c core.Category) error {
	args := append([]any{nullString(c.GroupID), c.Name, c.SortOrder}, goalArgs(c.Goal)...)
	args = append(args, c.ID)
	res, err := q.db.ExecContext(ctx, `
UPDATE budget_categories
SET group_id = ?, name = ?, sort_order = ?,
    goal_type = ?, goal_amount_minor = ?, goal_target_date = ?, goal_frequency = ?,
    updated_at = `+nowSQL+`
WHERE category_id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update category %s: %w", c.ID, err)
	}
	return expectOneRow(res, core.ErrCategoryNotFound, c.ID)
}

func (q *Queries) UpdateCategoryGroup(ctx context.Context, g core.CategoryGroup) error {
	res, err := q.db.ExecContext(ctx, `
UPDATE budget_category_groups SET name = ?, sort_order = ?, updated_at = `+nowSQL+`
WHERE group_id = ?`, g.Name, g.SortOrder, g.ID)
	if err != nil {
		return fmt.Errorf("update category group %s: %w", g.ID, err)
	}
	return expectOneRow(res, core.ErrGroupNotFound, g.ID)
}

// EnsurePaymentCategory returns the credit-payment category of account a,
// creating it or reactivating it as needed. A row already holding the
// derived id must belong to a; anything else is ErrPaymentCategoryTaken.
func (q *Queries) EnsurePaymentCategory(ctx context.Context, a core.Account) (core.Category, error) {
	id := core.PaymentCategoryID(a.ID)
	existing, err := q.GetCategory(ctx, id)
	switch {
	case errors.Is(err, core.ErrCategoryNotFound):
	case err != nil:
		return core.Category{}, err
	case existing.PaymentAccountID != a.ID:
		return core.Category{}, fmt.Errorf("%w: %s", core.ErrPaymentCategoryTaken, id)
	}

	_, err = q.db.ExecContext(ctx, `
INSERT INTO budget_categories (category_id, group_id, name, is_system, payment_account_id, is_active, sort_order)
VALUES (?, ?, ?, 1, ?, 1, 0)
ON CONFLICT (category_id) DO UPDATE SET
    group_id = excluded.group_id,
    name = excluded.name,
    is_system = 1,
    payment_account_id = excluded.payment_account_id,
    is_active = 1,
    updated_at = `+nowSQL,
		id, core.GroupCreditCardPayments, core.PaymentCategoryName(a.Name), a.ID)
	if err != nil {
		return core.Category{}, fmt.Errorf("ensure payment category for %s: %w", a.ID, err)
	}
	return q.GetCategory(ctx, id)
}
