package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blogle/dojo-sub001/internal/core"
)

// Version rows are immutable except for valid_to, which is set exactly once
// when the version is superseded or deleted.

const transactionColumns = `concept_id, version_id, transfer_id, transaction_date, account_id,
    category_id, amount_minor, memo, status, valid_from, valid_to, recorded_at`

const asOfPredicate = `valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)`

func scanTransaction(row rowScanner) (core.TransactionVersion, error) {
	var (
		v                           core.TransactionVersion
		txDate, validFrom, recorded string
		validTo                     sql.NullString
	)
	if err := row.Scan(&v.ConceptID, &v.VersionID, &v.TransferID, &txDate, &v.AccountID,
		&v.CategoryID, &v.AmountMinor, &v.Memo, &v.Status, &validFrom, &validTo, &recorded); err != nil {
		return core.TransactionVersion{}, err
	}
	var err error
	if v.TransactionDate, err = parseDate(txDate); err != nil {
		return core.TransactionVersion{}, fmt.Errorf("parse transaction_date: %w", err)
	}
	if v.ValidFrom, err = parseTimestamp(validFrom); err != nil {
		return core.TransactionVersion{}, fmt.Errorf("parse valid_from: %w", err)
	}
	if v.ValidTo, err = parseNullTimestamp(validTo); err != nil {
		return core.TransactionVersion{}, fmt.Errorf("parse valid_to: %w", err)
	}
	if v.RecordedAt, err = parseTimestamp(recorded); err != nil {
		return core.TransactionVersion{}, fmt.Errorf("parse recorded_at: %w", err)
	}
	return v, nil
}

func (q *Queries) insertTransaction(ctx context.Context, v core.TransactionVersion) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO transactions (version_id, concept_id, transfer_id, transaction_date, account_id,
    category_id, amount_minor, memo, status, valid_from, valid_to, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		v.VersionID, v.ConceptID, v.TransferID, formatDate(v.TransactionDate), v.AccountID,
		v.CategoryID, v.AmountMinor, v.Memo, v.Status, formatTimestamp(v.ValidFrom), formatTimestamp(v.RecordedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: transaction %s", core.ErrActiveVersionExists, v.ConceptID)
	}
	if err != nil {
		return fmt.Errorf("insert transaction version %s: %w", v.VersionID, err)
	}
	return nil
}

// CreateTransactionVersion inserts the first version of a concept.
func (q *Queries) CreateTransactionVersion(ctx context.Context, v core.TransactionVersion) error {
	var exists bool
	if err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE concept_id = ? AND valid_to IS NULL)`,
		v.ConceptID).Scan(&exists); err != nil {
		return fmt.Errorf("check active transaction %s: %w", v.ConceptID, err)
	}
	if exists {
		return fmt.Errorf("%w: transaction %s", core.ErrActiveVersionExists, v.ConceptID)
	}
	return q.insertTransaction(ctx, v)
}

// CloseThenInsertTransaction closes priorVersionID at next.ValidFrom and
// inserts next as the new active version. The close only matches while the
// prior version is still active, so a lost race surfaces as ErrConcurrentEdit.
func (q *Queries) CloseThenInsertTransaction(ctx context.Context, priorVersionID uuid.UUID, next core.TransactionVersion) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE transactions SET valid_to = ? WHERE version_id = ? AND valid_to IS NULL`,
		formatTimestamp(next.ValidFrom), priorVersionID)
	if err != nil {
		return fmt.Errorf("close transaction version %s: %w", priorVersionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction version %s", core.ErrConcurrentEdit, priorVersionID)
	}
	return q.insertTransaction(ctx, next)
}

// CloseTransaction ends the active version of conceptID at asOf. The close
// never precedes the version's own valid_from.
func (q *Queries) CloseTransaction(ctx context.Context, conceptID uuid.UUID, asOf time.Time) error {
	ts := formatTimestamp(asOf)
	res, err := q.db.ExecContext(ctx, `
UPDATE transactions
SET valid_to = CASE WHEN valid_from > ? THEN valid_from ELSE ? END
WHERE concept_id = ? AND valid_to IS NULL`, ts, ts, conceptID)
	if err != nil {
		return fmt.Errorf("close transaction %s: %w", conceptID, err)
	}
	return expectOneRow(res, core.ErrTransactionNotFound, conceptID.String())
}

func (q *Queries) ActiveTransaction(ctx context.Context, conceptID uuid.UUID) (core.TransactionVersion, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE concept_id = ? AND valid_to IS NULL`, conceptID)
	v, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransactionVersion{}, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, conceptID)
	}
	if err != nil {
		return core.TransactionVersion{}, fmt.Errorf("get active transaction %s: %w", conceptID, err)
	}
	return v, nil
}

// TransactionAsOf returns the version of conceptID that was valid at ts.
func (q *Queries) TransactionAsOf(ctx context.Context, conceptID uuid.UUID, ts time.Time) (core.TransactionVersion, error) {
	at := formatTimestamp(ts)
	row := q.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE concept_id = ? AND `+asOfPredicate,
		conceptID, at, at)
	v, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransactionVersion{}, fmt.Errorf("%w: %s at %s", core.ErrTransactionNotFound, conceptID, at)
	}
	if err != nil {
		return core.TransactionVersion{}, fmt.Errorf("get transaction %s as of %s: %w", conceptID, at, err)
	}
	return v, nil
}

// TransactionHistory lists every version of conceptID, oldest first.
func (q *Queries) TransactionHistory(ctx context.Context, conceptID uuid.UUID) ([]core.TransactionVersion, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE concept_id = ? ORDER BY valid_from, recorded_at`,
		conceptID)
	if err != nil {
		return nil, fmt.Errorf("list transaction history %s: %w", conceptID, err)
	}
	return collectTransactions(rows)
}

func (q *Queries) ActiveTransferLegs(ctx context.Context, transferID uuid.UUID) ([]core.TransactionVersion, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
WHERE transfer_id = ? AND valid_to IS NULL ORDER BY amount_minor`, transferID)
	if err != nil {
		return nil, fmt.Errorf("list transfer legs %s: %w", transferID, err)
	}
	return collectTransactions(rows)
}

// ListRecentTransactions returns up to limit active transactions, newest
// transaction date first.
func (q *Queries) ListRecentTransactions(ctx context.Context, limit int) ([]core.TransactionVersion, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE valid_to IS NULL
ORDER BY transaction_date DESC, recorded_at DESC, concept_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]core.TransactionVersion, error) {
	defer rows.Close()
	var out []core.TransactionVersion
	for rows.Next() {
		v, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const allocationColumns = `concept_id, version_id, allocation_date, from_category_id, to_category_id,
    amount_minor, memo, valid_from, valid_to, recorded_at`

func scanAllocation(row rowScanner) (core.AllocationVersion, error) {
	var (
		v                              core.AllocationVersion
		allocDate, validFrom, recorded string
		from, validTo                  sql.NullString
	)
	if err := row.Scan(&v.ConceptID, &v.VersionID, &allocDate, &from, &v.ToCategoryID,
		&v.AmountMinor, &v.Memo, &validFrom, &validTo, &recorded); err != nil {
		return core.AllocationVersion{}, err
	}
	v.FromCategoryID = from.String
	var err error
	if v.AllocationDate, err = parseDate(allocDate); err != nil {
		return core.AllocationVersion{}, fmt.Errorf("parse allocation_date: %w", err)
	}
	if v.ValidFrom, err = parseTimestamp(validFrom); err != nil {
		return core.AllocationVersion{}, fmt.Errorf("parse valid_from: %w", err)
	}
	if v.ValidTo, err = parseNullTimestamp(validTo); err != nil {
		return core.AllocationVersion{}, fmt.Errorf("parse valid_to: %w", err)
	}
	if v.RecordedAt, err = parseTimestamp(recorded); err != nil {
		return core.AllocationVersion{}, fmt.Errorf("parse recorded_at: %w", err)
	}
	return v, nil
}

func (q *Queries) insertAllocation(ctx context.Context, v core.AllocationVersion) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO budget_allocations (version_id, concept_id, allocation_date, from_category_id,
    to_category_id, amount_minor, memo, valid_from, valid_to, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		v.VersionID, v.ConceptID, formatDate(v.AllocationDate), nullString(v.FromCategoryID),
		v.ToCategoryID, v.AmountMinor, v.Memo, formatTimestamp(v.ValidFrom), formatTimestamp(v.RecordedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: allocation %s", core.ErrActiveVersionExists, v.ConceptID)
	}
	if err != nil {
		return fmt.Errorf("insert allocation version %s: %w", v.VersionID, err)
	}
	return nil
}

// CreateAllocationVersion inserts the first version of an allocation concept.
func (q *Queries) CreateAllocationVersion(ctx context.Context, v core.AllocationVersion) error {
	var exists bool
	if err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM budget_allocations WHERE concept_id = ? AND valid_to IS NULL)`,
		v.ConceptID).Scan(&exists); err != nil {
		return fmt.Errorf("check active allocation %s: %w", v.ConceptID, err)
	}
	if exists {
		return fmt.Errorf("%w: allocation %s", core.ErrActiveVersionExists, v.ConceptID)
	}
	return q.insertAllocation(ctx, v)
}

func (q *Queries) CloseThenInsertAllocation(ctx context.Context, priorVersionID uuid.UUID, next core.AllocationVersion) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE budget_allocations SET valid_to = ? WHERE version_id = ? AND valid_to IS NULL`,
		formatTimestamp(next.ValidFrom), priorVersionID)
	if err != nil {
		return fmt.Errorf("close allocation version %s: %w", priorVersionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: allocation version %s", core.ErrConcurrentEdit, priorVersionID)
	}
	return q.insertAllocation(ctx, next)
}

func (q *Queries) CloseAllocation(ctx context.Context, conceptID uuid.UUID, asOf time.Time) error {
	ts := formatTimestamp(asOf)
	res, err := q.db.ExecContext(ctx, `
UPDATE budget_allocations
SET valid_to = CASE WHEN valid_from > ? THEN valid_from ELSE ? END
WHERE concept_id = ? AND valid_to IS NULL`, ts, ts, conceptID)
	if err != nil {
		return fmt.Errorf("close allocation %s: %w", conceptID, err)
	}
	return expectOneRow(res, core.ErrAllocationNotFound, conceptID.String())
}

func (q *Queries) ActiveAllocation(ctx context.Context, conceptID uuid.UUID) (core.AllocationVersion, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+allocationColumns+` FROM budget_allocations WHERE concept_id = ? AND valid_to IS NULL`, conceptID)
	v, err := scanAllocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AllocationVersion{}, fmt.Errorf("%w: %s", core.ErrAllocationNotFound, conceptID)
	}
	if err != nil {
		return core.AllocationVersion{}, fmt.Errorf("get active allocation %s: %w", conceptID, err)
	}
	return v, nil
}

func (q *Queries) AllocationAsOf(ctx context.Context, conceptID uuid.UUID, ts time.Time) (core.AllocationVersion, error) {
	at := formatTimestamp(ts)
	row := q.db.QueryRowContext(ctx,
		`SELECT `+allocationColumns+` FROM budget_allocations WHERE concept_id = ? AND `+asOfPredicate,
		conceptID, at, at)
	v, err := scanAllocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AllocationVersion{}, fmt.Errorf("%w: %s at %s", core.ErrAllocationNotFound, conceptID, at)
	}
	if err != nil {
		return core.AllocationVersion{}, fmt.Errorf("get allocation %s as of %s: %w", conceptID, at, err)
	}
	return v, nil
}

// ListAllocations returns up to limit active allocations dated in the month
// of month, newest first.
func (q *Queries) ListAllocations(ctx context.Context, month core.Date, limit int) ([]core.AllocationVersion, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+allocationColumns+` FROM budget_allocations
WHERE valid_to IS NULL AND allocation_date >= ? AND allocation_date < ?
ORDER BY allocation_date DESC, recorded_at DESC, concept_id LIMIT ?`,
		formatMonth(month), formatDate(month.NextMonth()), limit)
	if err != nil {
		return nil, fmt.Errorf("list allocations of %s: %w", formatMonth(month), err)
	}
	defer rows.Close()

	var out []core.AllocationVersion
	for rows.Next() {
		v, err := scanAllocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountActiveVersions returns, for every concept of both version tables
// with more than one active row, how many active rows it has. The partial
// unique indexes keep this empty; the auditor reports anything it returns.
func (q *Queries) CountActiveVersions(ctx context.Context) (map[uuid.UUID]int, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT concept_id, COUNT(*) FROM transactions WHERE valid_to IS NULL
GROUP BY concept_id HAVING COUNT(*) > 1
UNION ALL
SELECT concept_id, COUNT(*) FROM budget_allocations WHERE valid_to IS NULL
GROUP BY concept_id HAVING COUNT(*) > 1`)
	if err != nil {
		return nil, fmt.Errorf("count active versions: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			id uuid.UUID
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan active version count: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}
