package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/blogle/dojo-sub001/internal/core"

	_ "modernc.org/sqlite"
)

// Tx is the transactional session handed to a unit of work. Every write the
// ledger performs goes through it, so either all of them commit or none do.
type Tx interface {
	GetAccount(ctx context.Context, accountID string) (core.Account, error)
	ListAccounts(ctx context.Context) ([]core.Account, error)
	InsertAccount(ctx context.Context, a core.Account) error
	SetAccountActive(ctx context.Context, accountID string, active bool) error
	RenameAccount(ctx context.Context, accountID, name string) error
	ApplyAccountDelta(ctx context.Context, accountID string, delta int64) error
	AccountBalance(ctx context.Context, accountID string) (int64, error)

	GetCategoryGroup(ctx context.Context, groupID string) (core.CategoryGroup, error)
	InsertCategoryGroup(ctx context.Context, g core.CategoryGroup) error
	UpdateCategoryGroup(ctx context.Context, g core.CategoryGroup) error
	DeactivateCategoryGroup(ctx context.Context, groupID string) error
	GetCategory(ctx context.Context, categoryID string) (core.Category, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
	InsertCategory(ctx context.Context, c core.Category) error
	UpdateCategory(ctx context.Context, c core.Category) error
	SetCategoryActive(ctx context.Context, categoryID string, active bool) error
	EnsurePaymentCategory(ctx context.Context, a core.Account) (core.Category, error)

	CreateTransactionVersion(ctx context.Context, v core.TransactionVersion) error
	CloseThenInsertTransaction(ctx context.Context, priorVersionID uuid.UUID, next core.TransactionVersion) error
	CloseTransaction(ctx context.Context, conceptID uuid.UUID, asOf time.Time) error
	ActiveTransaction(ctx context.Context, conceptID uuid.UUID) (core.TransactionVersion, error)
	ActiveTransferLegs(ctx context.Context, transferID uuid.UUID) ([]core.TransactionVersion, error)

	CreateAllocationVersion(ctx context.Context, v core.AllocationVersion) error
	CloseThenInsertAllocation(ctx context.Context, priorVersionID uuid.UUID, next core.AllocationVersion) error
	CloseAllocation(ctx context.Context, conceptID uuid.UUID, asOf time.Time) error
	ActiveAllocation(ctx context.Context, conceptID uuid.UUID) (core.AllocationVersion, error)

	ApplyTransactionDelta(ctx context.Context, categoryID string, month core.Date, delta int64) error
	ApplyAllocationDelta(ctx context.Context, categoryID string, month core.Date, delta int64) error
	ApplyInflowDelta(ctx context.Context, categoryID string, month core.Date, delta int64) error
	CategoryMonthlyState(ctx context.Context, categoryID string, month core.Date) (core.MonthlyState, error)
	ReadyToAssign(ctx context.Context, month core.Date) (int64, error)

	InsertReconciliation(ctx context.Context, r core.Reconciliation) error
	LatestReconciliation(ctx context.Context, accountID string) (core.Reconciliation, error)
	StatusBalances(ctx context.Context, accountID string) (cleared, pending int64, err error)

	RebuildAccountBalance(ctx context.Context, accountID string) (int64, error)
	RebuildAllAccountBalances(ctx context.Context) error
	ComputeMonthlyState(ctx context.Context) ([]core.MonthlyState, error)
	ReplaceMonthlyState(ctx context.Context, rows []core.MonthlyState) error
}

var _ Tx = (*Queries)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// dataSourceName enables foreign keys, WAL so readers never block the
// writer, and BEGIN IMMEDIATE so concurrent writers serialize up front.
func dataSourceName(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dataSourceName(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	slog.Info("Ledger database ready", "path", dbPath)

	return repo, nil
}

// Ping reports whether the database still answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InTx runs fn inside one database transaction. The transaction commits only
// if fn returns nil; any error or panic rolls back every statement fn issued.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
			}
		}
	}()

	if err = fn(r.queries.WithTx(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Reads outside a unit of work. They observe the last committed state.

func (r *SQLiteRepository) GetAccount(ctx context.Context, accountID string) (core.Account, error) {
	return r.queries.GetAccount(ctx, accountID)
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	return r.queries.ListAccounts(ctx)
}

func (r *SQLiteRepository) AccountBalance(ctx context.Context, accountID string) (int64, error) {
	return r.queries.AccountBalance(ctx, accountID)
}

func (r *SQLiteRepository) AccountBalanceAsOf(ctx context.Context, accountID string, ts time.Time) (int64, error) {
	return r.queries.AccountBalanceAsOf(ctx, accountID, ts)
}

func (r *SQLiteRepository) ComputeAccountBalance(ctx context.Context, accountID string) (int64, error) {
	return r.queries.ComputeAccountBalance(ctx, accountID)
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, categoryID string) (core.Category, error) {
	return r.queries.GetCategory(ctx, categoryID)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	return r.queries.ListCategories(ctx)
}

func (r *SQLiteRepository) ListCategoryGroups(ctx context.Context) ([]core.CategoryGroup, error) {
	return r.queries.ListCategoryGroups(ctx)
}

func (r *SQLiteRepository) CategoryMonthlyState(ctx context.Context, categoryID string, month core.Date) (core.MonthlyState, error) {
	return r.queries.CategoryMonthlyState(ctx, categoryID, month)
}

func (r *SQLiteRepository) ListMonthlyState(ctx context.Context) ([]core.MonthlyState, error) {
	return r.queries.ListMonthlyState(ctx)
}

func (r *SQLiteRepository) ComputeMonthlyState(ctx context.Context) ([]core.MonthlyState, error) {
	return r.queries.ComputeMonthlyState(ctx)
}

func (r *SQLiteRepository) ReadyToAssign(ctx context.Context, month core.Date) (int64, error) {
	return r.queries.ReadyToAssign(ctx, month)
}

func (r *SQLiteRepository) ActiveTransaction(ctx context.Context, conceptID uuid.UUID) (core.TransactionVersion, error) {
	return r.queries.ActiveTransaction(ctx, conceptID)
}

func (r *SQLiteRepository) TransactionAsOf(ctx context.Context, conceptID uuid.UUID, ts time.Time) (core.TransactionVersion, error) {
	return r.queries.TransactionAsOf(ctx, conceptID, ts)
}

func (r *SQLiteRepository) TransactionHistory(ctx context.Context, conceptID uuid.UUID) ([]core.TransactionVersion, error) {
	return r.queries.TransactionHistory(ctx, conceptID)
}

func (r *SQLiteRepository) ActiveAllocation(ctx context.Context, conceptID uuid.UUID) (core.AllocationVersion, error) {
	return r.queries.ActiveAllocation(ctx, conceptID)
}

func (r *SQLiteRepository) AllocationAsOf(ctx context.Context, conceptID uuid.UUID, ts time.Time) (core.AllocationVersion, error) {
	return r.queries.AllocationAsOf(ctx, conceptID, ts)
}

func (r *SQLiteRepository) ListRecentTransactions(ctx context.Context, limit int) ([]core.TransactionVersion, error) {
	return r.queries.ListRecentTransactions(ctx, limit)
}

func (r *SQLiteRepository) ListAllocations(ctx context.Context, month core.Date, limit int) ([]core.AllocationVersion, error) {
	return r.queries.ListAllocations(ctx, month, limit)
}

func (r *SQLiteRepository) LatestReconciliation(ctx context.Context, accountID string) (core.Reconciliation, error) {
	return r.queries.LatestReconciliation(ctx, accountID)
}

func (r *SQLiteRepository) ReconciliationWorksheet(ctx context.Context, accountID string, since time.Time) ([]core.TransactionVersion, error) {
	return r.queries.ReconciliationWorksheet(ctx, accountID, since)
}

func (r *SQLiteRepository) StatusBalances(ctx context.Context, accountID string) (cleared, pending int64, err error) {
	return r.queries.StatusBalances(ctx, accountID)
}

func (r *SQLiteRepository) CountActiveVersions(ctx context.Context) (map[uuid.UUID]int, error) {
	return r.queries.CountActiveVersions(ctx)
}
