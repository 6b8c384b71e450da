package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogle/dojo-sub001/internal/core"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedAccount(t *testing.T, repo *SQLiteRepository, a core.Account) {
	t.Helper()
	if a.Currency == "" {
		a.Currency = core.DefaultCurrency
	}
	a.IsActive = true
	require.NoError(t, repo.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertAccount(context.Background(), a)
	}))
}

func seedCategory(t *testing.T, repo *SQLiteRepository, id string) {
	t.Helper()
	require.NoError(t, repo.InTx(context.Background(), func(tx Tx) error {
		return tx.InsertCategory(context.Background(), core.Category{ID: id, Name: id, IsActive: true})
	}))
}

func txVersion(concept uuid.UUID, account, category string, date core.Date, amount int64, validFrom time.Time) core.TransactionVersion {
	return core.TransactionVersion{
		ConceptID:       concept,
		VersionID:       uuid.New(),
		TransactionDate: date,
		AccountID:       account,
		CategoryID:      category,
		AmountMinor:     amount,
		Status:          core.StatusCleared,
		ValidFrom:       validFrom,
		RecordedAt:      validFrom,
	}
}

func TestMigrationsSeedSystemCategories(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	repo, err := NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	defer repo.Close()
	ctx := context.Background()

	for _, id := range []string{
		core.CategoryOpeningBalance,
		core.CategoryAvailableToBudget,
		core.CategoryAccountTransfer,
		core.CategoryBalanceAdjustment,
	} {
		c, err := repo.GetCategory(ctx, id)
		require.NoError(t, err, id)
		assert.True(t, c.IsSystem, id)
		assert.False(t, c.TracksEnvelope(), id)
	}

	groups, err := repo.ListCategoryGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, core.GroupCreditCardPayments, groups[0].ID)

	version, dirty, err := SchemaVersion(dbPath)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)
}

func TestVersionStoreLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, core.Account{ID: "checking", Name: "Checking", Type: core.Asset, Class: core.ClassCash, Role: core.OnBudget})
	seedCategory(t, repo, "groceries")

	concept := uuid.New()
	date := core.NewDate(2025, 3, 10)
	v1 := txVersion(concept, "checking", "groceries", date, -5000, t0)

	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		return tx.CreateTransactionVersion(ctx, v1)
	}))

	t.Run("second create is a conflict", func(t *testing.T) {
		err := repo.InTx(ctx, func(tx Tx) error {
			return tx.CreateTransactionVersion(ctx, txVersion(concept, "checking", "groceries", date, -1, t0))
		})
		assert.True(t, errors.Is(err, core.ErrActiveVersionExists))
	})

	v2 := txVersion(concept, "checking", "groceries", date, -6000, t0.Add(time.Minute))
	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		return tx.CloseThenInsertTransaction(ctx, v1.VersionID, v2)
	}))

	t.Run("stale prior version is a concurrent edit", func(t *testing.T) {
		v3 := txVersion(concept, "checking", "groceries", date, -7000, t0.Add(2*time.Minute))
		err := repo.InTx(ctx, func(tx Tx) error {
			return tx.CloseThenInsertTransaction(ctx, v1.VersionID, v3)
		})
		assert.True(t, errors.Is(err, core.ErrConcurrentEdit))
	})

	t.Run("as-of reads follow valid intervals", func(t *testing.T) {
		at, err := repo.TransactionAsOf(ctx, concept, t0.Add(30*time.Second))
		require.NoError(t, err)
		assert.Equal(t, v1.VersionID, at.VersionID)

		at, err = repo.TransactionAsOf(ctx, concept, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, v2.VersionID, at.VersionID)

		_, err = repo.TransactionAsOf(ctx, concept, t0.Add(-time.Second))
		assert.True(t, errors.Is(err, core.ErrTransactionNotFound))
	})

	t.Run("history keeps every version", func(t *testing.T) {
		history, err := repo.TransactionHistory(ctx, concept)
		require.NoError(t, err)
		require.Len(t, history, 2)
		require.NotNil(t, history[0].ValidTo)
		assert.True(t, history[0].ValidTo.Equal(v2.ValidFrom))
		assert.True(t, history[1].IsActive())
		assert.Equal(t, int64(-6000), history[1].AmountMinor)
	})

	t.Run("close ends the chain", func(t *testing.T) {
		require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
			return tx.CloseTransaction(ctx, concept, t0.Add(time.Hour))
		}))
		_, err := repo.ActiveTransaction(ctx, concept)
		assert.True(t, errors.Is(err, core.ErrTransactionNotFound))

		err = repo.InTx(ctx, func(tx Tx) error {
			return tx.CloseTransaction(ctx, concept, t0.Add(2*time.Hour))
		})
		assert.True(t, errors.Is(err, core.ErrTransactionNotFound))
	})

	counts, err := repo.CountActiveVersions(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestMonthlyDeltaCarriesForward(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedCategory(t, repo, "rent")

	jan := core.NewDate(2025, 1, 15)
	mar := core.NewDate(2025, 3, 1)
	feb := core.NewDate(2025, 2, 20)

	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		if err := tx.ApplyAllocationDelta(ctx, "rent", jan, 100_000); err != nil {
			return err
		}
		if err := tx.ApplyTransactionDelta(ctx, "rent", mar, -30_000); err != nil {
			return err
		}
		// A late January change must flow into March.
		return tx.ApplyTransactionDelta(ctx, "rent", jan, -10_000)
	}))

	marState, err := repo.CategoryMonthlyState(ctx, "rent", mar)
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), marState.LastMonthAvailableMinor)
	assert.Equal(t, int64(60_000), marState.AvailableMinor)

	// February was never written; its figures derive from January.
	febState, err := repo.CategoryMonthlyState(ctx, "rent", feb)
	require.NoError(t, err)
	assert.Equal(t, int64(90_000), febState.AvailableMinor)
	assert.Zero(t, febState.ActivityMinor)

	rows, err := repo.ListMonthlyState(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, r.LastMonthAvailableMinor+r.AllocatedMinor+r.InflowMinor+r.ActivityMinor, r.AvailableMinor)
	}
}

func TestReadyToAssign(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, core.Account{ID: "checking", Name: "Checking", Type: core.Asset, Class: core.ClassCash, Role: core.OnBudget})
	seedAccount(t, repo, core.Account{ID: "brokerage", Name: "Brokerage", Type: core.Asset, Class: core.ClassInvestment, Role: core.Tracking})
	seedCategory(t, repo, "groceries")

	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		for _, v := range []core.TransactionVersion{
			txVersion(uuid.New(), "checking", core.CategoryAvailableToBudget, core.NewDate(2025, 1, 3), 300_000, t0),
			txVersion(uuid.New(), "checking", core.CategoryAvailableToBudget, core.NewDate(2025, 2, 3), 50_000, t0),
			txVersion(uuid.New(), "brokerage", core.CategoryOpeningBalance, core.NewDate(2025, 1, 1), 1_000_000, t0),
			txVersion(uuid.New(), "checking", "groceries", core.NewDate(2025, 1, 9), -4_000, t0),
		} {
			if err := tx.CreateTransactionVersion(ctx, v); err != nil {
				return err
			}
		}
		return tx.ApplyAllocationDelta(ctx, "groceries", core.NewDate(2025, 1, 1), 120_000)
	}))

	tests := []struct {
		name  string
		month core.Date
		want  int64
	}{
		{"before any inflow", core.NewDate(2024, 12, 1), 0},
		{"january", core.NewDate(2025, 1, 1), 180_000},
		{"february adds later income", core.NewDate(2025, 2, 1), 230_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ReadyToAssign(ctx, tt.month)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := repo.ReadyToAssign(ctx, tt.month)
			require.NoError(t, err)
			assert.Equal(t, got, again, "reading twice must not change the figure")
		})
	}
}

func TestComputeMonthlyStateMatchesIncremental(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	card := core.Account{ID: "visa", Name: "Visa", Type: core.Liability, Class: core.ClassCredit, Role: core.OnBudget}
	seedAccount(t, repo, card)
	seedCategory(t, repo, "dining")

	jan := core.NewDate(2025, 1, 20)
	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		if _, err := tx.EnsurePaymentCategory(ctx, card); err != nil {
			return err
		}
		v := txVersion(uuid.New(), "visa", "dining", jan, -2_500, t0)
		if err := tx.CreateTransactionVersion(ctx, v); err != nil {
			return err
		}
		if err := tx.ApplyAccountDelta(ctx, "visa", -2_500); err != nil {
			return err
		}
		if err := tx.ApplyTransactionDelta(ctx, "dining", jan, -2_500); err != nil {
			return err
		}
		return tx.ApplyInflowDelta(ctx, core.PaymentCategoryID("visa"), jan, 2_500)
	}))

	incremental, err := repo.ListMonthlyState(ctx)
	require.NoError(t, err)
	computed, err := repo.ComputeMonthlyState(ctx)
	require.NoError(t, err)
	assert.Equal(t, incremental, computed)

	stats, err := repo.RebuildCaches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Accounts)
	assert.Equal(t, 2, stats.MonthlyStateRows)

	balance, err := repo.AccountBalance(ctx, "visa")
	require.NoError(t, err)
	assert.Equal(t, int64(-2_500), balance)
}

func TestRollbackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, core.Account{ID: "checking", Name: "Checking", Type: core.Asset, Class: core.ClassCash, Role: core.OnBudget})

	boom := errors.New("boom")
	err := repo.InTx(ctx, func(tx Tx) error {
		if err := tx.ApplyAccountDelta(ctx, "checking", 500); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	balance, err := repo.AccountBalance(ctx, "checking")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestUniqueViolationsMapToConflicts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	a := core.Account{ID: "checking", Name: "Checking", Type: core.Asset, Class: core.ClassCash, Role: core.OnBudget}
	seedAccount(t, repo, a)

	err := repo.InTx(ctx, func(tx Tx) error { return tx.InsertAccount(ctx, a) })
	assert.True(t, errors.Is(err, core.ErrAccountExists))

	err = repo.InTx(ctx, func(tx Tx) error {
		return tx.InsertCategory(ctx, core.Category{ID: core.CategoryOpeningBalance, Name: "dup", IsActive: true})
	})
	assert.True(t, errors.Is(err, core.ErrCategoryExists))
	assert.Equal(t, core.KindConflict, core.KindOf(err))
}

func TestEnsurePaymentCategory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	visa := core.Account{ID: "visa", Name: "Visa", Type: core.Liability, Class: core.ClassCredit, Role: core.OnBudget}
	amex := core.Account{ID: "amex", Name: "Amex", Type: core.Liability, Class: core.ClassCredit, Role: core.OnBudget}
	seedAccount(t, repo, visa)
	seedAccount(t, repo, amex)
	seedCategory(t, repo, core.PaymentCategoryID("visa"))

	err := repo.InTx(ctx, func(tx Tx) error {
		_, err := tx.EnsurePaymentCategory(ctx, visa)
		return err
	})
	assert.True(t, errors.Is(err, core.ErrPaymentCategoryTaken))
	assert.Equal(t, core.KindConflict, core.KindOf(err))
	foreign, err := repo.GetCategory(ctx, core.PaymentCategoryID("visa"))
	require.NoError(t, err)
	assert.False(t, foreign.IsSystem, "a refused claim leaves the row alone")

	var created core.Category
	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		var err error
		created, err = tx.EnsurePaymentCategory(ctx, amex)
		if err != nil {
			return err
		}
		return tx.SetCategoryActive(ctx, created.ID, false)
	}))
	assert.True(t, created.IsSystem)

	var again core.Category
	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		var err error
		again, err = tx.EnsurePaymentCategory(ctx, amex)
		return err
	}))
	assert.True(t, again.IsActive)
	assert.True(t, again.IsSystem)
	assert.Equal(t, "amex", again.PaymentAccountID)
	assert.Equal(t, core.GroupCreditCardPayments, again.GroupID)
}

func TestCategoryGoalColumns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	goal := &core.Goal{Type: core.GoalTargetDate, AmountMinor: 120_000, TargetDate: core.NewDate(2025, 12, 31)}

	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		return tx.InsertCategory(ctx, core.Category{ID: "vacation", Name: "Vacation", IsActive: true, Goal: goal})
	}))
	stored, err := repo.GetCategory(ctx, "vacation")
	require.NoError(t, err)
	require.NotNil(t, stored.Goal)
	assert.Equal(t, *goal, *stored.Goal)

	stored.Goal = nil
	require.NoError(t, repo.InTx(ctx, func(tx Tx) error { return tx.UpdateCategory(ctx, stored) }))
	cleared, err := repo.GetCategory(ctx, "vacation")
	require.NoError(t, err)
	assert.Nil(t, cleared.Goal)

	err = repo.InTx(ctx, func(tx Tx) error { return tx.UpdateCategory(ctx, core.Category{ID: "nope", Name: "x"}) })
	assert.True(t, errors.Is(err, core.ErrCategoryNotFound))
}

func TestReconciliationStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, core.Account{ID: "checking", Name: "Checking", Type: core.Asset, Class: core.ClassCash, Role: core.OnBudget})
	seedCategory(t, repo, "groceries")

	_, err := repo.LatestReconciliation(ctx, "checking")
	assert.True(t, errors.Is(err, core.ErrNoReconciliation))

	settled := txVersion(uuid.New(), "checking", "groceries", core.NewDate(2025, 3, 1), -2_000, t0)
	waiting := txVersion(uuid.New(), "checking", "groceries", core.NewDate(2025, 3, 2), -500, t0)
	waiting.Status = core.StatusPending
	later := txVersion(uuid.New(), "checking", "groceries", core.NewDate(2025, 3, 3), -300, t0.Add(2*time.Hour))

	first := core.Reconciliation{
		ID: uuid.New(), AccountID: "checking", CreatedAt: t0.Add(time.Hour),
		StatementDate: core.NewDate(2025, 3, 9), StatementBalanceMinor: -2_000, ClearedBalanceMinor: -2_000,
	}
	second := core.Reconciliation{
		ID: uuid.New(), AccountID: "checking", CreatedAt: t0.Add(time.Hour),
		StatementDate: core.NewDate(2025, 3, 9), StatementBalanceMinor: -2_000, ClearedBalanceMinor: -2_000,
		PreviousID: uuid.NullUUID{UUID: first.ID, Valid: true},
	}
	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		for _, v := range []core.TransactionVersion{settled, waiting, later} {
			if err := tx.CreateTransactionVersion(ctx, v); err != nil {
				return err
			}
		}
		if err := tx.InsertReconciliation(ctx, first); err != nil {
			return err
		}
		return tx.InsertReconciliation(ctx, second)
	}))

	latest, err := repo.LatestReconciliation(ctx, "checking")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID, "equal timestamps resolve to the later insert")
	assert.Equal(t, first.ID, latest.PreviousID.UUID)
	assert.True(t, latest.StatementDate.Equal(second.StatementDate.Time))

	rows, err := repo.ReconciliationWorksheet(ctx, "checking", latest.CreatedAt)
	require.NoError(t, err)
	var ids []uuid.UUID
	for _, v := range rows {
		ids = append(ids, v.ConceptID)
	}
	assert.Equal(t, []uuid.UUID{waiting.ConceptID, later.ConceptID}, ids)

	cleared, pending, err := repo.StatusBalances(ctx, "checking")
	require.NoError(t, err)
	assert.Equal(t, int64(-2_300), cleared)
	assert.Equal(t, int64(-500), pending)
}

func TestListReads(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	seedAccount(t, repo, core.Account{ID: "checking", Name: "Checking", Type: core.Asset, Class: core.ClassCash, Role: core.OnBudget})
	seedCategory(t, repo, "groceries")
	seedCategory(t, repo, "rent")

	closed := txVersion(uuid.New(), "checking", "groceries", core.NewDate(2025, 3, 9), -1, t0)
	var dates []core.Date
	require.NoError(t, repo.InTx(ctx, func(tx Tx) error {
		for day := 1; day <= 4; day++ {
			d := core.NewDate(2025, 3, day)
			dates = append(dates, d)
			if err := tx.CreateTransactionVersion(ctx, txVersion(uuid.New(), "checking", "groceries", d, -100, t0)); err != nil {
				return err
			}
		}
		if err := tx.CreateTransactionVersion(ctx, closed); err != nil {
			return err
		}
		if err := tx.CloseTransaction(ctx, closed.ConceptID, t0.Add(time.Minute)); err != nil {
			return err
		}
		for _, d := range []core.Date{core.NewDate(2025, 2, 27), core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31), core.NewDate(2025, 4, 1)} {
			if err := tx.CreateAllocationVersion(ctx, core.AllocationVersion{
				ConceptID: uuid.New(), VersionID: uuid.New(), AllocationDate: d, ToCategoryID: "rent",
				AmountMinor: 100, ValidFrom: t0, RecordedAt: t0,
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	recent, err := repo.ListRecentTransactions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	for i, v := range recent {
		assert.True(t, v.TransactionDate.Equal(dates[3-i].Time), "newest date first, closed versions skipped")
	}

	allocations, err := repo.ListAllocations(ctx, core.NewDate(2025, 3, 1), 10)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.True(t, allocations[0].AllocationDate.Equal(core.NewDate(2025, 3, 31).Time))
	assert.True(t, allocations[1].AllocationDate.Equal(core.NewDate(2025, 3, 1).Time))

	one, err := repo.ListAllocations(ctx, core.NewDate(2025, 3, 1), 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
