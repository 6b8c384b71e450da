package services

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
	"github.com/blogle/dojo-sub001/internal/storage"
)

var (
	testNow  = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	february = core.NewDate(2025, 2, 1)
	march    = core.NewDate(2025, 3, 1)
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	repo   *storage.SQLiteRepository
	ledger *Ledger
	clock  *core.FixedClock
}

func newFixture(t *testing.T, publisher EventPublisher) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return newFixtureWithStore(t, repo, repo, publisher)
}

func newFixtureWithStore(t *testing.T, repo *storage.SQLiteRepository, store Store, publisher EventPublisher) *fixture {
	t.Helper()
	clock := core.NewFixedClock(testNow)
	config := DefaultLedgerConfig()
	config.Clock = clock
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		repo:   repo,
		ledger: NewLedger(store, publisher, config),
		clock:  clock,
	}
}

func (f *fixture) account(id string, typ core.AccountType, class core.AccountClass, role core.AccountRole, opening int64) core.Account {
	f.t.Helper()
	a, err := f.ledger.CreateAccount(f.ctx, core.AccountPayload{
		AccountID:           id,
		Name:                id,
		Type:                typ,
		Class:               class,
		Role:                role,
		OpeningBalanceMinor: opening,
	})
	require.NoError(f.t, err)
	return a
}

func (f *fixture) checking(id string, opening int64) core.Account {
	return f.account(id, core.Asset, core.ClassCash, core.OnBudget, opening)
}

func (f *fixture) creditCard(id string) core.Account {
	return f.account(id, core.Liability, core.ClassCredit, core.OnBudget, 0)
}

func (f *fixture) category(id string) {
	f.t.Helper()
	_, err := f.ledger.CreateCategory(f.ctx, core.CategoryPayload{CategoryID: id, Name: id})
	require.NoError(f.t, err)
}

func (f *fixture) spend(accountID, categoryID string, date core.Date, amount int64) core.TransactionView {
	f.t.Helper()
	v, err := f.ledger.CreateTransaction(f.ctx, core.TransactionPayload{
		TransactionDate: date,
		AccountID:       accountID,
		CategoryID:      categoryID,
		AmountMinor:     amount,
	})
	require.NoError(f.t, err)
	return v
}

func (f *fixture) allocate(from, to string, date core.Date, amount int64) core.AllocationView {
	f.t.Helper()
	v, err := f.ledger.CreateAllocation(f.ctx, core.AllocationPayload{
		FromCategoryID: from,
		ToCategoryID:   to,
		AmountMinor:    amount,
		AllocationDate: date,
	})
	require.NoError(f.t, err)
	return v
}

func (f *fixture) balance(accountID string) int64 {
	f.t.Helper()
	b, err := f.ledger.AccountBalance(f.ctx, accountID)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) state(categoryID string, month core.Date) core.MonthlyState {
	f.t.Helper()
	st, err := f.ledger.CategoryMonthlyState(f.ctx, categoryID, month)
	require.NoError(f.t, err)
	return st
}

func (f *fixture) rta(month core.Date) int64 {
	f.t.Helper()
	v, err := f.ledger.ReadyToAssign(f.ctx, month)
	require.NoError(f.t, err)
	return v
}

// assertSynced checks every cache against a fresh derivation.
func (f *fixture) assertSynced() {
	f.t.Helper()
	report, err := NewAuditor(f.ledger).AuditAll(f.ctx)
	require.NoError(f.t, err)
	assert.True(f.t, report.Clean(), "audit found drift: %+v", report)
}

func TestScenario_OutflowOnChecking(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 0)
	f.category("groceries")

	view := f.spend("A", "groceries", core.NewDate(2025, 3, 5), -10000)

	assert.Equal(t, int64(-10000), view.AccountBalanceMinor)
	assert.Equal(t, int64(-10000), f.balance("A"))
	st := f.state("groceries", march)
	assert.Equal(t, int64(-10000), st.ActivityMinor)
	assert.Equal(t, int64(-10000), st.AvailableMinor)
	f.assertSynced()
}

func TestScenario_AllocateFromReadyToAssign(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 20000)
	f.category("groceries")
	require.Equal(t, int64(20000), f.rta(march))

	view := f.allocate("", "groceries", march, 5000)

	assert.Equal(t, int64(15000), view.ReadyToAssignMinor)
	assert.Equal(t, int64(15000), f.rta(march))
	st := f.state("groceries", march)
	assert.Equal(t, int64(5000), st.AllocatedMinor)
	assert.Equal(t, int64(5000), st.AvailableMinor)
	f.assertSynced()
}

func TestScenario_EditNetsIntoOneStep(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	spy := &spyStore{SQLiteRepository: repo}
	f := newFixtureWithStore(t, repo, spy, nil)

	f.checking("A", 0)
	f.category("groceries")
	created := f.spend("A", "groceries", core.NewDate(2025, 3, 5), -10000)

	spy.reset()
	edited, err := f.ledger.EditTransaction(f.ctx, created.ConceptID, core.TransactionPayload{
		TransactionDate: core.NewDate(2025, 3, 5),
		AccountID:       "A",
		CategoryID:      "groceries",
		AmountMinor:     -6000,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{4000}, spy.activityDeltas, "activity must move in a single net delta")
	assert.Equal(t, []int64{4000}, spy.balanceDeltas, "balance must move in a single net delta")
	assert.Equal(t, created.ConceptID, edited.ConceptID)
	assert.NotEqual(t, created.VersionID, edited.VersionID)
	assert.Equal(t, int64(-6000), f.state("groceries", march).ActivityMinor)
	assert.Equal(t, int64(-6000), f.balance("A"))
	f.assertSynced()
}

func TestScenario_CreditPurchaseFundsPaymentEnvelope(t *testing.T) {
	f := newFixture(t, nil)
	f.creditCard("visa")
	f.category("dining")

	diningBefore := f.state("dining", march).AvailableMinor
	paymentBefore := f.state(core.PaymentCategoryID("visa"), march).AvailableMinor

	f.spend("visa", "dining", core.NewDate(2025, 3, 8), -20000)

	assert.Equal(t, diningBefore-20000, f.state("dining", march).AvailableMinor)
	payment := f.state(core.PaymentCategoryID("visa"), march)
	assert.Equal(t, paymentBefore+20000, payment.AvailableMinor)
	assert.Equal(t, int64(20000), payment.InflowMinor)
	assert.Equal(t, int64(-20000), f.balance("visa"))
	f.assertSynced()
}

func TestCreditRefundLowersPaymentEnvelope(t *testing.T) {
	f := newFixture(t, nil)
	f.creditCard("visa")
	f.category("dining")

	purchase := f.spend("visa", "dining", core.NewDate(2025, 3, 8), -20000)
	f.spend("visa", "dining", core.NewDate(2025, 3, 9), 5000)
	assert.Equal(t, int64(15000), f.state(core.PaymentCategoryID("visa"), march).InflowMinor)

	require.NoError(t, f.ledger.DeleteTransaction(f.ctx, purchase.ConceptID))
	assert.Equal(t, int64(-5000), f.state(core.PaymentCategoryID("visa"), march).InflowMinor)
	f.assertSynced()
}

func TestEditTransaction_MovesBetweenMonthsAndCategories(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 0)
	f.category("groceries")
	f.category("dining")

	created := f.spend("A", "groceries", core.NewDate(2025, 2, 20), -3000)
	require.Equal(t, int64(-3000), f.state("groceries", february).ActivityMinor)
	require.Equal(t, int64(-3000), f.state("groceries", march).AvailableMinor, "march carries february")

	_, err := f.ledger.EditTransaction(f.ctx, created.ConceptID, core.TransactionPayload{
		TransactionDate: core.NewDate(2025, 3, 2),
		AccountID:       "A",
		CategoryID:      "dining",
		AmountMinor:     -3000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), f.state("groceries", february).ActivityMinor)
	assert.Equal(t, int64(0), f.state("groceries", march).AvailableMinor)
	assert.Equal(t, int64(0), f.state("dining", february).AvailableMinor)
	assert.Equal(t, int64(-3000), f.state("dining", march).ActivityMinor)
	assert.Equal(t, int64(-3000), f.balance("A"))
	f.assertSynced()
}

func TestEditTransaction_CashToCreditMovesAutoFunding(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 0)
	f.creditCard("visa")
	f.category("dining")

	created := f.spend("A", "dining", core.NewDate(2025, 3, 8), -4000)
	_, err := f.ledger.EditTransaction(f.ctx, created.ConceptID, core.TransactionPayload{
		TransactionDate: core.NewDate(2025, 3, 8),
		AccountID:       "visa",
		CategoryID:      "dining",
		AmountMinor:     -4000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), f.balance("A"))
	assert.Equal(t, int64(-4000), f.balance("visa"))
	assert.Equal(t, int64(-4000), f.state("dining", march).ActivityMinor)
	assert.Equal(t, int64(4000), f.state(core.PaymentCategoryID("visa"), march).AvailableMinor)
	f.assertSynced()
}

func TestDeleteTransaction(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 1000)
	f.category("groceries")

	created := f.spend("A", "groceries", core.NewDate(2025, 3, 5), -250)
	require.NoError(t, f.ledger.DeleteTransaction(f.ctx, created.ConceptID))

	assert.Equal(t, int64(1000), f.balance("A"))
	assert.Equal(t, int64(0), f.state("groceries", march).ActivityMinor)

	_, err := f.repo.ActiveTransaction(f.ctx, created.ConceptID)
	assert.True(t, errors.Is(err, core.ErrTransactionNotFound))

	err = f.ledger.DeleteTransaction(f.ctx, created.ConceptID)
	assert.True(t, errors.Is(err, core.ErrTransactionNotFound))
	assert.Equal(t, core.KindNotFound, core.KindOf(err))
	f.assertSynced()
}

func TestCreateTransaction_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 0)
	f.category("groceries")

	tests := []struct {
		name    string
		payload core.TransactionPayload
		want    error
	}{
		{
			name:    "zero amount",
			payload: core.TransactionPayload{TransactionDate: core.NewDate(2025, 3, 1), AccountID: "A", CategoryID: "groceries"},
			want:    core.ErrInvalidAmount,
		},
		{
			name:    "too far ahead",
			payload: core.TransactionPayload{TransactionDate: core.NewDate(2025, 3, 16), AccountID: "A", CategoryID: "groceries", AmountMinor: -1},
			want:    core.ErrDateTooFarAhead,
		},
		{
			name:    "missing date",
			payload: core.TransactionPayload{AccountID: "A", CategoryID: "groceries", AmountMinor: -1},
			want:    core.ErrInvalidDate,
		},
		{
			name:    "unknown account",
			payload: core.TransactionPayload{TransactionDate: core.NewDate(2025, 3, 1), AccountID: "nope", CategoryID: "groceries", AmountMinor: -1},
			want:    core.ErrAccountNotFound,
		},
		{
			name:    "unknown category",
			payload: core.TransactionPayload{TransactionDate: core.NewDate(2025, 3, 1), AccountID: "A", CategoryID: "nope", AmountMinor: -1},
			want:    core.ErrCategoryNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.CreateTransaction(f.ctx, tt.payload)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}

	// The last day inside the window is accepted.
	f.spend("A", "groceries", core.NewDate(2025, 3, 15), -1)
	assert.Equal(t, int64(-1), f.balance("A"))
}

func TestInactiveReferences(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 0)
	f.category("groceries")
	created := f.spend("A", "groceries", core.NewDate(2025, 3, 5), -700)

	require.NoError(t, f.ledger.DeactivateAccount(f.ctx, "A"))
	_, err := f.ledger.CreateTransaction(f.ctx, core.TransactionPayload{
		TransactionDate: core.NewDate(2025, 3, 5), AccountID: "A", CategoryID: "groceries", AmountMinor: -1,
	})
	assert.True(t, errors.Is(err, core.ErrAccountInactive))

	// History on a retired account can still be removed.
	require.NoError(t, f.ledger.DeleteTransaction(f.ctx, created.ConceptID))
	assert.Equal(t, int64(0), f.balance("A"))

	f.checking("B", 0)
	require.NoError(t, f.ledger.DeactivateCategory(f.ctx, "groceries"))
	_, err = f.ledger.CreateTransaction(f.ctx, core.TransactionPayload{
		TransactionDate: core.NewDate(2025, 3, 5), AccountID: "B", CategoryID: "groceries", AmountMinor: -1,
	})
	assert.True(t, errors.Is(err, core.ErrCategoryInactive))
}

func TestPointInTimeReads(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 1000)
	f.category("groceries")
	created := f.spend("A", "groceries", core.NewDate(2025, 3, 5), -100)

	f.clock.Set(testNow.Add(time.Hour))
	_, err := f.ledger.EditTransaction(f.ctx, created.ConceptID, core.TransactionPayload{
		TransactionDate: core.NewDate(2025, 3, 5), AccountID: "A", CategoryID: "groceries", AmountMinor: -400,
	})
	require.NoError(t, err)

	before := testNow.Add(30 * time.Minute)
	old, err := f.ledger.TransactionAsOf(f.ctx, created.ConceptID, before)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), old.AmountMinor)
	assert.Equal(t, created.VersionID, old.VersionID)

	balance, err := f.ledger.AccountBalanceAsOf(f.ctx, "A", before)
	require.NoError(t, err)
	assert.Equal(t, int64(900), balance)
	assert.Equal(t, int64(600), f.balance("A"))

	history, err := f.ledger.TransactionHistory(f.ctx, created.ConceptID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].IsActive())
	assert.True(t, history[1].IsActive())
	assert.True(t, history[0].ValidTo.Equal(history[1].ValidFrom))

	_, err = f.ledger.TransactionHistory(f.ctx, uuid.New())
	assert.True(t, errors.Is(err, core.ErrTransactionNotFound))

	_, err = f.ledger.TransactionAsOf(f.ctx, created.ConceptID, testNow.Add(-time.Hour))
	assert.True(t, errors.Is(err, core.ErrTransactionNotFound))
}

func TestVersionTimestampsNeverGoBackwards(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 0)
	f.category("groceries")
	created := f.spend("A", "groceries", core.NewDate(2025, 3, 5), -100)

	// A clock that steps back must not produce a version starting before
	// its predecessor.
	f.clock.Set(testNow.Add(-time.Hour))
	edited, err := f.ledger.EditTransaction(f.ctx, created.ConceptID, core.TransactionPayload{
		TransactionDate: core.NewDate(2025, 3, 5), AccountID: "A", CategoryID: "groceries", AmountMinor: -200,
	})
	require.NoError(t, err)
	assert.False(t, edited.ValidFrom.Before(created.ValidFrom))
}

func TestReadCacheIsPurgedOnCommit(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 20000)
	f.category("groceries")

	require.Equal(t, int64(20000), f.rta(march))
	require.Equal(t, int64(20000), f.rta(core.NewDate(2025, 3, 17)), "any day of the month shares the entry")

	f.allocate("", "groceries", march, 1500)
	assert.Equal(t, int64(18500), f.rta(march))
	assert.Equal(t, int64(1500), f.state("groceries", march).AvailableMinor)
}

func TestBudgetMonth(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 20000)
	f.creditCard("visa")
	f.category("groceries")
	f.category("dining")
	f.allocate("", "groceries", march, 8000)
	f.spend("visa", "dining", core.NewDate(2025, 3, 3), -2500)

	summary, err := f.ledger.BudgetMonth(f.ctx, core.NewDate(2025, 3, 20))
	require.NoError(t, err)

	assert.True(t, summary.Month.Equal(march.Time))
	assert.Equal(t, int64(12000), summary.ReadyToAssignMinor)
	assert.Equal(t, int64(8000), summary.AllocatedMinor)
	assert.Equal(t, int64(-2500), summary.ActivityMinor)

	ids := make([]string, 0, len(summary.Categories))
	for _, c := range summary.Categories {
		ids = append(ids, c.Category.ID)
	}
	assert.ElementsMatch(t, []string{"groceries", "dining", core.PaymentCategoryID("visa")}, ids)
	// groceries 8000, dining -2500, payment +2500
	assert.Equal(t, int64(8000), summary.AvailableMinor)
}

func TestInvestmentAccountsStayOffBudget(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 1000)

	_, err := f.ledger.CreateAccount(f.ctx, core.AccountPayload{
		AccountID: "brokerage", Name: "Brokerage",
		Type: core.Asset, Class: core.ClassInvestment, Role: core.OnBudget,
	})
	assert.True(t, errors.Is(err, core.ErrInvalidAccountRole))

	f.account("brokerage", core.Asset, core.ClassInvestment, core.Tracking, 500000)
	assert.Equal(t, int64(1000), f.rta(march))
	assert.Equal(t, int64(500000), f.balance("brokerage"))
}
