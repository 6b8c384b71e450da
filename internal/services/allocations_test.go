package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogle/dojo-sub001/internal/core"
)

func TestCreateAllocation_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 20000)
	f.category("groceries")
	f.category("dining")
	f.allocate("", "groceries", march, 5000)

	tests := []struct {
		name    string
		payload core.AllocationPayload
		want    error
	}{
		{
			name:    "more than ready to assign",
			payload: core.AllocationPayload{ToCategoryID: "dining", AmountMinor: 15001, AllocationDate: march},
			want:    core.ErrReadyToAssignInsufficient,
		},
		{
			name:    "more than the source envelope holds",
			payload: core.AllocationPayload{FromCategoryID: "groceries", ToCategoryID: "dining", AmountMinor: 5001, AllocationDate: march},
			want:    core.ErrInsufficientFunds,
		},
		{
			name:    "same category",
			payload: core.AllocationPayload{FromCategoryID: "groceries", ToCategoryID: "groceries", AmountMinor: 1, AllocationDate: march},
			want:    core.ErrSameCategory,
		},
		{
			name:    "system destination",
			payload: core.AllocationPayload{ToCategoryID: core.CategoryOpeningBalance, AmountMinor: 1, AllocationDate: march},
			want:    core.ErrSystemCategory,
		},
		{
			name:    "zero amount",
			payload: core.AllocationPayload{ToCategoryID: "dining", AllocationDate: march},
			want:    core.ErrInvalidAmount,
		},
		{
			name:    "missing date",
			payload: core.AllocationPayload{ToCategoryID: "dining", AmountMinor: 1},
			want:    core.ErrInvalidDate,
		},
		{
			name:    "unknown category",
			payload: core.AllocationPayload{ToCategoryID: "nope", AmountMinor: 1, AllocationDate: march},
			want:    core.ErrCategoryNotFound,
		},
		{
			name:    "ready to assign is per month",
			payload: core.AllocationPayload{ToCategoryID: "dining", AmountMinor: 1, AllocationDate: february},
			want:    core.ErrReadyToAssignInsufficient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.CreateAllocation(f.ctx, tt.payload)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}

	assert.Equal(t, core.KindInsufficientFunds, core.KindOf(core.ErrInsufficientFunds))
	assert.Equal(t, int64(15000), f.rta(march))
	assert.Equal(t, int64(5000), f.state("groceries", march).AvailableMinor)
	assert.Equal(t, int64(0), f.state("dining", march).AvailableMinor)
}

func TestCreateAllocation_BetweenCategories(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 20000)
	f.category("groceries")
	f.category("dining")
	f.allocate("", "groceries", march, 5000)

	view := f.allocate("groceries", "dining", march, 5000)
	assert.Equal(t, int64(15000), view.ReadyToAssignMinor)

	groceries := f.state("groceries", march)
	assert.Equal(t, int64(0), groceries.AllocatedMinor)
	assert.Equal(t, int64(0), groceries.AvailableMinor)
	assert.Equal(t, int64(5000), f.state("dining", march).AvailableMinor)
	assert.Equal(t, int64(15000), f.rta(march))
	f.assertSynced()
}

func TestCreateAllocation_CarriesIntoLaterMonths(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.ledger.CreateAccount(f.ctx, core.AccountPayload{
		AccountID: "A", Name: "Checking", Type: core.Asset, Class: core.ClassCash, Role: core.OnBudget,
		OpeningBalanceMinor: 10000, OpenedOn: february,
	})
	require.NoError(t, err)
	f.category("groceries")

	f.allocate("", "groceries", february, 4000)

	st := f.state("groceries", march)
	assert.Equal(t, int64(0), st.AllocatedMinor)
	assert.Equal(t, int64(4000), st.LastMonthAvailableMinor)
	assert.Equal(t, int64(4000), st.AvailableMinor)
	assert.Equal(t, int64(6000), f.rta(february))
	assert.Equal(t, int64(6000), f.rta(march))

	// March can move what February set aside.
	f.category("dining")
	f.allocate("groceries", "dining", march, 4000)
	assert.Equal(t, int64(0), f.state("groceries", march).AvailableMinor)
	f.assertSynced()
}

func TestEditAllocation(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 20000)
	f.category("groceries")
	f.category("dining")

	created := f.allocate("", "groceries", march, 20000)
	require.Equal(t, int64(0), f.rta(march))

	// The prior version's money counts toward the funds check.
	same, err := f.ledger.EditAllocation(f.ctx, created.ConceptID, core.AllocationPayload{
		ToCategoryID: "groceries", AmountMinor: 20000, AllocationDate: march, Memo: "groceries budget",
	})
	require.NoError(t, err)
	assert.Equal(t, created.ConceptID, same.ConceptID)
	assert.Equal(t, "groceries budget", same.Memo)

	_, err = f.ledger.EditAllocation(f.ctx, created.ConceptID, core.AllocationPayload{
		ToCategoryID: "groceries", AmountMinor: 20001, AllocationDate: march,
	})
	assert.True(t, errors.Is(err, core.ErrReadyToAssignInsufficient))

	moved, err := f.ledger.EditAllocation(f.ctx, created.ConceptID, core.AllocationPayload{
		ToCategoryID: "dining", AmountMinor: 12000, AllocationDate: march,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8000), moved.ReadyToAssignMinor)
	assert.Equal(t, int64(0), f.state("groceries", march).AvailableMinor)
	assert.Equal(t, int64(12000), f.state("dining", march).AvailableMinor)
	f.assertSynced()
}

func TestEditAllocation_FromCategoryCountsReversal(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 20000)
	f.category("groceries")
	f.category("dining")
	f.allocate("", "groceries", march, 10000)
	between := f.allocate("groceries", "dining", march, 10000)
	require.Equal(t, int64(0), f.state("groceries", march).AvailableMinor)

	_, err := f.ledger.EditAllocation(f.ctx, between.ConceptID, core.AllocationPayload{
		FromCategoryID: "groceries", ToCategoryID: "dining", AmountMinor: 10000, AllocationDate: march,
	})
	require.NoError(t, err)

	_, err = f.ledger.EditAllocation(f.ctx, between.ConceptID, core.AllocationPayload{
		FromCategoryID: "groceries", ToCategoryID: "dining", AmountMinor: 10001, AllocationDate: march,
	})
	assert.True(t, errors.Is(err, core.ErrInsufficientFunds))

	// Reversing direction: dining must cover the new amount after it gives
	// back what it received.
	_, err = f.ledger.EditAllocation(f.ctx, between.ConceptID, core.AllocationPayload{
		FromCategoryID: "dining", ToCategoryID: "groceries", AmountMinor: 1, AllocationDate: march,
	})
	assert.True(t, errors.Is(err, core.ErrInsufficientFunds))
	f.assertSynced()
}

func TestDeleteAllocation(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 20000)
	f.category("groceries")
	f.category("dining")

	funded := f.allocate("", "groceries", march, 6000)
	f.spend("A", "groceries", core.NewDate(2025, 3, 3), -5000)

	// Deleting is never refused, even when it leaves the envelope short.
	require.NoError(t, f.ledger.DeleteAllocation(f.ctx, funded.ConceptID))
	assert.Equal(t, int64(20000), f.rta(march))
	st := f.state("groceries", march)
	assert.Equal(t, int64(0), st.AllocatedMinor)
	assert.Equal(t, int64(-5000), st.AvailableMinor)

	err := f.ledger.DeleteAllocation(f.ctx, funded.ConceptID)
	assert.True(t, errors.Is(err, core.ErrAllocationNotFound))
	f.assertSynced()
}

func TestAllocationAsOf(t *testing.T) {
	f := newFixture(t, nil)
	f.checking("A", 20000)
	f.category("groceries")
	created := f.allocate("", "groceries", march, 100)

	f.clock.Set(testNow.Add(2 * time.Hour))
	_, err := f.ledger.EditAllocation(f.ctx, created.ConceptID, core.AllocationPayload{
		ToCategoryID: "groceries", AmountMinor: 900, AllocationDate: march,
	})
	require.NoError(t, err)

	old, err := f.ledger.AllocationAsOf(f.ctx, created.ConceptID, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(100), old.AmountMinor)
	assert.Equal(t, created.VersionID, old.VersionID)
}
