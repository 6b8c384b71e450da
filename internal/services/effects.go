package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/blogle/dojo-sub001/internal/amqp"
	"github.com/blogle/dojo-sub001/internal/core"
	"github.com/blogle/dojo-sub001/internal/storage"
)

type monthKey struct {
	categoryID string
	month      string
}

func keyOf(categoryID string, date core.Date) monthKey {
	return monthKey{categoryID: categoryID, month: date.MonthStart().String()}
}

// effects accumulates the cache deltas of one mutation. Reversals post with
// sign -1 and applications with +1, so an edit nets out into a single delta
// per account and per (category, month) before anything is written.
type effects struct {
	balances  map[string]int64
	activity  map[monthKey]int64
	inflow    map[monthKey]int64
	allocated map[monthKey]int64
	pool      map[string]int64 // Ready to Assign, by month
}

func newEffects() *effects {
	return &effects{
		balances:  make(map[string]int64),
		activity:  make(map[monthKey]int64),
		inflow:    make(map[monthKey]int64),
		allocated: make(map[monthKey]int64),
		pool:      make(map[string]int64),
	}
}

// postTransaction adds the effect of v, or its reversal when sign is -1.
func (e *effects) postTransaction(v core.TransactionVersion, account core.Account, category core.Category, sign int64) {
	amount := sign * v.AmountMinor
	e.balances[v.AccountID] += amount

	// Both legs of a transfer share the category, so its activity nets to zero.
	if v.IsTransferLeg() {
		return
	}
	if account.IsOnBudget() && category.FundsReadyToAssign() {
		e.pool[v.TransactionDate.MonthStart().String()] += amount
	}
	if category.TracksEnvelope() {
		e.activity[keyOf(category.ID, v.TransactionDate)] += amount
	}
	autoFund(e, account, category, v.TransactionDate, amount)
}

// postAllocation adds the effect of v, or its reversal when sign is -1.
// Ready to Assign is derived from allocated totals, so an allocation out of
// it only touches the destination.
func (e *effects) postAllocation(v core.AllocationVersion, sign int64) {
	amount := sign * v.AmountMinor
	e.allocated[keyOf(v.ToCategoryID, v.AllocationDate)] += amount
	if v.FromReadyToAssign() {
		e.pool[v.AllocationDate.MonthStart().String()] -= amount
		return
	}
	e.allocated[keyOf(v.FromCategoryID, v.AllocationDate)] -= amount
}

// apply writes every non-zero delta. Keys are visited in sorted order so
// concurrent writers touch rows in the same sequence.
func (e *effects) apply(ctx context.Context, tx storage.Tx) error {
	for _, accountID := range sortedKeys(e.balances) {
		if err := tx.ApplyAccountDelta(ctx, accountID, e.balances[accountID]); err != nil {
			return err
		}
	}

	monthly := []struct {
		deltas map[monthKey]int64
		apply  func(context.Context, string, core.Date, int64) error
	}{
		{e.allocated, tx.ApplyAllocationDelta},
		{e.inflow, tx.ApplyInflowDelta},
		{e.activity, tx.ApplyTransactionDelta},
	}
	for _, m := range monthly {
		for _, k := range sortedMonthKeys(m.deltas) {
			delta := m.deltas[k]
			if delta == 0 {
				continue
			}
			month, err := core.ParseDate(k.month)
			if err != nil {
				return fmt.Errorf("parse month %q: %w", k.month, err)
			}
			if err := m.apply(ctx, k.categoryID, month, delta); err != nil {
				return err
			}
		}
	}
	return nil
}

// touch records on event every account, category and month with a
// non-zero delta, and the months from which Ready to Assign moved.
func (e *effects) touch(event *amqp.LedgerEvent) {
	for _, accountID := range sortedKeys(e.balances) {
		if e.balances[accountID] != 0 {
			event.TouchAccount(accountID)
		}
	}
	for _, deltas := range []map[monthKey]int64{e.allocated, e.inflow, e.activity} {
		for _, k := range sortedMonthKeys(deltas) {
			if deltas[k] != 0 {
				event.TouchCategory(k.categoryID, k.month)
			}
		}
	}
	for _, month := range sortedKeys(e.pool) {
		if e.pool[month] != 0 {
			event.TouchReadyToAssign(month)
		}
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedMonthKeys(m map[monthKey]int64) []monthKey {
	keys := make([]monthKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].categoryID != keys[j].categoryID {
			return keys[i].categoryID < keys[j].categoryID
		}
		return keys[i].month < keys[j].month
	})
	return keys
}
