package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/blogle/dojo-sub001/internal/amqp"
	"github.com/blogle/dojo-sub001/internal/cache"
	"github.com/blogle/dojo-sub001/internal/core"
	"github.com/blogle/dojo-sub001/internal/log"
)

// Page sizes of the list reads.
const (
	DefaultTransactionLimit = 50
	DefaultAllocationLimit  = 100
	MaxListLimit            = 500
)

// readCache memoizes derived reads between commits. Every commit bumps the
// generation, and a load that started under an older generation is
// returned to its caller but never stored.
type readCache struct {
	entries    *cache.LRUCache[any]
	generation atomic.Uint64
	group      singleflight.Group
}

func newReadCache(size int, ttl time.Duration, now func() time.Time) *readCache {
	return &readCache{entries: cache.NewLRUCache[any](size, ttl).WithClock(now)}
}

func (c *readCache) purge() {
	c.generation.Add(1)
	c.entries.Purge()
}

// Cleaner exposes the entry store to a cache.Manager for expiry sweeps.
func (c *readCache) Cleaner() cache.Cleaner {
	return c.entries
}

func cachedRead[T any](ctx context.Context, c *readCache, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.entries.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	gen := c.generation.Load()
	flightKey := fmt.Sprintf("%d/%s", gen, key)
	v, err, _ := c.group.Do(flightKey, func() (any, error) {
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.generation.Load() == gen {
			c.entries.Set(key, value)
			// A commit may have landed between the check and the store.
			if c.generation.Load() != gen {
				c.entries.Delete(key)
			}
		}
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// HandleLedgerEvent drops every cached read. Other processes sharing the
// database announce their commits and cache rebuilds as ledger events, and
// none of them can reach this process's cache otherwise.
func (l *Ledger) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	l.reads.purge()
	l.logger.DebugContext(ctx, "Read cache purged by ledger event", log.FieldEventType, event.Type)
	return nil
}

// ReadCacheStats reports hit and eviction counters of the read cache.
func (l *Ledger) ReadCacheStats() cache.Stats {
	return l.reads.entries.Stats()
}

// ReadCacheCleaner returns the cleaner of the ledger's read cache, for
// registration with a cache.Manager.
func (l *Ledger) ReadCacheCleaner() cache.Cleaner {
	return l.reads.Cleaner()
}

// ReadyToAssign returns the unassigned pool as of month.
func (l *Ledger) ReadyToAssign(ctx context.Context, month core.Date) (int64, error) {
	month = month.MonthStart()
	return cachedRead(ctx, l.reads, "rta/"+month.String(), func(ctx context.Context) (int64, error) {
		return l.store.ReadyToAssign(ctx, month)
	})
}

// CategoryMonthlyState returns the envelope figures of categoryID for
// month. An untouched month reports the carried-forward balance.
func (l *Ledger) CategoryMonthlyState(ctx context.Context, categoryID string, month core.Date) (core.MonthlyState, error) {
	month = month.MonthStart()
	key := "state/" + categoryID + "/" + month.String()
	return cachedRead(ctx, l.reads, key, func(ctx context.Context) (core.MonthlyState, error) {
		if _, err := l.store.GetCategory(ctx, categoryID); err != nil {
			return core.MonthlyState{}, err
		}
		return l.store.CategoryMonthlyState(ctx, categoryID, month)
	})
}

// AccountBalance returns the cached balance of accountID.
func (l *Ledger) AccountBalance(ctx context.Context, accountID string) (int64, error) {
	return l.store.AccountBalance(ctx, accountID)
}

// BudgetMonth assembles the budget screen for month: every active envelope
// category with its state, and Ready to Assign.
func (l *Ledger) BudgetMonth(ctx context.Context, month core.Date) (core.MonthSummary, error) {
	month = month.MonthStart()
	return cachedRead(ctx, l.reads, "budget/"+month.String(), func(ctx context.Context) (core.MonthSummary, error) {
		ctx, span := startSpan(ctx, "Ledger.BudgetMonth", monthAttr(month.String()))
		defer span.End()

		categories, err := l.store.ListCategories(ctx)
		if err != nil {
			return core.MonthSummary{}, err
		}
		rta, err := l.store.ReadyToAssign(ctx, month)
		if err != nil {
			return core.MonthSummary{}, err
		}

		summary := core.MonthSummary{Month: month, ReadyToAssignMinor: rta}
		for _, c := range categories {
			if !c.IsActive || !c.TracksEnvelope() {
				continue
			}
			st, err := l.store.CategoryMonthlyState(ctx, c.ID, month)
			if err != nil {
				return core.MonthSummary{}, err
			}
			summary.Add(c, st)
		}
		return summary, nil
	})
}

func (l *Ledger) TransactionAsOf(ctx context.Context, conceptID uuid.UUID, ts time.Time) (core.TransactionVersion, error) {
	return l.store.TransactionAsOf(ctx, conceptID, ts)
}

// TransactionHistory lists every version of conceptID, oldest first.
func (l *Ledger) TransactionHistory(ctx context.Context, conceptID uuid.UUID) ([]core.TransactionVersion, error) {
	versions, err := l.store.TransactionHistory(ctx, conceptID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrTransactionNotFound, conceptID)
	}
	return versions, nil
}

func (l *Ledger) AllocationAsOf(ctx context.Context, conceptID uuid.UUID, ts time.Time) (core.AllocationVersion, error) {
	return l.store.AllocationAsOf(ctx, conceptID, ts)
}

// AccountBalanceAsOf recomputes the balance of accountID from the versions
// that were active at ts.
func (l *Ledger) AccountBalanceAsOf(ctx context.Context, accountID string, ts time.Time) (int64, error) {
	if _, err := l.store.GetAccount(ctx, accountID); err != nil {
		return 0, err
	}
	return l.store.AccountBalanceAsOf(ctx, accountID, ts)
}

func (l *Ledger) Accounts(ctx context.Context) ([]core.Account, error) {
	return l.store.ListAccounts(ctx)
}

func (l *Ledger) Categories(ctx context.Context) ([]core.Category, error) {
	return l.store.ListCategories(ctx)
}

func (l *Ledger) CategoryGroups(ctx context.Context) ([]core.CategoryGroup, error) {
	return l.store.ListCategoryGroups(ctx)
}

// RecentTransactions lists active transactions, newest first. A limit of
// zero or less means DefaultTransactionLimit; MaxListLimit caps it.
func (l *Ledger) RecentTransactions(ctx context.Context, limit int) ([]core.TransactionVersion, error) {
	return l.store.ListRecentTransactions(ctx, clampLimit(limit, DefaultTransactionLimit))
}

// AllocationsForMonth lists the active allocations dated in month, newest
// first, with the same limit rules as RecentTransactions.
func (l *Ledger) AllocationsForMonth(ctx context.Context, month core.Date, limit int) ([]core.AllocationVersion, error) {
	return l.store.ListAllocations(ctx, month.MonthStart(), clampLimit(limit, DefaultAllocationLimit))
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return min(limit, MaxListLimit)
}
