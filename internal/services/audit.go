package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/blogle/dojo-sub001/internal/amqp"
	"github.com/blogle/dojo-sub001/internal/core"
	"github.com/blogle/dojo-sub001/internal/log"
	"github.com/blogle/dojo-sub001/internal/storage"
)

// AccountDrift is an account whose cached balance disagrees with the sum
// of its active versions.
type AccountDrift struct {
	AccountID string
	Cached    int64
	Computed  int64
}

// StateDrift is a category month whose cached envelope figures disagree
// with a fresh derivation.
type StateDrift struct {
	Cached   core.MonthlyState
	Computed core.MonthlyState
}

// AuditReport is the outcome of one audit pass.
type AuditReport struct {
	CheckedAccounts int
	CheckedStates   int
	Accounts        []AccountDrift
	States          []StateDrift
	// DuplicateActive maps concepts to their number of active versions when
	// that number is above one.
	DuplicateActive map[uuid.UUID]int
	Duration        time.Duration
}

// Clean reports whether the audit found nothing wrong.
func (r AuditReport) Clean() bool {
	return len(r.Accounts) == 0 && len(r.States) == 0 && len(r.DuplicateActive) == 0
}

// Auditor checks the incrementally maintained caches against a rebuild
// from active versions, and repairs them on request.
type Auditor struct {
	ledger *Ledger
	logger *log.Logger
}

func NewAuditor(ledger *Ledger) *Auditor {
	return &Auditor{
		ledger: ledger,
		logger: ledger.logger.WithComponent(log.ComponentAudit),
	}
}

// AuditAccount compares the cached balance of accountID with a fresh sum.
// It returns nil when they agree.
func (a *Auditor) AuditAccount(ctx context.Context, accountID string) (*AccountDrift, error) {
	store := a.ledger.store
	cached, err := store.AccountBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	computed, err := store.ComputeAccountBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if cached == computed {
		return nil, nil
	}

	a.logger.WarnContext(ctx, "Account balance drift detected",
		log.FieldAccountID, accountID,
		"cached_minor", cached,
		"computed_minor", computed)
	return &AccountDrift{AccountID: accountID, Cached: cached, Computed: computed}, nil
}

// AuditAll checks every account balance, every materialized category month
// and the single-active-version rule.
func (a *Auditor) AuditAll(ctx context.Context) (report AuditReport, err error) {
	ctx, span := startSpan(ctx, "Auditor.AuditAll")
	defer func() { endSpan(span, err) }()

	start := time.Now()
	store := a.ledger.store

	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return AuditReport{}, fmt.Errorf("list accounts: %w", err)
	}
	for _, account := range accounts {
		drift, err := a.AuditAccount(ctx, account.ID)
		if err != nil {
			return AuditReport{}, err
		}
		report.CheckedAccounts++
		if drift != nil {
			report.Accounts = append(report.Accounts, *drift)
		}
	}

	cached, err := store.ListMonthlyState(ctx)
	if err != nil {
		return AuditReport{}, err
	}
	computed, err := store.ComputeMonthlyState(ctx)
	if err != nil {
		return AuditReport{}, err
	}
	report.States = diffMonthlyState(cached, computed)
	report.CheckedStates = len(monthKeysOf(cached, computed))

	report.DuplicateActive, err = store.CountActiveVersions(ctx)
	if err != nil {
		return AuditReport{}, err
	}

	report.Duration = time.Since(start)
	fields := log.NewFields().
		WithOperation(log.OpAudit).
		With("checked_accounts", report.CheckedAccounts).
		With("checked_states", report.CheckedStates).
		With("account_drift", len(report.Accounts)).
		With("state_drift", len(report.States)).
		With("duplicate_active", len(report.DuplicateActive)).
		With(log.FieldDuration, report.Duration.Milliseconds())
	if report.Clean() {
		a.logger.InfoContext(ctx, "Ledger audit passed", fields.ToSlice()...)
	} else {
		a.logger.WarnContext(ctx, "Ledger audit found drift", fields.ToSlice()...)
	}
	return report, nil
}

// Repair rebuilds every cache from active versions and drops memoized
// reads.
func (a *Auditor) Repair(ctx context.Context) (stats storage.RebuildStats, err error) {
	ctx, span := startSpan(ctx, "Auditor.Repair")
	defer func() { endSpan(span, err) }()

	stats, err = a.ledger.store.RebuildCaches(ctx)
	if err != nil {
		a.logger.LogFailure(ctx, "Cache rebuild failed", log.OpRebuild, err, log.NewFields())
		return storage.RebuildStats{}, err
	}
	a.ledger.reads.purge()
	a.ledger.publish(ctx, amqp.NewLedgerEvent(amqp.EventCachesRebuilt, ""))

	a.logger.LogMutation(ctx, "Caches rebuilt", log.OpRebuild, log.NewFields().
		With("accounts", stats.Accounts).
		With("monthly_state_rows", stats.MonthlyStateRows).
		With(log.FieldDuration, stats.Duration.Milliseconds()))
	return stats, nil
}

// diffMonthlyState compares two sets of materialized rows. Months that
// exist in only one set are compared against the carried-forward value the
// other set derives for them, so an all-zero row left behind by a reversal
// is not drift.
func diffMonthlyState(cached, computed []core.MonthlyState) []StateDrift {
	cachedIdx := indexMonthlyState(cached)
	computedIdx := indexMonthlyState(computed)

	var drift []StateDrift
	for _, k := range monthKeysOf(cached, computed) {
		month, err := core.ParseDate(k.month)
		if err != nil {
			continue
		}
		c := cachedIdx.lookup(k.categoryID, month)
		e := computedIdx.lookup(k.categoryID, month)
		if !sameFigures(c, e) {
			drift = append(drift, StateDrift{Cached: c, Computed: e})
		}
	}
	return drift
}

func sameFigures(a, b core.MonthlyState) bool {
	return a.AllocatedMinor == b.AllocatedMinor &&
		a.InflowMinor == b.InflowMinor &&
		a.ActivityMinor == b.ActivityMinor &&
		a.AvailableMinor == b.AvailableMinor &&
		a.LastMonthAvailableMinor == b.LastMonthAvailableMinor
}

// stateIndex groups rows per category in month order.
type stateIndex map[string][]core.MonthlyState

func indexMonthlyState(rows []core.MonthlyState) stateIndex {
	idx := make(stateIndex)
	for _, r := range rows {
		idx[r.CategoryID] = append(idx[r.CategoryID], r)
	}
	for _, list := range idx {
		sort.Slice(list, func(i, j int) bool { return list[i].Month.Before(list[j].Month.Time) })
	}
	return idx
}

// lookup returns the row for month, or the state carried from the latest
// earlier row.
func (idx stateIndex) lookup(categoryID string, month core.Date) core.MonthlyState {
	out := core.MonthlyState{CategoryID: categoryID, Month: month}
	for _, r := range idx[categoryID] {
		if r.Month.Equal(month.Time) {
			return r
		}
		if r.Month.After(month.Time) {
			break
		}
		out.AvailableMinor = r.AvailableMinor
		out.LastMonthAvailableMinor = r.AvailableMinor
	}
	return out
}

func monthKeysOf(sets ...[]core.MonthlyState) []monthKey {
	seen := make(map[monthKey]int64)
	for _, rows := range sets {
		for _, r := range rows {
			seen[keyOf(r.CategoryID, r.Month)] = 0
		}
	}
	return sortedMonthKeys(seen)
}
