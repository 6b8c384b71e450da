package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/blogle/dojo-sub001/internal/amqp"
	"github.com/blogle/dojo-sub001/internal/core"
	"github.com/blogle/dojo-sub001/internal/log"
	"github.com/blogle/dojo-sub001/internal/storage"
)

// UnitOfWork runs fn inside one database transaction.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(storage.Tx) error) error
}

// Store is everything the ledger needs from persistence: the unit of work
// for mutations plus committed-state reads.
type Store interface {
	UnitOfWork

	GetAccount(ctx context.Context, accountID string) (core.Account, error)
	ListAccounts(ctx context.Context) ([]core.Account, error)
	AccountBalance(ctx context.Context, accountID string) (int64, error)
	AccountBalanceAsOf(ctx context.Context, accountID string, ts time.Time) (int64, error)
	ComputeAccountBalance(ctx context.Context, accountID string) (int64, error)

	GetCategory(ctx context.Context, categoryID string) (core.Category, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
	ListCategoryGroups(ctx context.Context) ([]core.CategoryGroup, error)

	CategoryMonthlyState(ctx context.Context, categoryID string, month core.Date) (core.MonthlyState, error)
	ListMonthlyState(ctx context.Context) ([]core.MonthlyState, error)
	ComputeMonthlyState(ctx context.Context) ([]core.MonthlyState, error)
	ReadyToAssign(ctx context.Context, month core.Date) (int64, error)

	ActiveTransaction(ctx context.Context, conceptID uuid.UUID) (core.TransactionVersion, error)
	TransactionAsOf(ctx context.Context, conceptID uuid.UUID, ts time.Time) (core.TransactionVersion, error)
	TransactionHistory(ctx context.Context, conceptID uuid.UUID) ([]core.TransactionVersion, error)
	ActiveAllocation(ctx context.Context, conceptID uuid.UUID) (core.AllocationVersion, error)
	AllocationAsOf(ctx context.Context, conceptID uuid.UUID, ts time.Time) (core.AllocationVersion, error)
	CountActiveVersions(ctx context.Context) (map[uuid.UUID]int, error)
	ListRecentTransactions(ctx context.Context, limit int) ([]core.TransactionVersion, error)
	ListAllocations(ctx context.Context, month core.Date, limit int) ([]core.AllocationVersion, error)

	LatestReconciliation(ctx context.Context, accountID string) (core.Reconciliation, error)
	ReconciliationWorksheet(ctx context.Context, accountID string, since time.Time) ([]core.TransactionVersion, error)
	StatusBalances(ctx context.Context, accountID string) (cleared, pending int64, err error)

	RebuildCaches(ctx context.Context) (storage.RebuildStats, error)
}

var _ Store = (*storage.SQLiteRepository)(nil)

// EventPublisher announces committed mutations.
//
//go:generate mockgen -destination=publisher_mock_test.go -package=services github.com/blogle/dojo-sub001/internal/services EventPublisher
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

var _ EventPublisher = (*amqp.Client)(nil)

// LedgerConfig holds tunables of the ledger service
type LedgerConfig struct {
	// MaxFutureDays bounds how far ahead a transaction may be dated (default: 5).
	// A negative value disables the check.
	MaxFutureDays int

	// ReadCacheSize is the number of derived reads kept in memory (default: 256).
	// Zero disables the cache.
	ReadCacheSize int

	// ReadCacheTTL bounds how long a cached read may be served (default: 30s)
	ReadCacheTTL time.Duration

	// Clock stamps versions and resolves today (default: wall clock)
	Clock core.Clock
}

// DefaultLedgerConfig returns sensible defaults
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		MaxFutureDays: 5,
		ReadCacheSize: 256,
		ReadCacheTTL:  30 * time.Second,
		Clock:         core.SystemClock{},
	}
}

// Ledger is the mutation orchestrator. Every use case runs in a single
// database transaction covering the version store and all derived caches;
// events are published and read caches purged only after the commit.
type Ledger struct {
	store     Store
	publisher EventPublisher
	config    LedgerConfig
	clock     core.Clock
	reads     *readCache
	logger    *log.Logger
}

func NewLedger(store Store, publisher EventPublisher, config LedgerConfig) *Ledger {
	if config.Clock == nil {
		config.Clock = core.SystemClock{}
	}
	return &Ledger{
		store:     store,
		publisher: publisher,
		config:    config,
		clock:     config.Clock,
		reads:     newReadCache(config.ReadCacheSize, config.ReadCacheTTL, config.Clock.Now),
		logger:    log.FromContext(context.Background()).WithComponent(log.ComponentLedger),
	}
}

// WithLogger replaces the ledger's logger.
func (l *Ledger) WithLogger(logger *log.Logger) *Ledger {
	l.logger = logger.WithComponent(log.ComponentLedger)
	return l
}

// Store exposes the persistence the ledger writes through.
func (l *Ledger) Store() Store {
	return l.store
}

func (l *Ledger) today() core.Date {
	return core.Today(l.clock)
}

// nextValidFrom returns the start of a successor version. It never precedes
// the prior version's start, so a chain's timestamps only move forward.
func (l *Ledger) nextValidFrom(prior time.Time) time.Time {
	now := l.clock.Now()
	if now.Before(prior) {
		return prior
	}
	return now
}

// commit runs fn in one transaction, then purges derived reads and
// publishes event when it succeeds.
func (l *Ledger) commit(ctx context.Context, event *amqp.LedgerEvent, fn func(storage.Tx) error) error {
	if err := l.store.InTx(ctx, fn); err != nil {
		return err
	}
	l.reads.purge()
	l.publish(ctx, event)
	return nil
}

// publish never fails the mutation; the commit already happened.
func (l *Ledger) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if event == nil {
		return
	}
	if l.publisher == nil {
		l.logger.DebugContext(ctx, "Event publisher not configured, skipping ledger event",
			log.FieldEventType, event.Type)
		return
	}
	if err := l.publisher.PublishLedgerEvent(ctx, event); err != nil {
		l.logger.LogFailure(ctx, "Failed to publish ledger event", log.OpPublish, err,
			log.NewFields().
				With(log.FieldEventType, string(event.Type)).
				WithConcept(event.ConceptID, event.VersionID))
	}
}

// loadPostingRefs loads the account and category a transaction posts to and
// rejects inactive ones.
func loadPostingRefs(ctx context.Context, tx storage.Tx, accountID, categoryID string) (core.Account, core.Category, error) {
	account, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, core.Category{}, err
	}
	if !account.IsActive {
		return core.Account{}, core.Category{}, fmt.Errorf("%w: %s", core.ErrAccountInactive, accountID)
	}
	category, err := tx.GetCategory(ctx, categoryID)
	if err != nil {
		return core.Account{}, core.Category{}, err
	}
	if !category.IsActive {
		return core.Account{}, core.Category{}, fmt.Errorf("%w: %s", core.ErrCategoryInactive, categoryID)
	}
	return account, category, nil
}

// loadPostedRefs loads the account and category of an existing version for
// its reversal. Inactive references are fine here: history must stay
// reversible after an account or category is retired.
func loadPostedRefs(ctx context.Context, tx storage.Tx, accountID, categoryID string) (core.Account, core.Category, error) {
	account, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, core.Category{}, err
	}
	category, err := tx.GetCategory(ctx, categoryID)
	if err != nil {
		return core.Account{}, core.Category{}, err
	}
	return account, category, nil
}
