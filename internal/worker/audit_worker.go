package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blogle/dojo-sub001/internal/amqp"
	"github.com/blogle/dojo-sub001/internal/services"
	"github.com/blogle/dojo-sub001/internal/storage"
)

// Auditor is the subset of services.Auditor the worker drives.
type Auditor interface {
	AuditAccount(ctx context.Context, accountID string) (*services.AccountDrift, error)
	Repair(ctx context.Context) (storage.RebuildStats, error)
}

var _ Auditor = (*services.Auditor)(nil)

// AuditWorker re-checks the balance caches of the accounts a ledger event
// touched. Month states are left to the periodic full audit.
type AuditWorker struct {
	auditor Auditor
	repair  bool
}

func NewAuditWorker(auditor Auditor, repair bool) *AuditWorker {
	return &AuditWorker{
		auditor: auditor,
		repair:  repair,
	}
}

// HandleLedgerEvent processes a single ledger event from AMQP
func (w *AuditWorker) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	if event.Type == amqp.EventCachesRebuilt {
		// Our own repairs announce themselves; auditing them again is a loop.
		return nil
	}

	slog.DebugContext(ctx, "Processing ledger event",
		"event_type", event.Type,
		"concept_id", event.ConceptID,
		"accounts", len(event.AccountIDs))

	var drifted []services.AccountDrift
	for _, accountID := range event.AccountIDs {
		drift, err := w.auditor.AuditAccount(ctx, accountID)
		if err != nil {
			return fmt.Errorf("audit account %s: %w", accountID, err)
		}
		if drift != nil {
			drifted = append(drifted, *drift)
		}
	}
	if len(drifted) == 0 {
		return nil
	}

	for _, d := range drifted {
		slog.WarnContext(ctx, "Account balance drift detected",
			"account_id", d.AccountID,
			"cached_minor", d.Cached,
			"computed_minor", d.Computed,
			"event_type", event.Type)
	}

	if !w.repair {
		return nil
	}
	if _, err := w.auditor.Repair(ctx); err != nil {
		return fmt.Errorf("repair after drift: %w", err)
	}
	return nil
}
