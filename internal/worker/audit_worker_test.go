package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogle/dojo-sub001/internal/amqp"
	"github.com/blogle/dojo-sub001/internal/services"
	"github.com/blogle/dojo-sub001/internal/storage"
)

type fakeAuditor struct {
	drift   map[string]int64
	failOn  string
	audited []string
	repairs int
}

func (f *fakeAuditor) AuditAccount(_ context.Context, accountID string) (*services.AccountDrift, error) {
	if accountID == f.failOn {
		return nil, errors.New("database is locked")
	}
	f.audited = append(f.audited, accountID)
	if off, ok := f.drift[accountID]; ok {
		return &services.AccountDrift{AccountID: accountID, Cached: off, Computed: 0}, nil
	}
	return nil, nil
}

func (f *fakeAuditor) Repair(context.Context) (storage.RebuildStats, error) {
	f.repairs++
	return storage.RebuildStats{Accounts: 2}, nil
}

func event(eventType amqp.EventType, accounts ...string) *amqp.LedgerEvent {
	e := amqp.NewLedgerEvent(eventType, "")
	for _, a := range accounts {
		e.TouchAccount(a)
	}
	return e
}

func TestHandleLedgerEvent(t *testing.T) {
	tests := []struct {
		name        string
		auditor     *fakeAuditor
		repair      bool
		event       *amqp.LedgerEvent
		wantAudited []string
		wantRepairs int
		wantErr     bool
	}{
		{
			name:        "clean accounts",
			auditor:     &fakeAuditor{},
			repair:      true,
			event:       event(amqp.EventTransactionCreated, "checking", "visa"),
			wantAudited: []string{"checking", "visa"},
		},
		{
			name:        "drift is repaired",
			auditor:     &fakeAuditor{drift: map[string]int64{"visa": 10}},
			repair:      true,
			event:       event(amqp.EventTransferCreated, "checking", "visa"),
			wantAudited: []string{"checking", "visa"},
			wantRepairs: 1,
		},
		{
			name:        "drift is only reported without repair",
			auditor:     &fakeAuditor{drift: map[string]int64{"visa": 10}},
			event:       event(amqp.EventTransactionEdited, "visa"),
			wantAudited: []string{"visa"},
		},
		{
			name:    "rebuild events are ignored",
			auditor: &fakeAuditor{drift: map[string]int64{"visa": 10}},
			repair:  true,
			event:   event(amqp.EventCachesRebuilt, "visa"),
		},
		{
			name:    "audit failure is returned for redelivery",
			auditor: &fakeAuditor{failOn: "checking"},
			event:   event(amqp.EventTransactionDeleted, "checking"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewAuditWorker(tt.auditor, tt.repair)
			err := w.HandleLedgerEvent(context.Background(), tt.event)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAudited, tt.auditor.audited)
			assert.Equal(t, tt.wantRepairs, tt.auditor.repairs)
		})
	}
}
