package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/blogle/dojo-sub001/internal/amqp"
	"github.com/blogle/dojo-sub001/internal/core"
	"github.com/blogle/dojo-sub001/internal/storage"
)

// recordEvents makes publisher accept any event and collect it.
func recordEvents(publisher *MockEventPublisher) *[]*amqp.LedgerEvent {
	var events []*amqp.LedgerEvent
	publisher.EXPECT().
		PublishLedgerEvent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event *amqp.LedgerEvent) error {
			events = append(events, event)
			return nil
		}).
		AnyTimes()
	return &events
}

func TestEventsDescribeCommittedMutations(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := NewMockEventPublisher(ctrl)
	events := recordEvents(publisher)
	f := newFixture(t, publisher)

	f.creditCard("visa")
	f.category("groceries")
	*events = nil

	purchase := f.spend("visa", "groceries", core.NewDate(2025, 3, 4), -2500)
	require.Len(t, *events, 1)
	e := (*events)[0]
	assert.Equal(t, amqp.EventTransactionCreated, e.Type)
	assert.Equal(t, purchase.ConceptID.String(), e.ConceptID)
	assert.Equal(t, purchase.VersionID.String(), e.VersionID)
	assert.Equal(t, []string{"visa"}, e.AccountIDs)
	assert.ElementsMatch(t, []string{"groceries", core.PaymentCategoryID("visa")}, e.CategoryIDs)
	assert.Equal(t, []string{"2025-03-01"}, e.Months)

	_, err := f.ledger.EditTransaction(f.ctx, purchase.ConceptID, core.TransactionPayload{
		TransactionDate: core.NewDate(2025, 2, 20), AccountID: "visa", CategoryID: "groceries", AmountMinor: -2500,
	})
	require.NoError(t, err)
	require.Len(t, *events, 2)
	edited := (*events)[1]
	assert.Equal(t, amqp.EventTransactionEdited, edited.Type)
	assert.ElementsMatch(t, []string{"2025-02-01", "2025-03-01"}, edited.Months)
	assert.Empty(t, edited.AccountIDs, "moving the date alone leaves the balance unchanged")

	require.NoError(t, f.ledger.DeleteTransaction(f.ctx, purchase.ConceptID))
	require.Len(t, *events, 3)
	assert.Equal(t, amqp.EventTransactionDeleted, (*events)[2].Type)
}

func TestTransferEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := NewMockEventPublisher(ctrl)
	events := recordEvents(publisher)
	f := newFixture(t, publisher)
	f.checking("checking", 1000)
	f.checking("savings", 0)
	*events = nil

	view, err := f.ledger.CreateTransfer(f.ctx, transferPayload("checking", "savings", core.CategoryAccountTransfer, 400))
	require.NoError(t, err)
	require.NoError(t, f.ledger.DeleteTransaction(f.ctx, view.Source.ConceptID))

	require.Len(t, *events, 2)
	for i, want := range []amqp.EventType{amqp.EventTransferCreated, amqp.EventTransferDeleted} {
		e := (*events)[i]
		assert.Equal(t, want, e.Type)
		assert.Equal(t, view.TransferID.String(), e.TransferID)
		assert.ElementsMatch(t, []string{"checking", "savings"}, e.AccountIDs)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := NewMockEventPublisher(ctrl)
	publisher.EXPECT().
		PublishLedgerEvent(gomock.Any(), gomock.Any()).
		Return(errors.New("broker unreachable")).
		AnyTimes()
	f := newFixture(t, publisher)

	f.checking("A", 5000)
	f.category("groceries")
	f.spend("A", "groceries", core.NewDate(2025, 3, 2), -700)

	assert.Equal(t, int64(4300), f.balance("A"))
	f.assertSynced()
}

func TestRejectedMutationPublishesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := NewMockEventPublisher(ctrl)
	events := recordEvents(publisher)
	f := newFixture(t, publisher)
	f.checking("A", 5000)
	f.category("groceries")
	before := len(*events)

	_, err := f.ledger.CreateTransaction(f.ctx, core.TransactionPayload{
		TransactionDate: core.NewDate(2025, 3, 2), AccountID: "A", CategoryID: "nope", AmountMinor: -1,
	})
	require.Error(t, err)
	_, err = f.ledger.CreateAllocation(f.ctx, core.AllocationPayload{ToCategoryID: "groceries", AmountMinor: 5001, AllocationDate: march})
	require.Error(t, err)

	assert.Len(t, *events, before)
}

func TestAuditProcessorRepairsDrift(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := NewMockEventPublisher(ctrl)
	events := recordEvents(publisher)
	f := newFixture(t, publisher)
	f.checking("A", 5000)
	f.category("groceries")
	f.spend("A", "groceries", core.NewDate(2025, 3, 2), -700)

	// Knock the cached balance out of line with the transaction log.
	require.NoError(t, f.repo.InTx(f.ctx, func(tx storage.Tx) error {
		return tx.ApplyAccountDelta(f.ctx, "A", 99)
	}))

	config := DefaultAuditProcessorConfig()
	config.Repair = true
	processor := NewAuditProcessor(NewAuditor(f.ledger), config)

	report, err := processor.RunOnce(f.ctx)
	require.NoError(t, err)
	require.Len(t, report.Accounts, 1)
	assert.Equal(t, "A", report.Accounts[0].AccountID)
	assert.Equal(t, int64(4399), report.Accounts[0].Cached)
	assert.Equal(t, int64(4300), report.Accounts[0].Computed)

	last := (*events)[len(*events)-1]
	assert.Equal(t, amqp.EventCachesRebuilt, last.Type)
	assert.Equal(t, int64(4300), f.balance("A"))

	_, runs, lastErr := processor.LastReport()
	assert.Equal(t, 1, runs)
	assert.NoError(t, lastErr)
	f.assertSynced()
}

func TestEventsFlagReadyToAssignMoves(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := NewMockEventPublisher(ctrl)
	events := recordEvents(publisher)
	f := newFixture(t, publisher)

	f.checking("A", 5000)
	require.NotEmpty(t, *events)
	opening := (*events)[len(*events)-1]
	assert.True(t, opening.ReadyToAssign, "an on-budget opening balance funds the pool")
	assert.Contains(t, opening.Months, "2025-03-01")

	f.account("brokerage", core.Asset, core.ClassInvestment, core.Tracking, 9000)
	assert.False(t, (*events)[len(*events)-1].ReadyToAssign, "tracking accounts stay off budget")

	f.creditCard("visa")
	f.category("groceries")
	*events = nil

	f.allocate("", "groceries", march, 1000)
	require.Len(t, *events, 1)
	assert.True(t, (*events)[0].ReadyToAssign)

	f.spend("visa", "groceries", core.NewDate(2025, 3, 4), -1000)
	require.Len(t, *events, 2)
	assert.False(t, (*events)[1].ReadyToAssign, "a purchase moves envelopes, not the pool")
}
