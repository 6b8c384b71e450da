package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// EventType names the committed ledger mutation an event reports.
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionEdited  EventType = "transaction.edited"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventTransferCreated    EventType = "transfer.created"
	EventTransferDeleted    EventType = "transfer.deleted"
	EventAllocationCreated  EventType = "allocation.created"
	EventAllocationEdited   EventType = "allocation.edited"
	EventAllocationDeleted  EventType = "allocation.deleted"
	EventAccountCreated     EventType = "account.created"
	EventAccountUpdated     EventType = "account.updated"
	EventAccountDeactivated EventType = "account.deactivated"
	EventAccountReconciled  EventType = "account.reconciled"
	EventCategoryChanged    EventType = "category.changed"
	EventCachesRebuilt      EventType = "caches.rebuilt"
)

// LedgerEvent is published after a mutation commits. It carries only
// identifiers; consumers read the current figures from the database.
type LedgerEvent struct {
	Type          EventType `json:"type"`
	ConceptID     string    `json:"concept_id,omitempty"`
	VersionID     string    `json:"version_id,omitempty"`
	TransferID    string    `json:"transfer_id,omitempty"`
	AccountIDs    []string  `json:"account_ids,omitempty"`
	CategoryIDs   []string  `json:"category_ids,omitempty"`
	Months        []string  `json:"months,omitempty"`
	ReadyToAssign bool      `json:"ready_to_assign,omitempty"` // moved from one of Months onward
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event of the given type stamped with the current time.
func NewLedgerEvent(eventType EventType, conceptID string) *LedgerEvent {
	return &LedgerEvent{
		Type:      eventType,
		ConceptID: conceptID,
		Timestamp: time.Now().UTC(),
	}
}

// TouchAccount records an affected account once.
func (e *LedgerEvent) TouchAccount(accountID string) *LedgerEvent {
	e.AccountIDs = appendUnique(e.AccountIDs, accountID)
	return e
}

// TouchCategory records an affected category and month once each.
func (e *LedgerEvent) TouchCategory(categoryID, month string) *LedgerEvent {
	e.CategoryIDs = appendUnique(e.CategoryIDs, categoryID)
	if month != "" {
		e.Months = appendUnique(e.Months, month)
	}
	return e
}

// TouchReadyToAssign records that Ready to Assign moved from month onward.
func (e *LedgerEvent) TouchReadyToAssign(month string) *LedgerEvent {
	e.ReadyToAssign = true
	e.Months = appendUnique(e.Months, month)
	return e
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects one without a type.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Type == "" {
		return nil, errors.New("ledger event has no type")
	}
	return &e, nil
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
