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

// CreateAllocation budgets p.AmountMinor into p.ToCategoryID, drawing on
// p.FromCategoryID or on Ready to Assign when it is empty.
func (l *Ledger) CreateAllocation(ctx context.Context, p core.AllocationPayload) (view core.AllocationView, err error) {
	ctx, span := startSpan(ctx, "Ledger.CreateAllocation", monthAttr(p.AllocationDate.MonthStart().String()))
	defer func() { endSpan(span, err) }()

	fields := allocationFields(p)
	defer func() {
		if err != nil {
			l.logger.LogFailure(ctx, "Allocation rejected", log.OpAllocate, err, fields)
		}
	}()

	if err := p.Validate(); err != nil {
		return core.AllocationView{}, err
	}

	now := l.clock.Now()
	v := newAllocationVersion(uuid.New(), p, now)

	event := amqp.NewLedgerEvent(amqp.EventAllocationCreated, v.ConceptID.String())
	event.VersionID = v.VersionID.String()

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		if err := checkAllocationCategories(ctx, tx, p); err != nil {
			return err
		}
		if err := checkAllocationFunds(ctx, tx, p, nil); err != nil {
			return err
		}
		if err := tx.CreateAllocationVersion(ctx, v); err != nil {
			return err
		}

		fx := newEffects()
		fx.postAllocation(v, 1)
		if err := fx.apply(ctx, tx); err != nil {
			return err
		}
		fx.touch(event)

		rta, err := tx.ReadyToAssign(ctx, v.AllocationDate.MonthStart())
		if err != nil {
			return err
		}
		view = core.NewAllocationView(v, rta)
		return nil
	})
	if err != nil {
		return core.AllocationView{}, err
	}

	l.logger.LogMutation(ctx, "Allocation created", log.OpAllocate,
		fields.WithConcept(v.ConceptID.String(), v.VersionID.String()))
	return view, nil
}

// EditAllocation supersedes the active version of conceptID with p. The
// funds check sees the budget as it would be with the prior version
// reversed.
func (l *Ledger) EditAllocation(ctx context.Context, conceptID uuid.UUID, p core.AllocationPayload) (view core.AllocationView, err error) {
	ctx, span := startSpan(ctx, "Ledger.EditAllocation", conceptAttr(conceptID))
	defer func() { endSpan(span, err) }()

	fields := allocationFields(p).WithConcept(conceptID.String(), "")
	defer func() {
		if err != nil {
			l.logger.LogFailure(ctx, "Allocation edit rejected", log.OpEdit, err, fields)
		}
	}()

	if err := p.Validate(); err != nil {
		return core.AllocationView{}, err
	}

	event := amqp.NewLedgerEvent(amqp.EventAllocationEdited, conceptID.String())

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		prior, err := tx.ActiveAllocation(ctx, conceptID)
		if err != nil {
			return err
		}
		if err := checkAllocationCategories(ctx, tx, p); err != nil {
			return err
		}
		if err := checkAllocationFunds(ctx, tx, p, &prior); err != nil {
			return err
		}

		next := newAllocationVersion(conceptID, p, l.nextValidFrom(prior.ValidFrom))
		if err := tx.CloseThenInsertAllocation(ctx, prior.VersionID, next); err != nil {
			return err
		}

		fx := newEffects()
		fx.postAllocation(prior, -1)
		fx.postAllocation(next, 1)
		if err := fx.apply(ctx, tx); err != nil {
			return err
		}
		fx.touch(event)
		event.VersionID = next.VersionID.String()

		rta, err := tx.ReadyToAssign(ctx, next.AllocationDate.MonthStart())
		if err != nil {
			return err
		}
		view = core.NewAllocationView(next, rta)
		return nil
	})
	if err != nil {
		return core.AllocationView{}, err
	}

	l.logger.LogMutation(ctx, "Allocation edited", log.OpEdit,
		fields.WithConcept(conceptID.String(), view.VersionID.String()))
	return view, nil
}

// DeleteAllocation closes the active version of conceptID and returns its
// money to the source. It is never refused for lack of funds, so the
// destination may go negative.
func (l *Ledger) DeleteAllocation(ctx context.Context, conceptID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "Ledger.DeleteAllocation", conceptAttr(conceptID))
	defer func() { endSpan(span, err) }()

	fields := log.NewFields().WithConcept(conceptID.String(), "")
	event := amqp.NewLedgerEvent(amqp.EventAllocationDeleted, conceptID.String())

	err = l.commit(ctx, event, func(tx storage.Tx) error {
		prior, err := tx.ActiveAllocation(ctx, conceptID)
		if err != nil {
			return err
		}
		if err := tx.CloseAllocation(ctx, conceptID, l.nextValidFrom(prior.ValidFrom)); err != nil {
			return err
		}

		fx := newEffects()
		fx.postAllocation(prior, -1)
		if err := fx.apply(ctx, tx); err != nil {
			return err
		}
		fx.touch(event)
		return nil
	})
	if err != nil {
		l.logger.LogFailure(ctx, "Allocation delete failed", log.OpDelete, err, fields)
		return err
	}

	l.logger.LogMutation(ctx, "Allocation deleted", log.OpDelete, fields)
	return nil
}

func newAllocationVersion(conceptID uuid.UUID, p core.AllocationPayload, validFrom time.Time) core.AllocationVersion {
	return core.AllocationVersion{
		ConceptID:      conceptID,
		VersionID:      uuid.New(),
		AllocationDate: p.AllocationDate,
		FromCategoryID: p.FromCategoryID,
		ToCategoryID:   p.ToCategoryID,
		AmountMinor:    p.AmountMinor,
		Memo:           p.Memo,
		ValidFrom:      validFrom,
		RecordedAt:     validFrom,
	}
}

func allocationFields(p core.AllocationPayload) log.LogFields {
	fields := log.NewFields().WithPosting("", p.ToCategoryID, p.AmountMinor, p.AllocationDate.MonthStart().String())
	if p.FromCategoryID != "" {
		fields = fields.With("from_category_id", p.FromCategoryID)
	}
	return fields
}

// checkAllocationCategories requires both ends of an allocation to be
// active envelope categories.
func checkAllocationCategories(ctx context.Context, tx storage.Tx, p core.AllocationPayload) error {
	ids := []string{p.ToCategoryID}
	if p.FromCategoryID != "" {
		ids = append(ids, p.FromCategoryID)
	}
	for _, id := range ids {
		category, err := tx.GetCategory(ctx, id)
		if err != nil {
			return err
		}
		if !category.IsActive {
			return fmt.Errorf("%w: %s", core.ErrCategoryInactive, id)
		}
		if !category.TracksEnvelope() {
			return fmt.Errorf("%w: %s", core.ErrSystemCategory, id)
		}
	}
	return nil
}

// checkAllocationFunds verifies the source of p can cover it in the
// allocation month. When prior is set, the money prior already moved is
// credited back first, since the edit reverses it.
func checkAllocationFunds(ctx context.Context, tx storage.Tx, p core.AllocationPayload, prior *core.AllocationVersion) error {
	month := p.AllocationDate.MonthStart()

	var credit int64
	if prior != nil && !prior.AllocationDate.MonthStart().After(month.Time) {
		switch {
		case p.FromCategoryID == "" && prior.FromReadyToAssign():
			credit += prior.AmountMinor
		case p.FromCategoryID != "":
			if prior.ToCategoryID == p.FromCategoryID {
				credit -= prior.AmountMinor
			}
			if prior.FromCategoryID == p.FromCategoryID {
				credit += prior.AmountMinor
			}
		}
	}

	if p.FromCategoryID == "" {
		rta, err := tx.ReadyToAssign(ctx, month)
		if err != nil {
			return err
		}
		if rta+credit < p.AmountMinor {
			return fmt.Errorf("%w: %d available, %d requested", core.ErrReadyToAssignInsufficient, rta+credit, p.AmountMinor)
		}
		return nil
	}

	state, err := tx.CategoryMonthlyState(ctx, p.FromCategoryID, month)
	if err != nil {
		return err
	}
	if state.AvailableMinor+credit < p.AmountMinor {
		return fmt.Errorf("%w: %s has %d available, %d requested",
			core.ErrInsufficientFunds, p.FromCategoryID, state.AvailableMinor+credit, p.AmountMinor)
	}
	return nil
}
