package services

import (
	"context"

	"github.com/blogle/dojo-sub001/internal/core"
	"github.com/blogle/dojo-sub001/internal/storage"
)

// autoFund mirrors credit-card spending into the card's payment envelope.
// A purchase of -amount on a credit account raises the payment category's
// inflow by amount; a refund lowers it. Transfers and system categories
// never reach here.
func autoFund(e *effects, account core.Account, category core.Category, date core.Date, amount int64) {
	if !account.IsCredit() || category.IsSystem {
		return
	}
	e.inflow[keyOf(core.PaymentCategoryID(account.ID), date)] -= amount
}

// ensurePaymentEnvelope creates the payment category of a credit account if
// it is missing, so inflow deltas always have a row to land on.
func ensurePaymentEnvelope(ctx context.Context, tx storage.Tx, account core.Account) error {
	if !account.IsCredit() {
		return nil
	}
	_, err := tx.EnsurePaymentCategory(ctx, account)
	return err
}
