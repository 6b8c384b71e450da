package core

import (
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateMonthArithmetic(t *testing.T) {
	cases := []struct {
		in        Date
		start     string
		nextMonth string
	}{
		{NewDate(2025, 1, 31), "2025-01-01", "2025-02-01"},
		{NewDate(2025, 12, 15), "2025-12-01", "2026-01-01"},
		{NewDate(2024, 2, 29), "2024-02-01", "2024-03-01"},
	}
	for _, tc := range cases {
		if got := tc.in.MonthStart().String(); got != tc.start {
			t.Errorf("MonthStart(%s) = %s, want %s", tc.in, got, tc.start)
		}
		if got := tc.in.NextMonth().String(); got != tc.nextMonth {
			t.Errorf("NextMonth(%s) = %s, want %s", tc.in, got, tc.nextMonth)
		}
	}
}

func TestDateOfTruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	got := DateOf(time.Date(2025, 3, 1, 2, 0, 0, 0, loc))
	if got.String() != "2025-02-28" {
		t.Fatalf("DateOf = %s, want 2025-02-28", got)
	}
}

func TestAccountAndCategoryPredicates(t *testing.T) {
	card := Account{ID: "visa", Type: Liability, Class: ClassCredit, Role: OnBudget}
	loan := Account{ID: "car", Type: Liability, Class: ClassLoan, Role: Tracking}
	if !card.IsCredit() || loan.IsCredit() {
		t.Fatalf("IsCredit mismatch: card=%v loan=%v", card.IsCredit(), loan.IsCredit())
	}
	if !card.IsOnBudget() || loan.IsOnBudget() {
		t.Fatalf("IsOnBudget mismatch")
	}

	groceries := Category{ID: "groceries"}
	payment := Category{ID: PaymentCategoryID("visa"), IsSystem: true, PaymentAccountID: "visa"}
	transfer := Category{ID: CategoryAccountTransfer, IsSystem: true}
	income := Category{ID: CategoryAvailableToBudget, IsSystem: true}

	if !groceries.TracksEnvelope() || !payment.TracksEnvelope() || transfer.TracksEnvelope() {
		t.Fatalf("TracksEnvelope mismatch")
	}
	if !income.FundsReadyToAssign() || groceries.FundsReadyToAssign() || payment.FundsReadyToAssign() {
		t.Fatalf("FundsReadyToAssign mismatch")
	}
	if payment.ID != "payment_visa" {
		t.Fatalf("PaymentCategoryID = %s", payment.ID)
	}
}

func TestFixedClockAdvances(t *testing.T) {
	start := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	c := NewFixedClock(start)
	first, second := c.Now(), c.Now()
	if !first.Equal(start) || !second.After(first) {
		t.Fatalf("clock did not advance: %v %v", first, second)
	}
	if Today(c).String() != "2025-01-10" {
		t.Fatalf("Today = %s", Today(c))
	}
}
