package invoicing

import (
	"testing"
	"time"

	"github.com/ecopower/ecopower/internal/model"
)

func TestNumber(t *testing.T) {
	issuedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

	if got := Number(issuedAt, 1); got != "FACT-202603-0001" {
		t.Errorf("number = %q, want FACT-202603-0001", got)
	}
	if got := Number(issuedAt, 42); got != "FACT-202603-0042" {
		t.Errorf("number = %q, want FACT-202603-0042", got)
	}

	december := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	if got := Number(december, 7); got != "FACT-202512-0007" {
		t.Errorf("number = %q, want FACT-202512-0007", got)
	}
}

func TestMonthBounds(t *testing.T) {
	t1 := time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC)
	start, end := MonthBounds(t1)

	wantStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", start, wantStart)
	}
	if !end.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", end, wantEnd)
	}

	// december rolls into the next year
	dec := time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)
	_, end = MonthBounds(dec)
	if end.Year() != 2026 || end.Month() != time.January {
		t.Errorf("december end = %v, want january 2026", end)
	}
}

func TestDueDate(t *testing.T) {
	issuedAt := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	want := time.Date(2026, 4, 14, 10, 0, 0, 0, time.UTC)
	if got := DueDate(issuedAt); !got.Equal(want) {
		t.Errorf("due date = %v, want %v", got, want)
	}
}

func TestDaysOverdue(t *testing.T) {
	dueAt := time.Date(2026, 4, 14, 10, 0, 0, 0, time.UTC)
	inv := &model.Invoice{Status: model.InvoiceUnpaid, DueAt: dueAt}

	if got := DaysOverdue(inv, dueAt.Add(-time.Hour)); got != 0 {
		t.Errorf("before due: days = %d, want 0", got)
	}
	// a partial day counts as one
	if got := DaysOverdue(inv, dueAt.Add(2*time.Hour)); got != 1 {
		t.Errorf("2h late: days = %d, want 1", got)
	}
	if got := DaysOverdue(inv, dueAt.Add(48*time.Hour)); got != 2 {
		t.Errorf("48h late: days = %d, want 2", got)
	}
	if got := DaysOverdue(inv, dueAt.Add(49*time.Hour)); got != 3 {
		t.Errorf("49h late: days = %d, want 3", got)
	}

	paid := &model.Invoice{Status: model.InvoicePaid, DueAt: dueAt}
	if got := DaysOverdue(paid, dueAt.Add(72*time.Hour)); got != 0 {
		t.Errorf("paid: days = %d, want 0", got)
	}
}

func TestIsOverdue(t *testing.T) {
	dueAt := time.Date(2026, 4, 14, 10, 0, 0, 0, time.UTC)

	unpaid := &model.Invoice{Status: model.InvoiceUnpaid, DueAt: dueAt}
	if IsOverdue(unpaid, dueAt.Add(-time.Minute)) {
		t.Error("not yet due should not be overdue")
	}
	if !IsOverdue(unpaid, dueAt.Add(time.Minute)) {
		t.Error("past due unpaid should be overdue")
	}

	paid := &model.Invoice{Status: model.InvoicePaid, DueAt: dueAt}
	if IsOverdue(paid, dueAt.Add(time.Hour)) {
		t.Error("paid invoice is never overdue")
	}
}
