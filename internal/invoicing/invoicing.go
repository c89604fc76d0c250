package invoicing

import (
	"fmt"
	"time"

	"github.com/ecopower/ecopower/internal/model"
)

// PaymentTermDays is the window between issue and due date.
const PaymentTermDays = 30

// Number formats an invoice number for the given issue time and
// within-month sequence: FACT-YYYYMM-0001. The sequence restarts at 1
// each calendar month.
func Number(issuedAt time.Time, seq int) string {
	return fmt.Sprintf("FACT-%04d%02d-%04d", issuedAt.Year(), int(issuedAt.Month()), seq)
}

// DueDate returns the payment deadline for an invoice issued at the
// given time.
func DueDate(issuedAt time.Time) time.Time {
	return issuedAt.Add(PaymentTermDays * 24 * time.Hour)
}

// MonthBounds returns the [start, end) interval of the calendar month
// containing t, in t's location. Used to count invoices issued in a month.
func MonthBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// DaysOverdue returns how many whole-or-partial days the invoice is past
// due: 0 when paid or not yet due, otherwise ceil(now - dueAt in days).
func DaysOverdue(inv *model.Invoice, now time.Time) int {
	if inv.Status == model.InvoicePaid || !inv.DueAt.Before(now) {
		return 0
	}
	late := now.Sub(inv.DueAt)
	days := int(late / (24 * time.Hour))
	if late%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// DaysRemaining returns how many whole-or-partial days are left before the
// due date: 0 when the invoice is paid or already past due.
func DaysRemaining(inv *model.Invoice, now time.Time) int {
	if inv.Status == model.InvoicePaid || inv.DueAt.Before(now) {
		return 0
	}
	left := inv.DueAt.Sub(now)
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// IsOverdue reports whether an unpaid invoice has passed its due date.
func IsOverdue(inv *model.Invoice, now time.Time) bool {
	return inv.Status != model.InvoicePaid && inv.DueAt.Before(now)
}
