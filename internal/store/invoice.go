package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/invoicing"
	"github.com/ecopower/ecopower/internal/model"
)

type InvoiceStore struct {
	db *sql.DB
}

func NewInvoiceStore(db *sql.DB) *InvoiceStore {
	return &InvoiceStore{db: db}
}

func scanInvoice(scanner interface{ Scan(...any) error }) (*model.Invoice, error) {
	var inv model.Invoice
	var paidAt sql.NullTime
	err := scanner.Scan(
		&inv.ID, &inv.ResidentID, &inv.HouseID, &inv.ConsumptionID, &inv.Number,
		&inv.Amount, &inv.KWh, &inv.TariffKWh, &inv.Status,
		&inv.IssuedAt, &inv.DueAt, &paidAt, &inv.Comment,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.PaidAt = timePtr(paidAt)
	return &inv, nil
}

const invoiceCols = `id, resident_id, house_id, consumption_id, number, amount, kwh, tariff_kwh, status, issued_at, due_at, paid_at, comment, created_at, updated_at`

// CreateForConsumption issues an invoice for a recorded reading and marks
// the reading billed, atomically. The invoice number is sequential within
// the issue month; a concurrent issuer can claim the same sequence, so the
// insert retries with a fresh number on a uniqueness collision.
func (s *InvoiceStore) CreateForConsumption(ctx context.Context, c *model.Consumption, issuedAt time.Time, comment string) (*model.Invoice, error) {
	if c.Status == model.ConsumptionBilled {
		return nil, apperror.Conflict(fmt.Sprintf("consumption %d is already billed", c.ID))
	}

	var created *model.Invoice
	backoff := retry.WithMaxRetries(5, retry.NewConstant(10*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		inv, err := s.createOnce(c, issuedAt, comment)
		if err != nil {
			// only number collisions can succeed on a retry
			if uniqueViolationOn(err, "invoices.number") {
				return retry.RetryableError(err)
			}
			return err
		}
		created = inv
		return nil
	})
	if err != nil {
		switch {
		case uniqueViolationOn(err, "invoices.consumption_id"):
			return nil, apperror.Conflict(fmt.Sprintf("consumption %d is already billed", c.ID))
		case IsUniqueViolation(err):
			return nil, apperror.Conflict(fmt.Sprintf("invoice number collision persisted for consumption %d", c.ID))
		}
		return nil, err
	}
	return created, nil
}

func (s *InvoiceStore) createOnce(c *model.Consumption, issuedAt time.Time, comment string) (*model.Invoice, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	from, to := invoicing.MonthBounds(issuedAt)
	var issuedThisMonth int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM invoices WHERE issued_at >= ? AND issued_at < ?`,
		from, to,
	).Scan(&issuedThisMonth)
	if err != nil {
		return nil, fmt.Errorf("count month invoices: %w", err)
	}

	number := invoicing.Number(issuedAt, issuedThisMonth+1)
	dueAt := invoicing.DueDate(issuedAt)

	// The effective rate is snapshot on the invoice; the reading itself
	// only stores the computed amount.
	var tariffKWh float64
	if c.KWh > 0 {
		tariffKWh = c.Amount / c.KWh
	}

	result, err := tx.Exec(
		`INSERT INTO invoices (resident_id, house_id, consumption_id, number, amount, kwh, tariff_kwh, issued_at, due_at, comment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ResidentID, c.HouseID, c.ID, number, c.Amount, c.KWh, tariffKWh, issuedAt, dueAt, comment,
	)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE consumptions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		model.ConsumptionBilled, c.ID,
	); err != nil {
		return nil, fmt.Errorf("mark consumption billed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetByID(id)
}

func (s *InvoiceStore) GetByID(id int64) (*model.Invoice, error) {
	row := s.db.QueryRow(`SELECT `+invoiceCols+` FROM invoices WHERE id = ?`, id)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (s *InvoiceStore) GetByNumber(number string) (*model.Invoice, error) {
	row := s.db.QueryRow(`SELECT `+invoiceCols+` FROM invoices WHERE number = ?`, number)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice by number: %w", err)
	}
	return inv, nil
}

func (s *InvoiceStore) ListByResident(residentID int64) ([]model.Invoice, error) {
	rows, err := s.db.Query(
		`SELECT `+invoiceCols+` FROM invoices WHERE resident_id = ? ORDER BY issued_at DESC`,
		residentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invoices by resident: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (s *InvoiceStore) ListByHouse(houseID int64) ([]model.Invoice, error) {
	rows, err := s.db.Query(
		`SELECT `+invoiceCols+` FROM invoices WHERE house_id = ? ORDER BY issued_at DESC`,
		houseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invoices by house: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (s *InvoiceStore) ListByOwner(ownerID int64) ([]model.Invoice, error) {
	rows, err := s.db.Query(
		`SELECT i.id, i.resident_id, i.house_id, i.consumption_id, i.number, i.amount, i.kwh, i.tariff_kwh, i.status, i.issued_at, i.due_at, i.paid_at, i.comment, i.created_at, i.updated_at
		 FROM invoices i
		 JOIN houses h ON h.id = i.house_id
		 WHERE h.owner_id = ?
		 ORDER BY i.issued_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list invoices by owner: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (s *InvoiceStore) ListByStatus(ownerID int64, status string) ([]model.Invoice, error) {
	rows, err := s.db.Query(
		`SELECT i.id, i.resident_id, i.house_id, i.consumption_id, i.number, i.amount, i.kwh, i.tariff_kwh, i.status, i.issued_at, i.due_at, i.paid_at, i.comment, i.created_at, i.updated_at
		 FROM invoices i
		 JOIN houses h ON h.id = i.house_id
		 WHERE h.owner_id = ? AND i.status = ?
		 ORDER BY i.due_at ASC`,
		ownerID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("list invoices by status: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func collectInvoices(rows *sql.Rows) ([]model.Invoice, error) {
	var invoices []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// MarkPaid records the settlement time once. A paid invoice stays paid.
func (s *InvoiceStore) MarkPaid(id int64, paidAt time.Time) (*model.Invoice, error) {
	existing, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperror.NotFound(fmt.Sprintf("invoice %d", id))
	}
	if existing.Status == model.InvoicePaid {
		return existing, nil
	}
	_, err = s.db.Exec(
		`UPDATE invoices SET status = ?, paid_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status != ?`,
		model.InvoicePaid, paidAt, id, model.InvoicePaid,
	)
	if err != nil {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}
	return s.GetByID(id)
}

// MarkOverdueAllPast flips every unpaid invoice whose due date has passed
// to overdue and returns how many rows changed. Running it twice is a no-op.
func (s *InvoiceStore) MarkOverdueAllPast(now time.Time) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE invoices SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE status = ? AND due_at < ?`,
		model.InvoiceOverdue, model.InvoiceUnpaid, now,
	)
	if err != nil {
		return 0, fmt.Errorf("mark overdue invoices: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListOverdue returns overdue invoices whose due date is before the cutoff,
// for reminder dispatch.
func (s *InvoiceStore) ListOverdue(dueBefore time.Time) ([]model.Invoice, error) {
	rows, err := s.db.Query(
		`SELECT `+invoiceCols+` FROM invoices
		 WHERE status = ? AND due_at < ?
		 ORDER BY due_at ASC`,
		model.InvoiceOverdue, dueBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("list overdue invoices: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (s *InvoiceStore) GetByConsumption(consumptionID int64) (*model.Invoice, error) {
	row := s.db.QueryRow(`SELECT `+invoiceCols+` FROM invoices WHERE consumption_id = ?`, consumptionID)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice by consumption: %w", err)
	}
	return inv, nil
}
