package store

import (
	"database/sql"
	"fmt"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/model"
)

type ConsumptionStore struct {
	db *sql.DB
}

func NewConsumptionStore(db *sql.DB) *ConsumptionStore {
	return &ConsumptionStore{db: db}
}

func scanConsumption(scanner interface{ Scan(...any) error }) (*model.Consumption, error) {
	var c model.Consumption
	err := scanner.Scan(
		&c.ID, &c.ResidentID, &c.HouseID, &c.Month, &c.Year,
		&c.PreviousIndex, &c.CurrentIndex, &c.KWh, &c.Amount,
		&c.ReadingDate, &c.Comment, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const consumptionCols = `id, resident_id, house_id, month, year, previous_index, current_index, kwh, amount, reading_date, comment, status, created_at, updated_at`

// Create records a meter reading for a resident and billing period. One
// reading per resident, house and period is enforced at the schema level;
// a duplicate maps to a conflict.
func (s *ConsumptionStore) Create(residentID, houseID int64, month, year int, previousIndex, currentIndex, kwh, amount float64, comment string) (*model.Consumption, error) {
	result, err := s.db.Exec(
		`INSERT INTO consumptions (resident_id, house_id, month, year, previous_index, current_index, kwh, amount, comment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		residentID, houseID, month, year, previousIndex, currentIndex, kwh, amount, comment,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, apperror.Conflict(fmt.Sprintf("a reading already exists for resident %d in %04d-%02d", residentID, year, month))
		}
		return nil, fmt.Errorf("insert consumption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ConsumptionStore) GetByID(id int64) (*model.Consumption, error) {
	row := s.db.QueryRow(`SELECT `+consumptionCols+` FROM consumptions WHERE id = ?`, id)
	c, err := scanConsumption(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get consumption: %w", err)
	}
	return c, nil
}

// Latest returns the most recent reading for a resident in a house, used to
// seed the previous index of the next reading.
func (s *ConsumptionStore) Latest(residentID, houseID int64) (*model.Consumption, error) {
	row := s.db.QueryRow(
		`SELECT `+consumptionCols+` FROM consumptions
		 WHERE resident_id = ? AND house_id = ?
		 ORDER BY year DESC, month DESC, created_at DESC LIMIT 1`,
		residentID, houseID,
	)
	c, err := scanConsumption(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest consumption: %w", err)
	}
	return c, nil
}

// ListPriors returns up to limit readings before the given one, newest
// first. The anomaly check averages these.
func (s *ConsumptionStore) ListPriors(residentID, excludeID int64, limit int) ([]model.Consumption, error) {
	rows, err := s.db.Query(
		`SELECT `+consumptionCols+` FROM consumptions
		 WHERE resident_id = ? AND id != ?
		 ORDER BY year DESC, month DESC, created_at DESC LIMIT ?`,
		residentID, excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list prior consumptions: %w", err)
	}
	defer rows.Close()
	return collectConsumptions(rows)
}

func (s *ConsumptionStore) ListByResident(residentID int64) ([]model.Consumption, error) {
	rows, err := s.db.Query(
		`SELECT `+consumptionCols+` FROM consumptions
		 WHERE resident_id = ? ORDER BY year DESC, month DESC`,
		residentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list consumptions by resident: %w", err)
	}
	defer rows.Close()
	return collectConsumptions(rows)
}

func (s *ConsumptionStore) ListByHouse(houseID int64) ([]model.Consumption, error) {
	rows, err := s.db.Query(
		`SELECT `+consumptionCols+` FROM consumptions
		 WHERE house_id = ? ORDER BY year DESC, month DESC`,
		houseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list consumptions by house: %w", err)
	}
	defer rows.Close()
	return collectConsumptions(rows)
}

// ListByOwner returns readings across all houses belonging to the owner.
func (s *ConsumptionStore) ListByOwner(ownerID int64) ([]model.Consumption, error) {
	rows, err := s.db.Query(
		`SELECT `+prefixedConsumptionCols+` FROM consumptions c
		 JOIN houses h ON h.id = c.house_id
		 WHERE h.owner_id = ?
		 ORDER BY c.year DESC, c.month DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list consumptions by owner: %w", err)
	}
	defer rows.Close()
	return collectConsumptions(rows)
}

const prefixedConsumptionCols = `c.id, c.resident_id, c.house_id, c.month, c.year, c.previous_index, c.current_index, c.kwh, c.amount, c.reading_date, c.comment, c.status, c.created_at, c.updated_at`

// ListByPeriod returns readings for a given month and year across the
// owner's houses.
func (s *ConsumptionStore) ListByPeriod(ownerID int64, month, year int) ([]model.Consumption, error) {
	rows, err := s.db.Query(
		`SELECT `+prefixedConsumptionCols+` FROM consumptions c
		 JOIN houses h ON h.id = c.house_id
		 WHERE h.owner_id = ? AND c.month = ? AND c.year = ?
		 ORDER BY c.created_at ASC`,
		ownerID, month, year,
	)
	if err != nil {
		return nil, fmt.Errorf("list consumptions by period: %w", err)
	}
	defer rows.Close()
	return collectConsumptions(rows)
}

func collectConsumptions(rows *sql.Rows) ([]model.Consumption, error) {
	var consumptions []model.Consumption
	for rows.Next() {
		c, err := scanConsumption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consumption: %w", err)
		}
		consumptions = append(consumptions, *c)
	}
	return consumptions, rows.Err()
}

// Update corrects an unbilled reading. Billed readings back an issued
// invoice and are immutable.
func (s *ConsumptionStore) Update(id int64, previousIndex, currentIndex, kwh, amount float64, comment string) (*model.Consumption, error) {
	existing, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperror.NotFound(fmt.Sprintf("consumption %d", id))
	}
	if existing.Status == model.ConsumptionBilled {
		return nil, apperror.Conflict(fmt.Sprintf("consumption %d is billed and cannot be modified", id))
	}
	_, err = s.db.Exec(
		`UPDATE consumptions SET previous_index = ?, current_index = ?, kwh = ?, amount = ?, comment = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		previousIndex, currentIndex, kwh, amount, comment, id, model.ConsumptionRecorded,
	)
	if err != nil {
		return nil, fmt.Errorf("update consumption: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes an unbilled reading. Billed readings are undeletable.
func (s *ConsumptionStore) Delete(id int64) error {
	existing, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperror.NotFound(fmt.Sprintf("consumption %d", id))
	}
	if existing.Status == model.ConsumptionBilled {
		return apperror.Conflict(fmt.Sprintf("consumption %d is billed and cannot be deleted", id))
	}
	_, err = s.db.Exec(`DELETE FROM consumptions WHERE id = ? AND status = ?`, id, model.ConsumptionRecorded)
	if err != nil {
		return fmt.Errorf("delete consumption: %w", err)
	}
	return nil
}
