package store

import (
	"database/sql"
	"fmt"

	"github.com/ecopower/ecopower/internal/apperror"
	"github.com/ecopower/ecopower/internal/model"
)

type HouseStore struct {
	db *sql.DB
}

func NewHouseStore(db *sql.DB) *HouseStore {
	return &HouseStore{db: db}
}

func scanHouse(scanner interface{ Scan(...any) error }) (*model.House, error) {
	var h model.House
	err := scanner.Scan(
		&h.ID, &h.OwnerID, &h.Name, &h.Street, &h.City, &h.PostalCode,
		&h.Country, &h.Description, &h.TariffKWh, &h.Status, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

const houseCols = `id, owner_id, name, street, city, postal_code, country, description, tariff_kwh, status, created_at, updated_at`

func (s *HouseStore) Create(ownerID int64, name, street, city, postalCode, country, description string, tariffKWh float64) (*model.House, error) {
	result, err := s.db.Exec(
		`INSERT INTO houses (owner_id, name, street, city, postal_code, country, description, tariff_kwh)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ownerID, name, street, city, postalCode, country, description, tariffKWh,
	)
	if err != nil {
		return nil, fmt.Errorf("insert house: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *HouseStore) GetByID(id int64) (*model.House, error) {
	row := s.db.QueryRow(`SELECT `+houseCols+` FROM houses WHERE id = ?`, id)
	h, err := scanHouse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get house: %w", err)
	}
	return h, nil
}

// GetOwned returns the house only if it belongs to ownerID.
func (s *HouseStore) GetOwned(ownerID, houseID int64) (*model.House, error) {
	row := s.db.QueryRow(`SELECT `+houseCols+` FROM houses WHERE id = ? AND owner_id = ?`, houseID, ownerID)
	h, err := scanHouse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get owned house: %w", err)
	}
	return h, nil
}

func (s *HouseStore) ListByOwner(ownerID int64) ([]model.House, error) {
	rows, err := s.db.Query(`SELECT `+houseCols+` FROM houses WHERE owner_id = ? ORDER BY name ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list houses: %w", err)
	}
	defer rows.Close()

	var houses []model.House
	for rows.Next() {
		h, err := scanHouse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan house: %w", err)
		}
		houses = append(houses, *h)
	}
	return houses, rows.Err()
}

func (s *HouseStore) Update(id int64, name, street, city, postalCode, country, description string, tariffKWh float64, status string) (*model.House, error) {
	_, err := s.db.Exec(
		`UPDATE houses SET name = ?, street = ?, city = ?, postal_code = ?, country = ?, description = ?, tariff_kwh = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		name, street, city, postalCode, country, description, tariffKWh, status, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update house: %w", err)
	}
	return s.GetByID(id)
}

// SetTariff updates only the per-kWh tariff used for future readings.
func (s *HouseStore) SetTariff(id int64, tariffKWh float64) (*model.House, error) {
	_, err := s.db.Exec(
		`UPDATE houses SET tariff_kwh = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		tariffKWh, id,
	)
	if err != nil {
		return nil, fmt.Errorf("set tariff: %w", err)
	}
	return s.GetByID(id)
}

// ListMembers returns the residents currently attached to the house. The
// member set is derived from each resident's house reference.
func (s *HouseStore) ListMembers(houseID int64) ([]model.User, error) {
	rows, err := s.db.Query(
		`SELECT `+userCols+` FROM users WHERE house_id = ? ORDER BY last_name ASC, first_name ASC`,
		houseID,
	)
	if err != nil {
		return nil, fmt.Errorf("list house members: %w", err)
	}
	defer rows.Close()

	var members []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *u)
	}
	return members, rows.Err()
}

func (s *HouseStore) CountMembers(houseID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE house_id = ?`, houseID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count house members: %w", err)
	}
	return count, nil
}

// Delete removes a house. Deletion is refused while residents are still
// attached so meter history never points at a missing house.
func (s *HouseStore) Delete(id int64) error {
	count, err := s.CountMembers(id)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperror.Conflict(fmt.Sprintf("house %d still has %d resident(s) attached", id, count))
	}
	_, err = s.db.Exec(`DELETE FROM houses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete house: %w", err)
	}
	return nil
}
