package store

import (
	"database/sql"
	"fmt"

	"github.com/ecopower/ecopower/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var ownerID, houseID, subscriptionID sql.NullInt64
	var refreshToken sql.NullString
	var firstLogin int
	err := scanner.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.PasswordHash,
		&u.Role, &ownerID, &houseID, &subscriptionID, &firstLogin, &refreshToken,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.OwnerID = int64Ptr(ownerID)
	u.HouseID = int64Ptr(houseID)
	u.SubscriptionID = int64Ptr(subscriptionID)
	u.RefreshToken = stringPtr(refreshToken)
	u.FirstLogin = firstLogin != 0
	return &u, nil
}

const userCols = `id, first_name, last_name, email, phone, password_hash, role, owner_id, house_id, subscription_id, first_login, refresh_token, created_at, updated_at`

// CreateOwner inserts a property-owner account.
func (s *UserStore) CreateOwner(firstName, lastName, email, phone, passwordHash string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (first_name, last_name, email, phone, password_hash, role) VALUES (?, ?, ?, ?, ?, ?)`,
		firstName, lastName, email, phone, passwordHash, model.RoleOwner,
	)
	if err != nil {
		return nil, fmt.Errorf("insert owner: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

// CreateResident inserts a resident account owned by the given owner. The
// first_login flag forces a password change on the resident's first sign-in.
func (s *UserStore) CreateResident(ownerID int64, firstName, lastName, email, phone, passwordHash string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (first_name, last_name, email, phone, password_hash, role, owner_id, first_login)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		firstName, lastName, email, phone, passwordHash, model.RoleResident, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert resident: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetResident returns the resident only if it is owned by ownerID.
func (s *UserStore) GetResident(ownerID, residentID int64) (*model.User, error) {
	row := s.db.QueryRow(
		`SELECT `+userCols+` FROM users WHERE id = ? AND owner_id = ? AND role = ?`,
		residentID, ownerID, model.RoleResident,
	)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get resident: %w", err)
	}
	return u, nil
}

func (s *UserStore) ListResidents(ownerID int64) ([]model.User, error) {
	rows, err := s.db.Query(
		`SELECT `+userCols+` FROM users WHERE owner_id = ? AND role = ? ORDER BY last_name ASC, first_name ASC`,
		ownerID, model.RoleResident,
	)
	if err != nil {
		return nil, fmt.Errorf("list residents: %w", err)
	}
	defer rows.Close()

	var residents []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resident: %w", err)
		}
		residents = append(residents, *u)
	}
	return residents, rows.Err()
}

// CountResidents returns how many residents the owner currently has. The
// quota gate compares this against the subscription ceiling.
func (s *UserStore) CountResidents(ownerID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM users WHERE owner_id = ? AND role = ?`,
		ownerID, model.RoleResident,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count residents: %w", err)
	}
	return count, nil
}

func (s *UserStore) Update(id int64, firstName, lastName, email, phone string) (*model.User, error) {
	_, err := s.db.Exec(
		`UPDATE users SET first_name = ?, last_name = ?, email = ?, phone = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		firstName, lastName, email, phone, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return s.GetByID(id)
}

// SetPassword replaces the password hash and clears the first-login flag.
func (s *UserStore) SetPassword(id int64, passwordHash string) error {
	_, err := s.db.Exec(
		`UPDATE users SET password_hash = ?, first_login = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

func (s *UserStore) SetRefreshToken(id int64, token *string) error {
	_, err := s.db.Exec(
		`UPDATE users SET refresh_token = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		nullString(token), id,
	)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return nil
}

func (s *UserStore) GetByRefreshToken(token string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE refresh_token = ?`, token)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by refresh token: %w", err)
	}
	return u, nil
}

// SetHouse points the resident at a house, or detaches it when houseID is
// nil. The resident's house reference is the single source of truth for
// membership; house member sets are derived from it.
func (s *UserStore) SetHouse(residentID int64, houseID *int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET house_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		nullInt64(houseID), residentID,
	)
	if err != nil {
		return fmt.Errorf("set house: %w", err)
	}
	return nil
}

func (s *UserStore) SetSubscriptionID(userID int64, subscriptionID *int64) error {
	_, err := s.db.Exec(
		`UPDATE users SET subscription_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		nullInt64(subscriptionID), userID,
	)
	if err != nil {
		return fmt.Errorf("set subscription id: %w", err)
	}
	return nil
}

// Delete removes a user row. Resident deletion must detach the house
// reference first; DeleteResident handles the full sequence.
func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// DeleteResident detaches the resident from its house and removes the row.
func (s *UserStore) DeleteResident(residentID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE users SET house_id = NULL WHERE id = ?`, residentID); err != nil {
		return fmt.Errorf("detach resident: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM users WHERE id = ?`, residentID); err != nil {
		return fmt.Errorf("delete resident: %w", err)
	}
	return tx.Commit()
}

func (s *UserStore) EmailExists(email string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM users WHERE email = ? AND id != ?`,
		email, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return count > 0, nil
}
