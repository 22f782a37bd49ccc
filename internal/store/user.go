package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/unitask/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(&u.ID, &u.Username, &u.UUID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, username, uuid, created_at, updated_at`

func (s *UserStore) Create(username, uuid string) (*model.User, error) {
	result, err := s.db.Exec(
		`INSERT INTO users (username, uuid) VALUES (?, ?)`,
		username, uuid,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id int64) (*model.User, error) {
	return s.getOne(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
}

func (s *UserStore) GetByUUID(uuid string) (*model.User, error) {
	return s.getOne(`SELECT `+userCols+` FROM users WHERE uuid = ?`, uuid)
}

func (s *UserStore) GetByUsername(username string) (*model.User, error) {
	return s.getOne(`SELECT `+userCols+` FROM users WHERE username = ?`, username)
}

func (s *UserStore) getOne(query string, arg any) (*model.User, error) {
	u, err := scanUser(s.db.QueryRow(query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpsertFromBot creates the user identified by a chat platform id, or renames
// an existing one. When the wanted username belongs to somebody else the
// platform id is appended to keep it unique. The bool result reports whether
// a row was created or changed.
func (s *UserStore) UpsertFromBot(uuid, username string) (*model.User, bool, error) {
	existing, err := s.GetByUUID(uuid)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		if existing.Username == username {
			return existing, false, nil
		}
		username, err = s.freeUsername(username, uuid, existing.ID)
		if err != nil {
			return nil, false, err
		}
		if username == existing.Username {
			return existing, false, nil
		}
		if _, err := s.db.Exec(
			`UPDATE users SET username = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			username, existing.ID,
		); err != nil {
			return nil, false, fmt.Errorf("update user: %w", err)
		}
		u, err := s.GetByID(existing.ID)
		return u, true, err
	}

	username, err = s.freeUsername(username, uuid, 0)
	if err != nil {
		return nil, false, err
	}
	u, err := s.Create(username, uuid)
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (s *UserStore) freeUsername(username, uuid string, selfID int64) (string, error) {
	holder, err := s.GetByUsername(username)
	if err != nil {
		return "", err
	}
	if holder == nil || holder.ID == selfID {
		return username, nil
	}
	return fmt.Sprintf("%s_%s", username, uuid), nil
}

func (s *UserStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
