package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/unitask/internal/model"
)

type NoteStore struct {
	db *sql.DB
}

func NewNoteStore(db *sql.DB) *NoteStore {
	return &NoteStore{db: db}
}

func scanNote(scanner interface{ Scan(...any) error }) (*model.Note, error) {
	var n model.Note
	var content sql.NullString

	err := scanner.Scan(&n.ID, &n.UserID, &n.Title, &content, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.Content = content.String
	return &n, nil
}

const noteCols = `id, user_id, title, content, created_at, updated_at`

func (s *NoteStore) Create(userID int64, title, content string) (*model.Note, error) {
	result, err := s.db.Exec(
		`INSERT INTO notes (user_id, title, content) VALUES (?, ?, ?)`,
		userID, title, content,
	)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *NoteStore) GetByID(id int64) (*model.Note, error) {
	row := s.db.QueryRow(`SELECT `+noteCols+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

func (s *NoteStore) UpdateContent(id int64, title, content string) (*model.Note, error) {
	_, err := s.db.Exec(
		`UPDATE notes SET title = ?, content = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		title, content, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes the note together with its deadline and sent markers.
func (s *NoteStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}
