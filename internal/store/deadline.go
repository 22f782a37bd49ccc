package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/unitask/internal/model"
)

// ErrAlreadySent is returned by RecordSent when the marker already exists.
var ErrAlreadySent = errors.New("deadline notification already recorded")

type DeadlineStore struct {
	db *sql.DB
}

func NewDeadlineStore(db *sql.DB) *DeadlineStore {
	return &DeadlineStore{db: db}
}

func scanDeadline(scanner interface{ Scan(...any) error }) (*model.Deadline, error) {
	var d model.Deadline
	var enabled int

	err := scanner.Scan(&d.ID, &d.NoteID, &d.UserID, &d.DeadlineAt, &enabled, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.NotificationEnabled = enabled != 0
	d.DeadlineAt = d.DeadlineAt.UTC()
	return &d, nil
}

const deadlineCols = `id, note_id, user_id, deadline_at, notification_enabled, created_at, updated_at`

func (s *DeadlineStore) Create(noteID, userID int64, deadlineAt time.Time, notificationsEnabled bool) (*model.Deadline, error) {
	result, err := s.db.Exec(
		`INSERT INTO deadlines (note_id, user_id, deadline_at, notification_enabled) VALUES (?, ?, ?, ?)`,
		noteID, userID, deadlineAt.UTC(), boolInt(notificationsEnabled),
	)
	if err != nil {
		return nil, fmt.Errorf("insert deadline: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *DeadlineStore) GetByID(id int64) (*model.Deadline, error) {
	row := s.db.QueryRow(`SELECT `+deadlineCols+` FROM deadlines WHERE id = ?`, id)
	d, err := scanDeadline(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deadline: %w", err)
	}
	return d, nil
}

func (s *DeadlineStore) GetByNote(noteID int64) (*model.Deadline, error) {
	row := s.db.QueryRow(`SELECT `+deadlineCols+` FROM deadlines WHERE note_id = ?`, noteID)
	d, err := scanDeadline(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deadline by note: %w", err)
	}
	return d, nil
}

// UpdateDue moves a deadline. Markers recorded for the old due time are
// cleared so the new schedule is reminded from scratch.
func (s *DeadlineStore) UpdateDue(id int64, deadlineAt time.Time) (*model.Deadline, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE deadlines SET deadline_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		deadlineAt.UTC(), id,
	); err != nil {
		return nil, fmt.Errorf("update deadline: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM deadline_notifications WHERE deadline_id = ?`, id); err != nil {
		return nil, fmt.Errorf("clear deadline notifications: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func (s *DeadlineStore) SetNotificationsEnabled(id int64, enabled bool) (*model.Deadline, error) {
	_, err := s.db.Exec(
		`UPDATE deadlines SET notification_enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolInt(enabled), id,
	)
	if err != nil {
		return nil, fmt.Errorf("set notifications enabled: %w", err)
	}
	return s.GetByID(id)
}

func (s *DeadlineStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM deadlines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete deadline: %w", err)
	}
	return nil
}

// ListActive returns deadlines with notifications enabled that are due after now,
// soonest first.
func (s *DeadlineStore) ListActive(now time.Time) ([]model.Deadline, error) {
	rows, err := s.db.Query(
		`SELECT ` + deadlineCols + ` FROM deadlines
		 WHERE notification_enabled = 1 AND deadline_at > ?
		 ORDER BY deadline_at`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list active deadlines: %w", err)
	}
	defer rows.Close()

	var deadlines []model.Deadline
	for rows.Next() {
		d, err := scanDeadline(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deadline: %w", err)
		}
		deadlines = append(deadlines, *d)
	}
	return deadlines, rows.Err()
}

// SentTypes returns the gradation tags already delivered for a deadline.
func (s *DeadlineStore) SentTypes(deadlineID int64) (map[string]bool, error) {
	rows, err := s.db.Query(
		`SELECT notification_type FROM deadline_notifications WHERE deadline_id = ?`,
		deadlineID,
	)
	if err != nil {
		return nil, fmt.Errorf("list deadline notifications: %w", err)
	}
	defer rows.Close()

	sent := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan notification type: %w", err)
		}
		sent[t] = true
	}
	return sent, rows.Err()
}

// RecordSent stores the marker for (deadline, tag) inside a transaction,
// checking for an existing row first. ErrAlreadySent reports a duplicate.
func (s *DeadlineStore) RecordSent(deadlineID int64, notifType string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM deadline_notifications WHERE deadline_id = ? AND notification_type = ?`,
		deadlineID, notifType,
	).Scan(&count); err != nil {
		return fmt.Errorf("check deadline notification: %w", err)
	}
	if count > 0 {
		return ErrAlreadySent
	}

	if _, err := tx.Exec(
		`INSERT INTO deadline_notifications (deadline_id, notification_type) VALUES (?, ?)`,
		deadlineID, notifType,
	); err != nil {
		return fmt.Errorf("insert deadline notification: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListSent returns the markers of a deadline in the order they were recorded.
func (s *DeadlineStore) ListSent(deadlineID int64) ([]model.DeadlineNotification, error) {
	rows, err := s.db.Query(
		`SELECT id, deadline_id, notification_type, sent_at FROM deadline_notifications
		 WHERE deadline_id = ? ORDER BY id`,
		deadlineID,
	)
	if err != nil {
		return nil, fmt.Errorf("list deadline notifications: %w", err)
	}
	defer rows.Close()

	var out []model.DeadlineNotification
	for rows.Next() {
		var n model.DeadlineNotification
		if err := rows.Scan(&n.ID, &n.DeadlineID, &n.NotificationType, &n.SentAt); err != nil {
			return nil, fmt.Errorf("scan deadline notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
