package model

import "time"

type Deadline struct {
	ID                  int64     `json:"id"`
	NoteID              int64     `json:"note_id"`
	UserID              int64     `json:"user_id"`
	DeadlineAt          time.Time `json:"deadline_at"`
	NotificationEnabled bool      `json:"notification_enabled"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DeadlineNotification records that a reminder of a given gradation was
// delivered for a deadline.
type DeadlineNotification struct {
	ID               int64     `json:"id"`
	DeadlineID       int64     `json:"deadline_id"`
	NotificationType string    `json:"notification_type"`
	SentAt           time.Time `json:"sent_at"`
}
