package model

import "time"

// User is an account linked to a chat platform identity. UUID holds the
// platform user id that outbound messages are addressed to.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	UUID      string    `json:"uuid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
