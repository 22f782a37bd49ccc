package model

import (
	"encoding/json"
	"time"
)

// NoteKindTodo marks note content that holds a checklist.
const NoteKindTodo = "todo"

type Note struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTodo reports whether the note content is a todo list: a JSON object
// with type "todo" and an items array. Malformed content is not a todo.
func (n *Note) IsTodo() bool {
	if n == nil || n.Content == "" {
		return false
	}
	var c struct {
		Type  string          `json:"type"`
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal([]byte(n.Content), &c); err != nil {
		return false
	}
	if c.Type != NoteKindTodo {
		return false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(c.Items, &items); err != nil {
		return false
	}
	return items != nil
}
