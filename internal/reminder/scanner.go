package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/unitask/internal/model"
)

// DeadlineSource lists deadlines to check and the markers already recorded.
type DeadlineSource interface {
	ListActive(now time.Time) ([]model.Deadline, error)
	SentTypes(deadlineID int64) (map[string]bool, error)
}

type NoteSource interface {
	GetByID(id int64) (*model.Note, error)
}

type UserSource interface {
	GetByID(id int64) (*model.User, error)
}

// Notifier delivers a selected reminder. A nil error means the reminder was
// sent and recorded.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// Reminder is a gradation chosen for a deadline during a scan.
type Reminder struct {
	Deadline         model.Deadline
	Note             model.Note
	User             model.User
	Gradation        Gradation
	MinutesRemaining int
}

// Result summarises one scan pass.
type Result struct {
	Checked int
	Sent    int
	Skipped int
	Failed  int
}

// Scanner walks active deadlines and hands due gradations to a Notifier.
type Scanner struct {
	deadlines DeadlineSource
	notes     NoteSource
	users     UserSource
	notifier  Notifier
	now       func() time.Time
	logger    *slog.Logger
}

type ScannerOption func(*Scanner)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) {
		s.now = now
	}
}

func NewScanner(deadlines DeadlineSource, notes NoteSource, users UserSource, notifier Notifier, logger *slog.Logger, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		deadlines: deadlines,
		notes:     notes,
		users:     users,
		notifier:  notifier,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MinutesRemaining returns the whole minutes from now until due, rounded down.
func MinutesRemaining(due, now time.Time) int {
	return int(math.Floor(due.Sub(now).Seconds() / 60))
}

// Scan runs one full pass. Problems with a single deadline are logged and
// counted; only a failure to list deadlines is returned.
func (s *Scanner) Scan(ctx context.Context) (Result, error) {
	var res Result
	started := time.Now()
	now := s.now().UTC()
	logger := s.logger.With("run_id", uuid.NewString())

	deadlines, err := s.deadlines.ListActive(now)
	if err != nil {
		return res, fmt.Errorf("list active deadlines: %w", err)
	}
	logger.Debug("checking deadlines", "count", len(deadlines))

	for _, d := range deadlines {
		if ctx.Err() != nil {
			logger.Info("scan interrupted", "checked", res.Checked)
			break
		}
		res.Checked++

		r, ok, err := s.evaluate(d, now)
		if err != nil {
			res.Failed++
			logger.Error("evaluate deadline", "deadline_id", d.ID, "error", err)
			continue
		}
		if !ok {
			res.Skipped++
			continue
		}

		if err := s.notifier.Notify(ctx, r); err != nil {
			res.Failed++
			logger.Error("send deadline reminder",
				"deadline_id", d.ID,
				"gradation", r.Gradation.Tag,
				"error", err,
			)
			continue
		}
		res.Sent++
	}

	logger.Info("deadline scan finished",
		"deadlines", len(deadlines),
		"sent", res.Sent,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"duration", time.Since(started),
	)
	return res, nil
}

// evaluate decides whether a deadline is due for a reminder right now.
func (s *Scanner) evaluate(d model.Deadline, now time.Time) (Reminder, bool, error) {
	note, err := s.notes.GetByID(d.NoteID)
	if err != nil {
		return Reminder{}, false, fmt.Errorf("get note %d: %w", d.NoteID, err)
	}
	if note == nil {
		s.logger.Debug("deadline note missing", "deadline_id", d.ID, "note_id", d.NoteID)
		return Reminder{}, false, nil
	}
	if !note.IsTodo() {
		s.logger.Debug("deadline note is not a todo", "deadline_id", d.ID, "note_id", d.NoteID)
		return Reminder{}, false, nil
	}

	user, err := s.users.GetByID(d.UserID)
	if err != nil {
		return Reminder{}, false, fmt.Errorf("get user %d: %w", d.UserID, err)
	}
	if user == nil {
		s.logger.Debug("deadline owner missing", "deadline_id", d.ID, "user_id", d.UserID)
		return Reminder{}, false, nil
	}

	remaining := MinutesRemaining(d.DeadlineAt, now)
	if remaining < 0 {
		return Reminder{}, false, nil
	}

	sent, err := s.deadlines.SentTypes(d.ID)
	if err != nil {
		return Reminder{}, false, fmt.Errorf("load sent markers: %w", err)
	}

	g, ok := Select(remaining, sent)
	if !ok {
		return Reminder{}, false, nil
	}
	return Reminder{
		Deadline:         d,
		Note:             *note,
		User:             *user,
		Gradation:        g,
		MinutesRemaining: remaining,
	}, true, nil
}
