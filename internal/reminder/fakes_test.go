package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dukerupert/unitask/internal/maxbot"
	"github.com/dukerupert/unitask/internal/model"
	"github.com/dukerupert/unitask/internal/websocket"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

const todoContent = `{"type":"todo","items":[{"text":"draft","done":false}]}`

type fakeDeadlines struct {
	deadlines []model.Deadline
	sent      map[int64]map[string]bool
	listErr   error
}

func (f *fakeDeadlines) ListActive(time.Time) ([]model.Deadline, error) {
	return f.deadlines, f.listErr
}

func (f *fakeDeadlines) SentTypes(id int64) (map[string]bool, error) {
	if f.sent[id] == nil {
		return map[string]bool{}, nil
	}
	return f.sent[id], nil
}

type fakeNotes struct {
	notes map[int64]*model.Note
	errs  map[int64]error
}

func (f *fakeNotes) GetByID(id int64) (*model.Note, error) {
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return f.notes[id], nil
}

type fakeUsers map[int64]*model.User

func (f fakeUsers) GetByID(id int64) (*model.User, error) {
	return f[id], nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	reminders []Reminder
	err       error
}

func (n *recordingNotifier) Notify(_ context.Context, r Reminder) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.reminders = append(n.reminders, r)
	return nil
}

type sendCall struct {
	recipient string
	text      string
}

type fakeSender struct {
	mu       sync.Mutex
	calls    []sendCall
	msg      *maxbot.SentMessage
	err      error
	recentID string
	lookups  int
}

func (s *fakeSender) Send(_ context.Context, recipientID, text string, _ ...maxbot.SendOption) (*maxbot.SentMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sendCall{recipientID, text})
	if s.err != nil {
		return nil, s.err
	}
	if s.msg != nil {
		m := *s.msg
		return &m, nil
	}
	return &maxbot.SentMessage{ID: "mid.1", RecipientID: recipientID}, nil
}

func (s *fakeSender) FindRecent(context.Context, string, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if s.recentID == "" {
		return "", errors.New("history unavailable")
	}
	return s.recentID, nil
}

type trackCall struct {
	messageID, recipientID, text string
}

type fakeTracker struct {
	calls []trackCall
}

func (f *fakeTracker) Track(messageID, recipientID, text string) {
	f.calls = append(f.calls, trackCall{messageID, recipientID, text})
}

type fakeHub struct {
	msgs []websocket.Message
}

func (f *fakeHub) Broadcast(msg websocket.Message) {
	f.msgs = append(f.msgs, msg)
}
