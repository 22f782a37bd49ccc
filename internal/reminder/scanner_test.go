package reminder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/unitask/internal/database"
	"github.com/dukerupert/unitask/internal/logging"
	"github.com/dukerupert/unitask/internal/model"
	"github.com/dukerupert/unitask/internal/store"
)

func TestMinutesRemaining(t *testing.T) {
	tests := []struct {
		due  time.Duration
		want int
	}{
		{180 * time.Minute, 180},
		{180*time.Minute + 59*time.Second, 180},
		{30 * time.Second, 0},
		{-30 * time.Second, -1},
		{-2 * time.Minute, -2},
	}
	for _, tt := range tests {
		if got := MinutesRemaining(testNow.Add(tt.due), testNow); got != tt.want {
			t.Errorf("MinutesRemaining(%v) = %d, want %d", tt.due, got, tt.want)
		}
	}
}

type scanFixture struct {
	deadlines *fakeDeadlines
	notes     *fakeNotes
	users     fakeUsers
	notifier  *recordingNotifier
	scanner   *Scanner
}

func newScanFixture() *scanFixture {
	f := &scanFixture{
		deadlines: &fakeDeadlines{sent: map[int64]map[string]bool{}},
		notes:     &fakeNotes{notes: map[int64]*model.Note{}, errs: map[int64]error{}},
		users:     fakeUsers{1: {ID: 1, Username: "alice", UUID: "1001"}},
		notifier:  &recordingNotifier{},
	}
	f.scanner = NewScanner(f.deadlines, f.notes, f.users, f.notifier, logging.Discard(), WithClock(fixedClock))
	return f
}

// add registers a todo note and a deadline due in the given duration.
func (f *scanFixture) add(id int64, due time.Duration) {
	f.notes.notes[id] = &model.Note{ID: id, UserID: 1, Title: "Note", Content: todoContent}
	f.deadlines.deadlines = append(f.deadlines.deadlines, model.Deadline{
		ID: id, NoteID: id, UserID: 1, DeadlineAt: testNow.Add(due), NotificationEnabled: true,
	})
}

func TestScanSelectsGradation(t *testing.T) {
	f := newScanFixture()
	f.add(1, 180*time.Minute)

	res, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 1, Sent: 1}, res)

	require.Len(t, f.notifier.reminders, 1)
	r := f.notifier.reminders[0]
	assert.Equal(t, "3h", r.Gradation.Tag)
	assert.Equal(t, 180, r.MinutesRemaining)
	assert.Equal(t, "alice", r.User.Username)
}

func TestScanAtMostOnePerDeadline(t *testing.T) {
	f := newScanFixture()
	// 45 minutes sits in both the 1h and the 30m window.
	f.add(1, 45*time.Minute)

	_, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, f.notifier.reminders, 1)
	assert.Equal(t, "1h", f.notifier.reminders[0].Gradation.Tag)
}

func TestScanRespectsMarkers(t *testing.T) {
	f := newScanFixture()
	f.add(1, 180*time.Minute)
	f.deadlines.sent[1] = map[string]bool{"3h": true}

	res, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, f.notifier.reminders)
}

func TestScanSkips(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *scanFixture)
	}{
		{"note missing", func(f *scanFixture) {
			delete(f.notes.notes, 1)
		}},
		{"note is not a todo", func(f *scanFixture) {
			f.notes.notes[1].Content = `{"type":"text","body":"hello"}`
		}},
		{"note content is not JSON", func(f *scanFixture) {
			f.notes.notes[1].Content = `plain text`
		}},
		{"user missing", func(f *scanFixture) {
			delete(f.users, 1)
		}},
		{"deadline passed", func(f *scanFixture) {
			f.deadlines.deadlines[0].DeadlineAt = testNow.Add(-time.Minute)
		}},
		{"no window matches", func(f *scanFixture) {
			f.deadlines.deadlines[0].DeadlineAt = testNow.Add(10 * 24 * time.Hour)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newScanFixture()
			f.add(1, 180*time.Minute)
			tt.setup(f)

			res, err := f.scanner.Scan(context.Background())
			require.NoError(t, err)
			assert.Equal(t, Result{Checked: 1, Skipped: 1}, res)
			assert.Empty(t, f.notifier.reminders)
		})
	}
}

func TestScanContinuesAfterErrors(t *testing.T) {
	f := newScanFixture()
	f.add(1, 180*time.Minute)
	f.add(2, 60*time.Minute)
	f.add(3, 30*time.Minute)
	f.notes.errs[2] = errors.New("database is locked")

	res, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 3, Sent: 2, Failed: 1}, res)

	tags := []string{}
	for _, r := range f.notifier.reminders {
		tags = append(tags, r.Gradation.Tag)
	}
	assert.Equal(t, []string{"3h", "30m"}, tags)
}

func TestScanNotifyFailureCounted(t *testing.T) {
	f := newScanFixture()
	f.add(1, 180*time.Minute)
	f.add(2, 60*time.Minute)
	f.notifier.err = errors.New("send failed")

	res, err := f.scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Checked: 2, Failed: 2}, res)
}

func TestScanListError(t *testing.T) {
	f := newScanFixture()
	f.deadlines.listErr = errors.New("no such table")

	_, err := f.scanner.Scan(context.Background())
	assert.Error(t, err)
}

func TestScanStopsOnCancel(t *testing.T) {
	f := newScanFixture()
	f.add(1, 180*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.scanner.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Checked)
	assert.Empty(t, f.notifier.reminders)
}

// End to end against sqlite: a deadline three hours out gets exactly one
// "3 часа" reminder no matter how often the scan runs.
func TestScanDispatchIdempotent(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	notes := store.NewNoteStore(db)
	deadlines := store.NewDeadlineStore(db)

	u, err := users.Create("alice", "1001")
	require.NoError(t, err)
	n, err := notes.Create(u.ID, "Курсовая", todoContent)
	require.NoError(t, err)
	d, err := deadlines.Create(n.ID, u.ID, testNow.Add(180*time.Minute), true)
	require.NoError(t, err)

	sender := &fakeSender{}
	tr := &fakeTracker{}
	dispatcher := NewDispatcher(sender, deadlines, tr, nil, logging.Discard())
	scanner := NewScanner(deadlines, notes, users, dispatcher, logging.Discard(), WithClock(fixedClock))

	res, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	require.Len(t, sender.calls, 1)
	assert.Equal(t, "1001", sender.calls[0].recipient)
	assert.True(t, strings.Contains(sender.calls[0].text, "3 часа"), sender.calls[0].text)
	assert.Contains(t, sender.calls[0].text, `"Курсовая"`)

	sent, err := deadlines.SentTypes(d.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"3h": true}, sent)

	res, err = scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sent)
	assert.Len(t, sender.calls, 1)
	assert.Len(t, tr.calls, 1)
}

func TestScanRetriesAfterSendFailure(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	notes := store.NewNoteStore(db)
	deadlines := store.NewDeadlineStore(db)

	u, err := users.Create("alice", "1001")
	require.NoError(t, err)
	n, err := notes.Create(u.ID, "Exam", todoContent)
	require.NoError(t, err)
	d, err := deadlines.Create(n.ID, u.ID, testNow.Add(time.Hour), true)
	require.NoError(t, err)

	sender := &fakeSender{err: errors.New("timeout")}
	dispatcher := NewDispatcher(sender, deadlines, nil, nil, logging.Discard())
	scanner := NewScanner(deadlines, notes, users, dispatcher, logging.Discard(), WithClock(fixedClock))

	res, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	sent, err := deadlines.SentTypes(d.ID)
	require.NoError(t, err)
	assert.Empty(t, sent)

	sender.err = nil
	res, err = scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)

	sent, err = deadlines.SentTypes(d.ID)
	require.NoError(t, err)
	assert.True(t, sent["1h"])
}
