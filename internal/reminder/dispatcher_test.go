package reminder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/unitask/internal/logging"
	"github.com/dukerupert/unitask/internal/maxbot"
	"github.com/dukerupert/unitask/internal/model"
	"github.com/dukerupert/unitask/internal/store"
)

type fakeMarkers struct {
	recorded []string
	err      error
}

func (f *fakeMarkers) RecordSent(deadlineID int64, tag string) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, tag)
	return nil
}

func testReminder(tag string) Reminder {
	g, _ := Lookup(tag)
	return Reminder{
		Deadline:  model.Deadline{ID: 7, NoteID: 3, UserID: 1},
		Note:      model.Note{ID: 3, Title: "Отчёт", Content: todoContent},
		User:      model.User{ID: 1, UUID: "max_42"},
		Gradation: g,
	}
}

func TestNotify(t *testing.T) {
	sender := &fakeSender{msg: &maxbot.SentMessage{ID: "mid.9", RecipientID: "42"}}
	markers := &fakeMarkers{}
	tr := &fakeTracker{}
	hub := &fakeHub{}
	d := NewDispatcher(sender, markers, tr, hub, logging.Discard())

	require.NoError(t, d.Notify(context.Background(), testReminder("1d")))

	require.Len(t, sender.calls, 1)
	assert.Equal(t, "max_42", sender.calls[0].recipient)
	assert.Equal(t, "До окончания дедлайна по todo \"Отчёт\" осталось 1 день", sender.calls[0].text)
	assert.Equal(t, []string{"1d"}, markers.recorded)

	// The tracker gets the recipient the platform accepted.
	require.Len(t, tr.calls, 1)
	assert.Equal(t, trackCall{"mid.9", "42", sender.calls[0].text}, tr.calls[0])

	require.Len(t, hub.msgs, 1)
	assert.Equal(t, "deadline_notification_sent", hub.msgs[0].Type)
	assert.Equal(t, int64(7), hub.msgs[0].ID)
	assert.Equal(t, "1d", hub.msgs[0].Extra["gradation"])
	assert.Equal(t, 0, sender.lookups)
}

func TestNotifySendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("context deadline exceeded")}
	markers := &fakeMarkers{}
	tr := &fakeTracker{}
	d := NewDispatcher(sender, markers, tr, nil, logging.Discard())

	err := d.Notify(context.Background(), testReminder("3h"))
	require.Error(t, err)
	assert.Empty(t, markers.recorded)
	assert.Empty(t, tr.calls)
}

func TestNotifyLooksUpMissingID(t *testing.T) {
	sender := &fakeSender{msg: &maxbot.SentMessage{RecipientID: "max_42"}, recentID: "mid.found"}
	tr := &fakeTracker{}
	d := NewDispatcher(sender, &fakeMarkers{}, tr, nil, logging.Discard())

	require.NoError(t, d.Notify(context.Background(), testReminder("3h")))
	assert.Equal(t, 1, sender.lookups)
	require.Len(t, tr.calls, 1)
	assert.Equal(t, "mid.found", tr.calls[0].messageID)
}

func TestNotifyMissingIDNotFound(t *testing.T) {
	sender := &fakeSender{msg: &maxbot.SentMessage{RecipientID: "max_42"}}
	markers := &fakeMarkers{}
	tr := &fakeTracker{}
	d := NewDispatcher(sender, markers, tr, nil, logging.Discard())

	require.NoError(t, d.Notify(context.Background(), testReminder("3h")))
	assert.Equal(t, []string{"3h"}, markers.recorded)
	assert.Empty(t, tr.calls)
}

func TestNotifyMarkerAlreadyPresent(t *testing.T) {
	markers := &fakeMarkers{err: store.ErrAlreadySent}
	d := NewDispatcher(&fakeSender{}, markers, nil, nil, logging.Discard())

	assert.NoError(t, d.Notify(context.Background(), testReminder("3h")))
}

func TestNotifyMarkerError(t *testing.T) {
	markers := &fakeMarkers{err: errors.New("disk full")}
	tr := &fakeTracker{}
	hub := &fakeHub{}
	d := NewDispatcher(&fakeSender{}, markers, tr, hub, logging.Discard())

	assert.Error(t, d.Notify(context.Background(), testReminder("3h")))

	// The message already went out, so it is still tracked for deletion.
	require.Len(t, tr.calls, 1)
	assert.Equal(t, "mid.1", tr.calls[0].messageID)
	assert.Equal(t, "max_42", tr.calls[0].recipientID)
	assert.Empty(t, hub.msgs)
}
