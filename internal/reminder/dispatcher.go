package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/unitask/internal/maxbot"
	"github.com/dukerupert/unitask/internal/store"
	"github.com/dukerupert/unitask/internal/websocket"
)

// Sender is the part of the bot client the dispatcher needs.
type Sender interface {
	Send(ctx context.Context, recipientID, text string, opts ...maxbot.SendOption) (*maxbot.SentMessage, error)
	FindRecent(ctx context.Context, recipientID, text string) (string, error)
}

type MarkerRecorder interface {
	RecordSent(deadlineID int64, notifType string) error
}

// MessageTracker receives ids of delivered reminders for later cleanup.
type MessageTracker interface {
	Track(messageID, recipientID, text string)
}

type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// Dispatcher sends reminders and records the sent markers.
type Dispatcher struct {
	sender  Sender
	markers MarkerRecorder
	tracker MessageTracker
	events  Broadcaster
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher. tracker and events may be nil.
func NewDispatcher(sender Sender, markers MarkerRecorder, tracker MessageTracker, events Broadcaster, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		markers: markers,
		tracker: tracker,
		events:  events,
		logger:  logger,
	}
}

// Notify sends the reminder text to the deadline owner. The marker is only
// written after a successful send, so a failed send is retried next scan.
// A delivered message is handed to the tracker before the marker is written.
func (d *Dispatcher) Notify(ctx context.Context, r Reminder) error {
	text := ComposeText(r.Note.Title, r.Gradation)

	msg, err := d.sender.Send(ctx, r.User.UUID, text)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	recipient := msg.RecipientID
	if recipient == "" {
		recipient = r.User.UUID
	}
	messageID := msg.ID
	if messageID == "" {
		messageID = d.lookupMessageID(ctx, recipient, text)
	}
	// The message is delivered at this point, so it is tracked for cleanup
	// even if the marker below cannot be written.
	if messageID != "" && d.tracker != nil {
		d.tracker.Track(messageID, recipient, text)
	}

	if err := d.markers.RecordSent(r.Deadline.ID, r.Gradation.Tag); err != nil {
		if !errors.Is(err, store.ErrAlreadySent) {
			d.logger.Error("reminder delivered without marker",
				"deadline_id", r.Deadline.ID,
				"gradation", r.Gradation.Tag,
				"message_id", messageID,
				"error", err,
			)
			return fmt.Errorf("record sent marker: %w", err)
		}
		d.logger.Warn("marker already present", "deadline_id", r.Deadline.ID, "gradation", r.Gradation.Tag)
	}

	d.logger.Info("deadline reminder sent",
		"deadline_id", r.Deadline.ID,
		"user_id", r.User.ID,
		"gradation", r.Gradation.Tag,
		"minutes_remaining", r.MinutesRemaining,
		"message_id", messageID,
	)

	if d.events != nil {
		d.events.Broadcast(websocket.NewMessage("deadline_notification", "sent", r.Deadline.ID, map[string]any{
			"gradation":  r.Gradation.Tag,
			"message_id": messageID,
		}))
	}
	return nil
}

// lookupMessageID is a best-effort search of the chat history for a message
// whose id the send response did not include.
func (d *Dispatcher) lookupMessageID(ctx context.Context, recipientID, text string) string {
	id, err := d.sender.FindRecent(ctx, recipientID, text)
	if err != nil {
		d.logger.Debug("message id lookup failed", "recipient", recipientID, "error", err)
		return ""
	}
	if id == "" {
		d.logger.Debug("message id not found in history", "recipient", recipientID)
	}
	return id
}
