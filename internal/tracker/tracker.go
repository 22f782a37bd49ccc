// Package tracker keeps delivered reminder messages in memory and deletes
// them from the chat after a delay, counted either from delivery or from the
// moment the recipient read the message.
package tracker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	DefaultDelay         = 60 * time.Second
	DefaultDeleteTimeout = 15 * time.Second
)

// Deleter removes a message from the messaging platform.
type Deleter interface {
	Delete(ctx context.Context, messageID, recipientID string) error
}

// TrackedMessage is the tracker's view of one delivered message.
type TrackedMessage struct {
	MessageID       string     `json:"message_id"`
	RecipientID     string     `json:"recipient_id"`
	Text            string     `json:"text,omitempty"`
	SentAt          time.Time  `json:"sent_at"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
	DeleteScheduled bool       `json:"delete_scheduled"`
}

func (m TrackedMessage) clone() TrackedMessage {
	if m.ReadAt != nil {
		r := *m.ReadAt
		m.ReadAt = &r
	}
	return m
}

type entry struct {
	msg      TrackedMessage
	timer    *time.Timer
	deleting bool

	// set when the read timer fired during an in-flight timeout delete
	readDeferred bool
}

// Tracker is safe for concurrent use. The lock is never held across a call
// to the Deleter.
type Tracker struct {
	mu       sync.Mutex
	entries  map[string]*entry
	closed   bool
	inflight sync.WaitGroup

	deleter       Deleter
	delay         time.Duration
	deleteTimeout time.Duration
	now           func() time.Time
	onDelete      func(TrackedMessage)
	onRead        func(TrackedMessage)
	logger        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Tracker)

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithDeleteTimeout bounds a single Deleter call.
func WithDeleteTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.deleteTimeout = d
		}
	}
}

// OnDelete registers a callback run after a message was deleted.
func OnDelete(fn func(TrackedMessage)) Option {
	return func(t *Tracker) { t.onDelete = fn }
}

// OnRead registers a callback run when a message is first marked read.
func OnRead(fn func(TrackedMessage)) Option {
	return func(t *Tracker) { t.onRead = fn }
}

// New creates a Tracker that deletes messages delay after delivery or after
// being read. A non-positive delay uses DefaultDelay.
func New(deleter Deleter, delay time.Duration, opts ...Option) *Tracker {
	if delay <= 0 {
		delay = DefaultDelay
	}
	t := &Tracker{
		entries:       make(map[string]*entry),
		deleter:       deleter,
		delay:         delay,
		deleteTimeout: DefaultDeleteTimeout,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	return t
}

// Delay returns the deletion delay used for both paths.
func (t *Tracker) Delay() time.Duration {
	return t.delay
}

// Track registers a delivered message and arms its auto-delete timer.
// Tracking an id again replaces the earlier entry and its timer.
func (t *Tracker) Track(messageID, recipientID, text string) {
	if messageID == "" {
		t.logger.Warn("track called without message id", "recipient", recipientID)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.logger.Warn("track after shutdown", "message_id", messageID)
		return
	}
	if old, ok := t.entries[messageID]; ok {
		old.timer.Stop()
		t.logger.Warn("message id tracked twice, replacing", "message_id", messageID)
	}

	e := &entry{msg: TrackedMessage{
		MessageID:   messageID,
		RecipientID: recipientID,
		Text:        text,
		SentAt:      t.now(),
	}}
	e.timer = time.AfterFunc(t.delay, func() { t.fire(messageID, e, false) })
	t.entries[messageID] = e

	t.logger.Debug("message tracked", "message_id", messageID, "recipient", recipientID, "delete_in", t.delay)
}

// NotifyRead records the first read of a message and schedules its deletion
// delay from now. Later calls return the stored state and schedule nothing.
// It returns false for ids that are not tracked.
func (t *Tracker) NotifyRead(messageID string) (TrackedMessage, bool) {
	t.mu.Lock()
	e, ok := t.entries[messageID]
	if !ok {
		t.mu.Unlock()
		t.logger.Warn("read signal for untracked message", "message_id", messageID)
		return TrackedMessage{}, false
	}
	if e.msg.ReadAt != nil {
		msg := e.msg.clone()
		t.mu.Unlock()
		return msg, true
	}

	readAt := t.now()
	e.msg.ReadAt = &readAt
	e.msg.DeleteScheduled = true
	e.timer.Stop()
	if !t.closed {
		e.timer = time.AfterFunc(t.delay, func() { t.fire(messageID, e, true) })
	}
	msg := e.msg.clone()
	t.mu.Unlock()

	t.logger.Info("message read, deletion scheduled", "message_id", messageID, "delete_in", t.delay)
	if t.onRead != nil {
		t.onRead(msg)
	}
	return msg, true
}

// fire runs when a timer expires. Whether the delete proceeds is decided
// here under the lock, not when the timer was armed.
func (t *Tracker) fire(messageID string, e *entry, fromRead bool) {
	t.mu.Lock()
	cur, ok := t.entries[messageID]
	switch {
	case t.closed, !ok, cur != e:
		t.mu.Unlock()
		return
	case e.deleting:
		if fromRead {
			e.readDeferred = true
		}
		t.mu.Unlock()
		return
	case !fromRead && e.msg.ReadAt != nil:
		t.mu.Unlock()
		return
	}
	e.deleting = true
	msg := e.msg.clone()
	t.inflight.Add(1)
	t.mu.Unlock()
	defer t.inflight.Done()

	ctx, cancel := context.WithTimeout(t.ctx, t.deleteTimeout)
	err := t.deleter.Delete(ctx, msg.MessageID, msg.RecipientID)
	cancel()

	t.mu.Lock()
	cur, ok = t.entries[messageID]
	same := ok && cur == e
	if err != nil {
		rearmed := false
		if same {
			e.deleting = false
			if e.readDeferred && !t.closed {
				e.readDeferred = false
				e.timer = time.AfterFunc(t.delay, func() { t.fire(messageID, e, true) })
				rearmed = true
			}
		}
		t.mu.Unlock()
		t.logger.Warn("delete message failed, keeping entry",
			"message_id", messageID,
			"recipient", msg.RecipientID,
			"after_read", fromRead,
			"read_retry", rearmed,
			"error", err,
		)
		return
	}
	if same {
		delete(t.entries, messageID)
	}
	t.mu.Unlock()

	t.logger.Info("message deleted", "message_id", messageID, "after_read", fromRead)
	if t.onDelete != nil {
		t.onDelete(msg)
	}
}

// Remove forgets a message and cancels its pending deletion. It reports
// whether the id was tracked.
func (t *Tracker) Remove(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[messageID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.entries, messageID)
	return true
}

func (t *Tracker) Get(messageID string) (TrackedMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[messageID]
	if !ok {
		return TrackedMessage{}, false
	}
	return e.msg.clone(), true
}

// Snapshot returns all tracked messages, oldest first.
func (t *Tracker) Snapshot() []TrackedMessage {
	t.mu.Lock()
	out := make([]TrackedMessage, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.msg.clone())
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].MessageID < out[j].MessageID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Shutdown stops all pending timers and waits for in-flight deletes, or
// until ctx is done. Entries stay readable; nothing new is scheduled.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	pending := 0
	for _, e := range t.entries {
		if e.timer.Stop() {
			pending++
		}
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()

	defer t.cancel()
	select {
	case <-done:
		t.logger.Info("tracker stopped", "pending_dropped", pending)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
