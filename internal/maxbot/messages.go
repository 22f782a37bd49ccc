package maxbot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// SentMessage is what the platform told us about a delivered message.
// ID may be empty when the response did not carry one.
type SentMessage struct {
	ID          string
	RecipientID string
}

type sendOptions struct {
	imageURL string
}

type SendOption func(*sendOptions)

// WithImage attaches an image by URL.
func WithImage(imageURL string) SendOption {
	return func(o *sendOptions) {
		o.imageURL = imageURL
	}
}

type attachment struct {
	Type    string            `json:"type"`
	Payload map[string]string `json:"payload"`
}

type newMessage struct {
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments,omitempty"`
}

// Send delivers a text message to a user. When the platform denies the chat
// and the recipient id is not purely numeric, the send is retried once with
// the numeric form of the id.
func (c *Client) Send(ctx context.Context, recipientID, text string, opts ...SendOption) (*SentMessage, error) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	msg, err := c.send(ctx, recipientID, text, o)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsDenied() {
		if numeric, ok := NumericRecipient(recipientID); ok {
			c.logger.Warn("send denied, retrying with numeric recipient",
				"recipient", recipientID,
				"numeric", numeric,
				"code", apiErr.Code,
			)
			return c.send(ctx, numeric, text, o)
		}
	}
	return msg, err
}

func (c *Client) send(ctx context.Context, recipientID, text string, o sendOptions) (*SentMessage, error) {
	payload := newMessage{Text: text}
	if o.imageURL != "" {
		payload.Attachments = []attachment{{Type: "image", Payload: map[string]string{"url": o.imageURL}}}
	}

	body, err := c.do(ctx, http.MethodPost, "/messages", url.Values{"user_id": {recipientID}}, payload)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	msg := &SentMessage{RecipientID: recipientID}
	if obj, err := decodeObject(body); err == nil {
		msg.ID = MessageID(obj)
	}
	return msg, nil
}

// Delete removes a message from the chat. recipientID is only used for
// diagnostics; the platform addresses messages by id alone.
func (c *Client) Delete(ctx context.Context, messageID, recipientID string) error {
	if messageID == "" {
		return errors.New("delete message: empty message id")
	}
	body, err := c.do(ctx, http.MethodDelete, "/messages", url.Values{"message_id": {messageID}}, nil)
	if err != nil {
		return fmt.Errorf("delete message %s for %s: %w", messageID, recipientID, err)
	}
	if obj, err := decodeObject(body); err == nil {
		if ok, present := obj["success"].(bool); present && !ok {
			return fmt.Errorf("delete message %s: platform reported failure: %v", messageID, obj["message"])
		}
	}
	return nil
}

// historyDepth is how many recent messages FindRecent inspects.
const historyDepth = 20

// FindRecent looks through the latest messages of a user's chat for one
// with exactly this text and returns its id. An empty id with a nil error
// means nothing matched.
func (c *Client) FindRecent(ctx context.Context, recipientID, text string) (string, error) {
	query := url.Values{
		"user_id": {recipientID},
		"count":   {strconv.Itoa(historyDepth)},
	}
	body, err := c.do(ctx, http.MethodGet, "/messages", query, nil)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}
	obj, err := decodeObject(body)
	if err != nil {
		return "", fmt.Errorf("decode messages: %w", err)
	}
	list, _ := obj["messages"].([]any)

	var bestID string
	var bestTS int64 = -1
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		b, _ := m["body"].(map[string]any)
		if b == nil || b["text"] != text {
			continue
		}
		id := MessageID(map[string]any{"message": m})
		if id == "" {
			continue
		}
		ts := int64(0)
		if n, ok := m["timestamp"].(interface{ Int64() (int64, error) }); ok {
			ts, _ = n.Int64()
		}
		if ts > bestTS {
			bestID, bestTS = id, ts
		}
	}
	return bestID, nil
}

var numericWithZeroFraction = regexp.MustCompile(`^(\d+)(?:\.0+)?$`)

// NumericRecipient derives the numeric form of a textual recipient id, for
// example " 42 ", "42.0" or "max_42" all give "42". It returns false when the
// id is already numeric or has no numeric form.
func NumericRecipient(id string) (string, bool) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", false
	}
	if m := numericWithZeroFraction.FindStringSubmatch(trimmed); m != nil {
		if m[1] == id {
			return "", false
		}
		return m[1], true
	}

	i := len(trimmed)
	for i > 0 && trimmed[i-1] >= '0' && trimmed[i-1] <= '9' {
		i--
	}
	if i == len(trimmed) {
		return "", false
	}
	return trimmed[i:], true
}
