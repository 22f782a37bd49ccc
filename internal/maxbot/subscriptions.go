package maxbot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// DefaultUpdateTypes are the webhook update types the bot subscribes to.
var DefaultUpdateTypes = []string{
	"message_created",
	"message_callback",
	"bot_started",
	"bot_stopped",
	"message_edited",
	"message_removed",
	"bot_added",
	"bot_removed",
	"user_added",
	"user_removed",
}

type Subscription struct {
	URL         string   `json:"url"`
	Time        int64    `json:"time"`
	UpdateTypes []string `json:"update_types"`
	Version     string   `json:"version,omitempty"`
}

type subscribeRequest struct {
	URL         string   `json:"url"`
	UpdateTypes []string `json:"update_types"`
	Secret      string   `json:"secret,omitempty"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ListSubscriptions returns the webhook subscriptions currently registered.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	body, err := c.do(ctx, http.MethodGet, "/subscriptions", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	var out struct {
		Subscriptions []Subscription `json:"subscriptions"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	return out.Subscriptions, nil
}

// Unsubscribe removes the subscription for webhookURL.
func (c *Client) Unsubscribe(ctx context.Context, webhookURL string) error {
	body, err := c.do(ctx, http.MethodDelete, "/subscriptions", url.Values{"url": {webhookURL}}, nil)
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", webhookURL, err)
	}
	return checkSuccess(body)
}

// Subscribe registers webhookURL for the given update types, replacing an
// existing subscription for the same URL. A nil types slice subscribes to
// DefaultUpdateTypes.
func (c *Client) Subscribe(ctx context.Context, webhookURL, secret string, types []string) error {
	if types == nil {
		types = DefaultUpdateTypes
	}

	existing, err := c.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	for _, s := range existing {
		if s.URL != webhookURL {
			continue
		}
		if err := c.Unsubscribe(ctx, webhookURL); err != nil {
			return err
		}
		c.logger.Info("removed existing webhook subscription", "url", webhookURL)
	}

	body, err := c.do(ctx, http.MethodPost, "/subscriptions", nil, subscribeRequest{
		URL:         webhookURL,
		UpdateTypes: types,
		Secret:      secret,
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", webhookURL, err)
	}
	if err := checkSuccess(body); err != nil {
		return fmt.Errorf("subscribe %s: %w", webhookURL, err)
	}
	c.logger.Info("webhook subscribed", "url", webhookURL, "update_types", len(types))
	return nil
}

func checkSuccess(body []byte) error {
	if len(body) == 0 {
		return nil
	}
	var res successResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("platform reported failure: %s", res.Message)
	}
	return nil
}
