// Package maxbot is a small client for the MAX messenger bot platform API.
// Every call goes through a rate limiter and a circuit breaker and carries a
// fixed network timeout.
package maxbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://platform-api.max.ru"
	DefaultTimeout = 10 * time.Second
	DefaultRate    = 25

	maxResponseBytes = 1 << 20
)

// ErrNotConfigured is returned when the client has no bot token.
var ErrNotConfigured = errors.New("maxbot: bot token not configured")

// APIError is a non-2xx answer from the platform.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("maxbot: status %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("maxbot: status %d", e.Status)
}

// IsDenied reports whether the platform refused to deliver to the chat.
func (e *APIError) IsDenied() bool {
	return e.Status == http.StatusForbidden || strings.HasSuffix(e.Code, ".denied")
}

type apiResponse struct {
	status int
	body   []byte
}

type Client struct {
	token      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[*apiResponse]
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the per-request network timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(cl *Client) {
		if perSecond > 0 {
			cl.limiter = rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Limit(DefaultRate), DefaultRate),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	c.breaker = gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:        "maxbot",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Configured returns true if the bot token is set.
func (c *Client) Configured() bool {
	return c.token != ""
}

// do performs one API call. The response body is read inside the breaker so
// callers never handle open bodies. Non-2xx statuses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("access_token", c.token)
	endpoint := c.baseURL + path + "?" + query.Encode()

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	resp, err := c.breaker.Execute(func() (*apiResponse, error) {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer r.Body.Close()

		data, err := io.ReadAll(io.LimitReader(r.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		res := &apiResponse{status: r.StatusCode, body: data}
		// Only platform-side trouble counts against the breaker.
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return res, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return res, nil
	})
	if err != nil && resp == nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.status >= 400 {
		apiErr := &APIError{Status: resp.status}
		_ = json.Unmarshal(resp.body, apiErr)
		return nil, apiErr
	}
	return resp.body, nil
}

// decodeObject decodes a JSON object keeping numbers as json.Number so large
// message ids survive intact.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
