// Package lookup wraps the external number-information API.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"numinfo_bot/internal/logging"
)

const (
	requestTimeout = 15 * time.Second
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond

	// MaxResultLen caps the formatted payload so it fits in one Telegram
	// message alongside markup.
	MaxResultLen     = 3500
	truncationMarker = "\n\n[truncated]"
)

// Result is the outcome of a successful API exchange. Found=false means the
// API answered but holds no data for the number; it is not an error and must
// not be billed.
type Result struct {
	Found bool
	Text  string
}

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the number-information API with bounded timeouts and
// read-only retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient doer
	logger     *logrus.Entry
}

// NewClient constructs a Client for the configured API endpoint.
func NewClient(baseURL, apiKey string, logger *logrus.Entry) *Client {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// Lookup queries the API for a number. The call is an idempotent read, so
// transient failures are retried with backoff before giving up.
func (c *Client) Lookup(ctx context.Context, number string) (Result, error) {
	if c == nil || c.httpClient == nil {
		return Result{}, errors.New("lookup client is not initialized")
	}
	if ctx == nil {
		return Result{}, errors.New("context is required")
	}
	if number == "" {
		return Result{}, errors.New("number is required")
	}

	endpoint, err := c.buildURL(number)
	if err != nil {
		return Result{}, err
	}

	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.fetch(ctx, endpoint)
		if err == nil {
			return result, nil
		}
		lastErr = err

		c.logger.WithFields(logging.Fields{
			"event":   "lookup_attempt_failed",
			"attempt": attempt,
		}).WithError(err).Warn("lookup request failed")

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return Result{}, fmt.Errorf("lookup after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) buildURL(number string) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse lookup url: %w", err)
	}

	query := parsed.Query()
	query.Set("number", number)
	query.Set("key", c.apiKey)
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("lookup status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read lookup response: %w", err)
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Result{}, fmt.Errorf("decode lookup response: %w", err)
	}

	if isEmptyPayload(payload) {
		return Result{Found: false}, nil
	}

	return Result{Found: true, Text: FormatPayload(payload)}, nil
}

// FormatPayload renders a payload as indented JSON, truncated to fit one
// outbound message.
func FormatPayload(payload any) string {
	pretty, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}

	text := string(pretty)
	if len(text) > MaxResultLen {
		text = text[:MaxResultLen] + truncationMarker
	}

	return text
}

// isEmptyPayload reports whether the API answered with a "no data" shape:
// null, an empty list, an empty object, or an object whose result/data list
// is empty.
func isEmptyPayload(payload any) bool {
	switch v := payload.(type) {
	case nil:
		return true
	case []any:
		return len(v) == 0
	case map[string]any:
		if len(v) == 0 {
			return true
		}
		for _, key := range []string{"result", "data", "List"} {
			if inner, ok := v[key]; ok {
				return isEmptyPayload(inner)
			}
		}
		return false
	case string:
		return v == ""
	default:
		return false
	}
}
