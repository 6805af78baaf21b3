// Package venmo fetches account statements from the Venmo web API.
package venmo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/cleared-dev/walletsync/internal/logging"
	"github.com/cleared-dev/walletsync/internal/model"
	"github.com/cleared-dev/walletsync/internal/statement"
)

const (
	DefaultBaseURL   = "https://venmo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2 // requests per second

	statementPath   = "/transaction-history/statement"
	queryDateFormat = "01-02-2006"
)

var unableToFetch = []byte("Unable to fetch transaction history")

// Client implements a StatementSource backed by the Venmo statement endpoint.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      zerolog.Logger
	limiter     *rate.Limiter
	parser      *statement.VenmoParser
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new Venmo client. The token is sent as the
// api_access_token cookie and is never stored anywhere else.
func NewClient(accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  logging.Silent(),
		parser:  &statement.VenmoParser{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a non-200 response from Venmo.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Venmo API error: %s (status: %d)", e.Message, e.StatusCode)
}

// Unwrap classifies the error for retry decisions.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return model.ErrAuth
	case e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500:
		return model.ErrTransient
	default:
		return nil
	}
}

// FetchStatement downloads and parses the statement for profileID over window.
func (c *Client) FetchStatement(ctx context.Context, profileID string, window model.SyncWindow) (*model.Statement, error) {
	body, err := c.fetch(ctx, profileID, window)
	if err != nil {
		return nil, err
	}

	stmt, err := c.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing Venmo statement: %w", err)
	}

	c.logger.Debug().
		Str("profile_id", profileID).
		Str("window", window.String()).
		Int("entries", len(stmt.Entries)).
		Msg("Fetched Venmo statement")
	return stmt, nil
}

func (c *Client) fetch(ctx context.Context, profileID string, window model.SyncWindow) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := url.Values{}
	q.Set("startDate", window.Start.Format(queryDateFormat))
	q.Set("endDate", window.End.Format(queryDateFormat))
	q.Set("profileId", profileID)
	q.Set("accountType", "personal")
	reqURL := c.baseURL + statementPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: "api_access_token", Value: c.accessToken})

	c.logger.Debug().Str("path", statementPath).Str("profile_id", profileID).Msg("Venmo API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: fetching Venmo statement: %v", model.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading Venmo statement: %v", model.ErrTransient, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	}
	if bytes.HasPrefix(body, unableToFetch) {
		return nil, fmt.Errorf("Venmo transaction history request failed: %s", bytes.TrimSpace(body))
	}
	return body, nil
}
