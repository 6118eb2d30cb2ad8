// Package scryfall is the card reference client: bulk existence lookups and
// fuzzy name rescue against the Scryfall API.
package scryfall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ramonehamilton/commander-deckgen/internal/cards/fuzzy"
)

const (
	defaultBaseURL = "https://api.scryfall.com"
	rateLimitDelay = 100 * time.Millisecond // 100ms between requests (10 req/sec)
	requestTimeout = 10 * time.Second

	// maxRetries is one immediate retry on transient transport failure.
	maxRetries = 1

	// maxSearchCandidates bounds the candidates returned for an ambiguous name.
	maxSearchCandidates = 10
)

// Config configures the Scryfall client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration // per call, per try
	RateLimit time.Duration // minimum spacing between requests
	UserAgent string
}

// DefaultConfig returns the public API settings.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:   defaultBaseURL,
		Timeout:   requestTimeout,
		RateLimit: rateLimitDelay,
		UserAgent: "commander-deckgen/1.0",
	}
}

// Client represents a Scryfall API client with rate limiting.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	userAgent   string
	timeout     time.Duration
	logger      *zap.Logger
}

// NewClient creates a new Scryfall API client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = requestTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Every(cfg.RateLimit)
	}
	return &Client{
		httpClient:  &http.Client{},
		rateLimiter: rate.NewLimiter(limit, 1),
		baseURL:     cfg.BaseURL,
		userAgent:   cfg.UserAgent,
		timeout:     cfg.Timeout,
		logger:      logger.Named("scryfall"),
	}
}

// FuzzyLookup resolves a misspelled name. Scryfall's fuzzy endpoint answers
// with a single card or "ambiguous"; ambiguous names fall back to a search
// whose results are ranked by name similarity. No match returns an empty slice.
func (c *Client) FuzzyLookup(ctx context.Context, name string) ([]Candidate, error) {
	u := fmt.Sprintf("%s/cards/named?fuzzy=%s", c.baseURL, url.QueryEscape(name))

	var card Card
	err := c.doRequest(ctx, http.MethodGet, u, nil, &card)
	switch {
	case err == nil:
		return []Candidate{{
			Lookup:     LookupFromCard(name, &card),
			Confidence: fuzzy.Score(name, card.Name),
		}}, nil
	case IsAmbiguous(err):
		return c.searchCandidates(ctx, name)
	case IsNotFound(err):
		return []Candidate{}, nil
	default:
		return nil, fmt.Errorf("fuzzy lookup %q: %w", name, err)
	}
}

func (c *Client) searchCandidates(ctx context.Context, name string) ([]Candidate, error) {
	u := fmt.Sprintf("%s/cards/search?q=%s&unique=cards&order=edhrec", c.baseURL, url.QueryEscape(name))

	var result SearchResult
	if err := c.doRequest(ctx, http.MethodGet, u, nil, &result); err != nil {
		if IsNotFound(err) {
			return []Candidate{}, nil
		}
		return nil, fmt.Errorf("search %q: %w", name, err)
	}

	names := make([]string, len(result.Data))
	for i := range result.Data {
		names[i] = result.Data[i].Name
	}
	ranked := fuzzy.Rank(name, names, fuzzy.Options{MaxResults: maxSearchCandidates})

	candidates := make([]Candidate, 0, len(ranked))
	for _, m := range ranked {
		candidates = append(candidates, Candidate{
			Lookup:     LookupFromCard(name, &result.Data[m.Index]),
			Confidence: m.Score,
		})
	}
	return candidates, nil
}

// doRequest performs an HTTP request with rate limiting, a per-try timeout and
// a single immediate retry on transport failures, 5xx and 429. A 404 is a
// logical answer and is returned as *NotFoundError without retrying.
func (c *Client) doRequest(ctx context.Context, method, u string, body []byte, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			c.logger.Debug("retrying request", zap.String("url", u), zap.Error(lastErr))
		}

		retry, err := c.try(ctx, method, u, body, result)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

// try performs one request. retry reports whether the failure is transient.
func (c *Client) try(ctx context.Context, method, u string, body []byte, result interface{}) (retry bool, err error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limiter error: %w", err)
	}

	tryCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(tryCtx, method, u, reader)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The caller going away is not a service failure.
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(respBody, result); err != nil {
			return false, fmt.Errorf("failed to parse JSON response: %w", err)
		}
		return false, nil

	case resp.StatusCode == http.StatusNotFound:
		nf := &NotFoundError{URL: u}
		var apiErr APIError
		if json.Unmarshal(respBody, &apiErr) == nil {
			nf.Type = apiErr.Type
			nf.Details = apiErr.Details
		}
		return false, nf

	case resp.StatusCode == http.StatusTooManyRequests:
		return true, errors.New("rate limited (HTTP 429)")

	case resp.StatusCode >= 500:
		return true, fmt.Errorf("server error (HTTP %d)", resp.StatusCode)

	default:
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Details != "" {
			return false, &apiErr
		}
		return false, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}
}
