// Package synergy supplies card suggestions for a commander from EDHREC.
package synergy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://json.edhrec.com/pages"
	requestTimeout = 5 * time.Second

	// perSectionLimit and maxHints bound the hint list handed to the prompt.
	perSectionLimit = 15
	maxHints        = 40
)

// hintSections are the EDHREC card list headers worth suggesting, in priority order.
var hintSections = []string{
	"High Synergy Cards",
	"Top Cards",
	"Creatures",
	"Instants",
	"Sorceries",
	"Utility Artifacts",
	"Enchantments",
	"Utility Lands",
	"Mana Artifacts",
	"Lands",
}

// ErrCommanderNotFound means EDHREC has no page for the commander.
var ErrCommanderNotFound = errors.New("commander not found on EDHREC")

// Config configures the EDHREC client.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration // 0 disables caching
}

// DefaultConfig returns the public API settings.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  defaultBaseURL,
		Timeout:  requestTimeout,
		CacheTTL: 24 * time.Hour,
	}
}

// EDHRECClient fetches synergy data from EDHREC's JSON API.
type EDHRECClient struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	cache      *hintCache
	logger     *zap.Logger
}

// NewEDHRECClient creates a new EDHREC API client.
func NewEDHRECClient(cfg *Config, logger *zap.Logger) *EDHRECClient {
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
	return &EDHRECClient{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    cfg.Timeout,
		cache:      newHintCache(cfg.CacheTTL),
		logger:     logger.Named("edhrec"),
	}
}

// EDHRECCommanderPage represents the response from the commanders endpoint.
type EDHRECCommanderPage struct {
	Container   *EDHRECContainer `json:"container"`
	Description string           `json:"description"`
}

// EDHRECContainer holds the main data structure.
type EDHRECContainer struct {
	JSONDict    *EDHRECJSONDict `json:"json_dict"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
}

// EDHRECJSONDict contains card lists.
type EDHRECJSONDict struct {
	CardLists []*EDHRECCardList `json:"cardlists"`
}

// EDHRECCardList represents a categorized list of cards.
type EDHRECCardList struct {
	Tag       string            `json:"tag"`
	Header    string            `json:"header"`
	CardViews []*EDHRECCardView `json:"cardviews"`
}

// EDHRECCardView represents a card with synergy information.
type EDHRECCardView struct {
	Name      string  `json:"name"`
	Sanitized string  `json:"sanitized"`
	Synergy   float64 `json:"synergy"`
	Inclusion int     `json:"inclusion"`
	NumDecks  int     `json:"num_decks"`
}

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// SanitizeCardName converts a card name to EDHREC's URL format.
func SanitizeCardName(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " // ", "-")
	slug = strings.ReplaceAll(slug, "'", "")
	slug = strings.ReplaceAll(slug, ",", "")
	slug = nonSlugChars.ReplaceAllString(slug, "")
	slug = whitespace.ReplaceAllString(slug, "-")
	return slug
}

// Hints returns suggested card names for a commander, best sections first,
// de-duplicated and capped.
func (c *EDHRECClient) Hints(ctx context.Context, commander string) ([]string, error) {
	if commander == "" {
		return nil, nil
	}
	key := SanitizeCardName(commander)
	if hints, ok := c.cache.get(key); ok {
		return hints, nil
	}

	page, err := c.getCommanderPage(ctx, key)
	if err != nil {
		return nil, err
	}

	hints := extractHints(page)
	c.cache.put(key, hints)
	c.logger.Debug("fetched synergy hints", zap.String("commander", commander), zap.Int("hints", len(hints)))
	return hints, nil
}

func extractHints(page *EDHRECCommanderPage) []string {
	if page.Container == nil || page.Container.JSONDict == nil {
		return []string{}
	}

	byHeader := make(map[string]*EDHRECCardList, len(page.Container.JSONDict.CardLists))
	for _, list := range page.Container.JSONDict.CardLists {
		if list != nil {
			byHeader[list.Header] = list
		}
	}

	hints := make([]string, 0, maxHints)
	seen := make(map[string]bool)
	for _, header := range hintSections {
		list, ok := byHeader[header]
		if !ok {
			continue
		}
		for i, view := range list.CardViews {
			if i >= perSectionLimit {
				break
			}
			if view == nil || view.Name == "" || seen[view.Name] {
				continue
			}
			seen[view.Name] = true
			hints = append(hints, view.Name)
			if len(hints) == maxHints {
				return hints
			}
		}
	}
	return hints
}

// getCommanderPage fetches a commander page with one immediate retry on
// transport failure. A missing page is not retried.
func (c *EDHRECClient) getCommanderPage(ctx context.Context, slug string) (*EDHRECCommanderPage, error) {
	url := fmt.Sprintf("%s/commanders/%s.json", c.baseURL, slug)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, retry, err := c.fetch(ctx, url)
		if err == nil {
			return page, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to fetch commander data: %w", lastErr)
}

func (c *EDHRECClient) fetch(ctx context.Context, url string) (*EDHRECCommanderPage, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "commander-deckgen/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return nil, false, ErrCommanderNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var page EDHRECCommanderPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}
	return &page, false, nil
}
