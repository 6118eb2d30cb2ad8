package scryfall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// MaxBatchSize is the maximum number of cards per batch request (Scryfall limit is 75).
const MaxBatchSize = 75

// CardIdentifier represents a card identifier for the /cards/collection endpoint.
type CardIdentifier struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// CollectionRequest is the request body for /cards/collection.
type CollectionRequest struct {
	Identifiers []CardIdentifier `json:"identifiers"`
}

// CollectionResponse is the response from /cards/collection.
type CollectionResponse struct {
	Object   string           `json:"object"`
	NotFound []CardIdentifier `json:"not_found"`
	Data     []Card           `json:"data"`
}

// BulkLookup checks every name in one logical call against /cards/collection,
// batching by MaxBatchSize. The result has one Lookup per distinct requested
// name, keyed by the name as given; names Scryfall did not know have Found false.
func (c *Client) BulkLookup(ctx context.Context, names []string) (map[string]Lookup, error) {
	unique := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		key := foldName(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, n)
	}

	out := make(map[string]Lookup, len(names))

	for i := 0; i < len(unique); i += MaxBatchSize {
		end := min(i+MaxBatchSize, len(unique))
		batch := unique[i:end]

		cards, err := c.fetchCollection(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch batch %d-%d: %w", i, end, err)
		}

		byName := make(map[string]*Card, len(cards)*2)
		for j := range cards {
			card := &cards[j]
			byName[foldName(card.Name)] = card
			if front := card.FrontFaceName(); front != card.Name {
				if _, taken := byName[foldName(front)]; !taken {
					byName[foldName(front)] = card
				}
			}
		}

		for _, name := range batch {
			if card, ok := byName[foldName(name)]; ok {
				out[name] = LookupFromCard(name, card)
			} else {
				out[name] = Lookup{Requested: name}
			}
		}
	}

	// Callers may pass the same name with different casing; resolve those too.
	for _, n := range names {
		if _, ok := out[n]; ok || n == "" {
			continue
		}
		for _, u := range unique {
			if foldName(u) == foldName(n) {
				l := out[u]
				l.Requested = n
				out[n] = l
				break
			}
		}
	}

	return out, nil
}

// fetchCollection performs a single batch request to /cards/collection.
func (c *Client) fetchCollection(ctx context.Context, names []string) ([]Card, error) {
	identifiers := make([]CardIdentifier, len(names))
	for i, name := range names {
		identifiers[i] = CardIdentifier{Name: name}
	}

	body, err := json.Marshal(CollectionRequest{Identifiers: identifiers})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp CollectionResponse
	if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/cards/collection", body, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func foldName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
