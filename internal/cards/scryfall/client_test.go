package scryfall

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(&Config{
		BaseURL:   server.URL,
		Timeout:   2 * time.Second,
		UserAgent: "test",
	}, nil)
	return client, server
}

var testCards = map[string]string{
	"sol ring":          `{"name":"Sol Ring","color_identity":[],"prices":{"usd":"1.50"},"legalities":{"commander":"legal"}}`,
	"llanowar elves":    `{"name":"Llanowar Elves","color_identity":["G"],"prices":{"usd":"0.25"}}`,
	"lightning bolt":    `{"name":"Lightning Bolt","color_identity":["R"],"prices":{"usd":"1.00"}}`,
	"delver of secrets": `{"name":"Delver of Secrets // Insectile Aberration","color_identity":["U"],"prices":{}}`,
}

func collectionHandler(t *testing.T, calls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Path != "/cards/collection" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req CollectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Identifiers) > MaxBatchSize {
			t.Errorf("batch of %d exceeds limit", len(req.Identifiers))
		}

		var data []string
		var notFound []string
		for _, id := range req.Identifiers {
			if card, ok := testCards[strings.ToLower(id.Name)]; ok {
				data = append(data, card)
			} else {
				b, _ := json.Marshal(id)
				notFound = append(notFound, string(b))
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[` + strings.Join(data, ",") + `],"not_found":[` + strings.Join(notFound, ",") + `]}`))
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(nil, nil)

	require.NotNil(t, client)
	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.rateLimiter)
	assert.NotEmpty(t, client.userAgent)
	assert.Equal(t, defaultBaseURL, client.baseURL)
	assert.Equal(t, requestTimeout, client.timeout)
}

func TestClient_BulkLookup(t *testing.T) {
	var calls int32
	client, _ := testClient(t, collectionHandler(t, &calls))

	result, err := client.BulkLookup(context.Background(), []string{
		"Sol Ring", "llanowar elves", "Llanowar Elfs", "Delver of Secrets", "Sol Ring",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	assert.True(t, result["Sol Ring"].Found)
	assert.Equal(t, "Sol Ring", result["Sol Ring"].CanonicalName)
	assert.InDelta(t, 1.5, result["Sol Ring"].PriceUSD, 0.001)
	assert.Equal(t, "legal", result["Sol Ring"].Commander)

	assert.True(t, result["llanowar elves"].Found)
	assert.Equal(t, "Llanowar Elves", result["llanowar elves"].CanonicalName)
	assert.Equal(t, []string{"G"}, result["llanowar elves"].ColorIdentity)

	assert.False(t, result["Llanowar Elfs"].Found)

	assert.True(t, result["Delver of Secrets"].Found, "front face should match a double-faced card")
	assert.Equal(t, "Delver of Secrets // Insectile Aberration", result["Delver of Secrets"].CanonicalName)
}

func TestClient_BulkLookup_Batches(t *testing.T) {
	var calls int32
	client, _ := testClient(t, collectionHandler(t, &calls))

	names := make([]string, 0, 80)
	for i := 0; i < 80; i++ {
		names = append(names, "Unknown Card "+string(rune('A'+i%26))+strings.Repeat("x", i/26))
	}
	result, err := client.BulkLookup(context.Background(), names)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Len(t, result, 80)
}

func TestClient_BulkLookup_Empty(t *testing.T) {
	var calls int32
	client, _ := testClient(t, collectionHandler(t, &calls))

	result, err := client.BulkLookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestClient_FuzzyLookup_SingleMatch(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cards/named", r.URL.Path)
		assert.Equal(t, "Llanowar Elfs", r.URL.Query().Get("fuzzy"))
		_, _ = w.Write([]byte(testCards["llanowar elves"]))
	})

	candidates, err := client.FuzzyLookup(context.Background(), "Llanowar Elfs")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Llanowar Elves", candidates[0].Lookup.CanonicalName)
	assert.Greater(t, candidates[0].Confidence, 80)
}

func TestClient_FuzzyLookup_AmbiguousFallsBackToSearch(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cards/named":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"object":"error","code":"not_found","status":404,"type":"ambiguous","details":"Too many cards match ambiguous name"}`))
		case "/cards/search":
			_, _ = w.Write([]byte(`{"object":"list","total_cards":2,"data":[
				{"name":"Sol Talisman","color_identity":[]},
				{"name":"Sol Ring","color_identity":[]}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	candidates, err := client.FuzzyLookup(context.Background(), "Sol Rin")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "Sol Ring", candidates[0].Lookup.CanonicalName, "candidates are ranked by similarity")
	assert.GreaterOrEqual(t, candidates[0].Confidence, candidates[1].Confidence)
}

func TestClient_FuzzyLookup_NoMatch(t *testing.T) {
	var calls int32
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"object":"error","code":"not_found","status":404,"details":"No cards found matching"}`))
	})

	candidates, err := client.FuzzyLookup(context.Background(), "Totally Fake Card")
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "not found is never retried")
}

func TestClient_RetriesOnceOnServerError(t *testing.T) {
	var calls int32
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(testCards["sol ring"]))
	})

	candidates, err := client.FuzzyLookup(context.Background(), "Sol Ring")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Sol Ring", candidates[0].Lookup.CanonicalName)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_UnavailableAfterRetry(t *testing.T) {
	var calls int32
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.BulkLookup(context.Background(), []string{"Sol Ring"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_TimeoutIsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(&Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, nil)

	_, err := client.BulkLookup(context.Background(), []string{"Sol Ring"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestClient_CancelledContextIsNotUnavailable(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testCards["sol ring"]))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FuzzyLookup(ctx, "Sol Ring")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrUnavailable))
}

func TestPrices_USDValue(t *testing.T) {
	usd, foil := "2.50", "9.99"
	assert.InDelta(t, 2.5, Prices{USD: &usd, USDFoil: &foil}.USDValue(), 0.001)
	assert.InDelta(t, 9.99, Prices{USDFoil: &foil}.USDValue(), 0.001)
	assert.Zero(t, Prices{}.USDValue())
}
