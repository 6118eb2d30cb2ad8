package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func refinementRequest() *Request {
	return &Request{
		System:  "policy",
		Context: []string{"deck state", "synergy hints"},
		Turns: []Message{
			{Role: RoleUser, Content: "earlier ask"},
			{Role: RoleAssistant, Content: "earlier deck"},
		},
		Prompt:         "build Meren",
		PreviousOutput: `{"Deck":{}}`,
		Correction:     "add 8 cards",
	}
}

func TestRequest_Messages(t *testing.T) {
	msgs := refinementRequest().Messages()

	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	assert.Equal(t, []string{
		RoleSystem, RoleSystem, RoleSystem,
		RoleUser, RoleAssistant,
		RoleUser, RoleAssistant, RoleSystem,
	}, roles)
	assert.Equal(t, "build Meren", msgs[5].Content)
	assert.Equal(t, "add 8 cards", msgs[7].Content)
}

func TestRequest_MessagesFirstAttempt(t *testing.T) {
	msgs := (&Request{System: "policy", Prompt: "go"}).Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[1].Role)
}

func TestGeminiContents(t *testing.T) {
	system, contents := geminiContents(refinementRequest())

	assert.Equal(t, "policy\n\ndeck state\n\nsynergy hints", system)
	require.Len(t, contents, 5)
	wantRoles := []genai.Role{genai.RoleUser, genai.RoleModel, genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, c := range contents {
		assert.Equal(t, string(wantRoles[i]), c.Role, "content %d", i)
	}
	assert.Equal(t, "earlier deck", contents[1].Parts[0].Text)
	assert.Equal(t, "add 8 cards", contents[4].Parts[0].Text)
}

func TestGeminiContents_FirstAttempt(t *testing.T) {
	system, contents := geminiContents(&Request{Prompt: "build Meren"})

	assert.Empty(t, system)
	require.Len(t, contents, 1)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, "build Meren", contents[0].Parts[0].Text)
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"Type\":\"Deck\"}"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "secret", BaseURL: server.URL + "/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "sonar-pro", client.Model())

	out, err := client.Generate(context.Background(), refinementRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"Type":"Deck"}`, out)
	assert.Equal(t, "sonar-pro", got.Model)
	assert.Len(t, got.Messages, 8)
}

func TestOpenAIClient_Errors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := NewOpenAIClient(OpenAIConfig{}, nil)
		assert.Error(t, err)
	})

	t.Run("non-200", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL}, nil)
		require.NoError(t, err)
		_, err = client.Generate(context.Background(), &Request{Prompt: "x"})
		assert.ErrorContains(t, err, "429")
	})

	t.Run("no choices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		client, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: server.URL}, nil)
		require.NoError(t, err)
		_, err = client.Generate(context.Background(), &Request{Prompt: "x"})
		assert.ErrorContains(t, err, "no completion")
	})
}

func TestNew(t *testing.T) {
	gen, err := New(context.Background(), Config{Provider: ProviderOllama, Model: "llama3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "llama3", gen.Model())

	gen, err = New(context.Background(), Config{Provider: ProviderOllama, Model: "llama3", AutoPullModel: true}, nil)
	require.NoError(t, err)
	assert.True(t, gen.(*OllamaClient).config.AutoPullModel)

	_, err = New(context.Background(), Config{Provider: "mystery"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Provider: ProviderGemini}, nil)
	assert.Error(t, err, "gemini requires an API key")
}
