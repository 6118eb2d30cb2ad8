// Package llm talks to the text generation backends that draft deck lists.
package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Message roles shared by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is everything a generator needs for one deck draft.
type Request struct {
	// System is the fixed policy text.
	System string

	// Context holds extra system notes: current deck state, synergy hints, budget.
	Context []string

	// Turns is the truncated conversation history, oldest first.
	Turns []Message

	// Prompt is the user's request for this session.
	Prompt string

	// PreviousOutput and Correction are set on refinement attempts.
	PreviousOutput string
	Correction     string

	Temperature float64

	// AutoPullModel lets the Ollama backend pull a missing model.
	AutoPullModel bool
}

// Messages flattens the request into chat order: policy, context notes,
// history, the prompt, then the previous draft and the correction.
func (r *Request) Messages() []Message {
	msgs := make([]Message, 0, len(r.Context)+len(r.Turns)+4)
	if r.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.System})
	}
	for _, c := range r.Context {
		msgs = append(msgs, Message{Role: RoleSystem, Content: c})
	}
	msgs = append(msgs, r.Turns...)
	if r.Prompt != "" {
		msgs = append(msgs, Message{Role: RoleUser, Content: r.Prompt})
	}
	if r.PreviousOutput != "" {
		msgs = append(msgs, Message{Role: RoleAssistant, Content: r.PreviousOutput})
	}
	if r.Correction != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: r.Correction})
	}
	return msgs
}

// Generator produces raw model text for a request. Implementations make a
// single blocking call and never retry.
type Generator interface {
	Generate(ctx context.Context, req *Request) (string, error)
	Model() string
}

// Provider names accepted by New.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and configures a backend.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
}

// New builds the generator named by cfg.Provider.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case ProviderOllama, "":
		oc := DefaultOllamaConfig()
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			oc.Model = cfg.Model
		}
		if cfg.Timeout > 0 {
			oc.InferenceTimeout = cfg.Timeout
		}
		oc.Temperature = cfg.Temperature
		oc.AutoPullModel = cfg.AutoPullModel
		return NewOllamaClient(oc, logger), nil
	case ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
		}, logger)
	case ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
