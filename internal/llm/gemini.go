package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float64
}

// GeminiClient implements Generator with Google's GenAI SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	temperature float64
	logger      *zap.Logger
}

// NewGeminiClient creates a Gemini generator.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		logger:      logger.Named("gemini"),
	}, nil
}

// Model returns the configured model name.
func (g *GeminiClient) Model() string {
	return g.model
}

// Generate sends one GenerateContent call in JSON response mode.
func (g *GeminiClient) Generate(ctx context.Context, req *Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	system, contents := geminiContents(req)
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	temp := req.Temperature
	if temp == 0 {
		temp = g.temperature
	}
	if temp > 0 {
		t := float32(temp)
		cfg.Temperature = &t
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no content returned")
	}
	g.logger.Debug("generation completed", zap.Duration("latency", time.Since(start)))
	return text, nil
}

// geminiContents maps a request onto Gemini's two-role conversation. System
// text and context notes become the system instruction; a correction is sent
// as a user turn after the model's previous draft.
func geminiContents(req *Request) (string, []*genai.Content) {
	var system []string
	if req.System != "" {
		system = append(system, req.System)
	}
	system = append(system, req.Context...)

	contents := make([]*genai.Content, 0, len(req.Turns)+3)
	for _, t := range req.Turns {
		var role genai.Role = genai.RoleUser
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	if req.Prompt != "" {
		contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))
	}
	if req.PreviousOutput != "" {
		contents = append(contents, genai.NewContentFromText(req.PreviousOutput, genai.RoleModel))
	}
	if req.Correction != "" {
		contents = append(contents, genai.NewContentFromText(req.Correction, genai.RoleUser))
	}
	return strings.Join(system, "\n\n"), contents
}
