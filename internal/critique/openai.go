package critique

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zjywill/StravaCritiques/internal/domain"
)

// DefaultSystemPrompt steers the model toward a short, pointed critique that
// quotes the activity's own numbers back at the athlete.
const DefaultSystemPrompt = "You are a sharp-tongued training critic. Read the " +
	"provided activity metrics and JSON, identify the sport, and write a short, " +
	"witty, cutting critique that quotes the key numbers."

const defaultModel = "gpt-3.5-turbo"

// OpenAIGenerator calls an OpenAI-compatible chat-completions endpoint.
type OpenAIGenerator struct {
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	httpClient   *http.Client
	logger       *zap.Logger
}

// OpenAIOption configures optional behaviour for the generator.
type OpenAIOption func(*OpenAIGenerator)

// WithBaseURL points the generator at an alternative OpenAI-compatible API.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if baseURL != "" {
			g.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithModel overrides the model name.
func WithModel(model string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithSystemPrompt overrides the system prompt.
func WithSystemPrompt(prompt string) OpenAIOption {
	return func(g *OpenAIGenerator) {
		if prompt != "" {
			g.systemPrompt = prompt
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) OpenAIOption {
	return func(g *OpenAIGenerator) { g.httpClient = client }
}

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) OpenAIOption {
	return func(g *OpenAIGenerator) { g.logger = logger }
}

// NewOpenAIGenerator constructs a generator authenticated with apiKey.
func NewOpenAIGenerator(apiKey string, opts ...OpenAIOption) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	g := &OpenAIGenerator{
		baseURL:      "https://api.openai.com/v1",
		apiKey:       apiKey,
		model:        defaultModel,
		systemPrompt: DefaultSystemPrompt,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate asks the model to critique one activity. Any failure wraps
// domain.ErrGeneration so the caller can skip the item and continue.
func (g *OpenAIGenerator) Generate(ctx context.Context, activity domain.Activity) (string, error) {
	prompt, err := buildPrompt(activity)
	if err != nil {
		return "", fmt.Errorf("activity %d: %v: %w", activity.ID, err, domain.ErrGeneration)
	}

	payload, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: g.systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("activity %d: encode request: %v: %w", activity.ID, err, domain.ErrGeneration)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("activity %d: build request: %v: %w", activity.ID, err, domain.ErrGeneration)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("activity %d: chat completion request: %v: %w", activity.ID, err, domain.ErrGeneration)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("activity %d: read response: %v: %w", activity.ID, err, domain.ErrGeneration)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("activity %d: decode response: %v: %w", activity.ID, err, domain.ErrGeneration)
	}
	if resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(body))
		if decoded.Error != nil {
			detail = decoded.Error.Message
		}
		return "", fmt.Errorf("activity %d: chat completion status=%d: %s: %w", activity.ID, resp.StatusCode, detail, domain.ErrGeneration)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("activity %d: model returned no choices: %w", activity.ID, domain.ErrGeneration)
	}

	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("activity %d: model returned empty critique: %w", activity.ID, domain.ErrGeneration)
	}
	g.logger.Debug("critique generated", zap.Int64("activity_id", activity.ID), zap.Int("chars", len(text)))
	return text, nil
}
