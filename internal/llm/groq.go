package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"nutrition-resolver/internal/config"
	"nutrition-resolver/internal/shared"
)

const groqAPIURL = "https://api.groq.com/openai/v1/chat/completions"

// groqClient is a client for the Groq API.
type groqClient struct {
	apiKey      string
	apiURL      string
	model       string
	temperature float64
	jsonMode    bool
	httpClient  *http.Client
}

// GroqOption customizes a Groq client.
type GroqOption func(*groqClient)

// WithGroqURL points the client at a different chat completions endpoint.
func WithGroqURL(url string) GroqOption {
	return func(c *groqClient) { c.apiURL = url }
}

// WithFreeformOutput disables the json_object response format. Compound
// (web search) models reject it.
func WithFreeformOutput() GroqOption {
	return func(c *groqClient) { c.jsonMode = false }
}

// NewGroqClient creates a new Groq API client for the given model.
func NewGroqClient(cfg *config.Config, model string, temperature float64, opts ...GroqOption) TextGenerator {
	apiURL := cfg.GroqAPIURL
	if apiURL == "" {
		apiURL = groqAPIURL
	}
	c := &groqClient{
		apiKey:      cfg.GroqAPIKey,
		apiURL:      apiURL,
		model:       model,
		temperature: temperature,
		jsonMode:    true,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GenerateContent sends a prompt to the Groq model and returns the generated text.
func (c *groqClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	if c.apiKey == "" {
		return ContentResponse{}, fmt.Errorf("%w: GROQ_API_KEY environment variable not set", ErrMissingCredentials)
	}

	reqBody := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": prompt,
			},
		},
		"temperature": c.temperature,
	}
	if c.jsonMode {
		reqBody["response_format"] = map[string]string{"type": "json_object"}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ContentResponse{}, fmt.Errorf("%w: groq api status=%d", ErrMissingCredentials, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return ContentResponse{}, fmt.Errorf("groq api error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	var groqResp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&groqResp); err != nil {
		return ContentResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(groqResp.Choices) == 0 {
		return ContentResponse{}, fmt.Errorf("no content generated")
	}

	model := groqResp.Model
	if model == "" {
		model = c.model
	}

	return ContentResponse{
		Content: groqResp.Choices[0].Message.Content,
		Usage: shared.TokenUsage{
			PromptTokens:     groqResp.Usage.PromptTokens,
			CompletionTokens: groqResp.Usage.CompletionTokens,
			TotalTokens:      groqResp.Usage.TotalTokens,
			Model:            model,
		},
	}, nil
}
