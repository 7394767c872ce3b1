package llm

import (
	"context"
	"errors"

	"nutrition-resolver/internal/shared"
)

// Model identifiers used across the service.
const (
	ModelParser        = "llama-3.3-70b-versatile"
	ModelEstimator     = "llama-3.3-70b-versatile"
	ModelWebSearch     = "groq/compound"
	ModelGeminiDefault = "gemini-2.0-flash"
)

// ErrMissingCredentials is returned when a provider key is empty or rejected.
var ErrMissingCredentials = errors.New("missing or rejected credentials")

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator is an interface for generating text from a prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}
