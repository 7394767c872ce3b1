package shared

import (
	"time"
)

// TokenUsage tracks the tokens consumed by a single model call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Model            string
}

// AgentMeta holds operational metadata for one LLM-backed step
// (parser, estimator) of a resolution request.
type AgentMeta struct {
	AgentName string
	RequestID string
	Usage     TokenUsage
	Latency   time.Duration
}
