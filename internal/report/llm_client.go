package report

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one turn of the prompt sent to a provider.
type ChatMessage struct {
	Role    string
	Content string
}

// TokenUsage mirrors the provider's token accounting, surfaced for logging.
type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// LLMRequest carries what a provider needs to produce a report. Providers
// that do not support a field ignore it.
type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
}

type LLMResponse struct {
	Text  string
	Usage TokenUsage
}

// LLMClient abstracts the text-generation provider so the generator can be
// tested against a stub and wrapped in a fallback chain.
type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
