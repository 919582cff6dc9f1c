// ABOUTME: Types for the language-model chat capability
// ABOUTME: Prompts, responses, usage accounting, and categorized errors

package llm

import (
	"context"
	"fmt"

	"github.com/2389/anna-assist/internal/conversation"
)

// Provider identifies a language-model backend.
type Provider string

const (
	ProviderOpenAI      Provider = "openai"
	ProviderAnthropic   Provider = "anthropic"
	ProviderAzureOpenAI Provider = "azure-openai"
	ProviderCustom      Provider = "custom"
)

// Config holds model selection and generation parameters.
type Config struct {
	Provider    Provider
	Model       string
	MaxTokens   int
	Temperature float64
}

// PromptContext carries conversation-derived context alongside a prompt.
type PromptContext struct {
	ConversationHistory []conversation.HistoryEntry
	DatasourceInfo      *DatasourceInfo
	TimeRange           *conversation.TimeRange
	PreviousQueries     []string
}

// DatasourceInfo describes the datasource the user is asking about.
type DatasourceInfo struct {
	Type             string
	Name             string
	AvailableMetrics []string
	AvailableLabels  []string
}

// Prompt is a structured request for the chat capability.
type Prompt struct {
	System  string
	User    string
	Context *PromptContext
}

// Usage reports token consumption for a single completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the result of a chat completion.
type Response struct {
	Content string
	Usage   *Usage
	Model   string
}

// ErrorType categorizes chat failures.
type ErrorType string

const (
	ErrorRateLimit      ErrorType = "rate_limit"
	ErrorInvalidRequest ErrorType = "invalid_request"
	ErrorAuthentication ErrorType = "authentication"
	ErrorServer         ErrorType = "server_error"
	ErrorUnknown        ErrorType = "unknown"
)

// Error is a categorized chat failure.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %s", e.Type, e.Message)
}

// Client is the opaque chat capability the assistant calls through.
// Implementations live in host infrastructure; this package ships a
// simulated one.
type Client interface {
	Chat(ctx context.Context, prompt Prompt) (*Response, error)
}
