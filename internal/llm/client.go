// ABOUTME: Simulated chat client standing in for host LLM infrastructure
// ABOUTME: Builds message sequences, estimates usage, and returns canned replies

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/anna-assist/internal/conversation"
)

// DefaultPromptBudget is the token ceiling IsPromptTooLong checks against
// when the config carries no MaxTokens.
const DefaultPromptBudget = 4000

// SimulatedClient implements Client without any network calls. The real
// chat capability lives in host infrastructure; this stand-in produces a
// deterministic reply that echoes what it was asked, with usage figures
// from the same token estimator the context layer uses.
type SimulatedClient struct {
	config Config
	logger *slog.Logger
}

// NewSimulatedClient creates a simulated client. Pass nil logger for default.
func NewSimulatedClient(config Config, logger *slog.Logger) *SimulatedClient {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Model == "" {
		config.Model = "gpt-4"
	}
	return &SimulatedClient{
		config: config,
		logger: logger.With("component", "llm"),
	}
}

// Chat produces a simulated completion for the prompt.
func (c *SimulatedClient) Chat(ctx context.Context, prompt Prompt) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt.User) == "" {
		return nil, &Error{Type: ErrorInvalidRequest, Message: "user prompt is empty"}
	}

	messages := BuildMessages(prompt)

	promptTokens := 0
	for _, m := range messages {
		promptTokens += conversation.EstimateTokens(m.Content)
	}

	content := c.simulateContent(prompt)
	completionTokens := conversation.EstimateTokens(content)

	c.logger.Debug("simulated completion",
		"model", c.config.Model,
		"prompt_tokens", promptTokens,
		"completion_tokens", completionTokens)

	return &Response{
		Content: content,
		Usage: &Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Model: c.config.Model,
	}, nil
}

// simulateContent fabricates a plausible reply without calling a model.
func (c *SimulatedClient) simulateContent(prompt Prompt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Simulated %s response to: %s", c.config.Model, firstLine(prompt.User))
	if prompt.Context != nil && len(prompt.Context.ConversationHistory) > 0 {
		fmt.Fprintf(&b, " (with %d messages of history)", len(prompt.Context.ConversationHistory))
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// BuildMessages flattens a prompt into the role/content sequence a chat
// model expects: system first, then conversation history, then the user turn.
func BuildMessages(prompt Prompt) []conversation.HistoryEntry {
	messages := []conversation.HistoryEntry{
		{Role: conversation.RoleSystem, Content: prompt.System},
	}
	if prompt.Context != nil {
		messages = append(messages, prompt.Context.ConversationHistory...)
	}
	return append(messages, conversation.HistoryEntry{
		Role:    conversation.RoleUser,
		Content: prompt.User,
	})
}

// IsPromptTooLong reports whether the prompt's estimated token count exceeds
// maxTokens. maxTokens <= 0 uses DefaultPromptBudget.
func IsPromptTooLong(prompt Prompt, maxTokens int) bool {
	if maxTokens <= 0 {
		maxTokens = DefaultPromptBudget
	}

	total := conversation.EstimateTokens(prompt.System) + conversation.EstimateTokens(prompt.User)
	if prompt.Context != nil {
		for _, m := range prompt.Context.ConversationHistory {
			total += conversation.EstimateTokens(m.Content)
		}
	}
	return total > maxTokens
}
