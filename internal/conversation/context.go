// ABOUTME: Read-only derivation layer over the conversation store
// ABOUTME: Produces history windows, token-budget slices, and title/stat heuristics

package conversation

import (
	"fmt"
	"log/slog"
	"strings"
)

// historyWindow is the number of most recent messages included in an LLM
// context window.
const historyWindow = 10

// maxPreviousQueries bounds the previous-query ring kept in conversation
// context metadata.
const maxPreviousQueries = 10

// DefaultMaxContextTokens is the token budget used by ExtractRelevantContext
// when the caller passes no budget.
const DefaultMaxContextTokens = 2000

// followUpIndicators are the lexical prefixes that mark a user message as a
// likely follow-up to the previous assistant turn.
var followUpIndicators = []string{
	"what about", "how about", "and", "also", "but", "what if", "why", "how",
}

// HistoryEntry is a message reduced to what an LLM prompt needs.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ContextWindow is the prompt context derived for a conversation: a bounded
// history window plus whatever time range was previously stored for it.
type ContextWindow struct {
	ConversationHistory []HistoryEntry
	TimeRange           *TimeRange
}

// ContextPatch is a partial update to a conversation's context metadata.
// Nil fields leave the existing value untouched; non-nil fields overwrite it.
// Extra entries are merged key-wise into the existing Extra map.
type ContextPatch struct {
	DatasourceID    *string
	DashboardID     *string
	TimeRange       *TimeRange
	PreviousQueries *[]string
	Extra           map[string]any
}

// Stats summarizes a conversation for display and budgeting.
type Stats struct {
	MessageCount          int
	UserMessageCount      int
	AssistantMessageCount int
	TotalTokens           int
}

// ContextManager derives LLM-prompt context from the store's current state.
// It holds no state of its own beyond the store reference; every result is a
// pure function of the store's snapshot at call time. It is the only
// component that reads or writes a conversation's context metadata.
//
// Read-only derivations degrade to empty/default results when the
// conversation is absent; the two mutating operations fail with ErrNotFound
// instead, because their callers need to know whether the update landed.
type ContextManager struct {
	store  *Store
	logger *slog.Logger
}

// NewContextManager creates a context manager over the given store.
// Pass nil logger for default.
func NewContextManager(store *Store, logger *slog.Logger) *ContextManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextManager{
		store:  store,
		logger: logger.With("component", "context"),
	}
}

// GetContext returns the prompt context for the given conversation, or for
// the active conversation when conversationID is empty. Returns nil if no
// conversation resolves. The history window holds the last messages in
// original order, oldest of the retained window first.
func (m *ContextManager) GetContext(conversationID string) *ContextWindow {
	var conv Conversation
	var ok bool
	if conversationID != "" {
		conv, ok = m.store.GetConversation(conversationID)
	} else {
		conv, ok = m.store.GetActiveConversation()
	}
	if !ok {
		return nil
	}

	start := len(conv.Messages) - historyWindow
	if start < 0 {
		start = 0
	}
	recent := conv.Messages[start:]

	history := make([]HistoryEntry, len(recent))
	for i, msg := range recent {
		history[i] = HistoryEntry{Role: msg.Role, Content: msg.Content}
	}

	window := &ContextWindow{ConversationHistory: history}
	if conv.Metadata != nil && conv.Metadata.Context != nil && conv.Metadata.Context.TimeRange != nil {
		tr := *conv.Metadata.Context.TimeRange
		window.TimeRange = &tr
	}
	return window
}

// UpdateContext shallow-merges the given patch into a conversation's context
// metadata and writes the conversation back through the store's normal
// persist/publish path. Returns ErrNotFound if the conversation is absent.
func (m *ContextManager) UpdateContext(conversationID string, patch ContextPatch) error {
	conv, ok := m.store.GetConversation(conversationID)
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	if conv.Metadata == nil {
		conv.Metadata = &ConversationMetadata{}
	}
	if conv.Metadata.Context == nil {
		conv.Metadata.Context = &Context{}
	}
	cc := conv.Metadata.Context

	if patch.DatasourceID != nil {
		cc.DatasourceID = *patch.DatasourceID
	}
	if patch.DashboardID != nil {
		cc.DashboardID = *patch.DashboardID
	}
	if patch.TimeRange != nil {
		tr := *patch.TimeRange
		cc.TimeRange = &tr
	}
	if patch.PreviousQueries != nil {
		cc.PreviousQueries = append([]string(nil), (*patch.PreviousQueries)...)
	}
	if len(patch.Extra) > 0 {
		if cc.Extra == nil {
			cc.Extra = make(map[string]any, len(patch.Extra))
		}
		for k, v := range patch.Extra {
			cc.Extra[k] = v
		}
	}

	if err := m.store.ReplaceConversation(conv); err != nil {
		return err
	}
	m.logger.Debug("context updated", "conversation_id", conversationID)
	return nil
}

// AddQueryToHistory appends a query to the conversation's previous-query
// list, keeping only the most recent entries. Returns ErrNotFound if the
// conversation is absent.
func (m *ContextManager) AddQueryToHistory(conversationID, query string) error {
	conv, ok := m.store.GetConversation(conversationID)
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	var previous []string
	if conv.Metadata != nil && conv.Metadata.Context != nil {
		previous = conv.Metadata.Context.PreviousQueries
	}

	queries := append(append([]string(nil), previous...), query)
	if len(queries) > maxPreviousQueries {
		queries = queries[len(queries)-maxPreviousQueries:]
	}

	return m.UpdateContext(conversationID, ContextPatch{PreviousQueries: &queries})
}

// ExtractRelevantContext selects the most recent messages that fit within
// maxTokens (estimated via EstimateTokens), newest-first accumulation. A
// message that would overflow the budget is excluded, not split. The result
// is in original chronological order. An absent conversation yields an empty
// result, not an error. maxTokens <= 0 uses DefaultMaxContextTokens.
func (m *ContextManager) ExtractRelevantContext(conversationID string, maxTokens int) ([]Message, int) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}

	conv, ok := m.store.GetConversation(conversationID)
	if !ok {
		return []Message{}, 0
	}

	var selected []Message
	totalTokens := 0

	for i := len(conv.Messages) - 1; i >= 0; i-- {
		msg := conv.Messages[i]
		tokens := EstimateTokens(msg.Content)
		if totalTokens+tokens > maxTokens {
			break
		}
		selected = append([]Message{msg}, selected...)
		totalTokens += tokens
	}

	if selected == nil {
		selected = []Message{}
	}
	return selected, totalTokens
}

// IsFollowUpQuestion reports whether userMessage looks like a continuation
// of the previous assistant turn: the conversation's last message must be
// from the assistant, and the candidate text (lower-cased, trimmed) must
// start with one of the follow-up indicators.
func (m *ContextManager) IsFollowUpQuestion(conversationID, userMessage string) bool {
	conv, ok := m.store.GetConversation(conversationID)
	if !ok || len(conv.Messages) == 0 {
		return false
	}

	last := conv.Messages[len(conv.Messages)-1]
	if last.Role != RoleAssistant {
		return false
	}

	candidate := strings.ToLower(strings.TrimSpace(userMessage))
	for _, indicator := range followUpIndicators {
		if strings.HasPrefix(candidate, indicator) {
			return true
		}
	}
	return false
}

// SuggestTitle proposes a title from the first user message, truncated to 50
// characters with "..." appended when longer. Returns the default sentinel
// when the conversation is absent, empty, or has no user message.
func (m *ContextManager) SuggestTitle(conversationID string) string {
	conv, ok := m.store.GetConversation(conversationID)
	if !ok || len(conv.Messages) == 0 {
		return DefaultTitle
	}

	for _, msg := range conv.Messages {
		if msg.Role == RoleUser {
			return deriveTitle(msg.Content)
		}
	}
	return DefaultTitle
}

// GetStats returns message counts by role and the full-conversation token
// estimate. All zero when the conversation is absent.
func (m *ContextManager) GetStats(conversationID string) Stats {
	conv, ok := m.store.GetConversation(conversationID)
	if !ok {
		return Stats{}
	}

	stats := Stats{MessageCount: len(conv.Messages)}
	for _, msg := range conv.Messages {
		switch msg.Role {
		case RoleUser:
			stats.UserMessageCount++
		case RoleAssistant:
			stats.AssistantMessageCount++
		}
		stats.TotalTokens += EstimateTokens(msg.Content)
	}
	return stats
}
