// ABOUTME: Tests for the ContextManager derivation layer
// ABOUTME: Covers history windows, token budgets, follow-up and title heuristics

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/anna-assist/internal/storage"
)

func newTestManager(t *testing.T) (*ContextManager, *Store) {
	t.Helper()
	s := NewStore(storage.NewMemoryKV(), nil)
	t.Cleanup(s.Close)
	return NewContextManager(s, nil), s
}

func addMessages(t *testing.T, s *Store, convID string, msgs ...NewMessage) {
	t.Helper()
	for _, m := range msgs {
		require.NoError(t, s.AddMessage(convID, m))
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 100), 25},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, EstimateTokens(tc.text), "text %q", tc.text)
	}
}

func TestGetContext_AbsentConversation(t *testing.T) {
	m, _ := newTestManager(t)

	assert.Nil(t, m.GetContext("missing"))
	// No active conversation either
	assert.Nil(t, m.GetContext(""))
}

func TestGetContext_UsesActiveConversationByDefault(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")
	addMessages(t, s, conv.ID, NewMessage{Role: RoleUser, Content: "hello"})

	window := m.GetContext("")
	require.NotNil(t, window)
	require.Len(t, window.ConversationHistory, 1)
	assert.Equal(t, RoleUser, window.ConversationHistory[0].Role)
	assert.Equal(t, "hello", window.ConversationHistory[0].Content)
}

func TestGetContext_WindowsToLastTen(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")
	for i := 0; i < 15; i++ {
		addMessages(t, s, conv.ID, NewMessage{Role: RoleUser, Content: fmt.Sprintf("message %d", i)})
	}

	window := m.GetContext(conv.ID)
	require.NotNil(t, window)
	require.Len(t, window.ConversationHistory, 10)
	// The 10 most recent, in original order
	assert.Equal(t, "message 5", window.ConversationHistory[0].Content)
	assert.Equal(t, "message 14", window.ConversationHistory[9].Content)
}

func TestGetContext_IncludesStoredTimeRange(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")
	addMessages(t, s, conv.ID, NewMessage{Role: RoleUser, Content: "hi"})

	require.NoError(t, m.UpdateContext(conv.ID, ContextPatch{
		TimeRange: &TimeRange{From: "now-6h", To: "now"},
	}))

	window := m.GetContext(conv.ID)
	require.NotNil(t, window)
	require.NotNil(t, window.TimeRange)
	assert.Equal(t, "now-6h", window.TimeRange.From)
	assert.Equal(t, "now", window.TimeRange.To)
}

func TestUpdateContext_NotFound(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.UpdateContext("missing", ContextPatch{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateContext_ShallowMergePreservesUntouchedFields(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")

	ds := "prometheus-main"
	require.NoError(t, m.UpdateContext(conv.ID, ContextPatch{
		DatasourceID: &ds,
		TimeRange:    &TimeRange{From: "now-1h", To: "now"},
	}))

	// Overwrite only the time range; datasource must survive
	require.NoError(t, m.UpdateContext(conv.ID, ContextPatch{
		TimeRange: &TimeRange{From: "now-24h", To: "now"},
	}))

	got, ok := s.GetConversation(conv.ID)
	require.True(t, ok)
	require.NotNil(t, got.Metadata)
	require.NotNil(t, got.Metadata.Context)
	assert.Equal(t, "prometheus-main", got.Metadata.Context.DatasourceID)
	assert.Equal(t, "now-24h", got.Metadata.Context.TimeRange.From)
}

func TestUpdateContext_MergesExtraKeywise(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")

	require.NoError(t, m.UpdateContext(conv.ID, ContextPatch{
		Extra: map[string]any{"panel": "errors", "region": "eu"},
	}))
	require.NoError(t, m.UpdateContext(conv.ID, ContextPatch{
		Extra: map[string]any{"panel": "latency"},
	}))

	got, _ := s.GetConversation(conv.ID)
	assert.Equal(t, "latency", got.Metadata.Context.Extra["panel"])
	assert.Equal(t, "eu", got.Metadata.Context.Extra["region"])
}

func TestUpdateContext_RefreshesUpdatedAt(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")
	before, _ := s.GetConversation(conv.ID)

	ds := "loki"
	require.NoError(t, m.UpdateContext(conv.ID, ContextPatch{DatasourceID: &ds}))

	after, _ := s.GetConversation(conv.ID)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
}

func TestUpdateContext_PublishesThroughStore(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")

	ch, _ := s.Subscribe(context.Background())
	<-ch

	ds := "prometheus"
	require.NoError(t, m.UpdateContext(conv.ID, ContextPatch{DatasourceID: &ds}))

	state := <-ch
	require.Len(t, state.Conversations, 1)
	require.NotNil(t, state.Conversations[0].Metadata)
	assert.Equal(t, "prometheus", state.Conversations[0].Metadata.Context.DatasourceID)
}

func TestAddQueryToHistory(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")

	require.NoError(t, m.AddQueryToHistory(conv.ID, "rate(http_requests_total[5m])"))
	require.NoError(t, m.AddQueryToHistory(conv.ID, "up == 0"))

	got, _ := s.GetConversation(conv.ID)
	require.NotNil(t, got.Metadata.Context)
	assert.Equal(t, []string{"rate(http_requests_total[5m])", "up == 0"}, got.Metadata.Context.PreviousQueries)
}

func TestAddQueryToHistory_KeepsMostRecentTen(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")

	for i := 0; i < 13; i++ {
		require.NoError(t, m.AddQueryToHistory(conv.ID, fmt.Sprintf("query %d", i)))
	}

	got, _ := s.GetConversation(conv.ID)
	queries := got.Metadata.Context.PreviousQueries
	require.Len(t, queries, 10)
	assert.Equal(t, "query 3", queries[0])
	assert.Equal(t, "query 12", queries[9])
}

func TestAddQueryToHistory_NotFound(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.AddQueryToHistory("missing", "up")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestExtractRelevantContext_BudgetLimitsSelection(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")

	// 5 messages of 100 chars, ~25 tokens apiece
	content := strings.Repeat("a", 100)
	for i := 0; i < 5; i++ {
		addMessages(t, s, conv.ID, NewMessage{Role: RoleUser, Content: content})
	}

	messages, totalTokens := m.ExtractRelevantContext(conv.ID, 50)
	assert.LessOrEqual(t, len(messages), 2)
	assert.LessOrEqual(t, totalTokens, 50)
	assert.Equal(t, 50, totalTokens)
}

func TestExtractRelevantContext_NewestFirstChronologicalResult(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")
	addMessages(t, s, conv.ID,
		NewMessage{Role: RoleUser, Content: strings.Repeat("o", 400)}, // 100 tokens, dropped
		NewMessage{Role: RoleUser, Content: "middle"},
		NewMessage{Role: RoleAssistant, Content: "newest"},
	)

	messages, totalTokens := m.ExtractRelevantContext(conv.ID, 10)
	require.Len(t, messages, 2)
	assert.Equal(t, "middle", messages[0].Content)
	assert.Equal(t, "newest", messages[1].Content)
	assert.Equal(t, EstimateTokens("middle")+EstimateTokens("newest"), totalTokens)
}

func TestExtractRelevantContext_OverflowingMessageExcludedNotSplit(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")
	addMessages(t, s, conv.ID,
		NewMessage{Role: RoleUser, Content: strings.Repeat("b", 40)}, // 10 tokens
		NewMessage{Role: RoleUser, Content: strings.Repeat("c", 20)}, // 5 tokens
	)

	// Budget fits the newest message only; the older one would overflow
	messages, totalTokens := m.ExtractRelevantContext(conv.ID, 8)
	require.Len(t, messages, 1)
	assert.Equal(t, strings.Repeat("c", 20), messages[0].Content)
	assert.Equal(t, 5, totalTokens)
}

func TestExtractRelevantContext_AbsentConversationIsEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	messages, totalTokens := m.ExtractRelevantContext("missing", 100)
	assert.Empty(t, messages)
	assert.Zero(t, totalTokens)
}

func TestExtractRelevantContext_DefaultBudget(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")
	addMessages(t, s, conv.ID, NewMessage{Role: RoleUser, Content: "small"})

	messages, totalTokens := m.ExtractRelevantContext(conv.ID, 0)
	assert.Len(t, messages, 1)
	assert.Equal(t, EstimateTokens("small"), totalTokens)
}

func TestIsFollowUpQuestion(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")
	addMessages(t, s, conv.ID,
		NewMessage{Role: RoleUser, Content: "show me errors"},
		NewMessage{Role: RoleAssistant, Content: "here are the errors"},
	)

	cases := []struct {
		input string
		want  bool
	}{
		{"What about errors?", true},
		{"AND MORE?", true},
		{"  how about last week", true},
		{"why did it spike", true},
		{"Tell me about errors", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, m.IsFollowUpQuestion(conv.ID, tc.input), "input %q", tc.input)
	}
}

func TestIsFollowUpQuestion_RequiresAssistantLastMessage(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")
	addMessages(t, s, conv.ID, NewMessage{Role: RoleUser, Content: "show me errors"})

	assert.False(t, m.IsFollowUpQuestion(conv.ID, "what about warnings?"))
}

func TestIsFollowUpQuestion_AbsentOrEmptyConversation(t *testing.T) {
	m, s := newTestManager(t)
	assert.False(t, m.IsFollowUpQuestion("missing", "what about it"))

	conv := s.CreateConversation("")
	assert.False(t, m.IsFollowUpQuestion(conv.ID, "what about it"))
}

func TestSuggestTitle(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("explicit title")
	addMessages(t, s, conv.ID,
		NewMessage{Role: RoleAssistant, Content: "welcome"},
		NewMessage{Role: RoleUser, Content: strings.Repeat("Y", 60)},
	)

	title := m.SuggestTitle(conv.ID)
	assert.Equal(t, strings.Repeat("Y", 50)+"...", title)
	assert.Len(t, title, 53)
}

func TestSuggestTitle_Defaults(t *testing.T) {
	m, s := newTestManager(t)

	// Absent conversation
	assert.Equal(t, DefaultTitle, m.SuggestTitle("missing"))

	// No messages at all
	empty := s.CreateConversation("")
	assert.Equal(t, DefaultTitle, m.SuggestTitle(empty.ID))

	// Only an assistant message
	assistantOnly := s.CreateConversation("")
	addMessages(t, s, assistantOnly.ID, NewMessage{Role: RoleAssistant, Content: "hello there"})
	assert.Equal(t, DefaultTitle, m.SuggestTitle(assistantOnly.ID))
}

func TestGetStats(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")
	addMessages(t, s, conv.ID,
		NewMessage{Role: RoleUser, Content: "AAAA"},
		NewMessage{Role: RoleAssistant, Content: "BBBB"},
		NewMessage{Role: RoleSystem, Content: "sys"},
	)

	stats := m.GetStats(conv.ID)
	assert.Equal(t, 3, stats.MessageCount)
	assert.Equal(t, 1, stats.UserMessageCount)
	assert.Equal(t, 1, stats.AssistantMessageCount)
	assert.Equal(t, 3, stats.TotalTokens) // 1 + 1 + 1 via ceil(len/4)
}

func TestGetStats_AbsentConversation(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Equal(t, Stats{}, m.GetStats("missing"))
}

func TestGetStats_TokenEstimation(t *testing.T) {
	m, s := newTestManager(t)
	conv := s.CreateConversation("")
	addMessages(t, s, conv.ID,
		NewMessage{Role: RoleUser, Content: "AAAA"},
		NewMessage{Role: RoleAssistant, Content: "BBBB"},
	)

	stats := m.GetStats(conv.ID)
	assert.Equal(t, 2, stats.TotalTokens)
}
