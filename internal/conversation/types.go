// ABOUTME: Data model for the conversation subsystem
// ABOUTME: Defines Message, Conversation, State and their metadata side-channels

package conversation

import (
	"time"
	"unicode/utf8"
)

// DefaultTitle is the sentinel title assigned to new conversations.
// While a conversation still carries it, the title is auto-derived from the
// first user message.
const DefaultTitle = "New Chat"

// titleMaxLen is the number of characters kept when deriving a title from
// message content.
const titleMaxLen = 50

// Role tags the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single entry in a conversation's history. Messages are
// created only by Store.AddMessage and are immutable afterwards.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata is an optional bag carried through the store unmodified.
// Known fields are typed; anything else goes in Extra.
type MessageMetadata struct {
	QueryType  string         `json:"queryType,omitempty"`
	TokensUsed int            `json:"tokensUsed,omitempty"`
	Error      *ErrorInfo     `json:"error,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// ErrorInfo describes an error attached to a message.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TimeRange is a from/to pair in whatever encoding the surrounding host uses
// (relative expressions like "now-1h" or absolute instants). The core treats
// both ends as opaque strings.
type TimeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Context is the structured side-channel stored under a conversation's
// metadata. It is owned and mutated exclusively by the ContextManager.
type Context struct {
	DatasourceID    string         `json:"datasourceId,omitempty"`
	DashboardID     string         `json:"dashboardId,omitempty"`
	TimeRange       *TimeRange     `json:"timeRange,omitempty"`
	PreviousQueries []string       `json:"previousQueries,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// ConversationMetadata holds per-conversation metadata. The store carries it
// opaquely; only the ContextManager interprets Context.
type ConversationMetadata struct {
	Context *Context `json:"context,omitempty"`
}

// Conversation is a titled, ordered, append-only sequence of messages.
type Conversation struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	Messages  []Message             `json:"messages"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
	Metadata  *ConversationMetadata `json:"metadata,omitempty"`
}

// State is the process-wide conversation state: every conversation in
// insertion order, plus the id of the active one ("" when none).
type State struct {
	Conversations        []Conversation `json:"conversations"`
	ActiveConversationID string         `json:"activeConversationId"`
}

// EstimateTokens is a cheap proxy for language-model cost: character count
// divided by 4, rounded up.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// deriveTitle truncates message content to titleMaxLen characters, appending
// "..." when the original is longer.
func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleMaxLen {
		return content
	}
	return string(runes[:titleMaxLen]) + "..."
}

func (m Message) clone() Message {
	out := m
	if m.Metadata != nil {
		meta := *m.Metadata
		if m.Metadata.Error != nil {
			e := *m.Metadata.Error
			meta.Error = &e
		}
		if m.Metadata.Extra != nil {
			meta.Extra = make(map[string]any, len(m.Metadata.Extra))
			for k, v := range m.Metadata.Extra {
				meta.Extra[k] = v
			}
		}
		out.Metadata = &meta
	}
	return out
}

func (c *Context) clone() *Context {
	if c == nil {
		return nil
	}
	out := *c
	if c.TimeRange != nil {
		tr := *c.TimeRange
		out.TimeRange = &tr
	}
	if c.PreviousQueries != nil {
		out.PreviousQueries = append([]string(nil), c.PreviousQueries...)
	}
	if c.Extra != nil {
		out.Extra = make(map[string]any, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

func (c Conversation) clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out.Messages[i] = m.clone()
	}
	if c.Metadata != nil {
		out.Metadata = &ConversationMetadata{Context: c.Metadata.Context.clone()}
	}
	return out
}

func (s State) clone() State {
	out := State{
		Conversations:        make([]Conversation, len(s.Conversations)),
		ActiveConversationID: s.ActiveConversationID,
	}
	for i, c := range s.Conversations {
		out.Conversations[i] = c.clone()
	}
	return out
}
