// ABOUTME: Reactive store owning all conversation state with local persistence
// ABOUTME: Sole mutator of State; publishes every transition to subscribers

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/anna-assist/internal/storage"
)

// StorageKey is the key the full conversation state is persisted under.
const StorageKey = "anna-conversations"

// ErrNotFound is returned when a referenced conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

// ErrInvalidData is returned when imported conversation data is malformed.
var ErrInvalidData = errors.New("invalid conversation data")

// NewMessage describes a message to append; the store assigns id and timestamp.
type NewMessage struct {
	Role     Role
	Content  string
	Metadata *MessageMetadata
}

// Store holds the durable, reactive state of all conversations. It is the
// only legitimate mutator of State. Every mutation updates the in-memory
// state, persists it best-effort, and publishes exactly one snapshot to
// every subscriber.
//
// Persistence failures never fail or roll back a mutation: the in-memory
// state is authoritative for the running process and storage is best-effort.
type Store struct {
	mu     sync.RWMutex
	state  State
	kv     storage.KV
	logger *slog.Logger
	subs   map[string]chan State
}

// NewStore creates a store backed by the given key-value storage, loading any
// previously persisted state. Load failures (missing key, corrupt payload)
// fall back to an empty state and never fail construction. Pass nil logger
// for default. The store does not take ownership of kv; the caller closes it.
func NewStore(kv storage.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		kv:     kv,
		logger: logger.With("component", "conversations"),
		subs:   make(map[string]chan State),
	}
	s.state = s.loadState()
	return s
}

// Subscribe registers a subscriber for state snapshots. The current state is
// delivered immediately; every subsequent mutation delivers the resulting
// state. Returns the snapshot channel and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
//
// Delivery is replay-latest, not a queue: a slow subscriber never blocks
// mutations, and a subscriber that misses an intermediate state receives the
// latest one as soon as it reads again.
func (s *Store) Subscribe(ctx context.Context) (<-chan State, string) {
	subID := uuid.New().String()
	ch := make(chan State, 1)

	s.mu.Lock()
	ch <- s.state.clone()
	s.subs[subID] = ch
	s.mu.Unlock()

	s.logger.Debug("subscriber added", "sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		s.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(subID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.subs[subID]
	if !ok {
		return
	}
	delete(s.subs, subID)
	close(ch)

	s.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close closes all subscriber channels. The backing storage is left open;
// it belongs to the caller.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for subID, ch := range s.subs {
		close(ch)
		delete(s.subs, subID)
	}
}

// GetCurrentState returns a snapshot of the current state.
func (s *Store) GetCurrentState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// GetConversations returns all conversations in insertion order.
func (s *Store) GetConversations() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone().Conversations
}

// GetConversation returns the conversation with the given id, or false if
// there is none.
func (s *Store) GetConversation(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(id)
}

// GetActiveConversation returns the active conversation, or false if no
// conversation is active.
func (s *Store) GetActiveConversation() (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.ActiveConversationID == "" {
		return Conversation{}, false
	}
	return s.findLocked(s.state.ActiveConversationID)
}

// CreateConversation creates a new conversation, makes it active, and
// returns it. An empty title gets the default sentinel.
func (s *Store) CreateConversation(title string) Conversation {
	if title == "" {
		title = DefaultTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv := Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.state.Conversations = append(s.state.Conversations, conv)
	s.state.ActiveConversationID = conv.ID
	s.commitLocked()

	s.logger.Debug("conversation created", "conversation_id", conv.ID)
	return conv.clone()
}

// AddMessage appends a message to a conversation, assigning its id and
// timestamp. If the conversation still carries the default title and this is
// its very first message from a user, the title is derived from the content.
// Returns ErrNotFound if the conversation does not exist.
func (s *Store) AddMessage(conversationID string, msg NewMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(conversationID)
	if idx < 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	conv := &s.state.Conversations[idx]
	now := time.Now()
	conv.Messages = append(conv.Messages, Message{
		ID:        uuid.New().String(),
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: now,
		Metadata:  msg.Metadata,
	})
	conv.UpdatedAt = now

	// Derive the title from the first user message while still at the sentinel
	if conv.Title == DefaultTitle && msg.Role == RoleUser && len(conv.Messages) == 1 {
		conv.Title = deriveTitle(msg.Content)
	}

	s.commitLocked()
	return nil
}

// UpdateConversationTitle replaces a conversation's title.
// Returns ErrNotFound if the conversation does not exist.
func (s *Store) UpdateConversationTitle(conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(conversationID)
	if idx < 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	s.state.Conversations[idx].Title = title
	s.state.Conversations[idx].UpdatedAt = time.Now()
	s.commitLocked()
	return nil
}

// DeleteConversation removes a conversation. Removing an absent id is a
// no-op. If the removed conversation was active, the first remaining
// conversation in insertion order becomes active, or none if none remain.
func (s *Store) DeleteConversation(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	remaining := make([]Conversation, 0, len(s.state.Conversations))
	for _, c := range s.state.Conversations {
		if c.ID != conversationID {
			remaining = append(remaining, c)
		}
	}
	s.state.Conversations = remaining

	if s.state.ActiveConversationID == conversationID {
		if len(remaining) > 0 {
			s.state.ActiveConversationID = remaining[0].ID
		} else {
			s.state.ActiveConversationID = ""
		}
	}

	s.commitLocked()
	s.logger.Debug("conversation deleted", "conversation_id", conversationID)
}

// SetActiveConversation marks a conversation as active.
// Returns ErrNotFound if the conversation does not exist.
func (s *Store) SetActiveConversation(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(conversationID) < 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	s.state.ActiveConversationID = conversationID
	s.commitLocked()
	return nil
}

// ClearAll removes every conversation and clears the active pointer.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = State{Conversations: []Conversation{}}
	s.commitLocked()
	s.logger.Debug("all conversations cleared")
}

// ExportConversation serializes one conversation to pretty-printed JSON.
// Returns ErrNotFound if the conversation does not exist.
func (s *Store) ExportConversation(conversationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.findLocked(conversationID)
	if !ok {
		return "", fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serializing conversation %s: %w", conversationID, err)
	}
	return string(data), nil
}

// ImportConversation parses a previously exported conversation, appends it,
// and makes it active. The parsed structure must carry an id and a messages
// sequence; anything else fails with ErrInvalidData. The imported id is
// trusted as-is; a collision with an existing conversation is logged but
// the import still appends.
func (s *Store) ImportConversation(data string) (Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		return Conversation{}, fmt.Errorf("parsing conversation: %w", ErrInvalidData)
	}
	if conv.ID == "" || conv.Messages == nil {
		return Conversation{}, fmt.Errorf("missing id or messages: %w", ErrInvalidData)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(conv.ID) >= 0 {
		s.logger.Warn("imported conversation id collides with existing conversation",
			"conversation_id", conv.ID)
	}

	s.state.Conversations = append(s.state.Conversations, conv)
	s.state.ActiveConversationID = conv.ID
	s.commitLocked()

	s.logger.Debug("conversation imported", "conversation_id", conv.ID)
	return conv.clone(), nil
}

// ReplaceConversation swaps in an updated copy of an existing conversation,
// refreshing its UpdatedAt, then persists and publishes like any other
// mutation. This is the narrow entry point the ContextManager uses for its
// read-modify-write of conversation metadata.
// Returns ErrNotFound if the conversation does not exist.
func (s *Store) ReplaceConversation(conv Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(conv.ID)
	if idx < 0 {
		return fmt.Errorf("conversation %s: %w", conv.ID, ErrNotFound)
	}

	updated := conv.clone()
	updated.UpdatedAt = time.Now()
	s.state.Conversations[idx] = updated
	s.commitLocked()
	return nil
}

// indexLocked returns the position of a conversation or -1. Caller holds mu.
func (s *Store) indexLocked(id string) int {
	for i, c := range s.state.Conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// findLocked returns a snapshot of a conversation. Caller holds mu.
func (s *Store) findLocked(id string) (Conversation, bool) {
	if idx := s.indexLocked(id); idx >= 0 {
		return s.state.Conversations[idx].clone(), true
	}
	return Conversation{}, false
}

// commitLocked persists the current state best-effort and publishes a
// snapshot to every subscriber. Caller holds mu for writing.
func (s *Store) commitLocked() {
	s.saveLocked()
	s.publishLocked()
}

// publishLocked delivers the current snapshot to all subscribers without
// blocking: if a subscriber hasn't consumed the previous snapshot yet, it is
// replaced by the newer one.
func (s *Store) publishLocked() {
	snap := s.state.clone()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Drop the pending stale snapshot, then deliver the latest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// loadState restores persisted state, falling back to empty on any failure.
func (s *Store) loadState() State {
	empty := State{Conversations: []Conversation{}}

	data, err := s.kv.Get(context.Background(), StorageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			s.logger.Error("failed to load conversations from storage", "error", err)
		}
		return empty
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Error("failed to parse persisted conversations", "error", err)
		return empty
	}
	if state.Conversations == nil {
		state.Conversations = []Conversation{}
	}

	s.logger.Debug("conversations loaded",
		"count", len(state.Conversations),
		"active", state.ActiveConversationID)
	return state
}

// saveLocked persists the current state. Failures are logged and otherwise
// ignored; the in-memory state stays authoritative. Caller holds mu.
func (s *Store) saveLocked() {
	data, err := json.Marshal(s.state)
	if err != nil {
		s.logger.Error("failed to serialize conversations", "error", err)
		return
	}
	if err := s.kv.Put(context.Background(), StorageKey, data); err != nil {
		s.logger.Error("failed to save conversations to storage", "error", err)
	}
}
