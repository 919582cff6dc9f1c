// Package conversation implements the chat assistant's conversation state
// and context subsystem.
//
// # Store
//
// The Store owns the process-wide conversation state: every conversation
// with its ordered message history, plus the active-conversation pointer.
// It is the only mutator of that state.
//
//	kv, _ := storage.NewSQLiteKV(path)
//	store := conversation.NewStore(kv, logger)
//
// Key operations:
//
//   - CreateConversation(title): New conversation, made active
//   - AddMessage(id, msg): Append-only message history
//   - DeleteConversation(id): Remove, promoting the first remaining to active
//   - ExportConversation / ImportConversation: JSON round-trip of one conversation
//   - Subscribe(ctx): Reactive snapshot stream
//
// Every mutation persists the full state to local storage best-effort (a
// storage failure is logged, never rolled back) and publishes exactly one
// snapshot to every subscriber. Subscription is replay-latest: a new
// subscriber immediately receives the current state, and a slow subscriber
// is never able to block mutations.
//
// # ContextManager
//
// The ContextManager derives LLM-prompt context from the store's current
// snapshot:
//
//   - GetContext: Last-10 history window plus stored time range
//   - ExtractRelevantContext: Token-budget-bounded message slice
//   - IsFollowUpQuestion: Lexical-prefix follow-up heuristic
//   - SuggestTitle: Title from the first user message
//   - GetStats: Per-role counts and token estimate
//
// It is also the sole owner of the context metadata side-channel on a
// conversation (datasource, dashboard, time range, previous queries), which
// it updates through the store's ReplaceConversation entry point:
//
//   - UpdateContext: Shallow-merge a context patch
//   - AddQueryToHistory: Ring of the 10 most recent queries
//
// # Token Estimation
//
// Token costs are estimated as ceil(characters / 4) via EstimateTokens, a
// cheap proxy that is good enough for window budgeting.
package conversation
