// ABOUTME: Interactive chat REPL for the anna-assist conversation core
// ABOUTME: Wires config, storage, store, context manager, and the simulated LLM client

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/anna-assist/internal/config"
	"github.com/2389/anna-assist/internal/conversation"
	"github.com/2389/anna-assist/internal/llm"
	"github.com/2389/anna-assist/internal/storage"
)

// getConfigPath returns the path to the config file.
// Priority: ANNA_CONFIG env var > XDG_CONFIG_HOME/anna/config.yaml > ~/.config/anna/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ANNA_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "anna", "config.yaml")
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var logLevel slog.Level
	switch cfg.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ~/.config/anna/config.yaml)")
	memOnly := flag.Bool("mem", false, "Keep conversations in memory only")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *memOnly); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, memOnly bool) error {
	cfg := config.Default()
	if configPath == "" {
		configPath = getConfigPath()
	}
	if loaded, err := config.Load(configPath); err == nil {
		cfg = loaded
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading config: %w", err)
	}
	if memOnly {
		cfg.Storage.InMemory = true
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	var kv storage.KV
	if cfg.Storage.InMemory {
		kv = storage.NewMemoryKV()
	} else {
		sqliteKV, err := storage.NewSQLiteKV(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		kv = sqliteKV
	}
	defer kv.Close()

	store := conversation.NewStore(kv, logger)
	defer store.Close()
	manager := conversation.NewContextManager(store, logger)
	client := llm.NewSimulatedClient(llm.Config{
		Provider:    llm.Provider(cfg.LLM.Provider),
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, logger)

	repl := &repl{
		store:     store,
		manager:   manager,
		client:    client,
		maxTokens: cfg.History.MaxContextTokens,
	}
	return repl.run(ctx)
}

type repl struct {
	store     *conversation.Store
	manager   *conversation.ContextManager
	client    llm.Client
	maxTokens int
}

func (r *repl) run(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Println("anna-chat - observability assistant")
	fmt.Println("Type a message, or /help for commands.")
	r.printActive()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		green.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.handleCommand(line); quit {
				return nil
			}
			continue
		}

		if err := r.sendMessage(ctx, line); err != nil {
			yellow.Printf("send failed: %v\n", err)
		}
	}
}

// sendMessage appends the user turn, asks the LLM layer for a reply using
// the derived context, and records the assistant turn with usage metadata.
func (r *repl) sendMessage(ctx context.Context, text string) error {
	conv, ok := r.store.GetActiveConversation()
	if !ok {
		conv = r.store.CreateConversation("")
	}

	if r.manager.IsFollowUpQuestion(conv.ID, text) {
		color.New(color.Faint).Println("(treated as a follow-up)")
	}

	if err := r.store.AddMessage(conv.ID, conversation.NewMessage{
		Role:    conversation.RoleUser,
		Content: text,
	}); err != nil {
		return err
	}

	window := r.manager.GetContext(conv.ID)
	tmpl, _ := llm.GetTemplate("general-chat")

	prompt := llm.Prompt{
		System: tmpl.SystemPrompt,
		User:   text,
	}
	if window != nil {
		prompt.Context = &llm.PromptContext{
			ConversationHistory: window.ConversationHistory,
			TimeRange:           window.TimeRange,
		}
	}
	if llm.IsPromptTooLong(prompt, r.maxTokens) {
		// Fall back to the budget-trimmed slice
		messages, _ := r.manager.ExtractRelevantContext(conv.ID, r.maxTokens)
		history := make([]conversation.HistoryEntry, len(messages))
		for i, m := range messages {
			history[i] = conversation.HistoryEntry{Role: m.Role, Content: m.Content}
		}
		prompt.Context = &llm.PromptContext{ConversationHistory: history}
	}

	resp, err := r.client.Chat(ctx, prompt)
	if err != nil {
		return err
	}

	meta := &conversation.MessageMetadata{}
	if resp.Usage != nil {
		meta.TokensUsed = resp.Usage.TotalTokens
	}
	if err := r.store.AddMessage(conv.ID, conversation.NewMessage{
		Role:     conversation.RoleAssistant,
		Content:  resp.Content,
		Metadata: meta,
	}); err != nil {
		return err
	}

	color.New(color.FgMagenta).Printf("anna: ")
	fmt.Println(resp.Content)
	return nil
}

// handleCommand dispatches a slash command; returns true on /quit.
func (r *repl) handleCommand(line string) bool {
	yellow := color.New(color.FgYellow)

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /new [title]     Start a new conversation")
		fmt.Println("  /list            List conversations")
		fmt.Println("  /switch <n>      Switch to conversation number n")
		fmt.Println("  /title <text>    Rename the active conversation")
		fmt.Println("  /delete          Delete the active conversation")
		fmt.Println("  /stats           Show stats for the active conversation")
		fmt.Println("  /export <file>   Export the active conversation to a file")
		fmt.Println("  /import <file>   Import a conversation from a file")
		fmt.Println("  /clear           Delete all conversations")
		fmt.Println("  /quit            Exit")

	case "/new":
		conv := r.store.CreateConversation(arg)
		fmt.Printf("started %q\n", conv.Title)

	case "/list":
		conversations := r.store.GetConversations()
		if len(conversations) == 0 {
			fmt.Println("no conversations")
			return false
		}
		state := r.store.GetCurrentState()
		for i, c := range conversations {
			marker := " "
			if c.ID == state.ActiveConversationID {
				marker = "*"
			}
			fmt.Printf("%s %d. %s (%d messages)\n", marker, i+1, c.Title, len(c.Messages))
		}

	case "/switch":
		conversations := r.store.GetConversations()
		idx := 0
		if _, err := fmt.Sscanf(arg, "%d", &idx); err != nil || idx < 1 || idx > len(conversations) {
			yellow.Println("usage: /switch <number from /list>")
			return false
		}
		if err := r.store.SetActiveConversation(conversations[idx-1].ID); err != nil {
			yellow.Printf("switch failed: %v\n", err)
			return false
		}
		r.printActive()

	case "/title":
		conv, ok := r.store.GetActiveConversation()
		if !ok {
			yellow.Println("no active conversation")
			return false
		}
		if arg == "" {
			fmt.Printf("suggestion: %s\n", r.manager.SuggestTitle(conv.ID))
			return false
		}
		if err := r.store.UpdateConversationTitle(conv.ID, arg); err != nil {
			yellow.Printf("rename failed: %v\n", err)
		}

	case "/delete":
		conv, ok := r.store.GetActiveConversation()
		if !ok {
			yellow.Println("no active conversation")
			return false
		}
		r.store.DeleteConversation(conv.ID)
		fmt.Printf("deleted %q\n", conv.Title)
		r.printActive()

	case "/stats":
		conv, ok := r.store.GetActiveConversation()
		if !ok {
			yellow.Println("no active conversation")
			return false
		}
		stats := r.manager.GetStats(conv.ID)
		fmt.Printf("messages: %d (user %d, assistant %d), ~%d tokens\n",
			stats.MessageCount, stats.UserMessageCount, stats.AssistantMessageCount, stats.TotalTokens)

	case "/export":
		conv, ok := r.store.GetActiveConversation()
		if !ok || arg == "" {
			yellow.Println("usage: /export <file> (with an active conversation)")
			return false
		}
		data, err := r.store.ExportConversation(conv.ID)
		if err != nil {
			yellow.Printf("export failed: %v\n", err)
			return false
		}
		if err := os.WriteFile(arg, []byte(data), 0644); err != nil {
			yellow.Printf("writing %s: %v\n", arg, err)
			return false
		}
		fmt.Printf("exported to %s\n", arg)

	case "/import":
		if arg == "" {
			yellow.Println("usage: /import <file>")
			return false
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			yellow.Printf("reading %s: %v\n", arg, err)
			return false
		}
		conv, err := r.store.ImportConversation(string(data))
		if err != nil {
			yellow.Printf("import failed: %v\n", err)
			return false
		}
		fmt.Printf("imported %q\n", conv.Title)

	case "/clear":
		r.store.ClearAll()
		fmt.Println("all conversations deleted")

	case "/quit", "/exit":
		return true

	default:
		yellow.Printf("unknown command %s (try /help)\n", cmd)
	}
	return false
}

func (r *repl) printActive() {
	if conv, ok := r.store.GetActiveConversation(); ok {
		fmt.Printf("active conversation: %s\n", conv.Title)
	} else {
		fmt.Println("no active conversation (one will be created on first message)")
	}
}
