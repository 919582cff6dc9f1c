// Package config handles configuration loading for anna-assist.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from ANNA_CONFIG environment variable
//  2. ~/.config/anna/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	storage:
//	  path: "${ANNA_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Storage:
//
//	storage:
//	  path: "~/.local/share/anna/anna.db"
//	  in_memory: false   # true disables durable storage
//
// History/context tuning:
//
//	history:
//	  max_context_tokens: 2000
//
// Language model:
//
//	llm:
//	  provider: "openai"   # openai, anthropic, azure-openai, custom
//	  model: "gpt-4"
//	  max_tokens: 4000
//	  temperature: 0.7
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	cfg, err := config.Load("/etc/anna/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Fields left unset in the file keep the values from config.Default().
package config
