// Package llm defines the chat capability the assistant calls through: a
// structured prompt/response contract with categorized errors, a registry of
// prompt templates for each assistant feature, and a simulated client used
// in place of real host LLM infrastructure.
//
// The conversation core never calls the capability itself; it only produces
// the context a caller attaches to a Prompt before invoking Client.Chat.
package llm
