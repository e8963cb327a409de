package llm

import (
	"context"
	"fmt"
)

type Config struct {
	Provider string `default:"openai"`

	APIKey string `envconfig:"API_KEY"`
	URL    string `default:"https://api.openai.com/v1/"`
	Model  string `default:"gpt-4o"`

	AnthropicAPIKey string `split_words:"true"`
	AnthropicModel  string `split_words:"true" default:"claude-sonnet-4-20250514"`

	MaxTokens int `split_words:"true" default:"1024"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentItem is one unit of conversation content. The union is closed:
// provider wire tags are decoded into these shapes once, at the adapter
// boundary, and never inspected again downstream.
type ContentItem interface{ contentItem() }

// Text is plain assistant or user text.
type Text struct {
	Value string
}

// ToolRequest is the assistant asking for a tool invocation.
type ToolRequest struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult carries the outcome of a tool invocation back to the
// model, keyed by the request it answers.
type ToolResult struct {
	RequestID string
	Content   string
	IsError   bool
}

func (Text) contentItem()        {}
func (ToolRequest) contentItem() {}
func (ToolResult) contentItem()  {}

// Message is one entry in a conversation. Conversations only grow:
// messages are appended, never mutated in place.
type Message struct {
	Role    Role
	Content []ContentItem
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentItem{Text{Value: text}}}
}

func AssistantMessage(items ...ContentItem) Message {
	return Message{Role: RoleAssistant, Content: items}
}

func ToolMessage(result ToolResult) Message {
	return Message{Role: RoleTool, Content: []ContentItem{result}}
}

// Tool describes one capability offered by the tool session. The input
// schema is a JSON-schema object passed through to the provider without
// interpretation.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Backend sends a conversation plus tool catalog to a model provider
// and decodes the reply. Exactly one reply is produced per Send; after
// dispatching any tool requests the caller must Send again with the
// results appended.
type Backend interface {
	Send(ctx context.Context, conv []Message, tools []Tool) ([]ContentItem, error)
}

// NewBackend builds the configured provider adapter. The client is
// constructed once at bootstrap and injected; nothing reinitializes it
// later.
func NewBackend(cfg Config) (Backend, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
