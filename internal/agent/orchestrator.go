package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mcpchat/mcpchat/internal/llm"
)

// Session is the tool-execution side of the loop.
type Session interface {
	ListTools(ctx context.Context) ([]llm.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (string, error)
}

const DefaultMaxRounds = 16

// Orchestrator drives the conversation between a model backend and a
// tool session until the model answers without requesting tools.
type Orchestrator struct {
	backend   llm.Backend
	session   Session
	maxRounds int
}

type Option func(*Orchestrator)

// WithMaxRounds bounds the number of backend round-trips per query.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

func New(backend llm.Backend, session Session, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:   backend,
		session:   session,
		maxRounds: DefaultMaxRounds,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessQuery runs the tool-use loop for a single query and returns
// the newline-joined text the model produced along the way. Every call
// starts a fresh conversation; nothing carries over between queries.
//
// Tool failures are folded into the tool result surfaced to the model
// so it can retry or explain. Backend failures abort the turn.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string) (string, error) {
	conv := []llm.Message{llm.UserMessage(query)}

	// Tools do not change mid-conversation, fetch the catalog once.
	tools, err := o.session.ListTools(ctx)
	if err != nil {
		return "", fmt.Errorf("listing tools: %w", err)
	}

	var answer []string
	for round := 0; round < o.maxRounds; round++ {
		items, err := o.backend.Send(ctx, conv, tools)
		if err != nil {
			return "", err
		}

		// The assistant reply goes into history before any results so
		// each request is answered by the result that follows it.
		conv = append(conv, llm.AssistantMessage(items...))

		requests := 0
		for _, item := range items {
			switch v := item.(type) {
			case llm.Text:
				answer = append(answer, v.Value)
			case llm.ToolRequest:
				requests++
				slog.DebugContext(ctx, "dispatching tool request",
					"tool", v.Name, "request_id", v.ID, "round", round)

				result := llm.ToolResult{RequestID: v.ID}
				content, err := o.session.CallTool(ctx, v.Name, v.Arguments)
				if err != nil {
					result.Content = err.Error()
					result.IsError = true
				} else {
					result.Content = content
				}
				conv = append(conv, llm.ToolMessage(result))
			}
		}

		if requests == 0 {
			return strings.Join(answer, "\n"), nil
		}
	}

	return "", &llm.LoopLimitError{Rounds: o.maxRounds}
}
