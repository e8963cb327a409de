package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mcpchat/mcpchat/internal/llm"
)

// scriptedBackend replays canned replies and snapshots the conversation
// it was called with so tests can assert on history structure.
type scriptedBackend struct {
	replies [][]llm.ContentItem
	calls   int
	convs   [][]llm.Message
}

func (b *scriptedBackend) Send(ctx context.Context, conv []llm.Message, tools []llm.Tool) ([]llm.ContentItem, error) {
	snapshot := make([]llm.Message, len(conv))
	copy(snapshot, conv)
	b.convs = append(b.convs, snapshot)

	if b.calls >= len(b.replies) {
		return nil, &llm.BackendError{Provider: "scripted", Err: errors.New("no more scripted replies")}
	}
	reply := b.replies[b.calls]
	b.calls++
	return reply, nil
}

type fakeSession struct {
	tools []llm.Tool
	calls []string
	fn    func(name string, arguments map[string]any) (string, error)
}

func (s *fakeSession) ListTools(ctx context.Context) ([]llm.Tool, error) {
	return s.tools, nil
}

func (s *fakeSession) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	s.calls = append(s.calls, name)
	return s.fn(name, arguments)
}

func TestProcessQueryNoToolCalls(t *testing.T) {
	backend := &scriptedBackend{replies: [][]llm.ContentItem{
		{llm.Text{Value: "hello"}},
	}}
	session := &fakeSession{fn: func(string, map[string]any) (string, error) {
		t.Fatal("no tool call expected")
		return "", nil
	}}

	answer, err := New(backend, session).ProcessQuery(t.Context(), "say hello")
	require.NoError(t, err)
	require.Equal(t, "hello", answer)
	require.Equal(t, 1, backend.calls)
	require.Empty(t, session.calls)
}

func TestProcessQueryToolRound(t *testing.T) {
	backend := &scriptedBackend{replies: [][]llm.ContentItem{
		{llm.ToolRequest{ID: "call_1", Name: "add", Arguments: map[string]any{"a": 2.0, "b": 3.0}}},
		{llm.Text{Value: "5"}},
	}}
	session := &fakeSession{fn: func(name string, arguments map[string]any) (string, error) {
		require.Equal(t, "add", name)
		require.Equal(t, 2.0, arguments["a"])
		require.Equal(t, 3.0, arguments["b"])
		return "5", nil
	}}

	answer, err := New(backend, session).ProcessQuery(t.Context(), "add 2 and 3")
	require.NoError(t, err)
	require.Equal(t, "5", answer)
	require.Equal(t, 2, backend.calls)
	require.Equal(t, []string{"add"}, session.calls)

	// The second call must see user, assistant-with-request, then the
	// matching result, in that order.
	conv := backend.convs[1]
	require.Len(t, conv, 3)
	require.Equal(t, llm.RoleUser, conv[0].Role)
	require.Equal(t, llm.RoleAssistant, conv[1].Role)
	require.Equal(t, llm.RoleTool, conv[2].Role)

	result, ok := conv[2].Content[0].(llm.ToolResult)
	require.True(t, ok)
	require.Equal(t, "call_1", result.RequestID)
	require.Equal(t, "5", result.Content)
	require.False(t, result.IsError)
}

func TestProcessQueryAccumulatesText(t *testing.T) {
	backend := &scriptedBackend{replies: [][]llm.ContentItem{
		{
			llm.Text{Value: "Let me check."},
			llm.ToolRequest{ID: "call_1", Name: "add", Arguments: map[string]any{"a": 2.0, "b": 3.0}},
		},
		{llm.Text{Value: "5"}},
	}}
	session := &fakeSession{fn: func(string, map[string]any) (string, error) {
		return "5", nil
	}}

	answer, err := New(backend, session).ProcessQuery(t.Context(), "add 2 and 3")
	require.NoError(t, err)
	require.Equal(t, "Let me check.\n5", answer)
}

func TestProcessQueryToolFailureIsSurfaced(t *testing.T) {
	backend := &scriptedBackend{replies: [][]llm.ContentItem{
		{llm.ToolRequest{ID: "call_1", Name: "missing", Arguments: map[string]any{}}},
		{llm.Text{Value: "that tool does not exist"}},
	}}
	session := &fakeSession{fn: func(name string, arguments map[string]any) (string, error) {
		return "", &llm.ToolError{Tool: name, Err: errors.New("unknown tool")}
	}}

	answer, err := New(backend, session).ProcessQuery(t.Context(), "use the missing tool")
	require.NoError(t, err)
	require.Equal(t, "that tool does not exist", answer)
	require.Equal(t, 2, backend.calls)

	result, ok := backend.convs[1][2].Content[0].(llm.ToolResult)
	require.True(t, ok)
	require.True(t, result.IsError)
	require.Contains(t, result.Content, "unknown tool")
}

func TestProcessQueryMultipleToolCalls(t *testing.T) {
	backend := &scriptedBackend{replies: [][]llm.ContentItem{
		{
			llm.ToolRequest{ID: "call_1", Name: "first", Arguments: map[string]any{}},
			llm.ToolRequest{ID: "call_2", Name: "second", Arguments: map[string]any{}},
		},
		{llm.Text{Value: "done"}},
	}}
	session := &fakeSession{fn: func(name string, arguments map[string]any) (string, error) {
		return fmt.Sprintf("%s result", name), nil
	}}

	answer, err := New(backend, session).ProcessQuery(t.Context(), "run both")
	require.NoError(t, err)
	require.Equal(t, "done", answer)
	require.Equal(t, []string{"first", "second"}, session.calls)

	// Both results appended in request order before the next send.
	conv := backend.convs[1]
	require.Len(t, conv, 4)
	first, ok := conv[2].Content[0].(llm.ToolResult)
	require.True(t, ok)
	require.Equal(t, "call_1", first.RequestID)
	require.Equal(t, "first result", first.Content)
	second, ok := conv[3].Content[0].(llm.ToolResult)
	require.True(t, ok)
	require.Equal(t, "call_2", second.RequestID)
	require.Equal(t, "second result", second.Content)
}

func TestProcessQueryLoopLimit(t *testing.T) {
	reply := []llm.ContentItem{
		llm.ToolRequest{ID: "call_1", Name: "spin", Arguments: map[string]any{}},
	}
	backend := &scriptedBackend{replies: [][]llm.ContentItem{reply, reply, reply}}
	session := &fakeSession{fn: func(string, map[string]any) (string, error) {
		return "again", nil
	}}

	_, err := New(backend, session, WithMaxRounds(3)).ProcessQuery(t.Context(), "loop forever")
	var limitErr *llm.LoopLimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, 3, limitErr.Rounds)
	require.Equal(t, 3, backend.calls)
}

func TestProcessQueryBackendError(t *testing.T) {
	backend := &scriptedBackend{}
	session := &fakeSession{fn: func(string, map[string]any) (string, error) {
		return "", nil
	}}

	_, err := New(backend, session).ProcessQuery(t.Context(), "anything")
	var backendErr *llm.BackendError
	require.ErrorAs(t, err, &backendErr)
	require.Empty(t, session.calls)
}
