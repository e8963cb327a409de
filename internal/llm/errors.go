package llm

import "fmt"

// BackendError reports a failed model-provider call: transport, auth,
// or a response that could not be decoded. It aborts the current turn.
type BackendError struct {
	Provider string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// ToolError reports a failed tool dispatch: unknown name, arguments
// rejected by the tool's input schema, or the call itself failing.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// LoopLimitError reports that a query exhausted its backend/tool
// round-trip budget without reaching a final answer.
type LoopLimitError struct {
	Rounds int
}

func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("no final answer after %d rounds", e.Rounds)
}
