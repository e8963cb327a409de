package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/qri-io/jsonschema"

	"github.com/mcpchat/mcpchat/internal/llm"
)

// Session fronts one or more MCP servers over stdio and exposes their
// combined tool catalog. Tool names must be unique across servers. The
// underlying sessions are not safe for interleaved use; the caller is
// expected to keep at most one query in flight.
type Session struct {
	clients     map[string]*client.Client
	toolServers map[string]string
	tools       []llm.Tool
	schemas     map[string]*jsonschema.Schema
}

// Connect launches a single server from its script path, inferring the
// interpreter from the file extension.
func Connect(ctx context.Context, scriptPath string) (*Session, error) {
	var command string
	switch filepath.Ext(scriptPath) {
	case ".py":
		command = "python"
	case ".js":
		command = "node"
	default:
		return nil, fmt.Errorf("server script must be a .py or .js file, got %q", scriptPath)
	}

	c, err := client.NewStdioMCPClient(command, nil, scriptPath)
	if err != nil {
		return nil, fmt.Errorf("starting server %s: %w", scriptPath, err)
	}

	return newSession(ctx, map[string]*client.Client{"default": c})
}

func newSession(ctx context.Context, clients map[string]*client.Client) (*Session, error) {
	s := &Session{
		clients:     clients,
		toolServers: make(map[string]string),
		schemas:     make(map[string]*jsonschema.Schema),
	}

	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := clients[name]
		if _, err := c.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
			s.Close()
			return nil, fmt.Errorf("initializing server %s: %w", name, err)
		}

		tools, err := c.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("listing tools from %s: %w", name, err)
		}

		for _, tool := range tools.Tools {
			if owner, ok := s.toolServers[tool.Name]; ok {
				s.Close()
				return nil, fmt.Errorf("duplicate tool name %q from servers %s and %s", tool.Name, owner, name)
			}
			s.toolServers[tool.Name] = name

			properties := tool.InputSchema.Properties
			if properties == nil {
				properties = make(map[string]any)
			}
			required := tool.InputSchema.Required
			if required == nil {
				required = []string{}
			}
			inputSchema := map[string]any{
				"type":       "object",
				"properties": properties,
				"required":   required,
			}

			s.tools = append(s.tools, llm.Tool{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: inputSchema,
			})

			schema, err := compileSchema(inputSchema)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("compiling input schema for %s: %w", tool.Name, err)
			}
			s.schemas[tool.Name] = schema
		}
	}

	return s, nil
}

func compileSchema(inputSchema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(inputSchema)
	if err != nil {
		return nil, err
	}
	schema := &jsonschema.Schema{}
	if err := json.Unmarshal(raw, schema); err != nil {
		return nil, err
	}
	return schema, nil
}

// ListTools returns the catalog gathered at connect time. The catalog
// is fixed for the lifetime of the session.
func (s *Session) ListTools(ctx context.Context) ([]llm.Tool, error) {
	return s.tools, nil
}

// CallTool validates the arguments against the tool's declared input
// schema and dispatches the call to the owning server. Only text
// content is supported in results; parts are newline-joined. There are
// no retries, failures are reported verbatim.
func (s *Session) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	serverName, ok := s.toolServers[name]
	if !ok {
		return "", &llm.ToolError{Tool: name, Err: errors.New("unknown tool")}
	}
	if arguments == nil {
		arguments = make(map[string]any)
	}
	if err := s.validateArguments(ctx, name, arguments); err != nil {
		return "", err
	}

	slog.DebugContext(ctx, "calling tool", "tool", name, "server", serverName)

	result, err := s.clients[serverName].CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: arguments,
		},
	})
	if err != nil {
		return "", &llm.ToolError{Tool: name, Err: err}
	}

	var textParts []string
	for _, content := range result.Content {
		textContent, ok := mcp.AsTextContent(content)
		if !ok {
			return "", &llm.ToolError{Tool: name, Err: errors.New("got non-text content")}
		}
		textParts = append(textParts, textContent.Text)
	}
	text := strings.Join(textParts, "\n")

	if result.IsError {
		return "", &llm.ToolError{Tool: name, Err: errors.New(text)}
	}
	return text, nil
}

func (s *Session) validateArguments(ctx context.Context, name string, arguments map[string]any) error {
	schema := s.schemas[name]
	if schema == nil {
		return nil
	}

	raw, err := json.Marshal(arguments)
	if err != nil {
		return &llm.ToolError{Tool: name, Err: fmt.Errorf("encoding arguments: %w", err)}
	}
	keyErrs, err := schema.ValidateBytes(ctx, raw)
	if err != nil {
		return &llm.ToolError{Tool: name, Err: fmt.Errorf("validating arguments: %w", err)}
	}
	if len(keyErrs) > 0 {
		return &llm.ToolError{Tool: name, Err: fmt.Errorf("invalid arguments: %v", keyErrs)}
	}
	return nil
}

// Close shuts down every server session.
func (s *Session) Close() {
	for _, c := range s.clients {
		c.Close()
	}
}
