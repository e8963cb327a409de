package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic talks to the messages API. Reply content arrives already
// tagged as text / tool_use blocks; tool results go back to the model
// as user-role tool_result blocks referencing the tool_use ID.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func NewAnthropic(cfg Config) *Anthropic {
	return &Anthropic{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.AnthropicAPIKey)),
		model:     anthropic.Model(cfg.AnthropicModel),
		maxTokens: int64(cfg.MaxTokens),
	}
}

func (a *Anthropic) Send(ctx context.Context, conv []Message, tools []Tool) ([]ContentItem, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  anthropicMessages(conv),
		Tools:     anthropicTools(tools),
	})
	if err != nil {
		return nil, &BackendError{Provider: "anthropic", Err: err}
	}

	var items []ContentItem
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			items = append(items, Text{Value: b.Text})
		case anthropic.ToolUseBlock:
			var arguments map[string]any
			if err := json.Unmarshal(b.Input, &arguments); err != nil {
				return nil, &BackendError{
					Provider: "anthropic",
					Err:      fmt.Errorf("parsing input for tool use %s: %w", b.Name, err),
				}
			}
			items = append(items, ToolRequest{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: arguments,
			})
		}
	}
	return items, nil
}

func anthropicMessages(conv []Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, msg := range conv {
		switch msg.Role {
		case RoleUser:
			for _, item := range msg.Content {
				if text, ok := item.(Text); ok {
					messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text.Value)))
				}
			}
		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			for _, item := range msg.Content {
				switch v := item.(type) {
				case Text:
					blocks = append(blocks, anthropic.NewTextBlock(v.Value))
				case ToolRequest:
					blocks = append(blocks, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							ID:    v.ID,
							Name:  v.Name,
							Input: v.Arguments,
						},
					})
				}
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case RoleTool:
			for _, item := range msg.Content {
				if result, ok := item.(ToolResult); ok {
					messages = append(messages, anthropic.NewUserMessage(
						anthropic.NewToolResultBlock(result.RequestID, result.Content, result.IsError)))
				}
			}
		}
	}
	return messages
}

// anthropicTools shapes the catalog the way the messages API expects:
// {name, description, input_schema}.
func anthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	params := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if properties, ok := tool.InputSchema["properties"]; ok {
			schema.Properties = properties
		}
		if required, ok := tool.InputSchema["required"].([]string); ok {
			schema.Required = required
		}
		params = append(params, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: schema,
			},
		})
	}
	return params
}
