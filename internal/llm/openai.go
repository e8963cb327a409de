package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// OpenAI talks to a chat-completions style API. Tool-call arguments
// arrive as a JSON-encoded string and are decoded with a JSON parser,
// never evaluated. A single reply may carry several tool calls; all of
// them are surfaced so the caller can dispatch each one before the next
// Send.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(cfg Config) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(option.WithBaseURL(cfg.URL), option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}
}

func (o *OpenAI) Send(ctx context.Context, conv []Message, tools []Tool) ([]ContentItem, error) {
	params := openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: openAIMessages(conv),
		Tools:    openAITools(tools),
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: param.NewOpt("auto"),
		},
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &BackendError{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &BackendError{Provider: "openai", Err: fmt.Errorf("response carried no choices")}
	}
	message := resp.Choices[0].Message

	var items []ContentItem
	if message.Content != "" {
		items = append(items, Text{Value: message.Content})
	}
	for _, call := range message.ToolCalls {
		var arguments map[string]any
		if err := json.Unmarshal([]byte(call.Function.Arguments), &arguments); err != nil {
			return nil, &BackendError{
				Provider: "openai",
				Err:      fmt.Errorf("parsing arguments for tool call %s: %w", call.Function.Name, err),
			}
		}
		items = append(items, ToolRequest{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: arguments,
		})
	}
	return items, nil
}

// openAIMessages rebuilds the wire messages from the normalized
// conversation: assistant tool requests become tool_calls and tool
// results become role=tool messages keyed by the call ID.
func openAIMessages(conv []Message) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	for _, msg := range conv {
		switch msg.Role {
		case RoleUser:
			for _, item := range msg.Content {
				if text, ok := item.(Text); ok {
					messages = append(messages, openai.UserMessage(text.Value))
				}
			}
		case RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			for _, item := range msg.Content {
				switch v := item.(type) {
				case Text:
					assistant.Content.OfString = param.NewOpt(v.Value)
				case ToolRequest:
					arguments, _ := json.Marshal(v.Arguments)
					assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
						ID: v.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      v.Name,
							Arguments: string(arguments),
						},
					})
				}
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case RoleTool:
			for _, item := range msg.Content {
				if result, ok := item.(ToolResult); ok {
					messages = append(messages, openai.ToolMessage(result.Content, result.RequestID))
				}
			}
		}
	}
	return messages
}

// openAITools shapes the catalog the way the chat-completions API
// expects: {type: "function", function: {name, description, parameters}}.
func openAITools(tools []Tool) []openai.ChatCompletionToolParam {
	params := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, tool := range tools {
		params = append(params, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.InputSchema),
			},
		})
	}
	return params
}
