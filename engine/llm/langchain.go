package llm

import (
	"context"
	"fmt"

	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

// LangChainClient adapts a langchaingo model to the Client interface.
type LangChainClient struct {
	model llms.Model
	tools []llms.Tool
}

// NewLangChainClient wraps an already-constructed langchaingo model.
func NewLangChainClient(model llms.Model) *LangChainClient {
	return &LangChainClient{model: model}
}

// Invoke implements Client.
func (c *LangChainClient) Invoke(ctx context.Context, messages []Message) (Message, error) {
	converted := make([]llms.MessageContent, 0, len(messages))
	for i := range messages {
		converted = append(converted, convertMessage(&messages[i]))
	}
	var options []llms.CallOption
	if len(c.tools) > 0 {
		options = append(options, llms.WithTools(c.tools))
	}
	response, err := c.model.GenerateContent(ctx, converted, options...)
	if err != nil {
		return Message{}, core.NewError(err, core.ErrCodeLLMUnavailable, nil)
	}
	return convertResponse(response)
}

// BindTools implements Client.
func (c *LangChainClient) BindTools(tools []ToolDefinition) error {
	converted := make([]llms.Tool, 0, len(tools))
	for _, tool := range tools {
		converted = append(converted, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	c.tools = converted
	return nil
}

// Close implements Client. langchaingo models hold no resources to release.
func (c *LangChainClient) Close() error {
	return nil
}

func convertMessage(msg *Message) llms.MessageContent {
	switch msg.Role {
	case RoleAssistant:
		parts := make([]llms.ContentPart, 0, len(msg.ToolCalls)+1)
		if msg.Content != "" {
			parts = append(parts, llms.TextContent{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			parts = append(parts, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		return llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts}
	case RoleTool:
		return llms.MessageContent{
			Role: llms.ChatMessageTypeTool,
			Parts: []llms.ContentPart{llms.ToolCallResponse{
				ToolCallID: msg.ID,
				Content:    msg.Content,
			}},
		}
	case RoleSystem:
		return llms.TextParts(llms.ChatMessageTypeSystem, msg.Content)
	default:
		return llms.TextParts(llms.ChatMessageTypeHuman, msg.Content)
	}
}

func convertResponse(resp *llms.ContentResponse) (Message, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return Message{}, core.NewError(fmt.Errorf("empty response from model"), core.ErrCodeLLMUnavailable, nil)
	}
	choice := resp.Choices[0]
	msg := Message{
		Role:    RoleAssistant,
		Content: choice.Content,
		ID:      uuid.NewString(),
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: []byte(tc.FunctionCall.Arguments),
		})
	}
	return msg, nil
}
