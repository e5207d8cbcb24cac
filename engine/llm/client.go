package llm

import "context"

// Client is the handle to the wrapped model. The privacy wrapper only ever
// sends redacted histories through it.
type Client interface {
	// Invoke sends the conversation and returns the assistant's reply.
	Invoke(ctx context.Context, messages []Message) (Message, error)
	// BindTools makes tool definitions available on subsequent calls.
	BindTools(tools []ToolDefinition) error
	// Close releases any resources held by the client.
	Close() error
}
