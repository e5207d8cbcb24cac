package llm

import "encoding/json"

// Role constants for message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents one conversation message. The struct is a tagged union
// over the role: only assistant messages may carry ToolCalls.
//
// Extra holds fields the codec does not model (vendor metadata and the
// like); they round-trip opaquely through serialisation.
type Message struct {
	Role      string
	Content   string
	ID        string
	ToolCalls []ToolCall
	Extra     map[string]json.RawMessage
}

// ToolCall represents a tool invocation request emitted by the assistant.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"args,omitempty"`
	Status    string          `json:"status,omitempty"`
}

// ToolDefinition describes a tool made available to the LLM.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// Clone returns a deep copy so callers can mutate messages without
// aliasing the caller's history.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc
			if tc.Arguments != nil {
				out.ToolCalls[i].Arguments = append(json.RawMessage(nil), tc.Arguments...)
			}
		}
	}
	if m.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}
