package llm

import (
	"encoding/json"
	"fmt"
)

// Keys the codec owns. Everything else lands in Message.Extra and is
// re-emitted verbatim, so deserialisation is lossless for fields we do not
// model.
const (
	fieldRole      = "role"
	fieldContent   = "content"
	fieldID        = "id"
	fieldToolCalls = "tool_calls"
)

// MarshalJSON serialises the message with role, content, id and tool calls,
// then merges any opaque extra fields back in.
func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	role, err := json.Marshal(m.Role)
	if err != nil {
		return nil, err
	}
	out[fieldRole] = role
	content, err := json.Marshal(m.Content)
	if err != nil {
		return nil, err
	}
	out[fieldContent] = content
	if m.ID != "" {
		id, err := json.Marshal(m.ID)
		if err != nil {
			return nil, err
		}
		out[fieldID] = id
	}
	if len(m.ToolCalls) > 0 {
		calls, err := json.Marshal(m.ToolCalls)
		if err != nil {
			return nil, err
		}
		out[fieldToolCalls] = calls
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON; unknown fields are retained
// in Extra.
func (m *Message) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	if v, ok := raw[fieldRole]; ok {
		if err := json.Unmarshal(v, &m.Role); err != nil {
			return fmt.Errorf("decoding message role: %w", err)
		}
		delete(raw, fieldRole)
	}
	if v, ok := raw[fieldContent]; ok {
		if err := json.Unmarshal(v, &m.Content); err != nil {
			return fmt.Errorf("decoding message content: %w", err)
		}
		delete(raw, fieldContent)
	}
	if v, ok := raw[fieldID]; ok {
		if err := json.Unmarshal(v, &m.ID); err != nil {
			return fmt.Errorf("decoding message id: %w", err)
		}
		delete(raw, fieldID)
	}
	if v, ok := raw[fieldToolCalls]; ok {
		if err := json.Unmarshal(v, &m.ToolCalls); err != nil {
			return fmt.Errorf("decoding tool calls: %w", err)
		}
		delete(raw, fieldToolCalls)
	}
	if len(raw) > 0 {
		m.Extra = raw
	}
	return nil
}
