package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageCodec(t *testing.T) {
	t.Run("Should round-trip role, content and id", func(t *testing.T) {
		msg := Message{Role: RoleUser, Content: "hello", ID: "m1"}
		data, err := json.Marshal(msg)
		require.NoError(t, err)

		var decoded Message
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, msg, decoded)
	})

	t.Run("Should round-trip tool calls", func(t *testing.T) {
		msg := Message{
			Role: RoleAssistant,
			ID:   "a1",
			ToolCalls: []ToolCall{{
				ID:        "tc1",
				Name:      "send_email",
				Arguments: json.RawMessage(`{"to":"x@y.io"}`),
			}},
		}
		data, err := json.Marshal(msg)
		require.NoError(t, err)

		var decoded Message
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Len(t, decoded.ToolCalls, 1)
		assert.Equal(t, "send_email", decoded.ToolCalls[0].Name)
		assert.JSONEq(t, `{"to":"x@y.io"}`, string(decoded.ToolCalls[0].Arguments))
	})

	t.Run("Should preserve unknown fields losslessly", func(t *testing.T) {
		raw := `{"role":"assistant","content":"hi","id":"a1","vendor_meta":{"trace":"t-9"},"finish_reason":"stop"}`
		var msg Message
		require.NoError(t, json.Unmarshal([]byte(raw), &msg))
		assert.Equal(t, RoleAssistant, msg.Role)
		assert.JSONEq(t, `{"trace":"t-9"}`, string(msg.Extra["vendor_meta"]))

		reencoded, err := json.Marshal(msg)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(reencoded))
	})

	t.Run("Should reject malformed payloads", func(t *testing.T) {
		var msg Message
		assert.Error(t, json.Unmarshal([]byte(`{"role":5}`), &msg))
		assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &msg))
	})
}

func TestMessageClone(t *testing.T) {
	t.Run("Should deep-copy tool calls and extras", func(t *testing.T) {
		msg := Message{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{{
				ID:        "tc1",
				Arguments: json.RawMessage(`{"a":1}`),
			}},
			Extra: map[string]json.RawMessage{"k": json.RawMessage(`"v"`)},
		}
		clone := msg.Clone()
		clone.ToolCalls[0].Arguments[2] = 'x'
		clone.Extra["k"][0] = 'x'

		assert.JSONEq(t, `{"a":1}`, string(msg.ToolCalls[0].Arguments))
		assert.Equal(t, `"v"`, string(msg.Extra["k"]))
	})
}
