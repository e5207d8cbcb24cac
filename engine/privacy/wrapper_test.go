package privacy

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloaked-ai/cloak/engine/conversation"
	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/cloaked-ai/cloak/engine/detect"
	"github.com/cloaked-ai/cloak/engine/llm"
	"github.com/cloaked-ai/cloak/engine/replace"
	"github.com/cloaked-ai/cloak/engine/store"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDetector recognises a fixed vocabulary of literal substrings.
type stubDetector struct {
	mu    sync.Mutex
	vocab map[string]string // literal -> label
	calls [][]string
}

func (d *stubDetector) Detect(_ context.Context, texts []string, _ float64) ([][]detect.Entity, error) {
	if err := detect.ValidateTexts(texts); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.calls = append(d.calls, texts)
	d.mu.Unlock()
	results := make([][]detect.Entity, len(texts))
	for i, text := range texts {
		var entities []detect.Entity
		for literal, label := range d.vocab {
			from := 0
			for {
				idx := strings.Index(text[from:], literal)
				if idx < 0 {
					break
				}
				start := from + idx
				entities = append(entities, detect.Entity{
					Start: start,
					End:   start + len(literal),
					Text:  literal,
					Label: label,
					Score: 0.99,
				})
				from = start + len(literal)
			}
		}
		sort.Slice(entities, func(a, b int) bool {
			return entities[a].Start < entities[b].Start
		})
		results[i] = entities
	}
	return results, nil
}

func (d *stubDetector) SupportedEntities() []string { return nil }
func (d *stubDetector) DefaultThreshold() float64   { return 0.5 }

func (d *stubDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *stubDetector) lastCall() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.calls) == 0 {
		return nil
	}
	return d.calls[len(d.calls)-1]
}

// stubClient returns canned responses and records what it was asked.
type stubClient struct {
	mu    sync.Mutex
	reply func(history []llm.Message) llm.Message
	calls [][]llm.Message
	tools []llm.ToolDefinition
}

func (c *stubClient) Invoke(_ context.Context, messages []llm.Message) (llm.Message, error) {
	c.mu.Lock()
	recorded := make([]llm.Message, len(messages))
	for i := range messages {
		recorded[i] = messages[i].Clone()
	}
	c.calls = append(c.calls, recorded)
	c.mu.Unlock()
	if c.reply != nil {
		return c.reply(messages), nil
	}
	return llm.Message{Role: llm.RoleAssistant, Content: "ok", ID: "r1"}, nil
}

func (c *stubClient) BindTools(tools []llm.ToolDefinition) error {
	c.tools = tools
	return nil
}

func (c *stubClient) Close() error { return nil }

func (c *stubClient) lastDispatch() []llm.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1]
}

type fixture struct {
	wrapper       *Wrapper
	detector      *stubDetector
	client        *stubClient
	entities      *store.RedisStore
	conversations *conversation.RedisStore
}

func setup(t *testing.T, vocab map[string]string, reply func([]llm.Message) llm.Message) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	entities := store.NewRedisStore(rdb)
	conversations := conversation.NewRedisStore(rdb)
	detector := &stubDetector{vocab: vocab}
	client := &stubClient{reply: reply}
	replacer := replace.NewReplacer(entities, replace.NewPlaceholderStrategy(entities))
	return &fixture{
		wrapper:       NewWrapper(client, detector, replacer, conversations, entities, 0),
		detector:      detector,
		client:        client,
		entities:      entities,
		conversations: conversations,
	}
}

func TestWrapper_ProcessTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("Should redact the first turn and store the redacted pair", func(t *testing.T) {
		f := setup(t, map[string]string{
			"Alice Müller":           "person",
			"DE89370400440532013000": "iban",
		}, nil)

		input := "Hi, I'm Alice Müller and my IBAN is DE89370400440532013000."
		response, err := f.wrapper.ProcessTurn(ctx, "T1", []llm.Message{
			{Role: llm.RoleUser, Content: input},
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", response.Content)

		dispatched := f.client.lastDispatch()
		require.Len(t, dispatched, 1)
		assert.Equal(t, "Hi, I'm [PERSON_01] and my IBAN is [IBAN_01].", dispatched[0].Content)
		assert.NotEmpty(t, dispatched[0].ID)

		thread := core.ThreadFromKey("T1")
		snapshot, err := f.entities.Snapshot(ctx, thread)
		require.NoError(t, err)
		assert.Len(t, snapshot, 2)
		assert.Equal(t, "Alice Müller", snapshot["[PERSON_01]"].Text)
		assert.Equal(t, "DE89370400440532013000", snapshot["[IBAN_01]"].Text)

		stored, err := f.conversations.Read(ctx, thread, 0)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, "Hi, I'm [PERSON_01] and my IBAN is [IBAN_01].", stored[0].Content)
		assert.Equal(t, llm.RoleAssistant, stored[1].Role)
	})

	t.Run("Should reuse placeholders and number only new entities on later turns", func(t *testing.T) {
		f := setup(t, map[string]string{
			"Alice Müller":           "person",
			"DE89370400440532013000": "iban",
			"DE44500105175407324931": "iban",
		}, nil)

		turn1 := llm.Message{Role: llm.RoleUser, Content: "Hi, I'm Alice Müller and my IBAN is DE89370400440532013000."}
		reply1, err := f.wrapper.ProcessTurn(ctx, "T1", []llm.Message{turn1})
		require.NoError(t, err)

		turn2 := llm.Message{Role: llm.RoleUser, Content: "Alice Müller also has IBAN DE89370400440532013000 and DE44500105175407324931."}
		_, err = f.wrapper.ProcessTurn(ctx, "T1", []llm.Message{turn1, reply1, turn2})
		require.NoError(t, err)

		dispatched := f.client.lastDispatch()
		require.Len(t, dispatched, 3)
		assert.Equal(t, "[PERSON_01] also has IBAN [IBAN_01] and [IBAN_02].", dispatched[2].Content)
	})

	t.Run("Should not re-detect messages already stored", func(t *testing.T) {
		f := setup(t, map[string]string{"Alice Müller": "person"}, nil)

		turn1 := llm.Message{Role: llm.RoleUser, Content: "I am Alice Müller."}
		reply1, err := f.wrapper.ProcessTurn(ctx, "T1", []llm.Message{turn1})
		require.NoError(t, err)
		require.Equal(t, 1, f.detector.callCount())

		turn2 := llm.Message{Role: llm.RoleUser, Content: "What did I just say?"}
		_, err = f.wrapper.ProcessTurn(ctx, "T1", []llm.Message{turn1, reply1, turn2})
		require.NoError(t, err)
		require.Equal(t, 2, f.detector.callCount())
		assert.Equal(t, []string{"What did I just say?"}, f.detector.lastCall())
	})

	t.Run("Should restore placeholders in the response", func(t *testing.T) {
		f := setup(t, map[string]string{
			"Alice Müller": "person",
		}, func([]llm.Message) llm.Message {
			return llm.Message{Role: llm.RoleAssistant, Content: "Noted, [PERSON_01]!", ID: "r1"}
		})

		response, err := f.wrapper.ProcessTurn(ctx, "T1", []llm.Message{
			{Role: llm.RoleUser, Content: "I am Alice Müller."},
		})
		require.NoError(t, err)
		assert.Equal(t, "Noted, Alice Müller!", response.Content)

		// The stored transcript keeps the redacted form.
		stored, err := f.conversations.Read(ctx, core.ThreadFromKey("T1"), 0)
		require.NoError(t, err)
		assert.Equal(t, "Noted, [PERSON_01]!", stored[1].Content)
	})

	t.Run("Should append exactly once when the same history is replayed", func(t *testing.T) {
		f := setup(t, map[string]string{"Alice Müller": "person"}, nil)
		history := []llm.Message{{Role: llm.RoleUser, Content: "I am Alice Müller."}}

		_, err := f.wrapper.ProcessTurn(ctx, "T1", history)
		require.NoError(t, err)
		_, err = f.wrapper.ProcessTurn(ctx, "T1", history)
		require.NoError(t, err)

		n, err := f.conversations.Len(ctx, core.ThreadFromKey("T1"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		// No new payloads on replay, so detection ran once.
		assert.Equal(t, 1, f.detector.callCount())
	})

	t.Run("Should pass system messages through unchanged", func(t *testing.T) {
		f := setup(t, map[string]string{"Alice Müller": "person"}, nil)

		_, err := f.wrapper.ProcessTurn(ctx, "T1", []llm.Message{
			{Role: llm.RoleSystem, Content: "You assist Alice Müller."},
			{Role: llm.RoleUser, Content: "I am Alice Müller."},
		})
		require.NoError(t, err)

		dispatched := f.client.lastDispatch()
		require.Len(t, dispatched, 2)
		assert.Equal(t, "You assist Alice Müller.", dispatched[0].Content)
		assert.Equal(t, "I am [PERSON_01].", dispatched[1].Content)
		assert.Equal(t, []string{"I am Alice Müller."}, f.detector.lastCall())
	})

	t.Run("Should not persist anything for an empty thread key", func(t *testing.T) {
		f := setup(t, map[string]string{
			"Alice Müller": "person",
		}, func([]llm.Message) llm.Message {
			return llm.Message{Role: llm.RoleAssistant, Content: "Hello [PERSON_01]", ID: "r1"}
		})

		response, err := f.wrapper.ProcessTurn(ctx, "", []llm.Message{
			{Role: llm.RoleUser, Content: "I am Alice Müller."},
		})
		require.NoError(t, err)
		assert.Equal(t, "Hello Alice Müller", response.Content)

		threads, err := f.conversations.ListThreads(ctx)
		require.NoError(t, err)
		assert.Empty(t, threads)
	})

	t.Run("Should keep threads isolated from each other", func(t *testing.T) {
		f := setup(t, map[string]string{"Alice Müller": "person"}, nil)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, key := range []string{"T1", "T2"} {
			wg.Add(1)
			go func(i int, key string) {
				defer wg.Done()
				_, errs[i] = f.wrapper.ProcessTurn(ctx, key, []llm.Message{
					{Role: llm.RoleUser, Content: "I am Alice Müller."},
				})
			}(i, key)
		}
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		for _, key := range []string{"T1", "T2"} {
			snapshot, err := f.entities.Snapshot(ctx, core.ThreadFromKey(key))
			require.NoError(t, err)
			require.Len(t, snapshot, 1)
			assert.Equal(t, "Alice Müller", snapshot["[PERSON_01]"].Text)
		}
	})
}

func TestWrapper_ToolCalls(t *testing.T) {
	ctx := context.Background()

	t.Run("Should redact tool-call arguments and restore them in the response", func(t *testing.T) {
		f := setup(t, map[string]string{
			"alice@x.com": "email",
		}, func(history []llm.Message) llm.Message {
			return llm.Message{
				Role: llm.RoleAssistant,
				ID:   "r1",
				ToolCalls: []llm.ToolCall{{
					ID:        "tc2",
					Name:      "send_email",
					Arguments: json.RawMessage(`{"to":"[EMAIL_01]","body":"done"}`),
				}},
			}
		})

		history := []llm.Message{
			{Role: llm.RoleUser, Content: "Email alice@x.com for me."},
			{
				Role: llm.RoleAssistant,
				ID:   "a1",
				ToolCalls: []llm.ToolCall{{
					ID:        "tc1",
					Name:      "send_email",
					Arguments: json.RawMessage(`{"to":"alice@x.com","body":"hi"}`),
				}},
			},
		}
		response, err := f.wrapper.ProcessTurn(ctx, "T1", history)
		require.NoError(t, err)

		dispatched := f.client.lastDispatch()
		require.Len(t, dispatched, 2)
		require.Len(t, dispatched[1].ToolCalls, 1)
		assert.JSONEq(t, `{"to":"[EMAIL_01]","body":"hi"}`, string(dispatched[1].ToolCalls[0].Arguments))

		require.Len(t, response.ToolCalls, 1)
		assert.JSONEq(t, `{"to":"alice@x.com","body":"done"}`, string(response.ToolCalls[0].Arguments))
	})

	t.Run("Should fail the turn when a tool call has no id", func(t *testing.T) {
		f := setup(t, map[string]string{"alice@x.com": "email"}, nil)

		_, err := f.wrapper.ProcessTurn(ctx, "T1", []llm.Message{
			{
				Role: llm.RoleAssistant,
				ID:   "a1",
				ToolCalls: []llm.ToolCall{{
					Name:      "send_email",
					Arguments: json.RawMessage(`{"to":"alice@x.com"}`),
				}},
			},
		})
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeMissingToolCallID, core.CodeOf(err))

		// A failed turn must not reach the model.
		assert.Nil(t, f.client.lastDispatch())
	})

	t.Run("Should delegate tool binding to the wrapped client", func(t *testing.T) {
		f := setup(t, nil, nil)
		tools := []llm.ToolDefinition{{Name: "send_email", Description: "sends email"}}
		require.NoError(t, f.wrapper.BindTools(tools))
		assert.Equal(t, tools, f.client.tools)
	})
}

func TestWrapper_ClearThread(t *testing.T) {
	ctx := context.Background()

	t.Run("Should drop both mapping state and transcript", func(t *testing.T) {
		f := setup(t, map[string]string{"Alice Müller": "person"}, nil)
		_, err := f.wrapper.ProcessTurn(ctx, "T1", []llm.Message{
			{Role: llm.RoleUser, Content: "I am Alice Müller."},
		})
		require.NoError(t, err)

		require.NoError(t, f.wrapper.ClearThread(ctx, "T1"))

		thread := core.ThreadFromKey("T1")
		snapshot, err := f.entities.Snapshot(ctx, thread)
		require.NoError(t, err)
		assert.Empty(t, snapshot)

		exists, err := f.conversations.Exists(ctx, thread)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}
