package privacy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloaked-ai/cloak/engine/conversation"
	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/cloaked-ai/cloak/engine/detect"
	"github.com/cloaked-ai/cloak/engine/llm"
	"github.com/cloaked-ai/cloak/engine/replace"
	"github.com/cloaked-ai/cloak/engine/store"
	"github.com/cloaked-ai/cloak/pkg/logger"
	"github.com/google/uuid"
)

// Wrapper sits between the caller and the wrapped LLM client. Each turn it
// redacts the new tail of the history, forwards the redacted transcript, and
// restores the response before returning it. The model never sees original
// sensitive values; the caller never sees replacement tokens.
type Wrapper struct {
	client        llm.Client
	detector      detect.Detector
	replacer      *replace.Replacer
	conversations conversation.Store
	entities      store.Store
	threshold     float64
}

// NewWrapper assembles a wrapper from already-constructed components. A
// threshold of 0 defers to the detector's default.
func NewWrapper(
	client llm.Client,
	detector detect.Detector,
	replacer *replace.Replacer,
	conversations conversation.Store,
	entities store.Store,
	threshold float64,
) *Wrapper {
	return &Wrapper{
		client:        client,
		detector:      detector,
		replacer:      replacer,
		conversations: conversations,
		entities:      entities,
		threshold:     threshold,
	}
}

// BindTools forwards tool schemas to the wrapped client. Detection and
// replacement operate uniformly on argument strings, so no wrapper logic
// depends on the schemas themselves.
func (w *Wrapper) BindTools(tools []llm.ToolDefinition) error {
	return w.client.BindTools(tools)
}

// payloadRef points one detectable payload back at its place in the tail:
// either a message's content or one tool call's serialised arguments.
type payloadRef struct {
	message  int
	toolCall int // -1 for content
	text     string
}

// ProcessTurn runs one redact-dispatch-restore cycle over the caller's
// complete chronological history.
//
// The conversation store is authoritative for what the model has already
// seen: only the history beyond the stored prefix is detected and redacted,
// so the per-turn cost is proportional to the new messages and tokens stay
// stable across turns. With an empty thread key the thread is ephemeral and
// nothing is persisted beyond the mapping writes needed for restoration.
func (w *Wrapper) ProcessTurn(ctx context.Context, threadKey string, history []llm.Message) (llm.Message, error) {
	log := logger.FromContext(ctx)
	thread := core.ThreadFromKey(threadKey)

	prefix, err := w.readPrefix(ctx, thread)
	if err != nil {
		return llm.Message{}, err
	}
	tail := newTail(prefix, history)
	log.Debug("processing turn",
		"thread", thread.String(),
		"history", len(history),
		"prefix", len(prefix),
		"new", len(tail),
	)

	redacted, err := w.redactTail(ctx, thread, tail)
	if err != nil {
		return llm.Message{}, err
	}

	dispatch := make([]llm.Message, 0, len(prefix)+len(redacted))
	dispatch = append(dispatch, prefix...)
	dispatch = append(dispatch, redacted...)
	response, err := w.client.Invoke(ctx, dispatch)
	if err != nil {
		return llm.Message{}, err
	}

	// Replayed histories produce an empty tail; appending nothing keeps the
	// stored transcript append-exactly-once.
	if !thread.Ephemeral() && len(redacted) > 0 {
		record := make([]llm.Message, 0, len(redacted)+1)
		record = append(record, redacted...)
		record = append(record, response)
		if err := w.conversations.Append(ctx, thread, record); err != nil {
			return llm.Message{}, err
		}
	}

	return w.restoreMessage(ctx, thread, response)
}

// ClearThread drops both the mapping state and the transcript of a thread.
func (w *Wrapper) ClearThread(ctx context.Context, threadKey string) error {
	thread := core.ThreadFromKey(threadKey)
	if err := w.entities.Clear(ctx, thread); err != nil {
		return err
	}
	if err := w.conversations.Clear(ctx, thread); err != nil {
		return err
	}
	logger.FromContext(ctx).Info("cleared thread", "thread", thread.String())
	return nil
}

// Close releases the wrapped client.
func (w *Wrapper) Close() error {
	return w.client.Close()
}

func (w *Wrapper) readPrefix(ctx context.Context, thread core.ThreadID) ([]llm.Message, error) {
	if thread.Ephemeral() {
		return nil, nil
	}
	return w.conversations.Read(ctx, thread, 0)
}

// newTail returns the messages beyond the stored prefix. A caller history
// shorter than the prefix yields no new messages.
func newTail(prefix, history []llm.Message) []llm.Message {
	k := len(prefix)
	if k >= len(history) {
		return nil
	}
	tail := make([]llm.Message, 0, len(history)-k)
	for _, msg := range history[k:] {
		tail = append(tail, msg.Clone())
	}
	return tail
}

func (w *Wrapper) redactTail(ctx context.Context, thread core.ThreadID, tail []llm.Message) ([]llm.Message, error) {
	payloads, err := collectPayloads(tail)
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return tail, nil
	}

	texts := make([]string, len(payloads))
	for i, ref := range payloads {
		texts[i] = ref.text
	}
	detected, err := w.detector.Detect(ctx, texts, w.threshold)
	if err != nil {
		return nil, err
	}

	for i, ref := range payloads {
		redacted, err := w.replacer.Replace(ctx, thread, ref.text, detected[i])
		if err != nil {
			return nil, err
		}
		msg := &tail[ref.message]
		if ref.toolCall < 0 {
			msg.Content = redacted
			continue
		}
		if !json.Valid([]byte(redacted)) {
			return nil, core.NewError(
				fmt.Errorf("redacted tool-call arguments are no longer valid JSON"),
				core.ErrCodeIntegrity,
				map[string]any{"tool_call_id": msg.ToolCalls[ref.toolCall].ID},
			)
		}
		msg.ToolCalls[ref.toolCall].Arguments = json.RawMessage(redacted)
	}
	return tail, nil
}

// collectPayloads flattens the tail's detectable text into one batch. System
// messages are trusted and pass through untouched; blank payloads are
// skipped so the detector never sees empty input.
func collectPayloads(tail []llm.Message) ([]payloadRef, error) {
	var payloads []payloadRef
	for i := range tail {
		msg := &tail[i]
		if msg.Role == llm.RoleSystem {
			continue
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if !isBlank(msg.Content) {
			payloads = append(payloads, payloadRef{message: i, toolCall: -1, text: msg.Content})
		}
		for j := range msg.ToolCalls {
			tc := &msg.ToolCalls[j]
			if tc.ID == "" {
				return nil, core.NewError(
					fmt.Errorf("tool call %q has no id", tc.Name),
					core.ErrCodeMissingToolCallID,
					map[string]any{"tool": tc.Name},
				)
			}
			if len(tc.Arguments) == 0 || isBlank(string(tc.Arguments)) {
				continue
			}
			payloads = append(payloads, payloadRef{message: i, toolCall: j, text: string(tc.Arguments)})
		}
	}
	return payloads, nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// restoreMessage maps tokens in the response back to their originals, in
// both the content and any tool-call arguments.
func (w *Wrapper) restoreMessage(ctx context.Context, thread core.ThreadID, msg llm.Message) (llm.Message, error) {
	restored := msg.Clone()
	content, err := w.replacer.Restore(ctx, thread, restored.Content)
	if err != nil {
		return llm.Message{}, err
	}
	restored.Content = content
	for i := range restored.ToolCalls {
		if len(restored.ToolCalls[i].Arguments) == 0 {
			continue
		}
		args, err := w.replacer.Restore(ctx, thread, string(restored.ToolCalls[i].Arguments))
		if err != nil {
			return llm.Message{}, err
		}
		if !json.Valid([]byte(args)) {
			return llm.Message{}, core.NewError(
				fmt.Errorf("restored tool-call arguments are no longer valid JSON"),
				core.ErrCodeIntegrity,
				map[string]any{"tool_call_id": restored.ToolCalls[i].ID},
			)
		}
		restored.ToolCalls[i].Arguments = json.RawMessage(args)
	}
	return restored, nil
}
