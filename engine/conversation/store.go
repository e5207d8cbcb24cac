package conversation

import (
	"context"

	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/cloaked-ai/cloak/engine/llm"
)

// Store persists the redacted transcript of a thread. Only redacted messages
// ever reach it; original text lives solely in the entity store.
type Store interface {
	// Append adds messages to the end of the thread's transcript in order.
	Append(ctx context.Context, thread core.ThreadID, messages []llm.Message) error
	// Read returns the transcript in chronological order. A limit > 0 caps
	// the result to the most recent limit messages.
	Read(ctx context.Context, thread core.ThreadID, limit int) ([]llm.Message, error)
	// Len returns the number of stored messages.
	Len(ctx context.Context, thread core.ThreadID) (int64, error)
	// Clear removes the thread's transcript.
	Clear(ctx context.Context, thread core.ThreadID) error
	// Exists reports whether the thread has a transcript.
	Exists(ctx context.Context, thread core.ThreadID) (bool, error)
	// ListThreads returns the ids of every thread with a transcript.
	ListThreads(ctx context.Context) ([]string, error)
}
