package store

import (
	"context"
	"errors"

	"github.com/cloaked-ai/cloak/engine/core"
)

// ErrNotFound is returned when a placeholder has no mapping in the store.
var ErrNotFound = errors.New("placeholder not found")

// Mapping is the stored side of a placeholder: the original text and the
// label it was detected under.
type Mapping struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Store is the thread-scoped two-way map between original text and
// placeholders, plus per-label counters.
//
// Within a thread the mapping is bijective: no two originals share a
// placeholder and no two placeholders share an original. Put enforces this
// and fails with INTEGRITY_ERROR on violation.
type Store interface {
	// Put records the (original, label, placeholder) triple. Atomic with
	// respect to concurrent Put/Get for the same thread.
	Put(ctx context.Context, thread core.ThreadID, original, label, placeholder string) error
	// GetPlaceholder is the reverse lookup used during replacement.
	GetPlaceholder(ctx context.Context, thread core.ThreadID, original string) (string, bool, error)
	// GetOriginal is the forward lookup used during restoration.
	GetOriginal(ctx context.Context, thread core.ThreadID, placeholder string) (Mapping, bool, error)
	// IncLabelCounter atomically increments the per-(thread, label) counter
	// and returns the new value. Strictly monotonic.
	IncLabelCounter(ctx context.Context, thread core.ThreadID, label string) (int64, error)
	// ListPlaceholders returns every placeholder recorded for the thread.
	ListPlaceholders(ctx context.Context, thread core.ThreadID) ([]string, error)
	// Exists reports whether a placeholder is recorded for the thread.
	Exists(ctx context.Context, thread core.ThreadID, placeholder string) (bool, error)
	// Delete removes a single placeholder mapping. Returns ErrNotFound when
	// the placeholder is not recorded.
	Delete(ctx context.Context, thread core.ThreadID, placeholder string) error
	// Clear removes all mapping state for the thread.
	Clear(ctx context.Context, thread core.ThreadID) error
	// Snapshot returns all placeholder mappings for the thread in one read.
	Snapshot(ctx context.Context, thread core.ThreadID) (map[string]Mapping, error)
}

// Stats summarises store contents across threads.
type Stats struct {
	Threads      int
	TotalEntries int
}
