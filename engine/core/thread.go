package core

import (
	"crypto/sha256"

	"github.com/google/uuid"
)

// ThreadID identifies one conversation thread. All mapping and conversation
// state is scoped to it. The 128-bit width matches the UUID wire form used
// in store keys.
type ThreadID struct {
	id uuid.UUID
	// ephemeral marks threads created without a caller-supplied key; their
	// conversation history must not be persisted.
	ephemeral bool
}

// ThreadFromKey canonicalises a caller-supplied thread key.
//
// A key that parses as a UUID is used as-is. Any other non-empty key is
// hashed to a stable 128-bit value, so the same caller key always lands on
// the same thread. An empty key yields a fresh ephemeral thread.
func ThreadFromKey(key string) ThreadID {
	if key == "" {
		return ThreadID{id: uuid.New(), ephemeral: true}
	}
	if id, err := uuid.Parse(key); err == nil {
		return ThreadID{id: id}
	}
	sum := sha256.Sum256([]byte(key))
	id, err := uuid.FromBytes(sum[:16])
	if err != nil {
		// sha256 always yields 32 bytes; FromBytes on 16 of them cannot fail.
		panic(err)
	}
	return ThreadID{id: id}
}

// ThreadFromUUID wraps an existing UUID as a persistent thread id.
func ThreadFromUUID(id uuid.UUID) ThreadID {
	return ThreadID{id: id}
}

func (t ThreadID) String() string {
	return t.id.String()
}

// Bytes returns the 16-byte form used for key derivation and seeding.
func (t ThreadID) Bytes() []byte {
	b := t.id
	return b[:]
}

// Ephemeral reports whether the thread was created without a caller key.
// Ephemeral threads skip conversation persistence.
func (t ThreadID) Ephemeral() bool {
	return t.ephemeral
}

func (t ThreadID) IsZero() bool {
	return t.id == uuid.Nil
}
