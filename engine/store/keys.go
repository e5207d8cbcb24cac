package store

import (
	"fmt"

	"github.com/cloaked-ai/cloak/engine/core"
)

// Key layout. Every thread-scoped key lives under the ctx:<thread>: prefix so
// an operator can inspect or expire one thread's state in isolation.
const threadsKey = "ctxs"

func replacementKey(thread core.ThreadID, placeholder string) string {
	return fmt.Sprintf("ctx:%s:rep:%s", thread, placeholder)
}

func placeholdersKey(thread core.ThreadID) string {
	return fmt.Sprintf("ctx:%s:reps", thread)
}

func textIndexKey(thread core.ThreadID) string {
	return fmt.Sprintf("ctx:%s:tex2rep", thread)
}

func labelCounterKey(thread core.ThreadID, label string) string {
	return fmt.Sprintf("ctx:%s:lc:%s", thread, label)
}
