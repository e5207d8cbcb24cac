package replace

import (
	"context"

	"github.com/cloaked-ai/cloak/engine/core"
)

// Strategy names accepted by configuration.
const (
	StrategyPlaceholder = "placeholder"
	StrategyPseudonym   = "pseudonym"
	StrategyHash        = "hash"
	StrategyEncryption  = "encryption"
)

// Strategy mints a replacement token for a newly seen original. It is only
// consulted on a store miss; repeated originals reuse the stored token.
type Strategy interface {
	// CreatePlaceholder returns the token standing in for original within
	// the thread. Implementations must be deterministic per (thread,
	// original) so retried turns converge on the same token.
	CreatePlaceholder(ctx context.Context, thread core.ThreadID, original, label string) (string, error)
	// Name identifies the strategy in configuration and logs.
	Name() string
}

// NormalizeLabel canonicalises a detector label for embedding in tokens.
// See core.NormalizeLabel.
func NormalizeLabel(label string) string {
	return core.NormalizeLabel(label)
}
