package replace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cloaked-ai/cloak/engine/core"
)

// HashStrategy mints tokens like [EMAIL_3f2a91c04b7d]: the label plus a
// truncated digest of the thread id and the original. The token leaks nothing
// about the original but stays stable across turns and retries without any
// counter state.
type HashStrategy struct{}

// NewHashStrategy returns the stateless hash strategy.
func NewHashStrategy() *HashStrategy {
	return &HashStrategy{}
}

// CreatePlaceholder implements Strategy.
func (h *HashStrategy) CreatePlaceholder(_ context.Context, thread core.ThreadID, original, label string) (string, error) {
	normalized := NormalizeLabel(label)
	if normalized == "" {
		return "", core.NewError(
			fmt.Errorf("entity label is empty"),
			core.ErrCodeUnsupportedEntity,
			nil,
		)
	}
	digest := sha256.New()
	digest.Write(thread.Bytes())
	digest.Write([]byte(original))
	return fmt.Sprintf("[%s_%s]", normalized, hex.EncodeToString(digest.Sum(nil)[:6])), nil
}

// Name implements Strategy.
func (h *HashStrategy) Name() string {
	return StrategyHash
}
