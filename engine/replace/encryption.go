package replace

import (
	"context"
	"fmt"

	"github.com/cloaked-ai/cloak/engine/core"
)

// EncryptionStrategy is the marker paired with store.EncryptionStore. That
// store derives the ciphertext token on lookup, so every GetPlaceholder hits
// and this strategy is never asked to mint one.
type EncryptionStrategy struct{}

// NewEncryptionStrategy returns the encryption marker strategy.
func NewEncryptionStrategy() *EncryptionStrategy {
	return &EncryptionStrategy{}
}

// CreatePlaceholder implements Strategy. Reaching it means the replacer was
// wired with a store that does not derive tokens itself.
func (e *EncryptionStrategy) CreatePlaceholder(context.Context, core.ThreadID, string, string) (string, error) {
	return "", core.NewError(
		fmt.Errorf("encryption strategy requires an encryption-backed entity store"),
		core.ErrCodeInvalidConfig,
		nil,
	)
}

// Name implements Strategy.
func (e *EncryptionStrategy) Name() string {
	return StrategyEncryption
}
