package replace

import (
	"context"
	"fmt"

	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/cloaked-ai/cloak/engine/store"
)

// PlaceholderStrategy mints human-readable tokens like [PERSON_01], numbered
// per (thread, label) by the entity store's counters.
type PlaceholderStrategy struct {
	store store.Store
}

// NewPlaceholderStrategy builds the strategy on top of the given store.
func NewPlaceholderStrategy(s store.Store) *PlaceholderStrategy {
	return &PlaceholderStrategy{store: s}
}

// CreatePlaceholder implements Strategy.
func (p *PlaceholderStrategy) CreatePlaceholder(ctx context.Context, thread core.ThreadID, _ string, label string) (string, error) {
	normalized := NormalizeLabel(label)
	if normalized == "" {
		return "", core.NewError(
			fmt.Errorf("entity label is empty"),
			core.ErrCodeUnsupportedEntity,
			nil,
		)
	}
	count, err := p.store.IncLabelCounter(ctx, thread, normalized)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s_%02d]", normalized, count), nil
}

// Name implements Strategy.
func (p *PlaceholderStrategy) Name() string {
	return StrategyPlaceholder
}
