package replace

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/cloaked-ai/cloak/engine/detect"
	"github.com/cloaked-ai/cloak/engine/store"
	"github.com/cloaked-ai/cloak/pkg/logger"
)

// Replacer substitutes detected entities with stable per-thread tokens and
// reverses the substitution on the way back.
type Replacer struct {
	store    store.Store
	strategy Strategy
}

// NewReplacer wires a store and a strategy together.
func NewReplacer(s store.Store, strategy Strategy) *Replacer {
	return &Replacer{store: s, strategy: strategy}
}

// Strategy exposes the wired strategy for configuration checks.
func (r *Replacer) Strategy() Strategy {
	return r.strategy
}

// Replace rewrites text with one token per detected entity, processing spans
// in the supplied order with a running offset. Repeated originals reuse the
// token already stored for the thread; new ones are minted by the strategy
// and persisted before splicing.
func (r *Replacer) Replace(ctx context.Context, thread core.ThreadID, text string, entities []detect.Entity) (string, error) {
	if len(entities) == 0 {
		return text, nil
	}
	if err := validateSpans(text, entities); err != nil {
		return "", err
	}
	out := text
	offset := 0
	created := 0
	for _, entity := range entities {
		token, err := r.tokenFor(ctx, thread, entity, &created)
		if err != nil {
			return "", err
		}
		out = out[:entity.Start+offset] + token + out[entity.End+offset:]
		offset += len(token) - (entity.End - entity.Start)
	}
	logger.FromContext(ctx).Debug("replaced entities",
		"thread", thread.String(),
		"entities", len(entities),
		"created", created,
	)
	return out, nil
}

func (r *Replacer) tokenFor(ctx context.Context, thread core.ThreadID, entity detect.Entity, created *int) (string, error) {
	token, found, err := r.store.GetPlaceholder(ctx, thread, entity.Text)
	if err != nil {
		return "", err
	}
	if found {
		return token, nil
	}
	token, err = r.strategy.CreatePlaceholder(ctx, thread, entity.Text, entity.Label)
	if err != nil {
		return "", err
	}
	if err := r.store.Put(ctx, thread, entity.Text, entity.Label, token); err != nil {
		return "", err
	}
	*created++
	return token, nil
}

// Restore substitutes every stored token in text back to its original.
// Longer tokens are applied first so a token that happens to be a prefix of
// another never clobbers it.
func (r *Replacer) Restore(ctx context.Context, thread core.ThreadID, text string) (string, error) {
	snapshot, err := r.store.Snapshot(ctx, thread)
	if err != nil {
		return "", err
	}
	if len(snapshot) == 0 {
		return text, nil
	}
	tokens := make([]string, 0, len(snapshot))
	for token := range snapshot {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(a, b int) bool {
		if len(tokens[a]) != len(tokens[b]) {
			return len(tokens[a]) > len(tokens[b])
		}
		return tokens[a] < tokens[b]
	})
	for _, token := range tokens {
		text = strings.ReplaceAll(text, token, snapshot[token].Text)
	}
	return text, nil
}

// validateSpans checks every entity against the source text and rejects
// overlapping spans, which would make the splice ambiguous.
func validateSpans(text string, entities []detect.Entity) error {
	for _, entity := range entities {
		if err := entity.Validate(text); err != nil {
			return err
		}
	}
	ordered := make([]detect.Entity, len(entities))
	copy(ordered, entities)
	sort.Slice(ordered, func(a, b int) bool {
		return ordered[a].Start < ordered[b].Start
	})
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Start < ordered[i-1].End {
			return core.NewError(
				fmt.Errorf("entity spans [%d:%d) and [%d:%d) overlap",
					ordered[i-1].Start, ordered[i-1].End, ordered[i].Start, ordered[i].End),
				core.ErrCodeIntegrity,
				map[string]any{"labels": []string{ordered[i-1].Label, ordered[i].Label}},
			)
		}
	}
	return nil
}
