package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloaked-ai/cloak/engine/core"
)

// Entity is a detected span within a single text blob. Offsets are byte
// offsets, half-open, into the source string.
type Entity struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Validate checks the span invariants against the source text.
func (e Entity) Validate(source string) error {
	if e.Start < 0 || e.Start >= e.End || e.End > len(source) {
		return core.NewError(
			fmt.Errorf("entity span [%d:%d) out of bounds for text of length %d", e.Start, e.End, len(source)),
			core.ErrCodeIntegrity,
			map[string]any{"label": e.Label},
		)
	}
	if source[e.Start:e.End] != e.Text {
		return core.NewError(
			fmt.Errorf("entity text %q does not match source span %q", e.Text, source[e.Start:e.End]),
			core.ErrCodeIntegrity,
			map[string]any{"label": e.Label},
		)
	}
	return nil
}

// Detector identifies sensitive spans in text. Detect is a pure function on
// its input: the nth result list corresponds to the nth input text. Ordering
// within a list is stable but unspecified.
//
// A threshold of 0 means "use the detector's default". Entities scoring
// below the effective threshold are discarded by the detector.
type Detector interface {
	Detect(ctx context.Context, texts []string, threshold float64) ([][]Entity, error)
	SupportedEntities() []string
	DefaultThreshold() float64
}

// ValidateTexts rejects empty batches and blank entries before they reach a
// backend.
func ValidateTexts(texts []string) error {
	if len(texts) == 0 {
		return core.NewError(fmt.Errorf("no texts to analyze"), core.ErrCodeInvalidInput, nil)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return core.NewError(
				fmt.Errorf("text at index %d is empty", i),
				core.ErrCodeInvalidInput,
				map[string]any{"index": i},
			)
		}
	}
	return nil
}
