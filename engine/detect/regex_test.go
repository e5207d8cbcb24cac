package detect

import (
	"context"
	"testing"

	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexDetector(t *testing.T) {
	ctx := context.Background()
	d := NewRegexDetector()

	t.Run("Should detect emails with exact spans", func(t *testing.T) {
		text := "Write to john.doe@acme.com today"
		results, err := d.Detect(ctx, []string{text}, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Len(t, results[0], 1)
		entity := results[0][0]
		assert.Equal(t, "email", entity.Label)
		assert.Equal(t, "john.doe@acme.com", entity.Text)
		assert.Equal(t, text[entity.Start:entity.End], entity.Text)
		assert.InDelta(t, 1.0, entity.Score, 1e-9)
	})

	t.Run("Should detect IBANs and insurance ids", func(t *testing.T) {
		results, err := d.Detect(ctx, []string{
			"IBAN DE89370400440532013000 and id A123456789",
		}, 0)
		require.NoError(t, err)
		labels := make([]string, 0, len(results[0]))
		for _, e := range results[0] {
			labels = append(labels, e.Label)
		}
		assert.ElementsMatch(t, []string{"iban", "german_medical_insurance_id"}, labels)
	})

	t.Run("Should align the nth result with the nth input", func(t *testing.T) {
		results, err := d.Detect(ctx, []string{
			"call 555-123-4567",
			"no entities here at all",
		}, 0)
		require.NoError(t, err)
		require.Len(t, results, 2)
		require.Len(t, results[0], 1)
		assert.Equal(t, "phone_number", results[0][0].Label)
		assert.Empty(t, results[1])
	})

	t.Run("Should emit non-overlapping start-sorted spans", func(t *testing.T) {
		results, err := d.Detect(ctx, []string{
			"pay 4111111111111111 or mail a@b.io, call 555-123-4567",
		}, 0)
		require.NoError(t, err)
		entities := results[0]
		for i := 1; i < len(entities); i++ {
			assert.GreaterOrEqual(t, entities[i].Start, entities[i-1].End)
		}
	})

	t.Run("Should reject empty batches and blank texts", func(t *testing.T) {
		_, err := d.Detect(ctx, nil, 0)
		assert.Equal(t, core.ErrCodeInvalidInput, core.CodeOf(err))

		_, err = d.Detect(ctx, []string{"fine", "   "}, 0)
		assert.Equal(t, core.ErrCodeInvalidInput, core.CodeOf(err))
	})

	t.Run("Should declare a sorted supported entity set", func(t *testing.T) {
		labels := d.SupportedEntities()
		assert.Contains(t, labels, "email")
		assert.Contains(t, labels, "iban")
		assert.IsNonDecreasing(t, labels)
	})
}
