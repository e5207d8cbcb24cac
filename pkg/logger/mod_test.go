package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	t.Run("Should emit at and above the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: WarnLevel, Output: &buf})
		log.Info("hidden")
		assert.Empty(t, buf.String())
		log.Warn("visible", "key", "value")
		assert.Contains(t, buf.String(), "visible")
		assert.Contains(t, buf.String(), "value")
	})

	t.Run("Should suppress all output when disabled", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: DisabledLevel, Output: &buf})
		log.Debug("d")
		log.Info("i")
		log.Warn("w")
		log.Error("e")
		assert.Empty(t, buf.String())
	})

	t.Run("Should carry With fields on every entry", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf}).With("thread", "t-1")
		log.Info("turn done")
		assert.Contains(t, buf.String(), "t-1")
	})
}

func TestContextPlumbing(t *testing.T) {
	t.Run("Should round-trip a logger through the context", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf})
		ctx := ContextWithLogger(context.Background(), log)
		FromContext(ctx).Info("from context")
		assert.Contains(t, buf.String(), "from context")
	})

	t.Run("Should fall back to the default logger", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
		assert.NotNil(t, FromContext(nil)) //nolint:staticcheck
	})
}
