package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should load defaults for the regex backend", func(t *testing.T) {
		t.Setenv("CLOAK_DETECTOR_BACKEND", "regex")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "regex", cfg.Detector.Backend)
		assert.InDelta(t, 0.5, cfg.Detector.Threshold, 1e-9)
		assert.Equal(t, "placeholder", cfg.Replacer.Strategy)
		assert.Equal(t, "kv", cfg.EntityStore.Backend)
		assert.Equal(t, "localhost", cfg.KV.Host)
		assert.Equal(t, "6379", cfg.KV.Port)
		assert.Equal(t, 3600, cfg.TTL.Seconds)
		assert.True(t, cfg.TTL.RefreshOnRead)
	})

	t.Run("Should apply environment overrides", func(t *testing.T) {
		t.Setenv("CLOAK_DETECTOR_BACKEND", "regex")
		t.Setenv("CLOAK_REPLACER_STRATEGY", "hash")
		t.Setenv("CLOAK_KV_HOST", "redis.internal")
		t.Setenv("CLOAK_KV_DB", "3")
		t.Setenv("CLOAK_TTL_SECONDS", "120")
		t.Setenv("CLOAK_DETECTOR_ENTITIES", "person, email,iban")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "hash", cfg.Replacer.Strategy)
		assert.Equal(t, "redis.internal", cfg.KV.Host)
		assert.Equal(t, 3, cfg.KV.DB)
		assert.Equal(t, 120, cfg.TTL.Seconds)
		assert.Equal(t, []string{"person", "email", "iban"}, cfg.Detector.Entities)
	})

	t.Run("Should require a base URL for the remote backend", func(t *testing.T) {
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "detector.base_url")
	})

	t.Run("Should accept the remote backend with a base URL", func(t *testing.T) {
		t.Setenv("CLOAK_DETECTOR_BASE_URL", "http://localhost:8080")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "remote", cfg.Detector.Backend)
		assert.Equal(t, "http://localhost:8080", cfg.Detector.BaseURL)
	})

	t.Run("Should reject unknown strategy values", func(t *testing.T) {
		t.Setenv("CLOAK_DETECTOR_BACKEND", "regex")
		t.Setenv("CLOAK_REPLACER_STRATEGY", "rot13")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("Should reject an encryption strategy without the encryption backend", func(t *testing.T) {
		t.Setenv("CLOAK_DETECTOR_BACKEND", "regex")
		t.Setenv("CLOAK_REPLACER_STRATEGY", "encryption")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be set together")
	})

	t.Run("Should require a secret for the encryption backend", func(t *testing.T) {
		t.Setenv("CLOAK_DETECTOR_BACKEND", "regex")
		t.Setenv("CLOAK_REPLACER_STRATEGY", "encryption")
		t.Setenv("CLOAK_ENTITY_STORE_BACKEND", "encryption")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encryption.secret")

		t.Setenv("CLOAK_ENCRYPTION_SECRET", "s3cret")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "encryption", cfg.EntityStore.Backend)
	})
}
