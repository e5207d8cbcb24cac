package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CLOAK_"

// envMappings pins each recognised environment variable to its config path.
// An explicit table avoids guessing where the underscores in variable names
// split between section and field (ENTITY_STORE_BACKEND and friends).
var envMappings = map[string]string{
	"CLOAK_DETECTOR_BACKEND":         "detector.backend",
	"CLOAK_DETECTOR_THRESHOLD":       "detector.threshold",
	"CLOAK_DETECTOR_BASE_URL":        "detector.base_url",
	"CLOAK_DETECTOR_API_KEY":         "detector.api_key",
	"CLOAK_DETECTOR_ENTITIES":        "detector.entities",
	"CLOAK_DETECTOR_TIMEOUT_SECONDS": "detector.timeout_seconds",
	"CLOAK_REPLACER_STRATEGY":        "replacer.strategy",
	"CLOAK_ENTITY_STORE_BACKEND":     "entity_store.backend",
	"CLOAK_KV_URL":                   "kv.url",
	"CLOAK_KV_HOST":                  "kv.host",
	"CLOAK_KV_PORT":                  "kv.port",
	"CLOAK_KV_PASSWORD":              "kv.password",
	"CLOAK_KV_DB":                    "kv.db",
	"CLOAK_TTL_SECONDS":              "ttl.seconds",
	"CLOAK_TTL_REFRESH_ON_READ":      "ttl.refresh_on_read",
	"CLOAK_PSEUDONYM_LOCALE":         "pseudonym.locale",
	"CLOAK_ENCRYPTION_SECRET":        "encryption.secret",
	"CLOAK_LLM_PROVIDER":             "llm.provider",
	"CLOAK_LLM_MODEL":                "llm.model",
	"CLOAK_LLM_API_KEY":              "llm.api_key",
	"CLOAK_LOG_LEVEL":                "runtime.log_level",
	"CLOAK_LOG_JSON":                 "runtime.log_json",
}

// Load builds the configuration from defaults plus CLOAK_* environment
// overrides, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			if !strings.HasPrefix(key, envPrefix) {
				key = envPrefix + key
			}
			path, known := envMappings[key]
			if !known {
				return "", nil
			}
			if path == "detector.entities" {
				return path, splitList(value)
			}
			return path, value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies the struct tag rules plus the cross-field pairing rules.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Detector.Backend == "remote" && cfg.Detector.BaseURL == "" {
		return fmt.Errorf("invalid configuration: detector.base_url is required for the remote backend")
	}
	// The encryption strategy derives tokens inside the store, so the two
	// must be selected together.
	encStrategy := cfg.Replacer.Strategy == "encryption"
	encBackend := cfg.EntityStore.Backend == "encryption"
	if encStrategy != encBackend {
		return fmt.Errorf("invalid configuration: replacer.strategy=encryption and entity_store.backend=encryption must be set together")
	}
	if encBackend && cfg.Encryption.Secret == "" {
		return fmt.Errorf("invalid configuration: encryption.secret is required for the encryption backend")
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
