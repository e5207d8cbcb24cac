package config

// Config is the full runtime configuration. Defaults come from Default();
// overrides come from CLOAK_* environment variables (see loader.go).
type Config struct {
	Detector    DetectorConfig    `koanf:"detector"`
	Replacer    ReplacerConfig    `koanf:"replacer"`
	EntityStore EntityStoreConfig `koanf:"entity_store"`
	KV          KVConfig          `koanf:"kv"`
	TTL         TTLConfig         `koanf:"ttl"`
	Pseudonym   PseudonymConfig   `koanf:"pseudonym"`
	Encryption  EncryptionConfig  `koanf:"encryption"`
	LLM         LLMConfig         `koanf:"llm"`
	Runtime     RuntimeConfig     `koanf:"runtime"`
}

// DetectorConfig selects and tunes the entity detector.
type DetectorConfig struct {
	Backend   string   `koanf:"backend"   validate:"oneof=remote regex"`
	Threshold float64  `koanf:"threshold" validate:"gte=0,lte=1"`
	BaseURL   string   `koanf:"base_url"  validate:"omitempty,url"`
	APIKey    string   `koanf:"api_key"`
	Entities  []string `koanf:"entities"`
	// TimeoutSeconds bounds each detector HTTP call.
	TimeoutSeconds int `koanf:"timeout_seconds" validate:"gte=0"`
}

// ReplacerConfig selects the replacement strategy.
type ReplacerConfig struct {
	Strategy string `koanf:"strategy" validate:"oneof=placeholder pseudonym hash encryption"`
}

// EntityStoreConfig selects the mapping backend.
type EntityStoreConfig struct {
	Backend string `koanf:"backend" validate:"oneof=kv encryption"`
}

// KVConfig points at the key-value store shared by both stores.
type KVConfig struct {
	URL      string `koanf:"url"`
	Host     string `koanf:"host" validate:"required_without=URL"`
	Port     string `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
}

// TTLConfig bounds the lifetime of per-thread state.
type TTLConfig struct {
	Seconds       int  `koanf:"seconds" validate:"gte=0"`
	RefreshOnRead bool `koanf:"refresh_on_read"`
}

// PseudonymConfig tunes the pseudonym strategy.
type PseudonymConfig struct {
	Locale string `koanf:"locale"`
}

// EncryptionConfig carries the secret for the encryption store. Required
// only when the encryption strategy or backend is selected.
type EncryptionConfig struct {
	Secret string `koanf:"secret"`
}

// LLMConfig selects the wrapped model vendor.
type LLMConfig struct {
	Provider string `koanf:"provider" validate:"oneof=openai mistral"`
	Model    string `koanf:"model"    validate:"required"`
	APIKey   string `koanf:"api_key"`
}

// RuntimeConfig holds process-level settings.
type RuntimeConfig struct {
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error disabled"`
	LogJSON  bool   `koanf:"log_json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Detector: DetectorConfig{
			Backend:        "remote",
			Threshold:      0.5,
			TimeoutSeconds: 30,
		},
		Replacer: ReplacerConfig{
			Strategy: "placeholder",
		},
		EntityStore: EntityStoreConfig{
			Backend: "kv",
		},
		KV: KVConfig{
			Host: "localhost",
			Port: "6379",
			DB:   0,
		},
		TTL: TTLConfig{
			Seconds:       3600,
			RefreshOnRead: true,
		},
		Pseudonym: PseudonymConfig{
			Locale: "de",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Runtime: RuntimeConfig{
			LogLevel: "info",
		},
	}
}
