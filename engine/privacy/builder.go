package privacy

import (
	"context"
	"fmt"
	"time"

	"github.com/cloaked-ai/cloak/engine/conversation"
	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/cloaked-ai/cloak/engine/detect"
	"github.com/cloaked-ai/cloak/engine/infra/cache"
	"github.com/cloaked-ai/cloak/engine/llm"
	"github.com/cloaked-ai/cloak/engine/replace"
	"github.com/cloaked-ai/cloak/engine/store"
	"github.com/cloaked-ai/cloak/pkg/config"
	"github.com/tmc/langchaingo/llms/mistral"
	"github.com/tmc/langchaingo/llms/openai"
)

// Components is the fully wired pipeline plus the handles operational
// commands need directly.
type Components struct {
	Wrapper       *Wrapper
	Detector      detect.Detector
	Entities      store.Store
	Conversations conversation.Store
	Redis         *cache.Redis
}

// Close releases the wrapped client and the Redis connection.
func (c *Components) Close() error {
	var firstErr error
	if c.Wrapper != nil {
		firstErr = c.Wrapper.Close()
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build wires every component from configuration. Compatibility between the
// replacement strategy and the entity store backend is enforced here: the
// encryption strategy only works with the encryption store, and vice versa.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, core.NewError(err, core.ErrCodeInvalidConfig, nil)
	}

	redis, err := buildRedis(ctx, cfg)
	if err != nil {
		return nil, core.NewError(err, core.ErrCodeStoreUnavailable, nil)
	}

	ttl := time.Duration(cfg.TTL.Seconds) * time.Second
	entities, err := buildEntityStore(cfg, redis, ttl)
	if err != nil {
		redis.Close()
		return nil, err
	}
	conversations := conversation.NewRedisStore(redis.Client(),
		conversation.WithTTL(ttl),
		conversation.WithRefreshOnRead(cfg.TTL.RefreshOnRead),
	)

	strategy, err := buildStrategy(cfg, entities)
	if err != nil {
		redis.Close()
		return nil, err
	}

	detector, err := buildDetector(ctx, cfg)
	if err != nil {
		redis.Close()
		return nil, err
	}

	client, err := buildClient(cfg)
	if err != nil {
		redis.Close()
		return nil, err
	}

	wrapper := NewWrapper(
		client,
		detector,
		replace.NewReplacer(entities, strategy),
		conversations,
		entities,
		cfg.Detector.Threshold,
	)
	return &Components{
		Wrapper:       wrapper,
		Detector:      detector,
		Entities:      entities,
		Conversations: conversations,
		Redis:         redis,
	}, nil
}

func buildRedis(ctx context.Context, cfg *config.Config) (*cache.Redis, error) {
	cacheCfg := cache.DefaultConfig()
	cacheCfg.URL = cfg.KV.URL
	if cfg.KV.Host != "" {
		cacheCfg.Host = cfg.KV.Host
	}
	if cfg.KV.Port != "" {
		cacheCfg.Port = cfg.KV.Port
	}
	cacheCfg.Password = cfg.KV.Password
	cacheCfg.DB = cfg.KV.DB
	return cache.NewRedis(ctx, cacheCfg)
}

func buildEntityStore(cfg *config.Config, redis *cache.Redis, ttl time.Duration) (store.Store, error) {
	switch cfg.EntityStore.Backend {
	case "encryption":
		return store.NewEncryptionStore([]byte(cfg.Encryption.Secret))
	default:
		return store.NewRedisStore(redis.Client(),
			store.WithTTL(ttl),
			store.WithRefreshOnRead(cfg.TTL.RefreshOnRead),
		), nil
	}
}

func buildStrategy(cfg *config.Config, entities store.Store) (replace.Strategy, error) {
	switch cfg.Replacer.Strategy {
	case replace.StrategyPlaceholder:
		return replace.NewPlaceholderStrategy(entities), nil
	case replace.StrategyPseudonym:
		return replace.NewPseudonymStrategy(cfg.Pseudonym.Locale), nil
	case replace.StrategyHash:
		return replace.NewHashStrategy(), nil
	case replace.StrategyEncryption:
		return replace.NewEncryptionStrategy(), nil
	default:
		return nil, core.NewError(
			fmt.Errorf("unknown replacer strategy %q", cfg.Replacer.Strategy),
			core.ErrCodeInvalidConfig,
			nil,
		)
	}
}

func buildDetector(ctx context.Context, cfg *config.Config) (detect.Detector, error) {
	switch cfg.Detector.Backend {
	case "regex":
		return detect.NewRegexDetector(), nil
	default:
		return detect.NewRemoteDetector(ctx, &detect.RemoteConfig{
			BaseURL:  cfg.Detector.BaseURL,
			APIKey:   cfg.Detector.APIKey,
			Entities: cfg.Detector.Entities,
			Timeout:  time.Duration(cfg.Detector.TimeoutSeconds) * time.Second,
		})
	}
}

func buildClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "mistral":
		opts := []mistral.Option{mistral.WithModel(cfg.LLM.Model)}
		if cfg.LLM.APIKey != "" {
			opts = append(opts, mistral.WithAPIKey(cfg.LLM.APIKey))
		}
		model, err := mistral.New(opts...)
		if err != nil {
			return nil, core.NewError(err, core.ErrCodeInvalidConfig, nil)
		}
		return llm.NewLangChainClient(model), nil
	default:
		opts := []openai.Option{openai.WithModel(cfg.LLM.Model)}
		if cfg.LLM.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.LLM.APIKey))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, core.NewError(err, core.ErrCodeInvalidConfig, nil)
		}
		return llm.NewLangChainClient(model), nil
	}
}
