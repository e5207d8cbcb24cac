package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/cloaked-ai/cloak/engine/core"
	"github.com/cloaked-ai/cloak/pkg/logger"
	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
)

const (
	infoPath   = "/api/info"
	invokePath = "/api/invoke"
	batchPath  = "/api/batch"

	defaultMaxAttempts = 3
	defaultBackoffBase = 250 * time.Millisecond
	defaultBackoffMax  = 5 * time.Second
)

// RemoteConfig configures the HTTP entity-recognition backend.
type RemoteConfig struct {
	BaseURL string
	APIKey  string
	// Entities restricts detection to the given labels; when empty the
	// server's default entity set is used.
	Entities    []string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// RemoteDetector calls an out-of-process recognition service. Transport
// failures are retried with exponential backoff; after exhaustion the error
// surfaces as DETECTOR_UNAVAILABLE so the wrapper can fail the turn instead
// of forwarding unprotected text.
//
// The server must report entity spans as byte offsets into the UTF-8 text.
// A server emitting code-point offsets will fail span validation on
// non-ASCII input with INTEGRITY_ERROR rather than misredact.
type RemoteDetector struct {
	client           *resty.Client
	entities         []string
	defaultThreshold float64
	modelID          string
	maxAttempts      int
	backoffBase      time.Duration
	backoffMax       time.Duration
}

type infoResponse struct {
	ModelID          string   `json:"model_id"`
	DefaultEntities  []string `json:"default_entities"`
	DefaultThreshold float64  `json:"default_threshold"`
	APIKeyRequired   bool     `json:"api_key_required"`
}

type detectRequest struct {
	Text        string   `json:"text,omitempty"`
	Texts       []string `json:"texts,omitempty"`
	Threshold   float64  `json:"threshold"`
	EntityTypes []string `json:"entity_types"`
}

type invokeResponse struct {
	Entities []Entity `json:"entities"`
}

type batchResponse struct {
	Entities [][]Entity `json:"entities"`
}

// NewRemoteDetector probes the service's info endpoint and refuses to start
// when the server requires an API key and none is configured.
func NewRemoteDetector(ctx context.Context, cfg *RemoteConfig) (*RemoteDetector, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, core.NewError(fmt.Errorf("detector base URL is required"), core.ErrCodeInvalidConfig, nil)
	}
	client := resty.New().SetBaseURL(cfg.BaseURL)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	var info infoResponse
	resp, err := client.R().SetContext(ctx).SetResult(&info).Get(infoPath)
	if err != nil {
		return nil, core.NewError(fmt.Errorf("probing detector info: %w", err), core.ErrCodeDetectorUnavailable, nil)
	}
	if resp.IsError() {
		return nil, core.NewError(
			fmt.Errorf("detector info probe returned %s", resp.Status()),
			core.ErrCodeDetectorUnavailable,
			map[string]any{"status": resp.StatusCode()},
		)
	}
	if info.APIKeyRequired && cfg.APIKey == "" {
		return nil, core.NewError(
			fmt.Errorf("detector requires an API key and none is configured"),
			core.ErrCodeInvalidConfig,
			map[string]any{"model_id": info.ModelID},
		)
	}
	entities := cfg.Entities
	if len(entities) == 0 {
		entities = info.DefaultEntities
	}
	d := &RemoteDetector{
		client:           client,
		entities:         entities,
		defaultThreshold: info.DefaultThreshold,
		modelID:          info.ModelID,
		maxAttempts:      cfg.MaxAttempts,
		backoffBase:      cfg.BackoffBase,
		backoffMax:       cfg.BackoffMax,
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = defaultMaxAttempts
	}
	if d.backoffBase <= 0 {
		d.backoffBase = defaultBackoffBase
	}
	if d.backoffMax <= 0 {
		d.backoffMax = defaultBackoffMax
	}
	logger.FromContext(ctx).Debug("remote detector ready",
		"model_id", d.modelID,
		"entities", len(d.entities),
		"default_threshold", d.defaultThreshold,
	)
	return d, nil
}

// Detect implements Detector via the batch endpoint.
func (d *RemoteDetector) Detect(ctx context.Context, texts []string, threshold float64) ([][]Entity, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}
	var out batchResponse
	err := d.post(ctx, batchPath, &detectRequest{
		Texts:       texts,
		Threshold:   d.effectiveThreshold(threshold),
		EntityTypes: d.entities,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Entities) != len(texts) {
		return nil, core.NewError(
			fmt.Errorf("detector returned %d result lists for %d texts", len(out.Entities), len(texts)),
			core.ErrCodeIntegrity,
			nil,
		)
	}
	return out.Entities, nil
}

// DetectOne analyzes a single text via the invoke endpoint.
func (d *RemoteDetector) DetectOne(ctx context.Context, text string, threshold float64) ([]Entity, error) {
	if err := ValidateTexts([]string{text}); err != nil {
		return nil, err
	}
	var out invokeResponse
	err := d.post(ctx, invokePath, &detectRequest{
		Text:        text,
		Threshold:   d.effectiveThreshold(threshold),
		EntityTypes: d.entities,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Entities, nil
}

// SupportedEntities implements Detector.
func (d *RemoteDetector) SupportedEntities() []string {
	return d.entities
}

// DefaultThreshold implements Detector.
func (d *RemoteDetector) DefaultThreshold() float64 {
	return d.defaultThreshold
}

// ModelID identifies the model the remote service is serving.
func (d *RemoteDetector) ModelID() string {
	return d.modelID
}

func (d *RemoteDetector) effectiveThreshold(threshold float64) float64 {
	if threshold <= 0 {
		return d.defaultThreshold
	}
	return threshold
}

func (d *RemoteDetector) post(ctx context.Context, path string, req *detectRequest, result any) error {
	backoff := retry.WithMaxRetries(
		uint64(d.maxAttempts-1), // #nosec G115 -- maxAttempts sanitized in the constructor
		retry.WithMaxDuration(d.backoffMax, retry.NewExponential(d.backoffBase)),
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, callErr := d.client.R().SetContext(ctx).SetBody(req).SetResult(result).Post(path)
		if callErr != nil {
			return retry.RetryableError(callErr)
		}
		if resp.IsError() {
			statusErr := fmt.Errorf("detector returned %s", resp.Status())
			if resp.StatusCode() >= 500 {
				return retry.RetryableError(statusErr)
			}
			return statusErr
		}
		return nil
	})
	if err != nil {
		return core.NewError(
			fmt.Errorf("detector call %s failed: %w", path, err),
			core.ErrCodeDetectorUnavailable,
			map[string]any{"path": path, "attempts": d.maxAttempts},
		)
	}
	return nil
}
