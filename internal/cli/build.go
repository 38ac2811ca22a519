package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hupe1980/sleuth"
	"github.com/hupe1980/sleuth/cache"
	"github.com/hupe1980/sleuth/config"
	"github.com/hupe1980/sleuth/gateway"
	"github.com/hupe1980/sleuth/gateway/anthropic"
	"github.com/hupe1980/sleuth/gateway/openai"
	"github.com/hupe1980/sleuth/logging"
	"github.com/hupe1980/sleuth/supervisor"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// newGateway returns nil for the offline provider.
func newGateway(cfg *config.Config) (gateway.Gateway, error) {
	switch cfg.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderOpenAI, config.ProviderOpenRouter:
		baseURL := cfg.BaseURL
		if baseURL == "" && cfg.Provider == config.ProviderOpenRouter {
			baseURL = openRouterBaseURL
		}
		return openai.New(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.APIKey = cfg.ResolvedAPIKey()
			o.BaseURL = baseURL
		}), nil
	case config.ProviderAnthropic:
		return anthropic.New(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.APIKey = cfg.ResolvedAPIKey()
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// newStore returns nil when persistence is disabled.
func newStore(cfg *config.Config) (cache.Store, error) {
	if cfg.CachePath == "" {
		return nil, nil
	}
	path, err := filepath.Abs(cfg.CachePath)
	if err != nil {
		return nil, err
	}

	switch cfg.CacheBackend {
	case config.BackendSQLite:
		return cache.NewSQLiteStore(path)
	case config.BackendFile, "":
		return cache.NewFileStore(path), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func newSleuth(ctx context.Context, cfg *config.Config, logger logging.Logger) (*sleuth.Sleuth, error) {
	gw, err := newGateway(cfg)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	s, err := sleuth.New(ctx, gw, func(o *sleuth.Options) {
		o.Config = cfg.Core()
		o.CacheStore = store
		o.Logger = logger
		if cfg.ClassifyWithModel && gw != nil {
			o.Classifier = supervisor.GatewayClassifier{Gateway: gw, Logger: logger}
		}
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	return s, nil
}
