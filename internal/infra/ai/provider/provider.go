// Package provider selects the model backend named in the configuration.
package provider

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/cowhealth/internal/config"
	"github.com/bryanwahyu/cowhealth/internal/domain/ai"
	"github.com/bryanwahyu/cowhealth/internal/infra/ai/gemini"
	"github.com/bryanwahyu/cowhealth/internal/infra/ai/openai"
)

func New(ctx context.Context, cfg *config.Config) (ai.Model, error) {
	switch cfg.AI.Provider {
	case "gemini":
		return gemini.NewClient(ctx, gemini.Options{
			APIKey:    cfg.AI.APIKey,
			Model:     cfg.AI.Model,
			MaxTokens: cfg.AI.MaxTokens,
			Timeout:   cfg.AI.Timeout,
		})
	case "openai", "":
		// local OpenAI-compatible servers run without a key
		if cfg.AI.APIKey == "" && cfg.AI.BaseURL == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required")
		}
		return openai.NewClient(openai.Options{
			APIKey:         cfg.AI.APIKey,
			Model:          cfg.AI.Model,
			BaseURL:        cfg.AI.BaseURL,
			MaxTokens:      cfg.AI.MaxTokens,
			Timeout:        cfg.AI.Timeout,
			ResponseFormat: cfg.AI.ResponseFormat,
		}), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
}
