package factory

import (
	"companion-be/pkg/llm"
	"companion-be/pkg/llm/anthropic"
	"companion-be/pkg/llm/gemini"
	"companion-be/pkg/llm/ollama"
	"companion-be/pkg/llm/openai"
	"context"
	"fmt"
	"strings"
)

type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

func NewLLMProvider(ctx context.Context, cfg Config) (llm.LLMProvider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		return ollama.NewOllamaProvider(cfg.BaseURL, cfg.Model), nil
	case "openai", "huggingface":
		return openai.NewProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "gemini":
		p, err := gemini.NewProvider(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "anthropic", "claude":
		p, err := anthropic.NewProvider(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
