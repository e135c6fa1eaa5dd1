package ai

import (
	"fmt"

	"github.com/kiranshivaraju/ayupilot/internal/ai/langchain"
	"github.com/kiranshivaraju/ayupilot/internal/ai/mock"
	"github.com/kiranshivaraju/ayupilot/internal/config"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
)

// NewProvider constructs the configured AI provider, wrapped with the
// inference timeout. Called once at startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	opts := langchain.Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}

	var (
		p   models.AIProvider
		err error
	)
	switch cfg.Provider {
	case "mock":
		p = mock.NewMockProvider()
	case "ollama":
		p, err = langchain.NewOllama(cfg.Ollama, opts)
	case "vllm":
		p, err = langchain.NewVLLM(cfg.VLLM, opts)
	case "openai":
		p, err = langchain.NewOpenAI(cfg.OpenAI, opts)
	case "anthropic":
		p, err = langchain.NewAnthropic(cfg.Anthropic, opts)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of mock, ollama, vllm, openai, anthropic", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", cfg.Provider, err)
	}
	return Guard(p, cfg.InferenceTimeout), nil
}
