// Package langchain adapts langchaingo chat models to models.AIProvider.
package langchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/ayupilot/internal/config"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Options are the sampling settings applied to every call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Provider implements models.AIProvider on top of any langchaingo model.
type Provider struct {
	llm   llms.Model
	name  string
	model string
	opts  Options
}

// New wraps an already constructed langchaingo model.
func New(llm llms.Model, name, model string, opts Options) *Provider {
	return &Provider{llm: llm, name: name, model: model, opts: opts}
}

func NewOllama(cfg config.OllamaConfig, opts Options) (*Provider, error) {
	llm, err := ollama.New(
		ollama.WithModel(cfg.Model),
		ollama.WithServerURL(cfg.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return New(llm, "ollama", cfg.Model, opts), nil
}

// NewVLLM talks to a vLLM server through its OpenAI-compatible endpoint.
func NewVLLM(cfg config.VLLMConfig, opts Options) (*Provider, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithToken("EMPTY"),
	)
	if err != nil {
		return nil, fmt.Errorf("create vllm model: %w", err)
	}
	return New(llm, "vllm", cfg.Model, opts), nil
}

func NewOpenAI(cfg config.OpenAIConfig, opts Options) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key required")
	}
	llm, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai model: %w", err)
	}
	return New(llm, "openai", cfg.Model, opts), nil
}

func NewAnthropic(cfg config.AnthropicConfig, opts Options) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Anthropic API key required")
	}
	llm, err := anthropic.New(
		anthropic.WithToken(cfg.APIKey),
		anthropic.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	return New(llm, "anthropic", cfg.Model, opts), nil
}

func (p *Provider) Name() string { return p.name }

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		role := llms.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}
	attachImages(messages, req.Images)

	var callOpts []llms.CallOption
	if p.opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(p.opts.Temperature))
	}
	if p.opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(p.opts.MaxTokens))
	}

	resp, err := p.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", req.Kind, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate %s: no response choices", req.Kind)
	}
	return resp.Choices[0].Content, nil
}

// attachImages adds image parts to the last human message.
func attachImages(messages []llms.MessageContent, images []string) {
	if len(images) == 0 {
		return
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, img := range images {
			messages[i].Parts = append(messages[i].Parts, llms.ImageURLPart(img))
		}
		return
	}
}

var _ models.AIProvider = (*Provider)(nil)
