package oracle

import (
	"context"
	"fmt"
	"os"

	"github.com/teilomillet/gollm"
)

// GollmConfig selects a hosted model
type GollmConfig struct {
	Provider    string
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64
}

// GollmGenerator calls a hosted model through gollm
type GollmGenerator struct {
	provider string
	model    string
	llm      gollm.LLM
}

// defaultModels is used when the config names a provider but no model
var defaultModels = map[string]string{
	"gemini":    "gemini-2.5-flash",
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-sonnet-4-5-20250514",
	"groq":      "llama-3.3-70b-versatile",
	"ollama":    "llama3.1",
}

// NewGollmGenerator creates a generator for cfg.Provider.
// An empty APIKey lets gollm fall back to its provider environment variable.
func NewGollmGenerator(cfg GollmConfig) (*GollmGenerator, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("oracle provider is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModels[cfg.Provider]
	}
	if model == "" {
		return nil, fmt.Errorf("no default model for provider %s; set oracle.model", cfg.Provider)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	opts := []gollm.ConfigOption{
		gollm.SetProvider(cfg.Provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(maxTokens),
		gollm.SetTemperature(cfg.Temperature),
		// The loop treats any oracle failure as fatal; no hidden retries.
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if cfg.APIKey != "" {
		opts = append(opts, gollm.SetAPIKey(cfg.APIKey))
	}

	llm, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", cfg.Provider, err)
	}

	return &GollmGenerator{provider: cfg.Provider, model: model, llm: llm}, nil
}

// Provider returns the configured provider name
func (g *GollmGenerator) Provider() string {
	return g.provider
}

// Model returns the model in use
func (g *GollmGenerator) Model() string {
	return g.model
}

// Generate sends prompt as a single user message
func (g *GollmGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := g.llm.Generate(ctx, gollm.NewPrompt(prompt))
	if err != nil {
		return "", fmt.Errorf("%s generate failed: %w", g.provider, err)
	}
	return text, nil
}

// APIKeyFromEnv reads the key named by envVar, or "" when unset
func APIKeyFromEnv(envVar string) string {
	if envVar == "" {
		return ""
	}
	return os.Getenv(envVar)
}
