package llm

import (
	"fmt"
	"log/slog"

	"github.com/nugget/wren/internal/config"
)

// New builds the provider client selected by cfg.Provider.Name. An
// unknown selector or a missing credential is a [config.ConfigError];
// callers treat it as fatal at startup.
func New(cfg *config.Config, logger *slog.Logger) (Client, error) {
	switch cfg.Provider.Name {
	case config.ProviderAnthropic:
		if !cfg.Anthropic.Configured() {
			return nil, &config.ConfigError{
				Field:  "anthropic.api_key",
				Reason: `required when provider.name is "anthropic"`,
			}
		}
		return NewAnthropicClient(AnthropicOptions{
			APIKey:      cfg.Anthropic.APIKey,
			Model:       cfg.Anthropic.Model,
			Temperature: cfg.Provider.Temperature,
			MaxTokens:   cfg.Provider.MaxTokens,
		}, logger), nil

	case config.ProviderOllama:
		return NewOllamaClient(OllamaOptions{
			URL:         cfg.Ollama.URL,
			Model:       cfg.Ollama.Model,
			Temperature: cfg.Provider.Temperature,
			MaxTokens:   cfg.Provider.MaxTokens,
		}, logger), nil
	}

	return nil, &config.ConfigError{
		Field:  "provider.name",
		Reason: fmt.Sprintf("unsupported provider %q", cfg.Provider.Name),
	}
}
