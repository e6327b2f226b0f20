package llm

import (
	"errors"
	"testing"

	"github.com/nugget/wren/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*config.Config)
		wantType  string
		wantField string
	}{
		{name: "ollama default", mutate: func(*config.Config) {}, wantType: "ollama"},
		{
			name: "anthropic with key",
			mutate: func(c *config.Config) {
				c.Provider.Name = config.ProviderAnthropic
				c.Anthropic.APIKey = "sk-test"
			},
			wantType: "anthropic",
		},
		{
			name:      "anthropic without key",
			mutate:    func(c *config.Config) { c.Provider.Name = config.ProviderAnthropic },
			wantField: "anthropic.api_key",
		},
		{
			name:      "unknown provider",
			mutate:    func(c *config.Config) { c.Provider.Name = "gpt" },
			wantField: "provider.name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)

			client, err := New(cfg, nil)
			if tt.wantField != "" {
				var cfgErr *config.ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("err = %v, want *config.ConfigError", err)
				}
				if cfgErr.Field != tt.wantField {
					t.Errorf("field = %q, want %q", cfgErr.Field, tt.wantField)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			switch tt.wantType {
			case "ollama":
				if _, ok := client.(*OllamaClient); !ok {
					t.Errorf("client = %T, want *OllamaClient", client)
				}
			case "anthropic":
				if _, ok := client.(*AnthropicClient); !ok {
					t.Errorf("client = %T, want *AnthropicClient", client)
				}
			}
		})
	}
}
