// Package config handles Wren configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider selectors accepted in provider.name.
const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Render locations accepted in client.render_locations.
const (
	LocationDrawer        = "drawer"
	LocationComponentArea = "component-area"
)

// ConfigError reports an invalid or incomplete configuration. It is
// always fatal: the process refuses to start rather than failing each
// request later.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/wren/config.yaml, /etc/wren/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "wren", "config.yaml"))
	}

	paths = append(paths, "/etc/wren/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Wren configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Provider  ProviderConfig  `yaml:"provider"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Assistant AssistantConfig `yaml:"assistant"`
	Client    ClientConfig    `yaml:"client"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ProviderConfig selects which LLM backend answers chat turns.
type ProviderConfig struct {
	Name        string  `yaml:"name"` // anthropic or ollama
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Configured reports whether an API key is present.
func (c AnthropicConfig) Configured() bool {
	return c.APIKey != ""
}

// OllamaConfig defines Ollama server settings.
type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// AssistantConfig controls the assistant persona and system prompt.
type AssistantConfig struct {
	Name string `yaml:"name"`
	// SystemPrompt names the template (without extension) used for the
	// system message. Templates are looked up in PromptsDir first, then
	// in the built-in set.
	SystemPrompt string `yaml:"system_prompt"`
	PromptsDir   string `yaml:"prompts_dir"`
}

// ClientConfig holds settings for the terminal client.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`

	// PollIntervalMS is the report status polling interval.
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// Notification popup timings.
	NotifyEnterMS   int `yaml:"notify_enter_ms"`
	NotifyDisplayMS int `yaml:"notify_display_ms"`
	NotifyExitMS    int `yaml:"notify_exit_ms"`

	// RenderLocations overrides where a tool's result card is shown,
	// keyed by tool name.
	RenderLocations map[string]string `yaml:"render_locations"`
}

// PollInterval returns the report polling interval as a duration.
func (c ClientConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// MQTTConfig configures the optional MQTT bridge that turns inbound
// broker messages into agent-initiated messages.
type MQTTConfig struct {
	Broker   string   `yaml:"broker"` // e.g. mqtt://localhost:1883
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	ClientID string   `yaml:"client_id"`
	Topics   []string `yaml:"topics"`

	// RateLimitPerMinute caps inbound messages; extra messages are dropped.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// Configured reports whether a broker is set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// Load reads configuration from a YAML file. Environment variables in
// the form ${NAME} are expanded before parsing, defaults are applied,
// and the result is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Provider.Name == "" {
		c.Provider.Name = ProviderOllama
	}
	if c.Provider.Temperature == 0 {
		c.Provider.Temperature = 0.7
	}
	if c.Provider.MaxTokens == 0 {
		c.Provider.MaxTokens = 4096
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-3-5-sonnet-20241022"
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = "http://localhost:11434"
	}
	if c.Ollama.Model == "" {
		c.Ollama.Model = "mistral-small"
	}
	if c.Assistant.Name == "" {
		c.Assistant.Name = "AI Assistant"
	}
	if c.Assistant.SystemPrompt == "" {
		c.Assistant.SystemPrompt = "default"
	}
	if c.Client.ServerURL == "" {
		c.Client.ServerURL = fmt.Sprintf("http://localhost:%d", c.Listen.Port)
	}
	if c.Client.PollIntervalMS == 0 {
		c.Client.PollIntervalMS = 1000
	}
	if c.Client.NotifyEnterMS == 0 {
		c.Client.NotifyEnterMS = 100
	}
	if c.Client.NotifyDisplayMS == 0 {
		c.Client.NotifyDisplayMS = 5000
	}
	if c.Client.NotifyExitMS == 0 {
		c.Client.NotifyExitMS = 300
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "wren"
	}
	if c.MQTT.RateLimitPerMinute == 0 {
		c.MQTT.RateLimitPerMinute = 60
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
}

// Model returns the model identifier of the selected provider.
func (c *Config) Model() string {
	if c.Provider.Name == ProviderAnthropic {
		return c.Anthropic.Model
	}
	return c.Ollama.Model
}

// Validate checks the configuration for values that would make the
// process unusable. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider.Name {
	case ProviderAnthropic:
		if !c.Anthropic.Configured() {
			errs = append(errs, &ConfigError{
				Field:  "anthropic.api_key",
				Reason: `required when provider.name is "anthropic"`,
			})
		}
	case ProviderOllama:
	default:
		errs = append(errs, &ConfigError{
			Field:  "provider.name",
			Reason: fmt.Sprintf("unsupported provider %q (valid: %s, %s)", c.Provider.Name, ProviderAnthropic, ProviderOllama),
		})
	}

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		errs = append(errs, &ConfigError{Field: "listen.port", Reason: fmt.Sprintf("%d out of range", c.Listen.Port)})
	}
	if c.Provider.MaxTokens < 0 {
		errs = append(errs, &ConfigError{Field: "provider.max_tokens", Reason: "must be positive"})
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, &ConfigError{Field: "log_level", Reason: err.Error()})
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, &ConfigError{Field: "log_format", Reason: fmt.Sprintf("unknown format %q (valid: text, json)", c.LogFormat)})
	}

	for field, ms := range map[string]int{
		"client.poll_interval_ms":  c.Client.PollIntervalMS,
		"client.notify_enter_ms":   c.Client.NotifyEnterMS,
		"client.notify_display_ms": c.Client.NotifyDisplayMS,
		"client.notify_exit_ms":    c.Client.NotifyExitMS,
	} {
		if ms < 0 {
			errs = append(errs, &ConfigError{Field: field, Reason: "must not be negative"})
		}
	}

	for tool, loc := range c.Client.RenderLocations {
		if loc != LocationDrawer && loc != LocationComponentArea {
			errs = append(errs, &ConfigError{
				Field:  "client.render_locations." + tool,
				Reason: fmt.Sprintf("unknown location %q (valid: %s, %s)", loc, LocationDrawer, LocationComponentArea),
			})
		}
	}

	if c.MQTT.Configured() && len(c.MQTT.Topics) == 0 {
		errs = append(errs, &ConfigError{Field: "mqtt.topics", Reason: "at least one topic is required when mqtt.broker is set"})
	}

	return errors.Join(errs...)
}
