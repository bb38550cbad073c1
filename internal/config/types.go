package config

import (
	"time"

	"opsbot/internal/llm"
	"opsbot/internal/observability"
	"opsbot/internal/orchestrator"
	"opsbot/internal/toolclient"
)

// Config is the complete, immutable runtime configuration. Updates produce
// a new value; see UpdateSection.
type Config struct {
	LLM           LLMConfig            `mapstructure:"llm" yaml:"llm" json:"llm"`
	Client        ClientConfig         `mapstructure:"client" yaml:"client" json:"client"`
	Orchestrator  OrchestratorConfig   `mapstructure:"orchestrator" yaml:"orchestrator" json:"orchestrator"`
	Tools         ToolsConfig          `mapstructure:"tools" yaml:"tools" json:"tools"`
	Server        ServerConfig         `mapstructure:"server" yaml:"server" json:"server"`
	History       HistoryConfig        `mapstructure:"history" yaml:"history" json:"history"`
	Observability observability.Config `mapstructure:"observability" yaml:"observability" json:"-"`
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	Provider          string  `mapstructure:"provider" yaml:"provider" json:"provider"`
	Model             string  `mapstructure:"model" yaml:"model" json:"model"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	Temperature       float64 `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	TimeoutMs         int     `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MaxRetries        int     `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
}

// ClientConfig holds the tool client settings. Durations are milliseconds.
type ClientConfig struct {
	Timeout            int  `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	RetryAttempts      int  `mapstructure:"retry_attempts" yaml:"retry_attempts" json:"retry_attempts"`
	RetryDelay         int  `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	MaxConcurrentCalls int  `mapstructure:"max_concurrent_calls" yaml:"max_concurrent_calls" json:"max_concurrent_calls"`
	EnableCache        bool `mapstructure:"enable_cache" yaml:"enable_cache" json:"enable_cache"`
	CacheTimeout       int  `mapstructure:"cache_timeout" yaml:"cache_timeout" json:"cache_timeout"`
	CacheMaxEntries    int  `mapstructure:"cache_max_entries" yaml:"cache_max_entries" json:"cache_max_entries"`
}

// OrchestratorConfig shapes conversation output.
type OrchestratorConfig struct {
	MaxOutputLength int  `mapstructure:"max_output_length" yaml:"max_output_length" json:"max_output_length"`
	RepairArguments bool `mapstructure:"repair_arguments" yaml:"repair_arguments" json:"repair_arguments"`
}

// ToolsConfig chooses the tool catalog. An empty Catalog serves the
// built-in Kubernetes simulator.
type ToolsConfig struct {
	Catalog         string `mapstructure:"catalog" yaml:"catalog" json:"catalog"`
	SimulateLatency bool   `mapstructure:"simulate_latency" yaml:"simulate_latency" json:"simulate_latency"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr" json:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// HistoryConfig enables the call history store. DSNs starting with
// postgres:// or postgresql:// use PostgreSQL; anything else is a SQLite path.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn" json:"dsn"`
}

// Default returns the shipped configuration.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    llm.ProviderOpenAI,
			Model:       "gpt-3.5-turbo",
			BaseURL:     "https://api.openai.com/v1",
			Temperature: 0.7,
			MaxTokens:   2000,
			TimeoutMs:   120000,
			MaxRetries:  2,
		},
		Client: ClientConfig{
			Timeout:            30000,
			RetryAttempts:      3,
			RetryDelay:         1000,
			MaxConcurrentCalls: 5,
			EnableCache:        true,
			CacheTimeout:       300000,
			CacheMaxEntries:    1024,
		},
		Orchestrator: OrchestratorConfig{
			MaxOutputLength: orchestrator.DefaultMaxOutputLength,
		},
		Tools: ToolsConfig{SimulateLatency: true},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		History: HistoryConfig{
			DSN: "data/opsbot.db",
		},
		Observability: observability.DefaultConfig(),
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Options converts the client section into tool client options.
func (c ClientConfig) Options() toolclient.Options {
	return toolclient.Options{
		Timeout:            millis(c.Timeout),
		RetryAttempts:      c.RetryAttempts,
		RetryDelay:         millis(c.RetryDelay),
		MaxConcurrentCalls: c.MaxConcurrentCalls,
		EnableCache:        c.EnableCache,
		CacheTimeout:       millis(c.CacheTimeout),
		CacheMaxEntries:    c.CacheMaxEntries,
	}
}

// ClientConfig converts the llm section into provider settings.
func (c LLMConfig) ClientConfig() llm.Config {
	return llm.Config{
		Provider:          c.Provider,
		Model:             c.Model,
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Timeout:           millis(c.TimeoutMs),
		MaxRetries:        c.MaxRetries,
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

// ProcessorConfig combines sampling and shaping settings for the orchestrator.
func (c Config) ProcessorConfig() orchestrator.Config {
	return orchestrator.Config{
		Temperature:     c.LLM.Temperature,
		MaxTokens:       c.LLM.MaxTokens,
		MaxOutputLength: c.Orchestrator.MaxOutputLength,
		RepairArguments: c.Orchestrator.RepairArguments,
	}
}
