package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. OPSBOT_LLM_API_KEY.
const EnvPrefix = "OPSBOT"

type loadOptions struct {
	configFile  string
	searchPaths []string
}

// Option customises Load.
type Option func(*loadOptions)

// WithConfigFile loads an explicit file. A missing explicit file is an error.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) { o.configFile = strings.TrimSpace(path) }
}

// WithSearchPaths replaces the directories searched for opsbot.yaml.
func WithSearchPaths(paths ...string) Option {
	return func(o *loadOptions) { o.searchPaths = paths }
}

// Load resolves defaults, the config file and OPSBOT_* environment overrides
// in that order of increasing precedence, then validates the result.
// It also returns the path of the file that was read, if any.
func Load(opts ...Option) (Config, string, error) {
	options := loadOptions{searchPaths: []string{".", "$HOME/.opsbot"}}
	for _, opt := range opts {
		opt(&options)
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if options.configFile != "" {
		v.SetConfigFile(options.configFile)
	} else {
		v.SetConfigName("opsbot")
		v.SetConfigType("yaml")
		for _, path := range options.searchPaths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if options.configFile != "" || !errors.As(err, &notFound) {
			return Config{}, "", fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("llm.provider", def.LLM.Provider)
	v.SetDefault("llm.model", def.LLM.Model)
	v.SetDefault("llm.api_key", def.LLM.APIKey)
	v.SetDefault("llm.base_url", def.LLM.BaseURL)
	v.SetDefault("llm.temperature", def.LLM.Temperature)
	v.SetDefault("llm.max_tokens", def.LLM.MaxTokens)
	v.SetDefault("llm.timeout", def.LLM.TimeoutMs)
	v.SetDefault("llm.max_retries", def.LLM.MaxRetries)
	v.SetDefault("llm.requests_per_minute", def.LLM.RequestsPerMinute)

	v.SetDefault("client.timeout", def.Client.Timeout)
	v.SetDefault("client.retry_attempts", def.Client.RetryAttempts)
	v.SetDefault("client.retry_delay", def.Client.RetryDelay)
	v.SetDefault("client.max_concurrent_calls", def.Client.MaxConcurrentCalls)
	v.SetDefault("client.enable_cache", def.Client.EnableCache)
	v.SetDefault("client.cache_timeout", def.Client.CacheTimeout)
	v.SetDefault("client.cache_max_entries", def.Client.CacheMaxEntries)

	v.SetDefault("orchestrator.max_output_length", def.Orchestrator.MaxOutputLength)
	v.SetDefault("orchestrator.repair_arguments", def.Orchestrator.RepairArguments)

	v.SetDefault("tools.catalog", def.Tools.Catalog)
	v.SetDefault("tools.simulate_latency", def.Tools.SimulateLatency)

	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("server.allowed_origins", def.Server.AllowedOrigins)

	v.SetDefault("history.enabled", def.History.Enabled)
	v.SetDefault("history.dsn", def.History.DSN)

	obs := def.Observability
	v.SetDefault("observability.logging.level", obs.Logging.Level)
	v.SetDefault("observability.logging.format", obs.Logging.Format)
	v.SetDefault("observability.metrics.enabled", obs.Metrics.Enabled)
	v.SetDefault("observability.metrics.path", obs.Metrics.Path)
	v.SetDefault("observability.tracing.enabled", obs.Tracing.Enabled)
	v.SetDefault("observability.tracing.exporter", obs.Tracing.Exporter)
	v.SetDefault("observability.tracing.otlp_endpoint", obs.Tracing.OTLPEndpoint)
	v.SetDefault("observability.tracing.sample_rate", obs.Tracing.SampleRate)
	v.SetDefault("observability.tracing.service_name", obs.Tracing.ServiceName)
	v.SetDefault("observability.tracing.service_version", obs.Tracing.ServiceVersion)
}
