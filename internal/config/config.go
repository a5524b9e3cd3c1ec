// Package config loads application configuration from file and
// environment and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the extraction
// engine. FastModel serves the first pass; ReasoningModel serves the
// chain-of-thought escalation when confidence falls below the
// threshold.
type AnthropicConfig struct {
	Key                 string  `yaml:"key" mapstructure:"key"`
	FastModel           string  `yaml:"fast_model" mapstructure:"fast_model"`
	ReasoningModel      string  `yaml:"reasoning_model" mapstructure:"reasoning_model"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MaxTokens           int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// BatchConfig configures the batch orchestrator.
type BatchConfig struct {
	Limit            int `yaml:"limit" mapstructure:"limit"`
	SubBatchSize     int `yaml:"sub_batch_size" mapstructure:"sub_batch_size"`
	SubBatchDelayMS  int `yaml:"sub_batch_delay_ms" mapstructure:"sub_batch_delay_ms"`
	ProgressInterval int `yaml:"progress_interval" mapstructure:"progress_interval"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SPEEDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one: AutomaticEnv only surfaces env
	// values for keys viper already knows about, so a defaultless key
	// would never pick up its SPEEDEX_ variable.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.fast_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.reasoning_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.confidence_threshold", 0.70)
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("batch.limit", 1000)
	v.SetDefault("batch.sub_batch_size", 10)
	v.SetDefault("batch.sub_batch_delay_ms", 500)
	v.SetDefault("batch.progress_interval", 50)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
