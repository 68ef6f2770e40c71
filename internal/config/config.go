// Package config loads application configuration from yaml and the
// environment and owns global logger setup.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rothnic/mercator/internal/model"
	"github.com/rothnic/mercator/internal/recipestore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Rules  RulesConfig  `yaml:"rules" mapstructure:"rules"`
	Budget BudgetConfig `yaml:"budget" mapstructure:"budget"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the recipe store backend.
type StoreConfig struct {
	Driver      string                 `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string                 `yaml:"database_url" mapstructure:"database_url"`
	Pool        recipestore.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// RulesConfig locates pre-authored rule-set files.
type RulesConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// BudgetConfig bounds each orchestration invocation.
type BudgetConfig struct {
	MaxPasses          int `yaml:"max_passes" mapstructure:"max_passes"`
	MaxToolInvocations int `yaml:"max_tool_invocations" mapstructure:"max_tool_invocations"`
	MaxElapsedSecs     int `yaml:"max_elapsed_secs" mapstructure:"max_elapsed_secs"`
}

// Budget converts the config values into an orchestration budget.
func (b BudgetConfig) Budget() model.Budget {
	budget := model.DefaultBudget()
	if b.MaxPasses > 0 {
		budget.MaxPasses = b.MaxPasses
	}
	if b.MaxToolInvocations > 0 {
		budget.MaxToolInvocations = b.MaxToolInvocations
	}
	if b.MaxElapsedSecs > 0 {
		budget.MaxElapsed = time.Duration(b.MaxElapsedSecs) * time.Second
	}
	return budget
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
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
	v.SetEnvPrefix("MERCATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "mercator.db")
	v.SetDefault("rules.dir", "rules")
	v.SetDefault("budget.max_passes", 3)
	v.SetDefault("budget.max_tool_invocations", 250)
	v.SetDefault("budget.max_elapsed_secs", 120)
	v.SetDefault("batch.max_concurrent_documents", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
