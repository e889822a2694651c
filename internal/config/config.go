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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Sources  SourcesConfig  `yaml:"sources" mapstructure:"sources"`
	Schema   SchemaConfig   `yaml:"schema" mapstructure:"schema"`
	Matching MatchingConfig `yaml:"matching" mapstructure:"matching"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourcesConfig locates per-jurisdiction source definitions.
type SourcesConfig struct {
	// Overrides is an optional YAML file merged over the built-in
	// jurisdiction table.
	Overrides string `yaml:"overrides" mapstructure:"overrides"`
}

// SchemaConfig tunes column detection.
type SchemaConfig struct {
	// MinScore is the minimum fuzzy score for a header to count as a
	// synonym match.
	MinScore int `yaml:"min_score" mapstructure:"min_score"`
}

// MatchingConfig tunes entity resolution against the facility registry.
type MatchingConfig struct {
	Threshold       int     `yaml:"threshold" mapstructure:"threshold"`
	HighThreshold   int     `yaml:"high_threshold" mapstructure:"high_threshold"`
	TokenOverlapMin float64 `yaml:"token_overlap_min" mapstructure:"token_overlap_min"`
	Workers         int     `yaml:"workers" mapstructure:"workers"`
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
	v.SetEnvPrefix("RATESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("schema.min_score", 80)
	v.SetDefault("matching.threshold", 85)
	v.SetDefault("matching.high_threshold", 95)
	v.SetDefault("matching.token_overlap_min", 0.6)
	v.SetDefault("matching.workers", 8)

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

// Validate checks configuration consistency before a command runs.
func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Schema.MinScore < 1 || c.Schema.MinScore > 100 {
		problems = append(problems, "schema.min_score must be between 1 and 100")
	}
	if c.Matching.Threshold < 1 || c.Matching.Threshold > 100 {
		problems = append(problems, "matching.threshold must be between 1 and 100")
	}
	if c.Matching.HighThreshold < c.Matching.Threshold || c.Matching.HighThreshold > 100 {
		problems = append(problems, "matching.high_threshold must be between matching.threshold and 100")
	}
	if c.Matching.TokenOverlapMin < 0 || c.Matching.TokenOverlapMin > 1 {
		problems = append(problems, "matching.token_overlap_min must be between 0 and 1")
	}
	if c.Matching.Workers < 1 || c.Matching.Workers > 64 {
		problems = append(problems, "matching.workers must be between 1 and 64")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
