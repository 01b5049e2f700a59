package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/info757/estimai-cli/internal/review"
)

// Config holds the full application configuration.
type Config struct {
	API    APIConfig           `yaml:"api" mapstructure:"api"`
	Auth   AuthConfig          `yaml:"auth" mapstructure:"auth"`
	Poll   PollConfig          `yaml:"poll" mapstructure:"poll"`
	Markup review.MarkupConfig `yaml:"markup" mapstructure:"markup"`
	Store  StoreConfig         `yaml:"store" mapstructure:"store"`
	Server ServerConfig        `yaml:"server" mapstructure:"server"`
	Log    LogConfig           `yaml:"log" mapstructure:"log"`
}

// APIConfig configures the EstimAI backend client.
type APIConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries   int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBaseMS  int     `yaml:"retry_base_ms" mapstructure:"retry_base_ms"`
	RetryMaxSecs int     `yaml:"retry_max_secs" mapstructure:"retry_max_secs"`
}

// AuthConfig configures bearer token storage.
type AuthConfig struct {
	// Token, when set, is used directly and TokenPath is ignored. Meant for
	// environments where the token comes from ESTIMAI_AUTH_TOKEN rather
	// than a login on disk.
	Token     string `yaml:"token" mapstructure:"token"`
	TokenPath string `yaml:"token_path" mapstructure:"token_path"`
}

// PollConfig configures pipeline job polling.
type PollConfig struct {
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
	TimeoutSecs  int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the audit database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the local review server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("ESTIMAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.retry_base_ms", 400)
	v.SetDefault("api.retry_max_secs", 10)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_path", defaultTokenPath())
	v.SetDefault("poll.interval_secs", 2)
	v.SetDefault("poll.timeout_secs", 600)
	v.SetDefault("markup.overhead_pct", 10.0)
	v.SetDefault("markup.profit_pct", 5.0)
	v.SetDefault("markup.contingency_pct", 3.0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", defaultAuditPath())
	v.SetDefault("server.port", 8080)
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

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".estimai-token"
	}
	return filepath.Join(home, ".estimai", "token")
}

func defaultAuditPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "estimai-audit.db"
	}
	return filepath.Join(home, ".estimai", "audit.db")
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

// Validate checks the fields required for the given mode. Modes map to
// command groups: "review" for read/edit commands, "pipeline" for job
// orchestration, "serve" for the local review server.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.API.BaseURL == "" {
		problems = append(problems, "api.base_url is required")
	}
	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch mode {
	case "review":
	case "pipeline":
		if c.Poll.IntervalSecs < 1 {
			problems = append(problems, "poll.interval_secs must be >= 1")
		}
		if c.Poll.TimeoutSecs < c.Poll.IntervalSecs {
			problems = append(problems, "poll.timeout_secs must be >= poll.interval_secs")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}
