package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	SEC     SECConfig     `yaml:"sec" mapstructure:"sec"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Engine  EngineConfig  `yaml:"engine" mapstructure:"engine"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SECConfig configures access to the EDGAR APIs.
type SECConfig struct {
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	Workers        int     `yaml:"workers" mapstructure:"workers"`
	FactsBaseURL   string  `yaml:"facts_base_url" mapstructure:"facts_base_url"`
	TickersURL     string  `yaml:"tickers_url" mapstructure:"tickers_url"`
	ConstituentURL string  `yaml:"constituents_url" mapstructure:"constituents_url"`
}

// CacheConfig configures the on-disk snapshot cache.
type CacheConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"`
	SubsDir string `yaml:"subs_dir" mapstructure:"subs_dir"`
	Force   bool   `yaml:"force" mapstructure:"force"`
}

// EngineConfig configures metric resolution.
type EngineConfig struct {
	FY              int      `yaml:"fy" mapstructure:"fy"`
	PreferUnit      string   `yaml:"prefer_unit" mapstructure:"prefer_unit"`
	DurationTolDays int      `yaml:"duration_tol_days" mapstructure:"duration_tol_days"`
	InstantTolDays  int      `yaml:"instant_tol_days" mapstructure:"instant_tol_days"`
	Metrics         []string `yaml:"metrics" mapstructure:"metrics"`
	SkipDerived     bool     `yaml:"skip_derived" mapstructure:"skip_derived"`
}

// OutputConfig configures the files written after a run.
type OutputConfig struct {
	Dir                  string `yaml:"dir" mapstructure:"dir"`
	EmitTTL              bool   `yaml:"emit_ttl" mapstructure:"emit_ttl"`
	EmitXLSX             bool   `yaml:"emit_xlsx" mapstructure:"emit_xlsx"`
	IncludeIndustryScope bool   `yaml:"include_industry_scope" mapstructure:"include_industry_scope"`
	IncludeSectorScope   bool   `yaml:"include_sector_scope" mapstructure:"include_sector_scope"`
	Suggestions          string `yaml:"suggestions" mapstructure:"suggestions"`
}

// CatalogConfig configures the candidate catalog.
type CatalogConfig struct {
	Overlay string `yaml:"overlay" mapstructure:"overlay"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EDGAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("sec.user_agent", "EDGAR_SEC_USER_AGENT", "SEC_USER_AGENT"); err != nil {
		return nil, eris.Wrap(err, "config: bind user agent")
	}

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("sec.rate_per_sec", 10.0)
	v.SetDefault("sec.timeout_secs", 30)
	v.SetDefault("sec.max_retries", 3)
	v.SetDefault("sec.workers", 10)
	v.SetDefault("sec.facts_base_url", "https://data.sec.gov")
	v.SetDefault("sec.tickers_url", "https://www.sec.gov/files/company_tickers.json")
	v.SetDefault("sec.constituents_url", "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies")
	v.SetDefault("cache.dir", "data/cache/companyfacts")
	v.SetDefault("cache.subs_dir", "data/cache/submissions")
	v.SetDefault("engine.fy", 2024)
	v.SetDefault("engine.prefer_unit", "USD")
	v.SetDefault("engine.duration_tol_days", 90)
	v.SetDefault("engine.instant_tol_days", 120)
	v.SetDefault("engine.metrics", []string{"all"})
	v.SetDefault("output.dir", "data")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/edgar-metrics.db")
	v.SetDefault("server.port", 8080)

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

// Validate checks the fields required by a command mode: "run", "resolve",
// "serve" or "migrate".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}

	switch mode {
	case "run":
		if strings.TrimSpace(c.SEC.UserAgent) == "" {
			errs = append(errs, "sec.user_agent is required (set SEC_USER_AGENT)")
		}
		if c.SEC.RatePerSec <= 0 || c.SEC.RatePerSec > 10 {
			errs = append(errs, "sec.rate_per_sec must be between 0 and 10")
		}
		if c.SEC.Workers < 1 || c.SEC.Workers > 50 {
			errs = append(errs, "sec.workers must be between 1 and 50")
		}
		errs = append(errs, c.engineErrors()...)
	case "resolve":
		errs = append(errs, c.engineErrors()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "migrate":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) engineErrors() []string {
	var errs []string
	if c.Engine.FY < 2009 {
		errs = append(errs, "engine.fy must be 2009 or later")
	}
	if c.Engine.DurationTolDays < 0 || c.Engine.InstantTolDays < 0 {
		errs = append(errs, "engine tolerances must be >= 0")
	}
	return errs
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
