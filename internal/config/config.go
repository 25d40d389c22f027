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

	"github.com/sells-group/datafixer/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store          StoreConfig          `yaml:"store" mapstructure:"store"`
	Cache          CacheConfig          `yaml:"cache" mapstructure:"cache"`
	Enrich         EnrichConfig         `yaml:"enrich" mapstructure:"enrich"`
	LLM            LLMConfig            `yaml:"llm" mapstructure:"llm"`
	Anthropic      AnthropicConfig      `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini         GeminiConfig         `yaml:"gemini" mapstructure:"gemini"`
	Jina           JinaConfig           `yaml:"jina" mapstructure:"jina"`
	VIES           VIESConfig           `yaml:"vies" mapstructure:"vies"`
	OpenCorporates OpenCorporatesConfig `yaml:"opencorporates" mapstructure:"opencorporates"`
	GLEIF          GLEIFConfig          `yaml:"gleif" mapstructure:"gleif"`
	Salesforce     SalesforceConfig     `yaml:"salesforce" mapstructure:"salesforce"`
	Notion         NotionConfig         `yaml:"notion" mapstructure:"notion"`
	Temporal       TemporalConfig       `yaml:"temporal" mapstructure:"temporal"`
	Pricing        cost.Rates           `yaml:"pricing" mapstructure:"pricing"`
	Batch          BatchConfig          `yaml:"batch" mapstructure:"batch"`
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the entity enrichment cache.
type CacheConfig struct {
	// Backend is "store" (same database as jobs), "redis" or "none".
	Backend  string `yaml:"backend" mapstructure:"backend"`
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	Version  string `yaml:"version" mapstructure:"version"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// EnrichConfig configures the enrichment sources and merge policy.
type EnrichConfig struct {
	Threshold          float64       `yaml:"threshold" mapstructure:"threshold"`
	SourceTimeoutSecs  int           `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
	SearchEnabled      bool          `yaml:"search_enabled" mapstructure:"search_enabled"`
	HomepageEnabled    bool          `yaml:"homepage_enabled" mapstructure:"homepage_enabled"`
	RegistryEnabled    bool          `yaml:"registry_enabled" mapstructure:"registry_enabled"`
	MaxSnippetChars    int           `yaml:"max_snippet_chars" mapstructure:"max_snippet_chars"`
	MaxNameCandidates  int           `yaml:"max_name_candidates" mapstructure:"max_name_candidates"`
	Retry              RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Breaker            BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// RetryConfig configures retries of upstream HTTP calls.
type RetryConfig struct {
	Attempts    int `yaml:"attempts" mapstructure:"attempts"`
	BaseDelayMs int `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
}

// BreakerConfig configures the per-source circuit breakers.
type BreakerConfig struct {
	Threshold    int `yaml:"threshold" mapstructure:"threshold"`
	CooldownSecs int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// LLMConfig selects the language model provider.
type LLMConfig struct {
	// Provider is "anthropic", "gemini" or "none".
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	Model    string `yaml:"model" mapstructure:"model"`
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string  `yaml:"search_base_url" mapstructure:"search_base_url"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// VIESConfig holds EU VIES settings.
type VIESConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// OpenCorporatesConfig holds OpenCorporates settings.
type OpenCorporatesConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// GLEIFConfig holds GLEIF settings.
type GLEIFConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// NotionConfig holds Notion API credentials and the review database.
type NotionConfig struct {
	Token     string  `yaml:"token" mapstructure:"token"`
	ReviewDB  string  `yaml:"review_db" mapstructure:"review_db"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// TemporalConfig configures the optional Temporal worker.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Size          int `yaml:"size" mapstructure:"size"`
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DATAFIXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "datafixer.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("cache.backend", "store")
	v.SetDefault("cache.version", "v1")
	v.SetDefault("cache.ttl_hours", 7*24)
	v.SetDefault("enrich.threshold", 0.7)
	v.SetDefault("enrich.source_timeout_secs", 12)
	v.SetDefault("enrich.search_enabled", true)
	v.SetDefault("enrich.homepage_enabled", true)
	v.SetDefault("enrich.registry_enabled", true)
	v.SetDefault("enrich.max_snippet_chars", 1500)
	v.SetDefault("enrich.max_name_candidates", 3)
	v.SetDefault("enrich.retry.attempts", 3)
	v.SetDefault("enrich.retry.base_delay_ms", 500)
	v.SetDefault("enrich.retry.max_delay_ms", 4000)
	v.SetDefault("enrich.breaker.threshold", 5)
	v.SetDefault("enrich.breaker.cooldown_secs", 30)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.rate_limit", 3)
	v.SetDefault("vies.base_url", "https://ec.europa.eu/taxation_customs/vies/rest-api")
	v.SetDefault("vies.rate_limit", 5)
	v.SetDefault("opencorporates.base_url", "https://api.opencorporates.com/v0.4")
	v.SetDefault("opencorporates.rate_limit", 2)
	v.SetDefault("gleif.base_url", "https://api.gleif.org/api/v1")
	v.SetDefault("gleif.rate_limit", 5)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 10)
	v.SetDefault("notion.rate_limit", 3)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "datafixer")
	v.SetDefault("batch.size", 25)
	v.SetDefault("batch.max_concurrent", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pricing.jina.per_mtok", 0.02)
}

// Modes accepted by Validate.
const (
	ModeRun        = "run"
	ModeServe      = "serve"
	ModeWorker     = "worker"
	ModeSalesforce = "salesforce"
	ModeNotion     = "notion"
)

// Validate checks that the keys a command needs are present.
func (c *Config) Validate(mode string) error {
	var missing []string
	need := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store.driver %q", c.Store.Driver)
	}
	need(c.Store.DatabaseURL != "", "store.database_url")

	switch mode {
	case ModeRun, ModeServe, ModeWorker:
		switch c.Cache.Backend {
		case "store", "none":
		case "redis":
			need(c.Cache.RedisURL != "", "cache.redis_url")
		default:
			return eris.Errorf("config: unsupported cache.backend %q", c.Cache.Backend)
		}
		switch c.LLM.Provider {
		case "anthropic":
			need(c.Anthropic.Key != "", "anthropic.key")
		case "gemini":
			need(c.Gemini.Key != "", "gemini.key")
		case "none", "":
		default:
			return eris.Errorf("config: unsupported llm.provider %q", c.LLM.Provider)
		}
		if c.Enrich.Threshold < 0 || c.Enrich.Threshold > 1 {
			return eris.Errorf("config: enrich.threshold %.2f outside [0,1]", c.Enrich.Threshold)
		}
		if c.Batch.Size <= 0 || c.Batch.MaxConcurrent <= 0 {
			return eris.New("config: batch.size and batch.max_concurrent must be positive")
		}
		if mode == ModeServe && c.Server.Port <= 0 {
			return eris.New("config: server.port must be > 0")
		}
		if mode == ModeWorker {
			need(c.Temporal.HostPort != "", "temporal.host_port")
			need(c.Temporal.TaskQueue != "", "temporal.task_queue")
		}
	case ModeSalesforce:
		need(c.Salesforce.ClientID != "", "salesforce.client_id")
		need(c.Salesforce.Username != "", "salesforce.username")
		need(c.Salesforce.KeyPath != "", "salesforce.key_path")
	case ModeNotion:
		need(c.Notion.Token != "", "notion.token")
		need(c.Notion.ReviewDB != "", "notion.review_db")
	case "":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required keys: %s", strings.Join(missing, ", "))
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
