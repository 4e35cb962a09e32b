package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the discovery service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Normalize applies defaults for unset server values.
func (s ServerConfig) Normalize() ServerConfig {
	if strings.TrimSpace(s.Address) == "" {
		s.Address = ":8080"
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = 5 * time.Minute
	}
	return s
}

// LLMConfig contains the chat-completion provider used by the evaluator and the planner
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// Normalize applies defaults for unset LLM values.
func (l LLMConfig) Normalize() LLMConfig {
	if strings.TrimSpace(l.Provider) == "" {
		l.Provider = "openai"
	}
	if strings.TrimSpace(l.Model) == "" {
		l.Model = "gpt-4o"
	}
	if l.Temperature < 0 {
		l.Temperature = 0
	}
	if l.MaxTokens <= 0 {
		l.MaxTokens = 4096
	}
	if l.Timeout <= 0 {
		l.Timeout = 300 * time.Second
	}
	if l.MaxRetries < 0 {
		l.MaxRetries = 0
	}
	return l
}

// Validate checks the LLM configuration.
func (l LLMConfig) Validate() error {
	if l.Provider != "openai" {
		return fmt.Errorf("llm.provider %q is not supported", l.Provider)
	}
	if l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be <= 2")
	}
	return nil
}

// SourcesConfig contains web research settings
type SourcesConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
	WebFetch  WebFetchConfig  `mapstructure:"web_fetch"`
}

// WebSearchConfig contains web search settings
type WebSearchConfig struct {
	Provider     string        `mapstructure:"provider"` // serper, brave, tavily
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	TavilyAPIKey string        `mapstructure:"tavily_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// Normalize applies defaults for unset search values.
func (w WebSearchConfig) Normalize() WebSearchConfig {
	w.Provider = strings.ToLower(strings.TrimSpace(w.Provider))
	if w.Provider == "" {
		w.Provider = "tavily"
	}
	if w.MaxResults <= 0 {
		w.MaxResults = 10
	}
	if w.Timeout <= 0 {
		w.Timeout = 20 * time.Second
	}
	if w.CacheTTL <= 0 {
		w.CacheTTL = time.Hour
	}
	return w
}

// APIKey returns the key matching the selected provider.
func (w WebSearchConfig) APIKey() string {
	switch w.Provider {
	case "serper":
		return w.SerperAPIKey
	case "brave":
		return w.BraveAPIKey
	default:
		return w.TavilyAPIKey
	}
}

// WebFetchConfig contains page extraction settings
type WebFetchConfig struct {
	Fetcher  string        `mapstructure:"fetcher"` // chromedp, tavily
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxChars int           `mapstructure:"max_chars"`
}

// Normalize applies defaults for unset fetch values.
func (w WebFetchConfig) Normalize() WebFetchConfig {
	w.Fetcher = strings.ToLower(strings.TrimSpace(w.Fetcher))
	if w.Fetcher == "" {
		w.Fetcher = "chromedp"
	}
	if w.Timeout <= 0 {
		w.Timeout = 15 * time.Second
	}
	if w.MaxChars <= 0 {
		w.MaxChars = 20000
	}
	return w
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	History  HistoryConfig  `mapstructure:"history"`
}

// HistoryConfig selects the conversation history backend.
type HistoryConfig struct {
	Backend   string `mapstructure:"backend"` // postgres, bleve
	BlevePath string `mapstructure:"bleve_path"`
}

// Normalize applies defaults for unset history values.
func (h HistoryConfig) Normalize() HistoryConfig {
	h.Backend = strings.ToLower(strings.TrimSpace(h.Backend))
	if h.Backend == "" {
		h.Backend = "postgres"
	}
	return h
}

// Validate checks the history configuration.
func (h HistoryConfig) Validate() error {
	switch h.Backend {
	case "postgres", "bleve":
		return nil
	default:
		return fmt.Errorf("storage.history.backend %q must be postgres or bleve", h.Backend)
	}
}

// RedisConfig contains Redis connection settings. An empty host disables Redis.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a Redis host is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// Addr returns host:port.
func (r RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", r.Host, r.Port) }

func (r RedisConfig) Validate() error {
	if !r.Enabled() {
		return nil
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN returns the connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// TelemetryConfig contains logging and metrics settings
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	LogFile        string `mapstructure:"log_file"`
}

// Load reads the configuration file and environment overrides (SOURCER_*).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("general.log_level", "info")
	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("storage.history.backend", "postgres")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.dbname", "sourcer")
	v.SetDefault("storage.redis.port", "6379")

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("SOURCER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads config from file and panics when it is unusable.
func LoadConfig(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return cfg
}

// Normalize applies defaults to every section.
func (c *Config) Normalize() {
	c.Server = c.Server.Normalize()
	c.LLM = c.LLM.Normalize()
	c.Discovery = c.Discovery.Normalize()
	c.Sources.WebSearch = c.Sources.WebSearch.Normalize()
	c.Sources.WebFetch = c.Sources.WebFetch.Normalize()
	c.Storage.History = c.Storage.History.Normalize()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Discovery.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Postgres.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Storage.History.Validate(); err != nil {
		return err
	}
	return nil
}
