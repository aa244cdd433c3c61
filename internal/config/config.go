package config

import (
	"fmt"
	"os"
	"path/filepath"
	"signalbrief/internal/core"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       App       `mapstructure:"app"`
	AI        AI        `mapstructure:"ai"`
	Database  Database  `mapstructure:"database"`
	Redis     Redis     `mapstructure:"redis"`
	Server    Server    `mapstructure:"server"`
	Synthesis Synthesis `mapstructure:"synthesis"`
	Sources   Sources   `mapstructure:"sources"`
	Index     Index     `mapstructure:"index"`
	Logging   Logging   `mapstructure:"logging"`
	Metrics   Metrics   `mapstructure:"metrics"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"config_file"`
}

// AI holds narrative generation configuration
type AI struct {
	Gemini GeminiConfig `mapstructure:"gemini"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey              string        `mapstructure:"api_key"`
	Model               string        `mapstructure:"model"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxTokens           int32         `mapstructure:"max_tokens"`
	Temperature         float32       `mapstructure:"temperature"`
	EmbeddingModel      string        `mapstructure:"embedding_model"`
	EmbeddingDimensions int32         `mapstructure:"embedding_dimensions"`
}

// Database holds the relational store configuration. An empty URL disables persistence.
type Database struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// Redis holds the legacy target store configuration. An empty URL disables it.
type Redis struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Server holds HTTP server configuration
type Server struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	APIKey         string        `mapstructure:"api_key"` // Bearer key for /api routes, open when empty
}

// Synthesis holds pipeline tuning
type Synthesis struct {
	OrganizationCap int           `mapstructure:"organization_cap"`
	CompetitorCap   int           `mapstructure:"competitor_cap"`
	StakeholderCap  int           `mapstructure:"stakeholder_cap"`
	OtherCap        int           `mapstructure:"other_cap"`
	TotalCap        int           `mapstructure:"total_cap"`
	TopTargets      int           `mapstructure:"top_targets"`
	MaxPromptBytes  int           `mapstructure:"max_prompt_bytes"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	RetryJitter     time.Duration `mapstructure:"retry_jitter"`
	CoverageMatch   string        `mapstructure:"coverage_match"` // "word" or "substring"
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
	Persist         bool          `mapstructure:"persist"`
}

// Budget converts the configured caps into a selection budget.
func (s Synthesis) Budget() core.SelectionBudget {
	return core.SelectionBudget{
		PerCategoryCap: map[core.Category]int{
			core.CategoryOrganization: s.OrganizationCap,
			core.CategoryCompetitor:   s.CompetitorCap,
			core.CategoryStakeholder:  s.StakeholderCap,
			core.CategoryOther:        s.OtherCap,
		},
		TotalCap: s.TotalCap,
	}
}

// Sources points at the source-priority configuration file
type Sources struct {
	PriorityFile string `mapstructure:"priority_file"`
}

// Index holds the local full-text index configuration
type Index struct {
	Enabled   bool   `mapstructure:"enabled"`
	BlevePath string `mapstructure:"bleve_path"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Metrics holds prometheus exposition configuration
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Global configuration instance
var globalConfig *Config

// Load loads configuration from file, environment variables, and defaults
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists (for local development)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".signalbrief")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	bindEnvironmentVariables()

	viper.SetEnvPrefix("SIGNALBRIEF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration instance
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".signalbrief")

	viper.SetDefault("ai.gemini.model", "gemini-2.5-flash")
	viper.SetDefault("ai.gemini.timeout", "90s")
	viper.SetDefault("ai.gemini.max_tokens", 8192)
	viper.SetDefault("ai.gemini.temperature", 0.4)
	viper.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.gemini.embedding_dimensions", 768)

	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.timeout", "5s")

	viper.SetDefault("redis.key_prefix", "targets")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "180s")
	viper.SetDefault("server.request_timeout", "170s")
	viper.SetDefault("server.cors_origins", []string{"*"})

	budget := core.DefaultSelectionBudget()
	viper.SetDefault("synthesis.organization_cap", budget.Cap(core.CategoryOrganization))
	viper.SetDefault("synthesis.competitor_cap", budget.Cap(core.CategoryCompetitor))
	viper.SetDefault("synthesis.stakeholder_cap", budget.Cap(core.CategoryStakeholder))
	viper.SetDefault("synthesis.other_cap", budget.Cap(core.CategoryOther))
	viper.SetDefault("synthesis.total_cap", budget.TotalCap)
	viper.SetDefault("synthesis.top_targets", 15)
	viper.SetDefault("synthesis.max_prompt_bytes", 60000)
	viper.SetDefault("synthesis.max_retries", 2)
	viper.SetDefault("synthesis.retry_base_delay", "2s")
	viper.SetDefault("synthesis.retry_jitter", "1s")
	viper.SetDefault("synthesis.coverage_match", "word")
	viper.SetDefault("synthesis.run_timeout", "150s")
	viper.SetDefault("synthesis.persist", true)

	viper.SetDefault("sources.priority_file", "")

	viper.SetDefault("index.enabled", false)
	viper.SetDefault("index.bleve_path", ".signalbrief/index.bleve")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
}

// bindEnvironmentVariables binds specific environment variables to config keys
func bindEnvironmentVariables() {
	bindEnvKeys("ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("database.url", []string{
		"DATABASE_URL",
		"POSTGRES_URL",
	})

	bindEnvKeys("redis.url", []string{
		"REDIS_URL",
	})

	bindEnvKeys("server.api_key", []string{
		"SIGNALBRIEF_API_KEY",
	})

	bindEnvKeys("sources.priority_file", []string{
		"SOURCE_PRIORITY_FILE",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"SIGNALBRIEF_DEBUG",
	})
}

// bindEnvKeys binds multiple environment variable names to a single viper key
// The first non-empty environment variable wins
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Sources.PriorityFile != "" {
		config.Sources.PriorityFile = expandPath(config.Sources.PriorityFile)
	}
	if config.Index.BlevePath != "" {
		config.Index.BlevePath = expandPath(config.Index.BlevePath)
	}

	if config.App.Debug {
		config.Logging.Level = "debug"
	}

	config.Synthesis.CoverageMatch = strings.ToLower(strings.TrimSpace(config.Synthesis.CoverageMatch))

	durations := map[string]time.Duration{
		"ai.gemini.timeout":          config.AI.Gemini.Timeout,
		"database.timeout":           config.Database.Timeout,
		"database.conn_max_lifetime": config.Database.ConnMaxLifetime,
		"server.read_timeout":        config.Server.ReadTimeout,
		"server.write_timeout":       config.Server.WriteTimeout,
		"server.request_timeout":     config.Server.RequestTimeout,
		"synthesis.retry_base_delay": config.Synthesis.RetryBaseDelay,
		"synthesis.retry_jitter":     config.Synthesis.RetryJitter,
		"synthesis.run_timeout":      config.Synthesis.RunTimeout,
	}
	for key, d := range durations {
		if d < 0 {
			return fmt.Errorf("invalid duration for %s: %s", key, d)
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures configuration values are usable
func validateConfig(config *Config) error {
	var errors []string

	s := config.Synthesis
	caps := map[string]int{
		"synthesis.organization_cap": s.OrganizationCap,
		"synthesis.competitor_cap":   s.CompetitorCap,
		"synthesis.stakeholder_cap":  s.StakeholderCap,
		"synthesis.other_cap":        s.OtherCap,
		"synthesis.total_cap":        s.TotalCap,
		"synthesis.max_retries":      s.MaxRetries,
	}
	for key, v := range caps {
		if v < 0 {
			errors = append(errors, fmt.Sprintf("%s must not be negative (got %d)", key, v))
		}
	}

	if s.TopTargets <= 0 {
		errors = append(errors, "synthesis.top_targets must be positive")
	}
	if s.MaxPromptBytes < 1024 {
		errors = append(errors, "synthesis.max_prompt_bytes must be at least 1024")
	}

	switch s.CoverageMatch {
	case "word", "substring":
	default:
		errors = append(errors, fmt.Sprintf("Unknown synthesis.coverage_match: %s. Supported: word, substring", s.CoverageMatch))
	}

	switch strings.ToLower(config.Logging.Format) {
	case "json", "text":
	default:
		errors = append(errors, fmt.Sprintf("Unknown logging.format: %s. Supported: json, text", config.Logging.Format))
	}

	if config.Server.Port < 0 || config.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("server.port out of range: %d", config.Server.Port))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// RequireGemini reports a helpful error when no Gemini API key is configured.
// Only commands that call the generator need it.
func (c *Config) RequireGemini() error {
	if !isValidAPIKey(c.AI.Gemini.APIKey) {
		return fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file.\nGet your API key from: https://aistudio.google.com/app/apikey")
	}
	return nil
}

// Convenience getters for commonly used configuration values
func GetApp() App             { return Get().App }
func GetAI() AI               { return Get().AI }
func GetSynthesis() Synthesis { return Get().Synthesis }
func GetLogging() Logging     { return Get().Logging }
func IsDebugMode() bool       { return Get().App.Debug }

// isValidAPIKey checks if an API key is valid (not empty and not a placeholder)
func isValidAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	placeholders := []string{
		"your-api-key", "your-gemini-key", "YOUR_API_KEY", "PLACEHOLDER", "TODO", "CHANGE_ME",
	}

	for _, placeholder := range placeholders {
		if apiKey == placeholder {
			return false
		}
	}

	return true
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
