package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv        = "REPORTGEN_CONFIG"
	databaseDSNEnv       = "DATABASE_DSN"
	logLevelEnv          = "LOG_LEVEL"
	analysisProviderEnv  = "ANALYSIS_PROVIDER"
	analysisEndpointEnv  = "ANALYSIS_ENDPOINT"
	openAIAPIKeyEnv      = "OPENAI_API_KEY"
	openAIModelEnv       = "OPENAI_MODEL"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	stalenessDaysEnv     = "STALENESS_THRESHOLD_DAYS"
	defaultStalenessDays = 7
)

// Analysis providers selectable at construction time.
const (
	ProviderLegacy  = "legacy"
	ProviderUnified = "unified"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Analysis      AnalysisConfig     `yaml:"analysis"`
	Scraping      ScrapingConfig     `yaml:"scraping"`
	Generation    GenerationConfig   `yaml:"generation"`
	Telemetry     TelemetryConfig    `yaml:"telemetry"`
	Integrity     IntegrityConfig    `yaml:"integrity"`
	Notifications NotificationConfig `yaml:"notifications"`
}

// LoggingConfig controls slog verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig describes the store. postgres:// DSNs use pgx, anything
// else is treated as a SQLite file path.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// AnalysisConfig selects and configures the analysis collaborator.
type AnalysisConfig struct {
	Provider     string        `yaml:"provider"`
	Endpoint     string        `yaml:"endpoint"`
	APIKey       string        `yaml:"apiKey"`
	Model        string        `yaml:"model"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ScrapingConfig bounds the snapshot capture stage.
type ScrapingConfig struct {
	Disabled                bool          `yaml:"disabled"`
	UserAgent               string        `yaml:"userAgent"`
	MaxConcurrency          int           `yaml:"maxConcurrency"`
	RequestsPerSecond       float64       `yaml:"requestsPerSecond"`
	Burst                   int           `yaml:"burst"`
	BreakerFailureThreshold int           `yaml:"breakerFailureThreshold"`
	BreakerWindow           time.Duration `yaml:"breakerWindow"`
	BreakerCooldown         time.Duration `yaml:"breakerCooldown"`
	BaseTimeout             time.Duration `yaml:"baseTimeout"`
	MaxWait                 time.Duration `yaml:"maxWait"`
}

// GenerationConfig tunes the report pipeline.
type GenerationConfig struct {
	StalenessDays    int           `yaml:"stalenessDays"`
	DuplicateWindow  time.Duration `yaml:"duplicateWindow"`
	OverallTimeout   time.Duration `yaml:"overallTimeout"`
	StoreTimeout     time.Duration `yaml:"storeTimeout"`
	PartialThreshold int           `yaml:"partialThreshold"`
}

// StalenessThreshold converts the configured day count to a duration.
func (g GenerationConfig) StalenessThreshold() time.Duration {
	days := g.StalenessDays
	if days <= 0 {
		days = defaultStalenessDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// TelemetryConfig controls failure counting and metrics exposure.
type TelemetryConfig struct {
	Window            time.Duration `yaml:"window"`
	WarningThreshold  int           `yaml:"warningThreshold"`
	CriticalThreshold int           `yaml:"criticalThreshold"`
	MetricsAddr       string        `yaml:"metricsAddr"`
}

// IntegrityConfig drives the out-of-band report sweep.
type IntegrityConfig struct {
	SweepInterval time.Duration `yaml:"sweepInterval"`
	Lookback      time.Duration `yaml:"lookback"`
}

// NotificationConfig encapsulates outbound alert channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, err := ReadFile(path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// ReadFile parses a YAML config file without applying defaults.
func ReadFile(path string) (Config, error) {
	var fileCfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileCfg, err
	}
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return fileCfg, err
	}
	return fileCfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(analysisProviderEnv); v != "" {
		c.Analysis.Provider = v
	}
	if v := os.Getenv(analysisEndpointEnv); v != "" {
		c.Analysis.Endpoint = v
	}
	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.Analysis.APIKey = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.Analysis.Model = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(stalenessDaysEnv); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			log.Printf("config: %s=%q is not a positive int, keeping %d", stalenessDaysEnv, v, c.Generation.StalenessDays)
		} else {
			c.Generation.StalenessDays = days
		}
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Analysis.Provider != "" {
		base.Analysis.Provider = override.Analysis.Provider
	}
	if override.Analysis.Endpoint != "" {
		base.Analysis.Endpoint = override.Analysis.Endpoint
	}
	if override.Analysis.APIKey != "" {
		base.Analysis.APIKey = override.Analysis.APIKey
	}
	if override.Analysis.Model != "" {
		base.Analysis.Model = override.Analysis.Model
	}
	if override.Analysis.SystemPrompt != "" {
		base.Analysis.SystemPrompt = override.Analysis.SystemPrompt
	}
	if override.Analysis.Timeout > 0 {
		base.Analysis.Timeout = override.Analysis.Timeout
	}

	s := override.Scraping
	if s.Disabled {
		base.Scraping.Disabled = true
	}
	if s.UserAgent != "" {
		base.Scraping.UserAgent = s.UserAgent
	}
	if s.MaxConcurrency > 0 {
		base.Scraping.MaxConcurrency = s.MaxConcurrency
	}
	if s.RequestsPerSecond > 0 {
		base.Scraping.RequestsPerSecond = s.RequestsPerSecond
	}
	if s.Burst > 0 {
		base.Scraping.Burst = s.Burst
	}
	if s.BreakerFailureThreshold > 0 {
		base.Scraping.BreakerFailureThreshold = s.BreakerFailureThreshold
	}
	if s.BreakerWindow > 0 {
		base.Scraping.BreakerWindow = s.BreakerWindow
	}
	if s.BreakerCooldown > 0 {
		base.Scraping.BreakerCooldown = s.BreakerCooldown
	}
	if s.BaseTimeout > 0 {
		base.Scraping.BaseTimeout = s.BaseTimeout
	}
	if s.MaxWait > 0 {
		base.Scraping.MaxWait = s.MaxWait
	}

	g := override.Generation
	if g.StalenessDays > 0 {
		base.Generation.StalenessDays = g.StalenessDays
	}
	if g.DuplicateWindow > 0 {
		base.Generation.DuplicateWindow = g.DuplicateWindow
	}
	if g.OverallTimeout > 0 {
		base.Generation.OverallTimeout = g.OverallTimeout
	}
	if g.StoreTimeout > 0 {
		base.Generation.StoreTimeout = g.StoreTimeout
	}
	if g.PartialThreshold > 0 {
		base.Generation.PartialThreshold = g.PartialThreshold
	}

	t := override.Telemetry
	if t.Window > 0 {
		base.Telemetry.Window = t.Window
	}
	if t.WarningThreshold > 0 {
		base.Telemetry.WarningThreshold = t.WarningThreshold
	}
	if t.CriticalThreshold > 0 {
		base.Telemetry.CriticalThreshold = t.CriticalThreshold
	}
	if t.MetricsAddr != "" {
		base.Telemetry.MetricsAddr = t.MetricsAddr
	}

	if override.Integrity.SweepInterval > 0 {
		base.Integrity.SweepInterval = override.Integrity.SweepInterval
	}
	if override.Integrity.Lookback > 0 {
		base.Integrity.Lookback = override.Integrity.Lookback
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	return base
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{DSN: "reports.db"},
		Analysis: AnalysisConfig{
			Provider:     ProviderUnified,
			Endpoint:     "",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a competitive intelligence analyst. Answer with JSON only.",
			Timeout:      60 * time.Second,
		},
		Scraping: ScrapingConfig{
			UserAgent:               "CompetitorReports/1.0",
			MaxConcurrency:          3,
			RequestsPerSecond:       1,
			Burst:                   2,
			BreakerFailureThreshold: 3,
			BreakerWindow:           5 * time.Minute,
			BreakerCooldown:         10 * time.Minute,
			BaseTimeout:             15 * time.Second,
			MaxWait:                 45 * time.Second,
		},
		Generation: GenerationConfig{
			StalenessDays:    defaultStalenessDays,
			DuplicateWindow:  5 * time.Minute,
			OverallTimeout:   3 * time.Minute,
			StoreTimeout:     10 * time.Second,
			PartialThreshold: 70,
		},
		Telemetry: TelemetryConfig{
			Window:            30 * time.Minute,
			WarningThreshold:  5,
			CriticalThreshold: 10,
		},
		Integrity: IntegrityConfig{
			SweepInterval: 15 * time.Minute,
			Lookback:      24 * time.Hour,
		},
	}
}
