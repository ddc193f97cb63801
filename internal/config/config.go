package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string            `yaml:"discord_token"`
	LogLevel      string            `yaml:"log_level"`
	RetentionDays int               `yaml:"retention_days"`
	RulePreset    string            `yaml:"rule_preset"`
	Storage       StorageConfig     `yaml:"storage"`
	Redis         RedisConfig       `yaml:"redis"`
	Health        HealthConfig      `yaml:"health"`
	Engine        EngineConfig      `yaml:"engine"`
	Enforcement   EnforcementConfig `yaml:"enforcement"`
	Notifications NotifyConfig      `yaml:"notifications"`
}

type StorageConfig struct {
	// Driver is sqlite or postgres.
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig, when URL is set, moves guild settings into redis so several
// shards share them. Audit data stays in the SQL store.
type RedisConfig struct {
	URL string `yaml:"url"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type EngineConfig struct {
	QueueSize            int `yaml:"queue_size"`
	Workers              int `yaml:"workers"`
	DedupeSize           int `yaml:"dedupe_size"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	CallTimeoutSeconds   int `yaml:"call_timeout_seconds"`
}

type EnforcementConfig struct {
	BanDeleteMinutes       int `yaml:"ban_delete_minutes"`
	WarningForgivenessDays int `yaml:"warning_forgiveness_days"`
	MaxTimeoutMinutes      int `yaml:"max_timeout_minutes"`
}

type NotifyConfig struct {
	AuditToChannel bool        `yaml:"audit_to_channel"`
	DMPerSecond    float64     `yaml:"dm_per_second"`
	DMBurst        int         `yaml:"dm_burst"`
	EmbedColors    EmbedColors `yaml:"embed_colors"`
}

type EmbedColors struct {
	Action  int `yaml:"action"`
	Warning int `yaml:"warning"`
	Error   int `yaml:"error"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		RetentionDays: 14,
		RulePreset:    "medium",
		Storage:       StorageConfig{Driver: "sqlite", Path: "/data/sentinel.db"},
		Health:        HealthConfig{Enabled: false, Addr: ":8080"},
		Engine: EngineConfig{
			QueueSize:            1024,
			Workers:              16,
			DedupeSize:           4096,
			SweepIntervalSeconds: 60,
			CallTimeoutSeconds:   10,
		},
		Enforcement: EnforcementConfig{
			BanDeleteMinutes:       60,
			WarningForgivenessDays: 30,
			MaxTimeoutMinutes:      28 * 24 * 60,
		},
		Notifications: NotifyConfig{
			AuditToChannel: true,
			DMPerSecond:    2,
			DMBurst:        5,
			EmbedColors: EmbedColors{
				Action:  0xF59E0B,
				Warning: 0xEF4444,
				Error:   0xF97316,
			},
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}

	cfg.RulePreset = normalizePreset(cfg.RulePreset)
	cfg.Storage.Driver = normalizeDriver(cfg.Storage.Driver)
	if cfg.Storage.Driver == "postgres" && cfg.Storage.DSN == "" {
		return Config{}, errors.New("DATABASE_DSN is required for the postgres driver")
	}
	normalize(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.RulePreset = envString("RULE_PRESET", cfg.RulePreset)
	cfg.Storage.Driver = envString("DATABASE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.Path = envString("DATABASE_PATH", cfg.Storage.Path)
	cfg.Storage.DSN = envString("DATABASE_DSN", cfg.Storage.DSN)
	cfg.Redis.URL = envString("REDIS_URL", cfg.Redis.URL)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Engine.QueueSize = envInt("ENGINE_QUEUE_SIZE", cfg.Engine.QueueSize)
	cfg.Engine.Workers = envInt("ENGINE_WORKERS", cfg.Engine.Workers)
	cfg.Engine.DedupeSize = envInt("ENGINE_DEDUPE_SIZE", cfg.Engine.DedupeSize)
	cfg.Engine.SweepIntervalSeconds = envInt("ENGINE_SWEEP_INTERVAL_SECONDS", cfg.Engine.SweepIntervalSeconds)
	cfg.Engine.CallTimeoutSeconds = envInt("ENGINE_CALL_TIMEOUT_SECONDS", cfg.Engine.CallTimeoutSeconds)
	cfg.Enforcement.BanDeleteMinutes = envInt("BAN_DELETE_MINUTES", cfg.Enforcement.BanDeleteMinutes)
	cfg.Enforcement.WarningForgivenessDays = envInt("WARNING_FORGIVENESS_DAYS", cfg.Enforcement.WarningForgivenessDays)
	cfg.Enforcement.MaxTimeoutMinutes = envInt("MAX_TIMEOUT_MINUTES", cfg.Enforcement.MaxTimeoutMinutes)
	cfg.Notifications.AuditToChannel = envBool("AUDIT_TO_CHANNEL", cfg.Notifications.AuditToChannel)
	cfg.Notifications.DMPerSecond = envFloat("DM_PER_SECOND", cfg.Notifications.DMPerSecond)
	cfg.Notifications.DMBurst = envInt("DM_BURST", cfg.Notifications.DMBurst)
	cfg.Notifications.EmbedColors.Action = envInt("EMBED_COLOR_ACTION", cfg.Notifications.EmbedColors.Action)
	cfg.Notifications.EmbedColors.Warning = envInt("EMBED_COLOR_WARNING", cfg.Notifications.EmbedColors.Warning)
	cfg.Notifications.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.Notifications.EmbedColors.Error)
}

// normalize replaces unusable values with defaults.
func normalize(cfg *Config) {
	defaults := DefaultConfig()
	if cfg.Engine.QueueSize <= 0 {
		cfg.Engine.QueueSize = defaults.Engine.QueueSize
	}
	if cfg.Engine.Workers <= 0 {
		cfg.Engine.Workers = defaults.Engine.Workers
	}
	if cfg.Engine.DedupeSize <= 0 {
		cfg.Engine.DedupeSize = defaults.Engine.DedupeSize
	}
	if cfg.Engine.CallTimeoutSeconds <= 0 {
		cfg.Engine.CallTimeoutSeconds = defaults.Engine.CallTimeoutSeconds
	}
	if cfg.Enforcement.BanDeleteMinutes < 0 {
		cfg.Enforcement.BanDeleteMinutes = 0
	}
	if cfg.Enforcement.WarningForgivenessDays <= 0 {
		cfg.Enforcement.WarningForgivenessDays = defaults.Enforcement.WarningForgivenessDays
	}
	if cfg.Enforcement.MaxTimeoutMinutes <= 0 || cfg.Enforcement.MaxTimeoutMinutes > defaults.Enforcement.MaxTimeoutMinutes {
		cfg.Enforcement.MaxTimeoutMinutes = defaults.Enforcement.MaxTimeoutMinutes
	}
	if cfg.Notifications.DMPerSecond <= 0 {
		cfg.Notifications.DMPerSecond = defaults.Notifications.DMPerSecond
	}
	if cfg.Notifications.DMBurst <= 0 {
		cfg.Notifications.DMBurst = defaults.Notifications.DMBurst
	}
}

func (e EngineConfig) SweepInterval() time.Duration {
	return time.Duration(e.SweepIntervalSeconds) * time.Second
}

func (e EngineConfig) CallTimeout() time.Duration {
	return time.Duration(e.CallTimeoutSeconds) * time.Second
}

func (e EnforcementConfig) BanDeleteWindow() time.Duration {
	return time.Duration(e.BanDeleteMinutes) * time.Minute
}

func (e EnforcementConfig) WarningForgiveness() time.Duration {
	return time.Duration(e.WarningForgivenessDays) * 24 * time.Hour
}

func (e EnforcementConfig) MaxTimeout() time.Duration {
	return time.Duration(e.MaxTimeoutMinutes) * time.Minute
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func normalizePreset(value string) string {
	switch strings.ToLower(value) {
	case "low", "medium", "high":
		return strings.ToLower(value)
	default:
		return "medium"
	}
}

func normalizeDriver(value string) string {
	switch strings.ToLower(value) {
	case "postgres", "postgresql", "pg":
		return "postgres"
	default:
		return "sqlite"
	}
}
