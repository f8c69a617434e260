// Package config handles loading and validating the service
// configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the coach service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Session  SessionConfig  `mapstructure:"session"`
	Generate GenerateConfig `mapstructure:"generate"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

// ServerConfig holds the HTTP/WebSocket server settings.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	IdleTTLMinutes    int `mapstructure:"idle_ttl_minutes"`
	EvictEveryMinutes int `mapstructure:"evict_every_minutes"`
}

// GenerateConfig bounds the generative reply path.
type GenerateConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// SpeechConfig configures the synthesis pipeline and the two voices.
type SpeechConfig struct {
	TimeoutSeconds int         `mapstructure:"timeout_seconds"`
	MaxRetries     int         `mapstructure:"max_retries"`
	BackoffMs      int         `mapstructure:"backoff_ms"`
	NativeVoice    VoiceConfig `mapstructure:"native_voice"`
	TargetVoice    VoiceConfig `mapstructure:"target_voice"`
}

// VoiceConfig names one synthesis voice.
type VoiceConfig struct {
	ID     string `mapstructure:"id"`
	Locale string `mapstructure:"locale"`
}

// CatalogConfig points at an optional vocabulary file overriding the
// embedded catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// ArchiveConfig configures the transcript archive.
type ArchiveConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// IdleTTL returns the session idle TTL as a duration.
func (c SessionConfig) IdleTTL() time.Duration {
	return time.Duration(c.IdleTTLMinutes) * time.Minute
}

// EvictEvery returns the eviction sweep interval as a duration.
func (c SessionConfig) EvictEvery() time.Duration {
	return time.Duration(c.EvictEveryMinutes) * time.Minute
}

// Timeout returns the generation budget as a duration.
func (c GenerateConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the per-span synthesis budget as a duration.
func (c SpeechConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Backoff returns the first retry delay as a duration.
func (c SpeechConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMs) * time.Millisecond
}

// Load reads configuration from file, environment variables, and
// defaults. If configFile is non-empty it is used directly; otherwise
// the standard search order applies: ./coach.yaml, ./configs/coach.yaml,
// /etc/coach/coach.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("session.idle_ttl_minutes", 60)
	v.SetDefault("session.evict_every_minutes", 10)
	v.SetDefault("generate.timeout_seconds", 3)
	v.SetDefault("speech.timeout_seconds", 5)
	v.SetDefault("speech.max_retries", 2)
	v.SetDefault("speech.backoff_ms", 300)
	v.SetDefault("speech.native_voice.locale", "pt-BR")
	v.SetDefault("speech.target_voice.locale", "en-US")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.database", "futenglish")
	v.SetDefault("archive.max_pool_size", 10)
	v.SetDefault("archive.min_pool_size", 1)

	// Config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("coach")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/coach")
	}

	// Environment variables: COACH_SERVER_PORT, COACH_TELEGRAM_ENABLED, etc.
	v.SetEnvPrefix("COACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The config file is optional; env vars and defaults are sufficient
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${TELEGRAM_BOT_TOKEN}")
	cfg.Server.JWTSecret = resolveEnvRef(cfg.Server.JWTSecret)
	cfg.Telegram.Token = resolveEnvRef(cfg.Telegram.Token)
	cfg.Archive.URI = resolveEnvRef(cfg.Archive.URI)

	if cfg.Server.JWTSecret == "" {
		cfg.Server.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	if cfg.Archive.URI == "" {
		cfg.Archive.URI = os.Getenv("MONGODB_URI")
	}
	if db := os.Getenv("MONGODB_DATABASE"); db != "" {
		cfg.Archive.Database = db
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Generate.TimeoutSeconds <= 0 {
		return fmt.Errorf("generate timeout must be positive, got %d", cfg.Generate.TimeoutSeconds)
	}
	if cfg.Speech.TimeoutSeconds <= 0 {
		return fmt.Errorf("speech timeout must be positive, got %d", cfg.Speech.TimeoutSeconds)
	}
	if cfg.Speech.MaxRetries < 0 {
		return fmt.Errorf("speech max retries must not be negative, got %d", cfg.Speech.MaxRetries)
	}
	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram transport enabled but no token configured")
	}
	if cfg.Archive.Enabled && cfg.Archive.URI == "" {
		return fmt.Errorf("archive enabled but no MongoDB URI configured")
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding
// env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}
