// Package config loads and validates service configuration from the
// environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

const DefaultEnvFile = ".env"

// Config is read once at startup and not modified afterwards.
type Config struct {
	BotToken      string `mapstructure:"BOT_TOKEN"`
	SpreadsheetID string `mapstructure:"SPREADSHEET_ID"`
	SheetName     string `mapstructure:"SHEET_NAME"`
	DriveFolderID string `mapstructure:"DRIVE_FOLDER_ID"`
	// AllowedChatIDs is a comma-separated allow-list; empty allows every chat.
	AllowedChatIDs string `mapstructure:"ALLOWED_CHAT_IDS"`
	Timezone       string `mapstructure:"TIMEZONE"`
	DashboardURL   string `mapstructure:"DASHBOARD_URL"`
	PublicLink     bool   `mapstructure:"PUBLIC_LINK"`
	WebhookSecret  string `mapstructure:"WEBHOOK_SECRET"`
	WebhookURL     string `mapstructure:"WEBHOOK_URL"`
	Port           int    `mapstructure:"PORT"`

	GoogleClientEmail string `mapstructure:"GOOGLE_CLIENT_EMAIL"`
	// GooglePrivateKey is inline PEM (literal \n sequences allowed) or a file path.
	GooglePrivateKey string `mapstructure:"GOOGLE_PRIVATE_KEY"`
	GoogleTokenURL   string `mapstructure:"GOOGLE_TOKEN_URL"`
	TelegramAPIBase  string `mapstructure:"TELEGRAM_API_BASE"`

	ObjectStoreDSN string `mapstructure:"OBJECT_STORE_DSN"`
	ReportSinkDSN  string `mapstructure:"REPORT_SINK_DSN"`

	SessionTTLRaw   string `mapstructure:"SESSION_TTL"`
	SessionCapacity int    `mapstructure:"SESSION_CAPACITY"`
	DedupTTLRaw     string `mapstructure:"DEDUP_TTL"`
	DedupCapacity   int    `mapstructure:"DEDUP_CAPACITY"`
	MaxBodyBytes    int64  `mapstructure:"MAX_BODY_BYTES"`
	ShutdownRaw     string `mapstructure:"SHUTDOWN_TIMEOUT"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`

	allowedChats []int64
	location     *time.Location
}

// Load reads envFile (DefaultEnvFile when empty) if present, then applies
// environment overrides and validates the result. A missing default file is
// ignored; a missing explicitly named file is an error.
func Load(envFile string) (*Config, error) {
	v := viper.New()

	explicit := strings.TrimSpace(envFile) != ""
	if !explicit {
		envFile = DefaultEnvFile
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !isNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}

	v.AutomaticEnv()

	v.SetDefault("BOT_TOKEN", "")
	v.SetDefault("SPREADSHEET_ID", "")
	v.SetDefault("SHEET_NAME", "Sheet1")
	v.SetDefault("DRIVE_FOLDER_ID", "")
	v.SetDefault("ALLOWED_CHAT_IDS", "")
	v.SetDefault("TIMEZONE", "America/Chicago")
	v.SetDefault("DASHBOARD_URL", "")
	v.SetDefault("PUBLIC_LINK", true)
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("WEBHOOK_URL", "")
	v.SetDefault("PORT", 8080)
	v.SetDefault("GOOGLE_CLIENT_EMAIL", "")
	v.SetDefault("GOOGLE_PRIVATE_KEY", "")
	v.SetDefault("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token")
	v.SetDefault("TELEGRAM_API_BASE", "https://api.telegram.org")
	v.SetDefault("OBJECT_STORE_DSN", "drive://")
	v.SetDefault("REPORT_SINK_DSN", "sheets://")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_CAPACITY", 10000)
	v.SetDefault("DEDUP_TTL", "24h")
	v.SetDefault("DEDUP_CAPACITY", 100000)
	v.SetDefault("MAX_BODY_BYTES", int64(1<<20))
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.BotToken = strings.TrimSpace(c.BotToken)
	if c.BotToken == "" {
		return errors.New("config: BOT_TOKEN must be set")
	}
	// 0 binds an ephemeral port.
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT must be between 0 and 65535, got %d", c.Port)
	}
	chats, err := ParseChatIDs(c.AllowedChatIDs)
	if err != nil {
		return fmt.Errorf("config: ALLOWED_CHAT_IDS: %w", err)
	}
	c.allowedChats = chats
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil {
		return fmt.Errorf("config: TIMEZONE: %w", err)
	}
	c.location = loc
	for key, raw := range map[string]string{
		"SESSION_TTL":      c.SessionTTLRaw,
		"DEDUP_TTL":        c.DedupTTLRaw,
		"SHUTDOWN_TIMEOUT": c.ShutdownRaw,
	} {
		if d, err := time.ParseDuration(strings.TrimSpace(raw)); err != nil || d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration, got %q", key, raw)
		}
	}
	if c.SessionCapacity <= 0 || c.DedupCapacity <= 0 {
		return errors.New("config: SESSION_CAPACITY and DEDUP_CAPACITY must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("config: MAX_BODY_BYTES must be positive")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return nil
}

// ParseChatIDs parses a comma-separated list of signed chat ids. Blank
// entries are skipped.
func ParseChatIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chat id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func ParseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", raw)
	}
}

func (c *Config) AllowedChats() []int64 {
	if c == nil {
		return nil
	}
	return append([]int64(nil), c.allowedChats...)
}

// Location is the display time zone for report dates.
func (c *Config) Location() *time.Location {
	if c == nil || c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func (c *Config) Level() slog.Level {
	level, _ := ParseLogLevel(c.LogLevel)
	return level
}

func (c *Config) SessionTTL() time.Duration {
	return durationOr(c.SessionTTLRaw, 24*time.Hour)
}

func (c *Config) DedupTTL() time.Duration {
	return durationOr(c.DedupTTLRaw, 24*time.Hour)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return durationOr(c.ShutdownRaw, 10*time.Second)
}

// HasGoogleCredentials reports whether a service account is configured.
func (c *Config) HasGoogleCredentials() bool {
	return strings.TrimSpace(c.GoogleClientEmail) != "" && strings.TrimSpace(c.GooglePrivateKey) != ""
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}
