package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"invitation-app/internal/storage"
)

// Config holds the application configuration
type Config struct {
	DataDir       string
	EventsDir     string
	ContactsFile  string
	AppConfigFile string
	UploadsDir    string
	TemplatesDir  string

	PublicDomain      string
	PublicAddr        string
	TrustProxyHeaders bool

	SMTP       SMTPConfig
	AdminEmail string

	WhatsApp WhatsAppConfig

	RateLimitWindow time.Duration
	RateLimitMax    int

	SendConcurrency int
	SendAttempts    int

	LogLevel string
	LogFile  string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether enough is configured to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type WhatsAppConfig struct {
	Enabled bool
	DataDir string
}

// Load reads the configuration from the environment. Values from envFile
// (or .env when envFile is empty) are applied first when the file exists;
// variables already set in the environment win.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	dataDir := getEnv("DATA_DIR", "data")
	smtpUser := getEnv("SMTP_USERNAME", "")
	smtpFrom := getEnv("SMTP_FROM", smtpUser)

	cfg := &Config{
		DataDir:       dataDir,
		EventsDir:     getEnv("EVENTS_DIR", filepath.Join(dataDir, "events")),
		ContactsFile:  getEnv("CONTACTS_FILE", filepath.Join(dataDir, "contacts.json")),
		AppConfigFile: getEnv("APP_CONFIG_FILE", filepath.Join(dataDir, "config.json")),
		UploadsDir:    getEnv("UPLOADS_DIR", "uploads"),
		TemplatesDir:  getEnv("TEMPLATES_DIR", filepath.Join("templates", "invitations")),

		PublicDomain:      getEnv("PUBLIC_DOMAIN", "invites.yourdomain.com"),
		PublicAddr:        getEnv("PUBLIC_ADDR", ":5001"),
		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: smtpUser,
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     smtpFrom,
		},
		AdminEmail: getEnv("ADMIN_EMAIL", smtpFrom),

		WhatsApp: WhatsAppConfig{
			Enabled: getEnvBool("WHATSAPP_ENABLED", false),
			DataDir: getEnv("WHATSAPP_DATA_DIR", dataDir),
		},

		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		RateLimitMax:    getEnvInt("RATE_LIMIT_MAX", 10),

		SendConcurrency: getEnvInt("SEND_CONCURRENCY", 4),
		SendAttempts:    getEnvInt("SEND_ATTEMPTS", 3),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}

	if cfg.RateLimitMax < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", cfg.RateLimitMax)
	}
	if cfg.SendConcurrency < 1 {
		cfg.SendConcurrency = 1
	}
	if cfg.SendAttempts < 1 {
		cfg.SendAttempts = 1
	}
	return cfg, nil
}

// EnsureDirs creates the data, events and uploads directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.EventsDir, c.UploadsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// PublicURL joins path onto the public domain.
func (c *Config) PublicURL(path string) string {
	return "https://" + strings.TrimSuffix(c.PublicDomain, "/") + path
}

// LoadAppConfig reads the free-form JSON object at path under a shared lock.
// A missing file yields an empty object.
func LoadAppConfig(store *storage.Store, path string) (map[string]any, error) {
	doc, err := storage.Read[map[string]any](store, path)
	if err != nil {
		return nil, fmt.Errorf("load app config: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}
