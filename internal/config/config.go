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
)

const (
	ParserLocal  = "local"
	ParserRemote = "remote"
)

type Config struct {
	DBPath      string
	RawMailDir  string
	OutputDir   string
	CatalogFile string

	ParserMode         string
	ParserURL          string
	ParserTimeoutMs    int
	ParserMaxAttempts  int
	ParserRateLimitRPS int

	OrderNumberPrefix string

	HTTPPort  string
	LogLevel  string
	LogFormat string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerInterval     time.Duration
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerWorkers      int
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:      getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir:  getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:   getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		CatalogFile: getEnv("CATALOG_FILE", filepath.Join(cwd, "catalog.yaml")),

		ParserMode:         strings.ToLower(strings.TrimSpace(getEnv("PARSER_MODE", ParserLocal))),
		ParserURL:          getEnv("PARSER_URL", ""),
		ParserTimeoutMs:    getEnvInt("PARSER_TIMEOUT_MS", 15000),
		ParserMaxAttempts:  getEnvInt("PARSER_MAX_ATTEMPTS", 3),
		ParserRateLimitRPS: getEnvInt("PARSER_RATE_LIMIT_RPS", 5),

		OrderNumberPrefix: getEnv("ORDER_NUMBER_PREFIX", "ORD-"),

		HTTPPort:  getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerInterval:     getEnvDuration("MAIL_LISTENER_INTERVAL", 30*time.Second),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerWorkers:      getEnvInt("MAIL_LISTENER_WORKERS", 4),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", false),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate reports every invalid setting at once.
func (c Config) validate() error {
	var errs []error
	switch c.ParserMode {
	case ParserLocal:
	case ParserRemote:
		errs = append(errs, c.Require("PARSER_URL", c.ParserURL))
	default:
		errs = append(errs, fmt.Errorf("unsupported PARSER_MODE: %s", c.ParserMode))
	}
	if c.ParserMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("PARSER_MAX_ATTEMPTS must be at least 1, got %d", c.ParserMaxAttempts))
	}
	if c.ParserTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("PARSER_TIMEOUT_MS must be positive, got %d", c.ParserTimeoutMs))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported LOG_FORMAT: %s", c.LogFormat))
	}
	return errors.Join(errs...)
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	// bare integers are seconds
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
