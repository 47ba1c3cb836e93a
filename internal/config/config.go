package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DBPath    string
	OutputDir string

	BlobDriver      string
	BlobFSRoot      string
	BlobS3Bucket    string
	BlobS3Region    string
	BlobS3Endpoint  string
	BlobS3PathStyle bool

	BlobS3AccessKeyID     string
	BlobS3SecretAccessKey string

	GeminiAPIKey        string
	GeminiModel         string
	GeminiBaseURL       string
	ExtractTimeoutMs    int
	ExtractRateLimitRPS int

	UnmatchedPolicy  string
	FilterSizeMeters string
	CurrencySymbol   string

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
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool

	MetricsAddr string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "estimates.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		BlobDriver:      getEnv("BLOB_DRIVER", "fs"),
		BlobFSRoot:      getEnv("BLOB_FS_ROOT", filepath.Join(cwd, "data", "blobs")),
		BlobS3Bucket:    getEnv("BLOB_S3_BUCKET", ""),
		BlobS3Region:    getEnv("BLOB_S3_REGION", "us-east-1"),
		BlobS3Endpoint:  getEnv("BLOB_S3_ENDPOINT", ""),
		BlobS3PathStyle: getEnvBool("BLOB_S3_PATH_STYLE", false),

		BlobS3AccessKeyID:     getEnv("BLOB_S3_ACCESS_KEY_ID", ""),
		BlobS3SecretAccessKey: getEnv("BLOB_S3_SECRET_ACCESS_KEY", ""),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:       getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ExtractTimeoutMs:    getEnvInt("EXTRACT_TIMEOUT_MS", 30000),
		ExtractRateLimitRPS: getEnvInt("EXTRACT_RATE_LIMIT_RPS", 2),

		UnmatchedPolicy:  getEnv("UNMATCHED_POLICY", "drop"),
		FilterSizeMeters: getEnv("FILTER_SIZE_METERS", "3.6"),
		CurrencySymbol:   getEnv("CURRENCY_SYMBOL", "₹"),

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
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 10),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}

	return cfg, nil
}

// ExtractTimeout is the deadline for one extraction call.
func (c Config) ExtractTimeout() time.Duration {
	if c.ExtractTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ExtractTimeoutMs) * time.Millisecond
}

// FilterMeters parses FILTER_SIZE_METERS, falling back to 3.6.
func (c Config) FilterMeters() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(c.FilterSizeMeters))
	if err != nil {
		return decimal.RequireFromString("3.6")
	}
	return d
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
