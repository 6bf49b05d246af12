package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for the optional artifact mirror.
// The mirror is disabled when Endpoint is empty.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether a mirror endpoint was configured.
func (c MinIOConfig) Enabled() bool { return c.Endpoint != "" }

// StorageConfig describes the local content root that uploads land in.
type StorageConfig struct {
	Root           string
	FilesDir       string
	MediaDir       string
	InternalPrefix string
}

// UploadConfig holds the ingestion limits and allow-lists.
type UploadConfig struct {
	MaxMB               int64
	AllowedBinaryExts   []string
	AllowedMediaExts    []string
	MultipartHeadroomMB int64
}

// MaxBytes is the size cap in bytes.
func (c UploadConfig) MaxBytes() int64 { return c.MaxMB * 1024 * 1024 }

// ScannerConfig controls the clamd gate.
type ScannerConfig struct {
	Enabled bool
	Socket  string
	Timeout time.Duration
}

// CSRFConfig controls the double-submit cookie.
type CSRFConfig struct {
	CookieName   string
	HeaderName   string
	FormField    string
	CookieSecure bool
}

// AppConfig is the centralized configuration struct for the application.
// It is populated once at startup and treated as read-only afterwards.
type AppConfig struct {
	AppEnv   string
	AppHost  string
	Port     string
	LogLevel string
	Database DatabaseConfig
	MinIO    MinIOConfig
	Storage  StorageConfig
	Upload   UploadConfig
	Scanner  ScannerConfig
	CSRF     CSRFConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// Real environment variables take precedence over the file.
func Load() *AppConfig {
	return &AppConfig{
		AppEnv:   getEnv("APP_ENV", "development"),
		AppHost:  getEnv("APP_HOST", "localhost:8080"),
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Storage: StorageConfig{
			Root:           getEnv("STORAGE_ROOT", "/var/www/apphub/storage"),
			FilesDir:       "files",
			MediaDir:       "media",
			InternalPrefix: getEnv("INTERNAL_REDIRECT_PREFIX", "/apphub_internal/"),
		},
		Upload: UploadConfig{
			MaxMB:               int64(getEnvInt("MAX_UPLOAD_MB", 500)),
			AllowedBinaryExts:   getEnvList("ALLOWED_UPLOAD_EXTENSIONS", ".dmg,.exe,.msi,.pkg,.zip,.tar.gz,.tgz"),
			AllowedMediaExts:    getEnvList("ALLOWED_MEDIA_EXTENSIONS", ".png,.jpg,.jpeg,.webp,.gif,.svg"),
			MultipartHeadroomMB: 1,
		},
		Scanner: ScannerConfig{
			Enabled: getEnvBool("CLAMAV_ENABLED", false),
			Socket:  getEnv("CLAMAV_SOCKET", "/var/run/clamav/clamd.ctl"),
			Timeout: time.Duration(getEnvInt("CLAMAV_TIMEOUT_SEC", 30)) * time.Second,
		},
		CSRF: CSRFConfig{
			CookieName:   "apphub_csrf",
			HeaderName:   "X-CSRF-Token",
			FormField:    "csrf_token",
			CookieSecure: getEnvBool("CSRF_COOKIE_SECURE", true),
		},
	}
}

// Validate checks the settings the ingestion core cannot run without.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Storage.Root == "" || !filepath.IsAbs(c.Storage.Root) {
		errs = append(errs, errors.New("STORAGE_ROOT must be an absolute path"))
	}
	if c.Upload.MaxMB <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
	}
	if len(c.Upload.AllowedBinaryExts) == 0 || len(c.Upload.AllowedMediaExts) == 0 {
		errs = append(errs, errors.New("extension allow-lists must not be empty"))
	}
	if c.Scanner.Enabled && c.Scanner.Socket == "" {
		errs = append(errs, errors.New("CLAMAV_SOCKET is required when CLAMAV_ENABLED=true"))
	}
	if c.Scanner.Enabled && c.Scanner.Timeout <= 0 {
		errs = append(errs, errors.New("CLAMAV_TIMEOUT_SEC must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvList splits a comma separated value, lower-casing and dropping blanks.
func getEnvList(key, def string) []string {
	raw := getEnv(key, def)
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
