package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("STORAGE_ROOT", "/srv/apphub")
	t.Setenv("MAX_UPLOAD_MB", "12")
	t.Setenv("ALLOWED_UPLOAD_EXTENSIONS", " .EXE, .tar.gz ,,")
	t.Setenv("CLAMAV_ENABLED", "true")
	t.Setenv("CLAMAV_TIMEOUT_SEC", "5")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, "/srv/apphub", cfg.Storage.Root)
	assert.Equal(t, int64(12*1024*1024), cfg.Upload.MaxBytes())
	assert.Equal(t, []string{".exe", ".tar.gz"}, cfg.Upload.AllowedBinaryExts)
	assert.True(t, cfg.Scanner.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Scanner.Timeout)
	assert.Equal(t, "apphub_csrf", cfg.CSRF.CookieName)
	assert.True(t, cfg.CSRF.CookieSecure)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "/apphub_internal/", cfg.Storage.InternalPrefix)
	assert.Equal(t, int64(500), cfg.Upload.MaxMB)
	assert.Contains(t, cfg.Upload.AllowedMediaExts, ".png")
	assert.False(t, cfg.MinIO.Enabled())
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.Storage.Root = "relative/root"
	cfg.Upload.MaxMB = 0
	cfg.Upload.AllowedMediaExts = nil
	cfg.Scanner.Enabled = true
	cfg.Scanner.Socket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORAGE_ROOT")
	assert.Contains(t, err.Error(), "MAX_UPLOAD_MB")
	assert.Contains(t, err.Error(), "allow-lists")
	assert.Contains(t, err.Error(), "CLAMAV_SOCKET")
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	t.Setenv(key, "value")

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	t.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	t.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	t.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	t.Setenv(key, "")
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	t.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	t.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	t.Setenv(key, "")
	assert.Equal(t, 10, getEnvInt(key, 10))
}
