package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"ENVIRONMENT", "PORT", "ALLOWED_ORIGINS", "JWT_SECRET", "DATABASE_URL",
		"S3_BUCKET_NAME", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY",
		"S3_PUBLIC_BASE_URL", "WS_SEND_BUFFER",
	} {
		t.Setenv(k, "")
	}
}

func TestDevelopmentDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, defaultDevDatabase, cfg.DatabaseDSN)
	assert.Equal(t, defaultSendBuffer, cfg.WSSendBuffer)
	assert.False(t, cfg.StorageEnabled())
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cr3t")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestStorageSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_BUCKET_NAME", "images")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "S3_ENDPOINT")

	t.Setenv("S3_ENDPOINT", "http://localhost:9000/")
	t.Setenv("S3_ACCESS_KEY_ID", "id")
	t.Setenv("S3_SECRET_ACCESS_KEY", "key")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/images", cfg.S3PublicBaseURL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
}

func TestInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "80")
	_, err := LoadConfig()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("WS_SEND_BUFFER", "0")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "WS_SEND_BUFFER")
}
