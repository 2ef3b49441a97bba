package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "sqlite:test.db")
	t.Setenv("JWT_SECRET_KEY", "secret")
	for _, key := range []string{"SERVER_PORT", "MAX_SCORE_UPLOAD_RECORDS", "ALLOWED_ORIGINS", "DB_CONNECT_TIMEOUT"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite:test.db", cfg.DatabaseURL)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 5000, cfg.MaxScoreUploadRecords)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.DBConnectTimeout)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MAX_SCORE_UPLOAD_RECORDS", "250")
	t.Setenv("ALLOWED_ORIGINS", "https://admin.example.com, ,https://ops.example.com")
	t.Setenv("DB_CONNECT_TIMEOUT", "1500ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 250, cfg.MaxScoreUploadRecords)
	assert.Equal(t, []string{"https://admin.example.com", "https://ops.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 1500*time.Millisecond, cfg.DBConnectTimeout)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"missing database url", "DATABASE_URL", ""},
		{"missing jwt secret", "JWT_SECRET_KEY", ""},
		{"port not a number", "SERVER_PORT", "http"},
		{"port out of range", "SERVER_PORT", "70000"},
		{"zero upload ceiling", "MAX_SCORE_UPLOAD_RECORDS", "0"},
		{"bad timeout", "DB_CONNECT_TIMEOUT", "soon"},
		{"negative timeout", "DB_CONNECT_TIMEOUT", "-1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
