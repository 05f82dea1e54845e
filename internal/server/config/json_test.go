package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv("CONFIG", "")

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"env":                            "production",
		"endpoint_addr_http":             "www.example:8000",
		"endpoint_addr_grpc":             "www.example:9000",
		"database_dsn":                   "postgres://db",
		"secret_key":                     "my_secret_key",
		"access_token_validity_duration": "1h",
		"password_reset_token_validity":  "5m",
		"smtp_port":                      465,
		"smtp_ssl":                       true,
		"s3_bucket":                      "bucket",
		"restrict_admin_routes":          false,
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "production", cfg.Env)
		assert.Equal(t, "www.example:8000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "www.example:9000", cfg.EndpointAddrGRPC)
		assert.Equal(t, "postgres://db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, time.Hour, cfg.AccessTokenValidityDuration)
		assert.Equal(t, 5*time.Minute, cfg.PasswordResetTokenValidity)
		assert.Equal(t, 465, cfg.SMTPPort)
		assert.True(t, cfg.SMTPSSL)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.False(t, cfg.RestrictAdminRoutes)

		// absent keys keep defaults
		assert.Equal(t, "gophauth", cfg.AppName)
		assert.Equal(t, "localhost", cfg.SMTPHost)
		assert.False(t, cfg.RequireVerifiedEmail)
	})

	t.Run("CONFIG env var is used without flags", func(t *testing.T) {
		os.Args = []string{"testbin"}
		t.Setenv("CONFIG", pathFlag)

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "my_secret_key", cfg.SecretKey)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			EndpointAddrHTTP:            "defaults:1234",
			DatabaseDSN:                 "vault.db",
			SecretKey:                   "key",
			AccessTokenValidityDuration: 2 * time.Minute,
			RestrictAdminRoutes:         true,
		}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrHTTP)
		assert.Equal(t, "vault.db", cfg.DatabaseDSN)
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, 2*time.Minute, cfg.AccessTokenValidityDuration)
		assert.True(t, cfg.RestrictAdminRoutes)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "nope.json")}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
