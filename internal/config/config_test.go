package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "unit")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "unit", cfg.Env)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "school_platform", cfg.Database.DBName)
	assert.Equal(t, "log", cfg.Notify.Transport)
	assert.Equal(t, 10*time.Minute, cfg.Redis.CredentialTTLDuration())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENV", "unit")
	t.Setenv("DB_PASSWORD", "s3cret")
	t.Setenv("JWT_SECRET", "signing-key")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("NOTIFY_TRANSPORT", "nats")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "signing-key", cfg.Auth.JWTSecret)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "nats", cfg.Notify.Transport)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	yaml := []byte(`
server:
  port: "7000"
tenant_database:
  host: tenants.internal
  user: tenant_rw
notify:
  kafka:
    brokers: ["k1:9092", "k2:9092"]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.filetest.yaml"), yaml, 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("ENV", "filetest")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "filetest", cfg.Env)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.Kafka.Brokers)

	tenantDB := cfg.TenantDatabase.ForLocator("school_42")
	assert.Equal(t, "tenants.internal", tenantDB.Host)
	assert.Equal(t, "tenant_rw", tenantDB.User)
	assert.Equal(t, "school_42", tenantDB.DBName)
}

func TestIsProduction(t *testing.T) {
	for env, want := range map[string]bool{"prod": true, "production": true, "local": false, "dev": false} {
		cfg := &Config{Env: env}
		assert.Equal(t, want, cfg.IsProduction(), env)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"local without secret", Config{Env: "local"}, false},
		{"production with secret", Config{Env: "prod", Auth: AuthConfig{JWTSecret: "k"}}, false},
		{"production without secret", Config{Env: "prod"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
