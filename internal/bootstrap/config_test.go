package bootstrap

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/aad-connect/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.AppConfig
		wantErr bool
	}{
		{name: "nil", cfg: nil, wantErr: true},
		{name: "oauth without credentials starts", cfg: &config.AppConfig{Auth: config.AuthConfig{Mode: config.AuthModeOAuth}}},
		{
			name:    "mock outside dev",
			cfg:     &config.AppConfig{Auth: config.AuthConfig{Mode: config.AuthModeMock, DevAuth: config.DevAuthConfig{UserID: "u"}}},
			wantErr: true,
		},
		{
			name:    "mock without user",
			cfg:     &config.AppConfig{IsDev: true, Auth: config.AuthConfig{Mode: config.AuthModeMock}},
			wantErr: true,
		},
		{
			name: "mock in dev",
			cfg:  &config.AppConfig{IsDev: true, Auth: config.AuthConfig{Mode: config.AuthModeMock, DevAuth: config.DevAuthConfig{UserID: "u"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	// Run from an empty directory so no stray .env file is picked up.
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_MODE", "oauth")
	t.Setenv("AAD_TENANT_ID", "contoso")
	t.Setenv("AAD_CLIENT_ID", "client-1")
	t.Setenv("AAD_ADMIN_ROLES", "site_admin; ;administrator")
	t.Setenv("APP_BASE_URL", "https://portal.example.edu/")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, config.AuthModeOAuth, cfg.Auth.Mode)
	assert.Equal(t, "client-1", cfg.Auth.AAD.ClientID)
	assert.Equal(t, "https://login.microsoftonline.com/contoso/oauth2/v2.0/token", cfg.Auth.AAD.TokenEndpoint)
	assert.Equal(t, []string{"site_admin", "administrator"}, cfg.Auth.AAD.AdminRoles)
	assert.Equal(t, "https://portal.example.edu/", cfg.HTTP.HomeURL())
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("AAD_CLIENT_ID=from-dotenv\n"), 0o600))
	t.Chdir(dir)
	// godotenv never overrides variables that are already set; register cleanup for the one it sets.
	t.Setenv("AAD_CLIENT_ID", "")
	require.NoError(t, os.Unsetenv("AAD_CLIENT_ID"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.AAD.ClientID)
}

func TestLoadConfig_InvalidAuthMode(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_MODE", "saml")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestSetLogLevel(t *testing.T) {
	t.Cleanup(func() { SetLogLevel(slog.LevelInfo) })

	SetLogLevel(slog.LevelWarn)
	assert.Equal(t, slog.LevelWarn, logLevel.Level())
}
