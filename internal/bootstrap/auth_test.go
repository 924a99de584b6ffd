package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/aad-connect/config"
	"github.com/target/aad-connect/internal/adapters/clientconfig"
	domainauth "github.com/target/aad-connect/internal/domain/auth"
	mocks "github.com/target/aad-connect/internal/mocks/auth"
	"github.com/target/aad-connect/internal/testutil"
)

func testAppConfig(mode config.AuthMode) *config.AppConfig {
	cfg := &config.AppConfig{
		IsDev: true,
		Auth: config.AuthConfig{
			Mode: mode,
			AAD: config.AADConfig{
				Enabled:           true,
				TenantID:          "tenant-1",
				ClientID:          "client-1",
				ClientSecret:      "secret",
				RedirectURL:       "https://app.example.com/auth/callback",
				MapGroupsToRoles:  true,
				GroupMappingRules: "administrator|Admins",
			},
			DevAuth: config.DevAuthConfig{
				UserID: "dev-user",
				Email:  "dev@example.com",
				Groups: []string{"Admins"},
			},
		},
		HTTP: config.HTTPConfig{
			BaseURL:    "https://app.example.com",
			SessionTTL: time.Hour,
		},
		Observability: config.ObservabilityConfig{MetricsEnabled: true},
	}
	cfg.Sanitize()
	return cfg
}

func TestBuildAuth_RequiresInfrastructure(t *testing.T) {
	db, _ := testutil.SetupMockDB(t)
	_, client := testutil.SetupTestRedis(t)
	cfg := testAppConfig(config.AuthModeOAuth)

	tests := []struct {
		name string
		deps AuthDeps
	}{
		{name: "config", deps: AuthDeps{DB: db, RedisClient: client}},
		{name: "database", deps: AuthDeps{Config: cfg, RedisClient: client}},
		{name: "redis", deps: AuthDeps{Config: cfg, DB: db}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comps, err := BuildAuth(tt.deps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.name)
			assert.Nil(t, comps)
		})
	}
}

func TestBuildAuth_Modes(t *testing.T) {
	for _, mode := range []config.AuthMode{config.AuthModeOAuth, config.AuthModeMock} {
		t.Run(string(mode), func(t *testing.T) {
			db, _ := testutil.SetupMockDB(t)
			_, client := testutil.SetupTestRedis(t)
			logger, _ := testutil.NewLogger()
			reg := prometheus.NewRegistry()

			comps, err := BuildAuth(AuthDeps{
				Config:      testAppConfig(mode),
				DB:          db,
				RedisClient: client,
				Registerer:  reg,
				Logger:      logger,
			})
			require.NoError(t, err)
			require.NotNil(t, comps.Auth)
			require.NotNil(t, comps.Logout)
			require.NotNil(t, comps.ConfigStore)
			assert.NotNil(t, comps.Metrics)

			cfg, err := comps.ConfigStore.ClientConfig(context.Background(), domainauth.ProviderKey)
			require.NoError(t, err)
			assert.Equal(t, "administrator|Admins", cfg.GroupMappingRules)
		})
	}
}

func TestBuildAuth_MockModeBeginsLogin(t *testing.T) {
	db, _ := testutil.SetupMockDB(t)
	_, client := testutil.SetupTestRedis(t)
	cfg := testAppConfig(config.AuthModeMock)
	cfg.Auth.AAD.ClientID = ""

	comps, err := BuildAuth(AuthDeps{Config: cfg, DB: db, RedisClient: client})
	require.NoError(t, err)

	res, err := comps.Auth.BeginLogin(context.Background(), "http://localhost:8080/auth/callback")
	require.NoError(t, err)
	assert.Contains(t, res.AuthURL, "/auth/callback?code=dev")
	assert.Contains(t, res.AuthURL, res.State)
}

func TestAADSettings(t *testing.T) {
	mock := config.AuthConfig{Mode: config.AuthModeMock}
	assert.Equal(t, "dev-client", aadSettings(mock).ClientID)

	oauth := config.AuthConfig{Mode: config.AuthModeOAuth}
	assert.Empty(t, aadSettings(oauth).ClientID)

	configured := config.AuthConfig{Mode: config.AuthModeMock, AAD: config.AADConfig{ClientID: "real"}}
	assert.Equal(t, "real", aadSettings(configured).ClientID)
}

func TestBuildProviders_UnknownMode(t *testing.T) {
	cfg := testAppConfig("saml")
	_, err := buildProviders(cfg, nil, testLogger())
	assert.Error(t, err)
}

func TestRulesReloadHook(t *testing.T) {
	roles := mocks.NewMemoryRoleStore(
		domainauth.Role{ID: "administrator", Label: "Administrator"},
		domainauth.Role{ID: "instructor", Label: "Instructor"},
	)
	logger, logs := testutil.NewLogger()

	rulesReloadHook(roles, logger)(context.Background(), "administrator|Admins\nghost|Ghosts\nInstructor|Staff")

	warns := logs.ByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, "group mapping rule will be skipped", warns[0].Message())
	assert.Equal(t, "ghost|Ghosts", warns[0]["rule"])
	assert.EqualValues(t, 2, warns[0]["line"])

	loaded, ok := logs.Find("group mapping rules loaded")
	require.True(t, ok)
	assert.EqualValues(t, 1, loaded["skipped"])
}

func TestRulesReloadHook_RoleStoreFailure(t *testing.T) {
	roles := mocks.NewMemoryRoleStore()
	roles.ListErr = errors.New("db down")
	logger, logs := testutil.NewLogger()

	rulesReloadHook(roles, logger)(context.Background(), "ghost|Ghosts")

	rec, ok := logs.Find("group mapping rules not validated")
	require.True(t, ok)
	assert.Equal(t, "db down", rec["error"])
	_, loaded := logs.Find("group mapping rules loaded")
	assert.False(t, loaded)
}

func TestAuthComponents_SkippedRules(t *testing.T) {
	aad := config.AADConfig{
		Enabled:           true,
		ClientID:          "client-1",
		MapGroupsToRoles:  true,
		GroupMappingRules: "administrator|Admins\nghost|Ghosts",
	}
	aad.Sanitize()
	store, err := clientconfig.New(clientconfig.Options{AAD: aad})
	require.NoError(t, err)

	roles := mocks.NewMemoryRoleStore(domainauth.Role{ID: "administrator", Label: "Administrator"})
	c := &AuthComponents{ConfigStore: store, Roles: roles}

	skipped, err := c.SkippedRules(context.Background())
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, "ghost|Ghosts", skipped[0].Text)

	roles.ListErr = errors.New("db down")
	_, err = c.SkippedRules(context.Background())
	assert.ErrorContains(t, err, "db down")
}
