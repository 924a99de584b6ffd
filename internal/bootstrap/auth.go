package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/target/aad-connect/config"
	"github.com/target/aad-connect/internal/adapters/clientconfig"
	"github.com/target/aad-connect/internal/adapters/devauth"
	"github.com/target/aad-connect/internal/adapters/graph"
	"github.com/target/aad-connect/internal/adapters/oidc"
	redisadapter "github.com/target/aad-connect/internal/adapters/redis"
	"github.com/target/aad-connect/internal/data"
	"github.com/target/aad-connect/internal/domain/rolemap"
	"github.com/target/aad-connect/internal/observability/metrics"
	"github.com/target/aad-connect/internal/ports"
	"github.com/target/aad-connect/internal/service"
)

const sessionKeyPrefix = "session:"

// AuthDeps groups the infrastructure BuildAuth wires into the auth services.
type AuthDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	// Registerer receives the auth collectors; nil leaves them unregistered.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// AuthComponents holds the wired authentication services and the stores callers run or probe.
type AuthComponents struct {
	Auth        *service.AuthService
	Logout      *service.LogoutService
	ConfigStore *clientconfig.Store
	Roles       ports.RoleStore
	Metrics     *metrics.Recorder
}

type authProviders struct {
	exchanger ports.TokenExchanger
	resolver  ports.UserResolver
}

// BuildAuth wires the Azure AD login, role synchronization and single sign-out services.
func BuildAuth(deps AuthDeps) (*AuthComponents, error) {
	if deps.Config == nil {
		return nil, errors.New("auth: config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("auth: database is required")
	}
	if deps.RedisClient == nil {
		return nil, errors.New("auth: redis client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	rec := metrics.NewRecorder(deps.Registerer)
	obs := service.Observability{Logger: logger, Metrics: rec}

	roles := data.NewRoleRepo(deps.DB)
	accounts := data.NewAccountRepo(deps.DB, data.AccountRepoConfig{
		LinkByEmail: cfg.Auth.AAD.LinkExistingByEmail,
	})
	sessions := redisadapter.NewSessionStoreWithPrefix(deps.RedisClient, sessionKeyPrefix)
	state := redisadapter.NewUserStateStore(deps.RedisClient)

	store, err := clientconfig.New(clientconfig.Options{
		AAD:      aadSettings(cfg.Auth),
		Logger:   logger,
		OnReload: rulesReloadHook(roles, logger),
	})
	if err != nil {
		return nil, fmt.Errorf("auth: client configuration: %w", err)
	}

	providers, err := buildProviders(cfg, rec, logger)
	if err != nil {
		return nil, err
	}

	roleSync := service.NewRoleSyncService(service.RoleSyncServiceOptions{
		Stores:     service.RoleSyncStores{Roles: roles, State: state, Accounts: accounts},
		AdminRoles: cfg.Auth.AAD.AdminRoles,
		Obs:        obs,
	})

	authSvc := service.NewAuthService(service.AuthServiceOptions{
		Providers: service.AuthProviders{
			Config:    store,
			Exchanger: providers.exchanger,
			Resolver:  providers.resolver,
		},
		Stores:     service.AuthStores{Accounts: accounts, Roles: roles, Sessions: sessions},
		RoleSync:   roleSync,
		SessionTTL: cfg.HTTP.SessionTTL,
		Obs:        obs,
	})

	logoutSvc := service.NewLogoutService(service.LogoutServiceOptions{
		Config:  store,
		Stores:  service.LogoutStores{Sessions: sessions, Accounts: accounts},
		HomeURL: cfg.HTTP.HomeURL(),
		Obs:     obs,
	})

	logger.Info("auth services configured",
		"mode", cfg.Auth.Mode,
		"aad_enabled", cfg.Auth.AAD.Enabled,
		"single_sign_out", cfg.Auth.AAD.EnableSingleSignOut,
		"map_groups_to_roles", cfg.Auth.AAD.MapGroupsToRoles,
		"link_existing_by_email", cfg.Auth.AAD.LinkExistingByEmail,
	)
	if cfg.Auth.AAD.LinkExistingByEmail && cfg.Auth.AAD.TenantID == "common" {
		logger.Warn("linking accounts by email while accepting any tenant", "tenant_id", cfg.Auth.AAD.TenantID)
	}

	return &AuthComponents{
		Auth:        authSvc,
		Logout:      logoutSvc,
		ConfigStore: store,
		Roles:       roles,
		Metrics:     rec,
	}, nil
}

// ValidateRules reports mapping rules that will be skipped at login, so operators see them at startup.
func (c *AuthComponents) ValidateRules(ctx context.Context, logger *slog.Logger) {
	rulesReloadHook(c.Roles, logger)(ctx, c.ConfigStore.Rules())
}

func buildProviders(cfg *config.AppConfig, rec *metrics.Recorder, logger *slog.Logger) (authProviders, error) {
	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		dev := cfg.Auth.DevAuth
		prov, err := devauth.NewProvider(devauth.Config{
			UserID:      dev.UserID,
			Email:       dev.Email,
			DisplayName: dev.DisplayName,
			Groups:      dev.Groups,
		})
		if err != nil {
			return authProviders{}, fmt.Errorf("auth: dev provider: %w", err)
		}
		logger.Warn("dev auth mode enabled; Azure AD is not contacted", "user_id", dev.UserID)
		return authProviders{exchanger: prov, resolver: prov}, nil

	case config.AuthModeOAuth:
		timeout := cfg.Auth.AAD.RequestTimeout
		client := graph.NewClient(graph.ClientOptions{
			Timeout: timeout,
			Metrics: rec,
			Logger:  logger,
		})
		exchanger := oidc.NewExchanger(oidc.ExchangerOptions{
			Poster:     client,
			HTTPClient: &http.Client{Timeout: timeout},
			Logger:     logger,
		})
		return authProviders{exchanger: exchanger, resolver: graph.NewResolver(client, logger)}, nil

	default:
		return authProviders{}, fmt.Errorf("auth: unsupported mode %q", cfg.Auth.Mode)
	}
}

// aadSettings returns the client settings the config store serves.
// Dev mode never talks to Azure AD, so a placeholder client id keeps the flow available.
func aadSettings(auth config.AuthConfig) config.AADConfig {
	aad := auth.AAD
	if auth.Mode == config.AuthModeMock && aad.ClientID == "" {
		aad.ClientID = "dev-client"
	}
	return aad
}

// rulesReloadHook logs every rule line that cannot be resolved against the current roles.
// SkippedRules validates the loaded mapping rules against the current roles.
func (c *AuthComponents) SkippedRules(ctx context.Context) ([]rolemap.SkippedRule, error) {
	return skippedRules(ctx, c.Roles, c.ConfigStore.Rules())
}

func skippedRules(ctx context.Context, roles ports.RoleStore, rules string) ([]rolemap.SkippedRule, error) {
	known, err := roles.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return rolemap.ValidateRules(rules, known), nil
}

func rulesReloadHook(roles ports.RoleStore, logger *slog.Logger) func(ctx context.Context, rules string) {
	return func(ctx context.Context, rules string) {
		skipped, err := skippedRules(ctx, roles, rules)
		if err != nil {
			logger.WarnContext(ctx, "group mapping rules not validated", "error", err)
			return
		}
		for _, s := range skipped {
			logger.WarnContext(ctx, "group mapping rule will be skipped",
				"line", s.Line,
				"rule", s.Text,
				"reason", s.Reason,
			)
		}
		logger.InfoContext(ctx, "group mapping rules loaded", "skipped", len(skipped))
	}
}
