package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	domainauth "github.com/target/aad-connect/internal/domain/auth"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.ConfigStore    = (*StaticConfigStore)(nil)
	_ ports.TokenExchanger = (*MockExchanger)(nil)
	_ ports.UserResolver   = (*MockResolver)(nil)
	_ ports.StateStore     = (*MemoryStateStore)(nil)
	_ ports.AccountStore   = (*MemoryAccountStore)(nil)
	_ ports.RoleStore      = (*MemoryRoleStore)(nil)
	_ ports.SessionStore   = (*MemorySessionStore)(nil)
)

// ErrNotFound is returned by mocks when an entity is not present.
var ErrNotFound = apperrors.NotFound("not found")

// StaticConfigStore returns a fixed configuration, or Err when set.
type StaticConfigStore struct {
	Config domainauth.ClientConfiguration
	Err    error

	ClientConfigFunc func(ctx context.Context, providerKey string) (domainauth.ClientConfiguration, error)
}

func (s *StaticConfigStore) ClientConfig(ctx context.Context, providerKey string) (domainauth.ClientConfiguration, error) {
	if s.ClientConfigFunc != nil {
		return s.ClientConfigFunc(ctx, providerKey)
	}
	if s.Err != nil {
		return domainauth.ClientConfiguration{}, s.Err
	}
	return s.Config, nil
}

func (s *StaticConfigStore) ClientEnabled(ctx context.Context, providerKey string) (bool, error) {
	cfg, err := s.ClientConfig(ctx, providerKey)
	if err != nil {
		return false, err
	}
	return cfg.Enabled, nil
}

// ExchangeCall records the arguments of one Exchange call.
type ExchangeCall struct {
	Code        string
	RedirectURI string
}

// MockExchanger simulates the Azure AD token endpoint.
type MockExchanger struct {
	AuthCodeURLFunc   func(cfg domainauth.ClientConfiguration, in ports.AuthCodeInput) string
	ExchangeFunc      func(ctx context.Context, cfg domainauth.ClientConfiguration, code, redirectURI string) (domainauth.TokenSet, error)
	VerifyIDTokenFunc func(ctx context.Context, cfg domainauth.ClientConfiguration, rawIDToken, nonce string) (domainauth.IDClaims, error)

	// Claims is returned by VerifyIDToken when no func is set.
	Claims domainauth.IDClaims

	mu            sync.Mutex
	ExchangeCalls []ExchangeCall
}

// NewMockExchanger creates a MockExchanger with sensible defaults.
func NewMockExchanger() *MockExchanger {
	return &MockExchanger{}
}

func (m *MockExchanger) AuthCodeURL(cfg domainauth.ClientConfiguration, in ports.AuthCodeInput) string {
	if m.AuthCodeURLFunc != nil {
		return m.AuthCodeURLFunc(cfg, in)
	}
	return fmt.Sprintf("https://mock-idp/authorize?state=%s&nonce=%s", in.State, in.Nonce)
}

func (m *MockExchanger) Exchange(ctx context.Context, cfg domainauth.ClientConfiguration, code, redirectURI string) (domainauth.TokenSet, error) {
	m.mu.Lock()
	m.ExchangeCalls = append(m.ExchangeCalls, ExchangeCall{Code: code, RedirectURI: redirectURI})
	m.mu.Unlock()

	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, cfg, code, redirectURI)
	}
	return domainauth.TokenSet{IDToken: "id-token", AccessToken: "access-token"}, nil
}

func (m *MockExchanger) VerifyIDToken(ctx context.Context, cfg domainauth.ClientConfiguration, rawIDToken, nonce string) (domainauth.IDClaims, error) {
	if m.VerifyIDTokenFunc != nil {
		return m.VerifyIDTokenFunc(ctx, cfg, rawIDToken, nonce)
	}
	return m.Claims, nil
}

// MockResolver returns a fixed Graph profile.
type MockResolver struct {
	ResolveFunc func(ctx context.Context, accessToken string, cfg domainauth.ClientConfiguration) (domainauth.UserInfo, error)
	User        domainauth.UserInfo
}

// NewMockResolver creates a MockResolver with a default user.
func NewMockResolver() *MockResolver {
	return &MockResolver{
		User: domainauth.UserInfo{
			ID:                "object-1",
			DisplayName:       "Mock User",
			Mail:              "mock.user@example.com",
			UserPrincipalName: "mock.user@example.com",
			Name:              "mock.user",
			Email:             "mock.user@example.com",
			Groups:            []domainauth.GraphGroup{},
		},
	}
}

func (m *MockResolver) Resolve(ctx context.Context, accessToken string, cfg domainauth.ClientConfiguration) (domainauth.UserInfo, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, accessToken, cfg)
	}
	return m.User, nil
}

// MemoryStateStore is an in-memory keyed state store.
type MemoryStateStore struct {
	mu     sync.Mutex
	values map[string][]byte

	GetErr error
	SetErr error
}

// NewMemoryStateStore creates an empty MemoryStateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{values: make(map[string][]byte)}
}

func stateKey(namespace, userID, key string) string {
	return namespace + "/" + userID + "/" + key
}

func (m *MemoryStateStore) Get(_ context.Context, namespace, userID, key string) ([]byte, bool, error) {
	if m.GetErr != nil {
		return nil, false, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[stateKey(namespace, userID, key)]
	return v, ok, nil
}

func (m *MemoryStateStore) Set(_ context.Context, namespace, userID, key string, value []byte) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[stateKey(namespace, userID, key)] = append([]byte(nil), value...)
	return nil
}

// MemoryAccountStore keeps users and provider links in memory.
type MemoryAccountStore struct {
	mu        sync.Mutex
	links     map[string]string
	blocked   map[string]bool
	providers map[string][]string
	next      int

	UpsertErr   error
	UnblockErr  error
	ProvidersFn func(ctx context.Context, userID string) ([]string, error)
}

// NewMemoryAccountStore creates an empty MemoryAccountStore.
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		links:     make(map[string]string),
		blocked:   make(map[string]bool),
		providers: make(map[string][]string),
	}
}

// AddUser registers a user with the given linked providers.
func (m *MemoryAccountStore) AddUser(userID string, blocked bool, providers ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[userID] = blocked
	m.providers[userID] = append([]string(nil), providers...)
}

// Link attaches an external account to an existing user.
func (m *MemoryAccountStore) Link(provider, externalID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[provider+"/"+externalID] = userID
	if !slices.Contains(m.providers[userID], provider) {
		m.providers[userID] = append(m.providers[userID], provider)
	}
}

func (m *MemoryAccountStore) Upsert(_ context.Context, in ports.AccountInput) (string, error) {
	if m.UpsertErr != nil {
		return "", m.UpsertErr
	}
	if in.Provider == "" || in.ExternalID == "" {
		return "", apperrors.Validation("provider and external id are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.links[in.Provider+"/"+in.ExternalID]; ok {
		return id, nil
	}
	m.next++
	id := fmt.Sprintf("user-%d", m.next)
	m.links[in.Provider+"/"+in.ExternalID] = id
	m.blocked[id] = false
	m.providers[id] = append(m.providers[id], in.Provider)
	return id, nil
}

func (m *MemoryAccountStore) IsBlocked(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blocked, ok := m.blocked[userID]
	if !ok {
		return false, ErrNotFound
	}
	return blocked, nil
}

func (m *MemoryAccountStore) Unblock(_ context.Context, userID string) error {
	if m.UnblockErr != nil {
		return m.UnblockErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocked[userID]; !ok {
		return ErrNotFound
	}
	m.blocked[userID] = false
	return nil
}

func (m *MemoryAccountStore) ConnectedProviders(ctx context.Context, userID string) ([]string, error) {
	if m.ProvidersFn != nil {
		return m.ProvidersFn(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.providers[userID]...), nil
}

// MemoryRoleStore keeps role assignments in memory.
type MemoryRoleStore struct {
	mu       sync.Mutex
	Roles    []domainauth.Role
	assigned map[string]map[string]struct{}

	// AddErr and RemoveErr fail individual role ids.
	AddErr    map[string]error
	RemoveErr map[string]error
	ListErr   error
}

// NewMemoryRoleStore creates a MemoryRoleStore with the given assignable roles.
func NewMemoryRoleStore(roles ...domainauth.Role) *MemoryRoleStore {
	return &MemoryRoleStore{Roles: roles, assigned: make(map[string]map[string]struct{})}
}

func (m *MemoryRoleStore) ListRoles(_ context.Context) ([]domainauth.Role, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return append([]domainauth.Role(nil), m.Roles...), nil
}

func (m *MemoryRoleStore) UserRoles(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.assigned[userID]))
	for r := range m.assigned[userID] {
		out = append(out, r)
	}
	slices.Sort(out)
	return out, nil
}

func (m *MemoryRoleStore) AddRole(_ context.Context, userID, roleID string) error {
	if err := m.AddErr[roleID]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assigned[userID] == nil {
		m.assigned[userID] = make(map[string]struct{})
	}
	m.assigned[userID][roleID] = struct{}{}
	return nil
}

func (m *MemoryRoleStore) RemoveRole(_ context.Context, userID, roleID string) error {
	if err := m.RemoveErr[roleID]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assigned[userID], roleID)
	return nil
}

// MemorySessionStore is an in-memory session store for unit tests.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]domainauth.Session),
	}
}

func (m *MemorySessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}
