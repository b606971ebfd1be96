package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	directory "github.com/frahmantamala/project-access/internal/core/datamodel/directory"
	"github.com/frahmantamala/project-access/internal/notification"
	"github.com/frahmantamala/project-access/internal/revocation"
	"github.com/frahmantamala/project-access/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef"
	testResetSecret   = "test-reset-secret-0123456789abcdef"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// mockUserStore implements UserStore and PermissionSource in memory
type mockUserStore struct {
	mu       sync.Mutex
	users    map[int64]*directory.User
	roles    map[int64]*directory.Role
	bindings map[int64][]string
	err      error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:    make(map[int64]*directory.User),
		roles:    make(map[int64]*directory.Role),
		bindings: make(map[int64][]string),
	}
}

func (m *mockUserStore) addUser(u directory.User, password string) *directory.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u.PasswordHash = string(hash)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = &u
	return &u
}

func (m *mockUserStore) get(id int64) directory.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *mockUserStore) GetUserByEmail(_ context.Context, email string) (*directory.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockUserStore) GetUserByID(_ context.Context, id int64) (*directory.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserStore) GetRole(_ context.Context, id int64) (*directory.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.roles[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockUserStore) UpdateLastLogin(_ context.Context, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (m *mockUserStore) UpdatePassword(_ context.Context, userID int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return errUserMissing
	}
	u.PasswordHash = passwordHash
	u.TokenVersion++
	return nil
}

func (m *mockUserStore) PermissionCodesForRole(_ context.Context, roleID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bindings[roleID]...), nil
}

var errUserMissing = mockError("user missing")

type mockError string

func (e mockError) Error() string { return string(e) }

type mockRegistry struct {
	mu      sync.Mutex
	entries map[string]revocation.Entry
	// checked, when set, holds every IsRevoked caller until all have arrived
	checked *sync.WaitGroup
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{entries: make(map[string]revocation.Entry)}
}

func (m *mockRegistry) Revoke(ctx context.Context, e revocation.Entry) error {
	_, err := m.Consume(ctx, e)
	return err
}

func (m *mockRegistry) Consume(_ context.Context, e revocation.Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.JTI]; ok {
		return false, nil
	}
	m.entries[e.JTI] = e
	return true, nil
}

func (m *mockRegistry) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	_, ok := m.entries[jti]
	barrier := m.checked
	m.mu.Unlock()
	if barrier != nil {
		barrier.Done()
		barrier.Wait()
	}
	return ok, nil
}

func (m *mockRegistry) entry(jti string) (revocation.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[jti]
	return e, ok
}

type mockNotifier struct {
	mu     sync.Mutex
	resets []notification.PasswordReset
	err    error
}

func (m *mockNotifier) NotifyTeamAssignment(context.Context, notification.TeamChange) error {
	return nil
}

func (m *mockNotifier) NotifyTeamRemoval(context.Context, notification.TeamChange) error {
	return nil
}

func (m *mockNotifier) NotifyPasswordReset(_ context.Context, r notification.PasswordReset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, r)
	return m.err
}

func (m *mockNotifier) sent() []notification.PasswordReset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.PasswordReset(nil), m.resets...)
}

// testEnv wires a Service over in-memory collaborators with a shared fake clock.
type testEnv struct {
	clock    *fakeClock
	store    *mockUserStore
	registry *mockRegistry
	notifier *mockNotifier
	tokens   *JWTTokenGenerator
	resets   *ResetTokenGenerator
	metrics  *Metrics
	service  *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		clock:    &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		store:    newMockUserStore(),
		registry: newMockRegistry(),
		notifier: &mockNotifier{},
		metrics:  NewMetrics(),
	}
	env.tokens = NewJWTTokenGenerator(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		Issuer:        "project-access-test",
	}).WithClock(env.clock.Now)
	env.resets = NewResetTokenGenerator(testResetSecret, time.Hour).WithClock(env.clock.Now)
	env.service = NewService(Dependencies{
		Users:       env.store,
		Permissions: env.store,
		Tokens:      env.tokens,
		Revocations: env.registry,
		ResetTokens: env.resets,
		Notifier:    env.notifier,
		Metrics:     env.metrics,
		Logger:      logger.Discard(),
		ResetURL:    "https://app.example.com/reset-password",
		BCryptCost:  bcrypt.MinCost,
		Now:         env.clock.Now,
	})
	return env
}

// seedAlice adds alice@x.com / Secret123 with the admin role bound to two permissions.
func (env *testEnv) seedAlice() *directory.User {
	roleID := int64(1)
	env.store.roles[roleID] = &directory.Role{ID: roleID, Code: "admin", DisplayName: "Administrator"}
	env.store.bindings[roleID] = []string{"projects:delete", "projects:create", "projects:delete"}
	return env.store.addUser(directory.User{
		ID:        10,
		Username:  "alice",
		Email:     "alice@x.com",
		FirstName: "Alice",
		RoleID:    &roleID,
		IsActive:  true,
		IsStaff:   true,
	}, "Secret123")
}

func (env *testEnv) login(email, password string, remember bool) *LoginResponse {
	resp, err := env.service.Authenticate(context.Background(), LoginDTO{Email: email, Password: password, RememberMe: remember})
	if err != nil {
		panic(err)
	}
	return resp
}

var directoryUserWithoutRole = directory.User{ID: 50, Username: "norole", Email: "norole@x.com", IsActive: true}
