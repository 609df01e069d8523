package authgate

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/venrik/authgate/rbac"
	"github.com/venrik/authgate/session"
)

/*
====================================
TEST FIXTURES
====================================
*/

var testEdPublicKey, testEdPrivateKey, _ = ed25519.GenerateKey(rand.Reader)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = testEdPrivateKey
	cfg.JWT.PublicKey = testEdPublicKey
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.SaltLength = 16
	cfg.Password.KeyLength = 16
	cfg.TOTP.SecretSealKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Enabled = false
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

type memoryProvider struct {
	mu          sync.Mutex
	users       map[string]*UserRecord
	byIdent     map[string]string
	totp        map[string]*TOTPRecord
	backupCodes map[string][]BackupCodeRecord
}

func newMemoryProvider() *memoryProvider {
	return &memoryProvider{
		users:       make(map[string]*UserRecord),
		byIdent:     make(map[string]string),
		totp:        make(map[string]*TOTPRecord),
		backupCodes: make(map[string][]BackupCodeRecord),
	}
}

func (p *memoryProvider) GetUserByIdentifier(_ context.Context, identifier string) (*UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byIdent[identifier]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *p.users[id]
	return &out, nil
}

func (p *memoryProvider) GetUserByID(_ context.Context, userID string) (*UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (p *memoryProvider) CreateUser(_ context.Context, user *UserRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byIdent[user.Identifier]; exists {
		return ErrDuplicateIdentifier
	}
	clone := *user
	p.users[user.ID] = &clone
	p.byIdent[user.Identifier] = user.ID
	return nil
}

func (p *memoryProvider) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = hash
	return nil
}

func (p *memoryProvider) UpdateAccountStatus(_ context.Context, userID string, status AccountStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.Status = status
	return nil
}

func (p *memoryProvider) StampLastLogin(_ context.Context, userID string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if user, ok := p.users[userID]; ok {
		user.LastLoginAt = at
	}
	return nil
}

func (p *memoryProvider) GetTOTPRecord(_ context.Context, userID string) (*TOTPRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.totp[userID]
	if !ok {
		return nil, ErrTOTPSetupNotFound
	}
	out := *rec
	return &out, nil
}

func (p *memoryProvider) SaveTOTPRecord(_ context.Context, rec *TOTPRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := *rec
	p.totp[rec.UserID] = &clone
	return nil
}

func (p *memoryProvider) DeleteTOTPRecord(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.totp, userID)
	return nil
}

func (p *memoryProvider) AdvanceTOTPCounter(_ context.Context, userID string, prev, next int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.totp[userID]
	if !ok || rec.LastUsedCounter != prev {
		return false, nil
	}
	rec.LastUsedCounter = next
	return true, nil
}

func (p *memoryProvider) GetBackupCodes(_ context.Context, userID string) ([]BackupCodeRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]BackupCodeRecord, len(p.backupCodes[userID]))
	copy(out, p.backupCodes[userID])
	return out, nil
}

func (p *memoryProvider) ReplaceBackupCodes(_ context.Context, userID string, codes []BackupCodeRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := make([]BackupCodeRecord, len(codes))
	copy(next, codes)
	p.backupCodes[userID] = next
	return nil
}

func (p *memoryProvider) MarkBackupCodeUsed(_ context.Context, userID, codeID string, at time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	codes := p.backupCodes[userID]
	for i := range codes {
		if codes[i].ID == codeID && !codes[i].Used {
			codes[i].Used = true
			codes[i].UsedAt = at
			return true, nil
		}
	}
	return false, nil
}

type memoryDirectory struct {
	mu       sync.Mutex
	roles    map[string]rbac.Role
	perms    map[string]rbac.Permission
	rolePerm map[string][]string
	grants   map[string][]rbac.Grant
}

func newMemoryDirectory() *memoryDirectory {
	d := &memoryDirectory{
		roles:    make(map[string]rbac.Role),
		perms:    make(map[string]rbac.Permission),
		rolePerm: make(map[string][]string),
		grants:   make(map[string][]rbac.Grant),
	}
	for _, perm := range rbac.DefaultPermissions() {
		d.perms[perm.Name] = perm
	}
	for role, permNames := range rbac.DefaultRoles() {
		d.roles[role.Name] = role
		d.rolePerm[role.Name] = append([]string(nil), permNames...)
	}
	return d
}

func (d *memoryDirectory) ListRoles(context.Context) ([]rbac.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]rbac.Role, 0, len(d.roles))
	for _, role := range d.roles {
		out = append(out, role)
	}
	return out, nil
}

func (d *memoryDirectory) ListPermissions(context.Context) ([]rbac.Permission, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]rbac.Permission, 0, len(d.perms))
	for _, perm := range d.perms {
		out = append(out, perm)
	}
	return out, nil
}

func (d *memoryDirectory) CreateRole(_ context.Context, role rbac.Role) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.roles[role.Name] = role
	return nil
}

func (d *memoryDirectory) DeleteRole(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if role, ok := d.roles[name]; ok && role.System {
		return rbac.ErrSystemRoleImmutable
	}
	delete(d.roles, name)
	delete(d.rolePerm, name)
	return nil
}

func (d *memoryDirectory) RolePermissions(_ context.Context, roleName string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.rolePerm[roleName]...), nil
}

func (d *memoryDirectory) GrantPermission(_ context.Context, roleName, permission, _ string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.rolePerm[roleName] {
		if existing == permission {
			return false, nil
		}
	}
	d.rolePerm[roleName] = append(d.rolePerm[roleName], permission)
	return true, nil
}

func (d *memoryDirectory) RevokePermission(_ context.Context, roleName, permission string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	perms := d.rolePerm[roleName]
	for i, existing := range perms {
		if existing == permission {
			d.rolePerm[roleName] = append(perms[:i], perms[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (d *memoryDirectory) UserGrants(_ context.Context, userID string) ([]rbac.Grant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]rbac.Grant(nil), d.grants[userID]...), nil
}

func (d *memoryDirectory) AssignRole(_ context.Context, userID, roleName, grantedBy string, expiresAt *time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.roles[roleName]; !ok {
		return false, rbac.ErrRoleNotFound
	}
	now := time.Now()
	for i, grant := range d.grants[userID] {
		if grant.Role != roleName {
			continue
		}
		if !grant.Expired(now) {
			return false, nil
		}
		d.grants[userID][i] = rbac.Grant{Role: roleName, GrantedBy: grantedBy, GrantedAt: now, ExpiresAt: expiresAt}
		return true, nil
	}
	d.grants[userID] = append(d.grants[userID], rbac.Grant{
		Role:      roleName,
		GrantedBy: grantedBy,
		GrantedAt: now,
		ExpiresAt: expiresAt,
	})
	return true, nil
}

func (d *memoryDirectory) RevokeRole(_ context.Context, userID, roleName string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	grants := d.grants[userID]
	for i, grant := range grants {
		if grant.Role == roleName {
			d.grants[userID] = append(grants[:i], grants[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type testEnv struct {
	engine    *Engine
	provider  *memoryProvider
	directory *memoryDirectory
	redis     *redis.Client
	mini      *miniredis.Miniredis
}

func newTestEngine(t *testing.T, cfg Config) (*testEnv, func()) {
	t.Helper()
	return newTestEngineWithSink(t, cfg, nil)
}

func newTestEngineWithSink(t *testing.T, cfg Config, sink AuditSink) (*testEnv, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	provider := newMemoryProvider()
	directory := newMemoryDirectory()

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(provider).
		WithDirectory(directory)
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	env := &testEnv{
		engine:    engine,
		provider:  provider,
		directory: directory,
		redis:     rdb,
		mini:      mr,
	}
	return env, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func createTestUser(t *testing.T, env *testEnv, identifier, pass string) string {
	t.Helper()

	res, err := env.engine.CreateAccount(context.Background(), CreateAccountRequest{
		Identifier: identifier,
		Password:   pass,
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	return res.UserID
}

func codeForOffset(t *testing.T, secretBase32 string, cfg TOTPConfig, offset int64) string {
	t.Helper()

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secretBase32))
	if err != nil {
		t.Fatalf("decode secret failed: %v", err)
	}
	counter := (time.Now().Unix() / int64(cfg.Period)) + offset
	code, err := hotpCode(key, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

func codeForNow(t *testing.T, secretBase32 string, cfg TOTPConfig) string {
	t.Helper()
	return codeForOffset(t, secretBase32, cfg, 0)
}

/*
====================================
CORE LOGIN / VALIDATE
====================================
*/

func TestLoginSuccessIssuesTokens(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")

	res, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.MFARequired {
		t.Fatal("expected no MFA challenge")
	}
	if res.Tokens == nil || res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}
	if res.UserID != userID {
		t.Fatalf("expected user %s, got %s", userID, res.UserID)
	}
}

func TestLoginWrongPasswordAndUnknownUser(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	createTestUser(t, env, "alice@example.com", "correct-password-123")

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "wrong-password-456"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	// Unknown identifiers produce the same error as wrong passwords.
	if _, err := env.engine.Login(context.Background(), "nobody@example.com", "whatever-password"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	if _, err := env.engine.Login(context.Background(), "alice@example.com", ""); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for empty password, got %v", err)
	}
}

func TestLoginDisabledAccountRejected(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	if err := env.engine.DisableAccount(context.Background(), userID); err != nil {
		t.Fatalf("DisableAccount failed: %v", err)
	}

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123"); err != ErrAccountDisabled {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestValidateReturnsSessionState(t *testing.T) {
	cfg := testConfig()
	cfg.RBAC.IncludePermissions = true
	env, done := newTestEngine(t, cfg)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")

	res, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	auth, err := env.engine.Validate(context.Background(), res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if auth.UserID != userID {
		t.Fatalf("expected user %s, got %s", userID, auth.UserID)
	}
	if auth.SessionID != res.Tokens.SessionID {
		t.Fatal("expected session id to round-trip through claims")
	}
	if len(auth.Roles) == 0 || auth.Roles[0] != "user" {
		t.Fatalf("expected default role in session, got %v", auth.Roles)
	}
	if len(auth.Permissions) == 0 {
		t.Fatal("expected effective permissions when IncludePermissions is set")
	}
}

func TestValidateAfterLogoutFailsImmediately(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	createTestUser(t, env, "alice@example.com", "correct-password-123")

	res, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.Logout(context.Background(), res.Tokens.SessionID); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := env.engine.Validate(context.Background(), res.Tokens.AccessToken); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound after logout, got %v", err)
	}
}

func TestValidateGarbageTokenRejected(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	if _, err := env.engine.Validate(context.Background(), "not-a-jwt"); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestValidateExpiredTokenDistinctFromInvalid(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.AccessTTL = time.Millisecond
	cfg.JWT.Leeway = 0
	env, done := newTestEngine(t, cfg)
	defer done()

	createTestUser(t, env, "alice@example.com", "correct-password-123")

	res, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	_, err = env.engine.Validate(context.Background(), res.Tokens.AccessToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for an outlived token, got %v", err)
	}
	if errors.Is(err, ErrTokenInvalid) {
		t.Fatal("expiry must not be reported as a malformed token")
	}
}

// collidingSessionStore reports every session id as already taken.
type collidingSessionStore struct {
	sessionBackend
}

func (collidingSessionStore) Save(context.Context, *session.Session, time.Duration) error {
	return session.ErrSessionExists
}

func TestLoginFailsWhenSessionIDSpaceExhausted(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	createTestUser(t, env, "alice@example.com", "correct-password-123")
	env.engine.sessionStore = collidingSessionStore{env.engine.sessionStore}

	_, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if !errors.Is(err, ErrSessionCreationFailed) {
		t.Fatalf("expected ErrSessionCreationFailed after exhausting create attempts, got %v", err)
	}
}
