package authgate

import (
	"context"
	"errors"
	"testing"
)

func TestCreateAccountAssignsDefaultRole(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	res, err := env.engine.CreateAccount(context.Background(), CreateAccountRequest{
		Identifier: "alice@example.com",
		Password:   "correct-password-123",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if res.UserID == "" {
		t.Fatal("expected a user id")
	}
	if res.Tokens != nil {
		t.Fatal("expected no tokens without AutoLogin")
	}

	grants, err := env.directory.UserGrants(context.Background(), res.UserID)
	if err != nil {
		t.Fatalf("UserGrants failed: %v", err)
	}
	if len(grants) != 1 || grants[0].Role != "user" {
		t.Fatalf("expected default role grant, got %v", grants)
	}
}

func TestCreateAccountDuplicateIdentifier(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	createTestUser(t, env, "alice@example.com", "correct-password-123")

	_, err := env.engine.CreateAccount(context.Background(), CreateAccountRequest{
		Identifier: "alice@example.com",
		Password:   "another-password-456",
	})
	if !errors.Is(err, ErrDuplicateIdentifier) {
		t.Fatalf("expected ErrDuplicateIdentifier, got %v", err)
	}
}

func TestCreateAccountRejectsShortPassword(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	_, err := env.engine.CreateAccount(context.Background(), CreateAccountRequest{
		Identifier: "alice@example.com",
		Password:   "short",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword for short password, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("policy rejection must stay distinct from a credential failure")
	}
}

func TestCreateAccountAutoLogin(t *testing.T) {
	cfg := testConfig()
	cfg.Account.AutoLogin = true
	env, done := newTestEngine(t, cfg)
	defer done()

	res, err := env.engine.CreateAccount(context.Background(), CreateAccountRequest{
		Identifier: "alice@example.com",
		Password:   "correct-password-123",
	})
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if res.Tokens == nil || res.Tokens.AccessToken == "" {
		t.Fatal("expected tokens with AutoLogin enabled")
	}
	if _, err := env.engine.Validate(context.Background(), res.Tokens.AccessToken); err != nil {
		t.Fatalf("Validate of auto-login token failed: %v", err)
	}
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	res, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.ChangePassword(context.Background(), userID, "correct-password-123", "brand-new-password-789"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// Old credentials stop working and live sessions are revoked.
	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for old password, got %v", err)
	}
	if _, err := env.engine.Validate(context.Background(), res.Tokens.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after password change, got %v", err)
	}
	if _, err := env.engine.Login(context.Background(), "alice@example.com", "brand-new-password-789"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestChangePasswordRejectsWrongOldAndReuse(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")

	if err := env.engine.ChangePassword(context.Background(), userID, "wrong-password-456", "brand-new-password-789"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong old password, got %v", err)
	}
	if err := env.engine.ChangePassword(context.Background(), userID, "correct-password-123", "correct-password-123"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
	if err := env.engine.ChangePassword(context.Background(), userID, "correct-password-123", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword for short new password, got %v", err)
	}
}

func TestAccountStatusTransitions(t *testing.T) {
	env, done := newTestEngine(t, testConfig())
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	res, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.DeactivateAccount(context.Background(), userID); err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}

	// Deactivation revokes live sessions and blocks new logins.
	if _, err := env.engine.Validate(context.Background(), res.Tokens.AccessToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after deactivation, got %v", err)
	}
	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123"); !errors.Is(err, ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}

	if err := env.engine.EnableAccount(context.Background(), userID); err != nil {
		t.Fatalf("EnableAccount failed: %v", err)
	}
	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("expected login after re-enable, got %v", err)
	}

	if err := env.engine.LockAccount(context.Background(), userID); err != nil {
		t.Fatalf("LockAccount failed: %v", err)
	}
	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	if err := env.engine.DisableAccount(context.Background(), "no-such-user"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
