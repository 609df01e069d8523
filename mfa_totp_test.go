package authgate

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func enableUserTOTP(t *testing.T, env *testEnv, userID string, cfg Config) (string, []string) {
	t.Helper()

	setup, err := env.engine.GenerateTOTPSetup(context.Background(), userID)
	if err != nil {
		t.Fatalf("GenerateTOTPSetup failed: %v", err)
	}
	if setup.Secret == "" {
		t.Fatal("expected non-empty setup secret")
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Fatalf("expected otpauth uri, got %s", setup.URI)
	}

	code := codeForNow(t, setup.Secret, cfg.TOTP)
	codes, err := env.engine.ConfirmTOTPSetup(context.Background(), userID, code)
	if err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}
	if len(codes) != cfg.TOTP.BackupCodeCount {
		t.Fatalf("expected %d backup codes, got %d", cfg.TOTP.BackupCodeCount, len(codes))
	}

	return setup.Secret, codes
}

func startMFALogin(t *testing.T, env *testEnv) *LoginResult {
	t.Helper()

	res, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !res.MFARequired || res.MFASession == "" {
		t.Fatalf("expected MFA challenge, got %+v", res)
	}
	if res.Tokens != nil {
		t.Fatal("expected no tokens before MFA confirmation")
	}
	return res
}

func TestTOTPSetupRequiresConfirmation(t *testing.T) {
	cfg := testConfig()
	env, done := newTestEngine(t, cfg)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")

	setup, err := env.engine.GenerateTOTPSetup(context.Background(), userID)
	if err != nil {
		t.Fatalf("GenerateTOTPSetup failed: %v", err)
	}

	// A pending, unconfirmed enrollment does not gate logins.
	res, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.MFARequired {
		t.Fatal("expected no MFA challenge before confirmation")
	}

	if _, err := env.engine.ConfirmTOTPSetup(context.Background(), userID, "000000"); !errors.Is(err, ErrTOTPInvalidCode) {
		t.Fatalf("expected ErrTOTPInvalidCode for wrong confirmation code, got %v", err)
	}

	// A failed confirmation burns the pending secret.
	code := codeForNow(t, setup.Secret, cfg.TOTP)
	if _, err := env.engine.ConfirmTOTPSetup(context.Background(), userID, code); !errors.Is(err, ErrTOTPSetupNotFound) {
		t.Fatalf("expected ErrTOTPSetupNotFound after failed confirmation, got %v", err)
	}

	// A fresh enrollment confirms cleanly and mints the backup set.
	setup, err = env.engine.GenerateTOTPSetup(context.Background(), userID)
	if err != nil {
		t.Fatalf("GenerateTOTPSetup retry failed: %v", err)
	}
	codes, err := env.engine.ConfirmTOTPSetup(context.Background(), userID, codeForNow(t, setup.Secret, cfg.TOTP))
	if err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}
	if len(codes) != cfg.TOTP.BackupCodeCount {
		t.Fatalf("expected %d backup codes at confirmation, got %d", cfg.TOTP.BackupCodeCount, len(codes))
	}

	// Regenerating after activation is rejected.
	if _, err := env.engine.GenerateTOTPSetup(context.Background(), userID); !errors.Is(err, ErrTOTPAlreadyEnabled) {
		t.Fatalf("expected ErrTOTPAlreadyEnabled, got %v", err)
	}
}

func TestMFALoginWithTOTPCode(t *testing.T) {
	cfg := testConfig()
	env, done := newTestEngine(t, cfg)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	secret, _ := enableUserTOTP(t, env, userID, cfg)

	challenge := startMFALogin(t, env)

	code := codeForOffset(t, secret, cfg.TOTP, 1)
	confirmed, err := env.engine.ConfirmLoginMFA(context.Background(), challenge.MFASession, code, MFATypeTOTP)
	if err != nil {
		t.Fatalf("ConfirmLoginMFA failed: %v", err)
	}
	if confirmed.Tokens == nil || confirmed.Tokens.AccessToken == "" {
		t.Fatal("expected tokens after MFA confirmation")
	}

	// The challenge is single use.
	if _, err := env.engine.ConfirmLoginMFA(context.Background(), challenge.MFASession, code, MFATypeTOTP); !errors.Is(err, ErrMFALoginNotFound) {
		t.Fatalf("expected ErrMFALoginNotFound for consumed challenge, got %v", err)
	}
}

func TestMFALoginTOTPReplayRejected(t *testing.T) {
	cfg := testConfig()
	env, done := newTestEngine(t, cfg)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	secret, _ := enableUserTOTP(t, env, userID, cfg)

	first := startMFALogin(t, env)
	code := codeForOffset(t, secret, cfg.TOTP, 1)
	if _, err := env.engine.ConfirmLoginMFA(context.Background(), first.MFASession, code, MFATypeTOTP); err != nil {
		t.Fatalf("ConfirmLoginMFA failed: %v", err)
	}

	// The same code in a fresh challenge is at or below the stored replay
	// floor and must be refused.
	second := startMFALogin(t, env)
	if _, err := env.engine.ConfirmLoginMFA(context.Background(), second.MFASession, code, MFATypeTOTP); !errors.Is(err, ErrTOTPReplayed) {
		t.Fatalf("expected ErrTOTPReplayed, got %v", err)
	}
}

func TestMFALoginAttemptBudget(t *testing.T) {
	cfg := testConfig()
	cfg.TOTP.MFALoginMaxAttempts = 2
	env, done := newTestEngine(t, cfg)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	enableUserTOTP(t, env, userID, cfg)

	challenge := startMFALogin(t, env)

	if _, err := env.engine.ConfirmLoginMFA(context.Background(), challenge.MFASession, "000000", MFATypeTOTP); !errors.Is(err, ErrTOTPInvalidCode) {
		t.Fatalf("expected ErrTOTPInvalidCode on first attempt, got %v", err)
	}
	if _, err := env.engine.ConfirmLoginMFA(context.Background(), challenge.MFASession, "000000", MFATypeTOTP); !errors.Is(err, ErrMFALoginAttemptsExceeded) {
		t.Fatalf("expected ErrMFALoginAttemptsExceeded, got %v", err)
	}

	// The exhausted challenge is gone; the user must log in again.
	if _, err := env.engine.ConfirmLoginMFA(context.Background(), challenge.MFASession, "000000", MFATypeTOTP); !errors.Is(err, ErrMFALoginNotFound) {
		t.Fatalf("expected ErrMFALoginNotFound after teardown, got %v", err)
	}
}

func TestMFALoginChallengeExpires(t *testing.T) {
	cfg := testConfig()
	env, done := newTestEngine(t, cfg)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	secret, _ := enableUserTOTP(t, env, userID, cfg)

	challenge := startMFALogin(t, env)
	env.mini.FastForward(cfg.TOTP.MFALoginChallengeTTL * 2)

	code := codeForOffset(t, secret, cfg.TOTP, 1)
	if _, err := env.engine.ConfirmLoginMFA(context.Background(), challenge.MFASession, code, MFATypeTOTP); !errors.Is(err, ErrMFALoginNotFound) && !errors.Is(err, ErrMFALoginExpired) {
		t.Fatalf("expected expired or missing challenge, got %v", err)
	}
}

func TestBackupCodeSingleUse(t *testing.T) {
	cfg := testConfig()
	env, done := newTestEngine(t, cfg)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	_, codes := enableUserTOTP(t, env, userID, cfg)

	challenge := startMFALogin(t, env)
	confirmed, err := env.engine.ConfirmLoginMFA(context.Background(), challenge.MFASession, codes[0], MFATypeBackupCode)
	if err != nil {
		t.Fatalf("ConfirmLoginMFA with backup code failed: %v", err)
	}
	if confirmed.Tokens == nil {
		t.Fatal("expected tokens after backup code login")
	}

	remaining, err := env.engine.BackupCodesRemaining(context.Background(), userID)
	if err != nil {
		t.Fatalf("BackupCodesRemaining failed: %v", err)
	}
	if remaining != cfg.TOTP.BackupCodeCount-1 {
		t.Fatalf("expected %d codes remaining, got %d", cfg.TOTP.BackupCodeCount-1, remaining)
	}

	// A consumed code never authenticates again.
	second := startMFALogin(t, env)
	if _, err := env.engine.ConfirmLoginMFA(context.Background(), second.MFASession, codes[0], MFATypeBackupCode); !errors.Is(err, ErrBackupCodeInvalid) {
		t.Fatalf("expected ErrBackupCodeInvalid for reused code, got %v", err)
	}
}

func TestBackupCodeAcceptedOnAuthenticatorPath(t *testing.T) {
	cfg := testConfig()
	env, done := newTestEngine(t, cfg)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	_, codes := enableUserTOTP(t, env, userID, cfg)

	// A user who lost the authenticator types a backup code into the
	// regular code prompt; it still authenticates and is consumed.
	challenge := startMFALogin(t, env)
	confirmed, err := env.engine.ConfirmLoginMFA(context.Background(), challenge.MFASession, codes[0], MFATypeTOTP)
	if err != nil {
		t.Fatalf("ConfirmLoginMFA with backup code on totp path failed: %v", err)
	}
	if confirmed.Tokens == nil || confirmed.Tokens.AccessToken == "" {
		t.Fatal("expected tokens after backup code fallback")
	}

	remaining, err := env.engine.BackupCodesRemaining(context.Background(), userID)
	if err != nil {
		t.Fatalf("BackupCodesRemaining failed: %v", err)
	}
	if remaining != cfg.TOTP.BackupCodeCount-1 {
		t.Fatalf("expected fallback to consume the code, %d remaining", remaining)
	}

	second := startMFALogin(t, env)
	if _, err := env.engine.ConfirmLoginMFA(context.Background(), second.MFASession, codes[0], MFATypeTOTP); !errors.Is(err, ErrTOTPInvalidCode) {
		t.Fatalf("expected ErrTOTPInvalidCode for reused fallback code, got %v", err)
	}
}

func TestBackupCodeRegenerateInvalidatesOldSet(t *testing.T) {
	cfg := testConfig()
	env, done := newTestEngine(t, cfg)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	secret, oldCodes := enableUserTOTP(t, env, userID, cfg)

	newCodes, err := env.engine.RegenerateBackupCodes(context.Background(), userID, codeForOffset(t, secret, cfg.TOTP, 1))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(newCodes) != cfg.TOTP.BackupCodeCount {
		t.Fatalf("expected %d new codes, got %d", cfg.TOTP.BackupCodeCount, len(newCodes))
	}

	challenge := startMFALogin(t, env)
	if _, err := env.engine.ConfirmLoginMFA(context.Background(), challenge.MFASession, oldCodes[0], MFATypeBackupCode); !errors.Is(err, ErrBackupCodeInvalid) {
		t.Fatalf("expected ErrBackupCodeInvalid for code from replaced set, got %v", err)
	}

	next := startMFALogin(t, env)
	if _, err := env.engine.ConfirmLoginMFA(context.Background(), next.MFASession, newCodes[0], MFATypeBackupCode); err != nil {
		t.Fatalf("expected new backup code to work, got %v", err)
	}
}

func TestDisableTOTPRestoresPasswordOnlyLogin(t *testing.T) {
	cfg := testConfig()
	env, done := newTestEngine(t, cfg)
	defer done()

	userID := createTestUser(t, env, "alice@example.com", "correct-password-123")
	secret, _ := enableUserTOTP(t, env, userID, cfg)

	if err := env.engine.DisableTOTP(context.Background(), userID, "000000"); !errors.Is(err, ErrTOTPInvalidCode) {
		t.Fatalf("expected ErrTOTPInvalidCode for wrong disable code, got %v", err)
	}

	if err := env.engine.DisableTOTP(context.Background(), userID, codeForOffset(t, secret, cfg.TOTP, 1)); err != nil {
		t.Fatalf("DisableTOTP failed: %v", err)
	}

	res, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login after disable failed: %v", err)
	}
	if res.MFARequired {
		t.Fatal("expected no MFA challenge after disable")
	}
	if remaining, _ := env.engine.BackupCodesRemaining(context.Background(), userID); remaining != 0 {
		t.Fatalf("expected backup codes cleared on disable, got %d", remaining)
	}
}
