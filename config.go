package authgate

import (
	"errors"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config defines a public type used by authgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	Password PasswordConfig
	Lockout  LockoutConfig
	TOTP     TOTPConfig
	Account  AccountConfig
	RBAC     RBACConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Database DatabaseConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by authgate APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by authgate APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix       string
	SlidingExpiration bool
	JitterEnabled     bool
	JitterRange       time.Duration
	CreateMaxAttempts int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by authgate APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by authgate APIs.
//
// MaxFailures counts consecutive failed password checks inside Window; the
// counter resets on any successful login. When the threshold is crossed the
// account transitions to the locked status for Duration.
type LockoutConfig struct {
	Enabled     bool
	MaxFailures int
	Window      time.Duration
	Duration    time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig defines a public type used by authgate APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TOTPConfig struct {
	Issuer               string
	Digits               int
	Period               int
	Algorithm            string
	Skew                 int
	SecretSealKey        []byte
	MFALoginChallengeTTL time.Duration
	MFALoginMaxAttempts  int
	BackupCodeCount      int
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig defines a public type used by authgate APIs.
//
// AccountConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccountConfig struct {
	DefaultRole       string
	MinPasswordLength int
	AutoLogin         bool
}

/*
====================================
RBAC CONFIG
====================================
*/

// RBACConfig defines a public type used by authgate APIs.
//
// RBACConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RBACConfig struct {
	CacheTTL           time.Duration
	IncludePermissions bool
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by authgate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by authgate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DATABASE CONFIG
====================================
*/

// DatabaseConfig defines a public type used by authgate APIs.
//
// DatabaseConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type DatabaseConfig struct {
	DSN             string
	MaxConnections  int
	MinConnections  int
	ConnMaxLifetime time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration used by [New]. Callers
// adjust fields and pass the result to Builder.WithConfig.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "authgate",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:       "as",
			SlidingExpiration: false,
			JitterEnabled:     true,
			JitterRange:       30 * time.Second,
			CreateMaxAttempts: 3,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			Enabled:     true,
			MaxFailures: 5,
			Window:      15 * time.Minute,
			Duration:    15 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:               "authgate",
			Digits:               6,
			Period:               30,
			Algorithm:            "SHA1",
			Skew:                 1,
			MFALoginChallengeTTL: 3 * time.Minute,
			MFALoginMaxAttempts:  5,
			BackupCodeCount:      10,
		},
		Account: AccountConfig{
			DefaultRole:       "user",
			MinPasswordLength: 10,
			AutoLogin:         false,
		},
		RBAC: RBACConfig{
			CacheTTL:           30 * time.Second,
			IncludePermissions: false,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Database: DatabaseConfig{
			MaxConnections:  25,
			MinConnections:  5,
			ConnMaxLifetime: 30 * time.Minute,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.TOTP.SecretSealKey = cloneBytes(cfg.TOTP.SecretSealKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && (len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0) {
		return errors.New("ed25519 requires PrivateKey and PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 requires PrivateKey of at least 32 bytes")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	// Session
	if c.Session.JitterRange < 0 {
		return errors.New("Session JitterRange must be >= 0")
	}
	if c.Session.JitterRange > time.Duration((math.MaxInt64-1)/2) {
		return errors.New("Session JitterRange is too large")
	}
	if c.Session.JitterEnabled && c.Session.JitterRange <= 0 {
		return errors.New("Session JitterRange must be > 0 when JitterEnabled is true")
	}
	if c.Session.CreateMaxAttempts <= 0 {
		return errors.New("Session CreateMaxAttempts must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Lockout
	if c.Lockout.Enabled {
		if c.Lockout.MaxFailures <= 0 {
			return errors.New("Lockout MaxFailures must be > 0")
		}
		if c.Lockout.Window <= 0 {
			return errors.New("Lockout Window must be > 0")
		}
		if c.Lockout.Duration <= 0 {
			return errors.New("Lockout Duration must be > 0")
		}
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period < 15 {
		return errors.New("TOTP Period must be >= 15 seconds")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must be >= 0")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// valid (empty treated as SHA1)
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}
	if c.TOTP.MFALoginChallengeTTL <= 0 {
		return errors.New("TOTP MFALoginChallengeTTL must be > 0")
	}
	if c.TOTP.MFALoginMaxAttempts <= 0 {
		return errors.New("TOTP MFALoginMaxAttempts must be > 0")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}

	// Account
	if c.Account.DefaultRole == "" {
		return errors.New("Account DefaultRole is required")
	}
	if c.Account.MinPasswordLength < 10 {
		return errors.New("Account MinPasswordLength must be >= 10")
	}
	if c.Account.AutoLogin && c.JWT.RefreshTTL <= 0 {
		return errors.New("Account AutoLogin requires refresh tokens to be enabled")
	}

	// RBAC
	if c.RBAC.CacheTTL < 0 {
		return errors.New("RBAC CacheTTL must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

/*
====================================
ENVIRONMENT LOADING
====================================
*/

// FromEnv describes the fromenv operation and its observable behavior.
//
// FromEnv may return an error when input validation, dependency calls, or security checks fail.
// FromEnv does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// It starts from the built-in defaults, loads a .env file when one exists in
// the working directory, and overrides individual fields from AUTHGATE_*
// variables. Unknown or empty variables leave the default untouched.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	var errs []error

	loadDuration := func(key string, dst *time.Duration) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, errors.New(key+": invalid duration"))
			return
		}
		*dst = d
	}
	loadInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, errors.New(key+": invalid integer"))
			return
		}
		*dst = n
	}
	loadBool := func(key string, dst *bool) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, errors.New(key+": invalid boolean"))
			return
		}
		*dst = b
	}
	loadString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	loadBytes := func(key string, dst *[]byte) {
		if v := os.Getenv(key); v != "" {
			*dst = []byte(v)
		}
	}

	loadDuration("AUTHGATE_JWT_ACCESS_TTL", &cfg.JWT.AccessTTL)
	loadDuration("AUTHGATE_JWT_REFRESH_TTL", &cfg.JWT.RefreshTTL)
	loadString("AUTHGATE_JWT_SIGNING_METHOD", &cfg.JWT.SigningMethod)
	loadBytes("AUTHGATE_JWT_PRIVATE_KEY", &cfg.JWT.PrivateKey)
	loadBytes("AUTHGATE_JWT_PUBLIC_KEY", &cfg.JWT.PublicKey)
	loadString("AUTHGATE_JWT_ISSUER", &cfg.JWT.Issuer)
	loadString("AUTHGATE_JWT_AUDIENCE", &cfg.JWT.Audience)

	loadString("AUTHGATE_SESSION_PREFIX", &cfg.Session.RedisPrefix)
	loadBool("AUTHGATE_SESSION_SLIDING", &cfg.Session.SlidingExpiration)

	loadBool("AUTHGATE_LOCKOUT_ENABLED", &cfg.Lockout.Enabled)
	loadInt("AUTHGATE_LOCKOUT_MAX_FAILURES", &cfg.Lockout.MaxFailures)
	loadDuration("AUTHGATE_LOCKOUT_WINDOW", &cfg.Lockout.Window)
	loadDuration("AUTHGATE_LOCKOUT_DURATION", &cfg.Lockout.Duration)

	loadString("AUTHGATE_TOTP_ISSUER", &cfg.TOTP.Issuer)
	loadInt("AUTHGATE_TOTP_DIGITS", &cfg.TOTP.Digits)
	loadInt("AUTHGATE_TOTP_PERIOD", &cfg.TOTP.Period)
	loadInt("AUTHGATE_TOTP_SKEW", &cfg.TOTP.Skew)
	loadBytes("AUTHGATE_TOTP_SEAL_KEY", &cfg.TOTP.SecretSealKey)
	loadInt("AUTHGATE_TOTP_BACKUP_CODES", &cfg.TOTP.BackupCodeCount)

	loadString("AUTHGATE_DEFAULT_ROLE", &cfg.Account.DefaultRole)
	loadInt("AUTHGATE_MIN_PASSWORD_LENGTH", &cfg.Account.MinPasswordLength)

	loadBool("AUTHGATE_AUDIT_ENABLED", &cfg.Audit.Enabled)
	loadInt("AUTHGATE_AUDIT_BUFFER", &cfg.Audit.BufferSize)

	loadBool("AUTHGATE_METRICS_ENABLED", &cfg.Metrics.Enabled)

	loadString("AUTHGATE_DATABASE_DSN", &cfg.Database.DSN)
	loadInt("AUTHGATE_DATABASE_MAX_CONNS", &cfg.Database.MaxConnections)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}
