package authgate

import (
	"context"
	"time"
)

/*
====================================
ACCOUNT TYPES
====================================
*/

// AccountStatus defines a public type used by authgate APIs.
//
// AccountStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccountStatus string

const (
	// AccountActive is an exported constant or variable used by the authentication engine.
	AccountActive AccountStatus = "active"
	// AccountDisabled is an exported constant or variable used by the authentication engine.
	AccountDisabled AccountStatus = "disabled"
	// AccountLockedStatus is an exported constant or variable used by the authentication engine.
	AccountLockedStatus AccountStatus = "locked"
	// AccountDeactivated is an exported constant or variable used by the authentication engine.
	AccountDeactivated AccountStatus = "deactivated"
)

// UserRecord defines a public type used by authgate APIs.
//
// UserRecord instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type UserRecord struct {
	ID           string
	Identifier   string
	PasswordHash string
	Status       AccountStatus
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// TOTPRecord defines a public type used by authgate APIs.
//
// SealedSecret holds the authenticator secret encrypted with the engine's
// secret cipher; the plaintext secret never reaches durable storage.
// LastUsedCounter is the highest time-step counter a code has been accepted
// for and is advanced with compare-and-swap semantics by the provider.
type TOTPRecord struct {
	UserID          string
	SealedSecret    []byte
	Confirmed       bool
	Enabled         bool
	LastUsedCounter int64
	CreatedAt       time.Time
}

// BackupCodeRecord defines a public type used by authgate APIs.
//
// Each code carries its own random salt; Hash is the argon2id digest of
// salt-prefixed plaintext. Used codes stay in storage for audit purposes.
type BackupCodeRecord struct {
	ID     string
	UserID string
	Salt   []byte
	Hash   string
	Used   bool
	UsedAt time.Time
}

/*
====================================
USER PROVIDER
====================================
*/

// UserProvider defines a public type used by authgate APIs.
//
// Implementations back the engine with durable account state. Every method
// takes a context and returns explicit errors; the engine maps provider
// errors onto its own sentinel set where the distinction matters.
//
// Lookup methods must return ErrUserNotFound (or an error wrapping it) when
// no account matches. MarkBackupCodeUsed and AdvanceTOTPCounter must be
// atomic: concurrent callers racing on the same record see exactly one
// winner.
type UserProvider interface {
	// GetUserByIdentifier resolves a login identifier (email, username) to a record.
	GetUserByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)
	// GetUserByID resolves a user id to a record.
	GetUserByID(ctx context.Context, userID string) (*UserRecord, error)
	// CreateUser persists a new account. ErrDuplicateIdentifier when taken.
	CreateUser(ctx context.Context, user *UserRecord) error
	// UpdatePasswordHash replaces the stored credential hash.
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	// UpdateAccountStatus transitions the account status.
	UpdateAccountStatus(ctx context.Context, userID string, status AccountStatus) error
	// StampLastLogin records a successful authentication time.
	StampLastLogin(ctx context.Context, userID string, at time.Time) error

	// GetTOTPRecord returns the user's TOTP state, ErrTOTPSetupNotFound when absent.
	GetTOTPRecord(ctx context.Context, userID string) (*TOTPRecord, error)
	// SaveTOTPRecord inserts or replaces the user's TOTP state.
	SaveTOTPRecord(ctx context.Context, rec *TOTPRecord) error
	// DeleteTOTPRecord removes TOTP state entirely. Idempotent.
	DeleteTOTPRecord(ctx context.Context, userID string) error
	// AdvanceTOTPCounter moves LastUsedCounter from prev to next.
	// Returns false without error when another caller advanced it first.
	AdvanceTOTPCounter(ctx context.Context, userID string, prev, next int64) (bool, error)

	// GetBackupCodes returns every backup code record for the user, used or not.
	GetBackupCodes(ctx context.Context, userID string) ([]BackupCodeRecord, error)
	// ReplaceBackupCodes atomically swaps the user's full backup code set.
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error
	// MarkBackupCodeUsed consumes one code. Returns false without error when
	// the code was already consumed by a concurrent caller.
	MarkBackupCodeUsed(ctx context.Context, userID, codeID string, at time.Time) (bool, error)
}

/*
====================================
OPERATION INPUTS AND RESULTS
====================================
*/

// TokenPair defines a public type used by authgate APIs.
//
// TokenPair instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	AccessExpiry time.Time
}

// MFAType defines a public type used by authgate APIs.
//
// MFAType instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MFAType string

const (
	// MFATypeTOTP is an exported constant or variable used by the authentication engine.
	MFATypeTOTP MFAType = "totp"
	// MFATypeBackupCode is an exported constant or variable used by the authentication engine.
	MFATypeBackupCode MFAType = "backup_code"
)

// LoginResult defines a public type used by authgate APIs.
//
// When MFARequired is true the password check succeeded but token issuance is
// deferred: Tokens is nil and MFASession carries the opaque challenge id to
// pass to ConfirmLoginMFA. Otherwise Tokens is populated and MFASession is
// empty.
type LoginResult struct {
	UserID      string
	MFARequired bool
	MFASession  string
	Tokens      *TokenPair
}

// CreateAccountRequest defines a public type used by authgate APIs.
//
// CreateAccountRequest instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CreateAccountRequest struct {
	Identifier string
	Password   string
	Roles      []string
}

// CreateAccountResult defines a public type used by authgate APIs.
//
// CreateAccountResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CreateAccountResult struct {
	UserID string
	Tokens *TokenPair
}

// AuthResult defines a public type used by authgate APIs.
//
// AuthResult is produced by Engine.Validate and carries the authenticated
// identity extracted from the access token plus the live session state.
// Permissions is populated only when RBAC.IncludePermissions is on.
type AuthResult struct {
	UserID      string
	SessionID   string
	TokenID     string
	Roles       []string
	Permissions []string
}

// TOTPSetup defines a public type used by authgate APIs.
//
// Secret and URI are returned exactly once at setup time; afterwards only the
// sealed form exists server side. Backup codes come later, from
// ConfirmTOTPSetup.
type TOTPSetup struct {
	Secret string
	URI    string
}
