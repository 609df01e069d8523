package authgate

import "errors"

/*
====================================
CREDENTIAL + ACCOUNT ERRORS
====================================
*/

var (
	// ErrInvalidCredentials is an exported constant or variable used by the authentication engine.
	//
	// It is returned for unknown identifiers and for wrong passwords alike so
	// callers cannot distinguish the two cases.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is an exported constant or variable used by the authentication engine.
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountDisabled is an exported constant or variable used by the authentication engine.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrAccountDeactivated is an exported constant or variable used by the authentication engine.
	ErrAccountDeactivated = errors.New("account deactivated")

	// ErrDuplicateIdentifier is an exported constant or variable used by the authentication engine.
	ErrDuplicateIdentifier = errors.New("identifier already registered")

	// ErrPasswordReuse is an exported constant or variable used by the authentication engine.
	ErrPasswordReuse = errors.New("new password must differ from the current password")

	// ErrWeakPassword is an exported constant or variable used by the authentication engine.
	//
	// It is returned when a proposed password is shorter than the configured
	// minimum, so callers can surface a policy message instead of a generic
	// credential failure.
	ErrWeakPassword = errors.New("password does not meet the minimum length policy")

	// ErrUserNotFound is an exported constant or variable used by the authentication engine.
	ErrUserNotFound = errors.New("user not found")
)

/*
====================================
TOKEN + SESSION ERRORS
====================================
*/

var (
	// ErrTokenInvalid is an exported constant or variable used by the authentication engine.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired is an exported constant or variable used by the authentication engine.
	ErrTokenExpired = errors.New("token expired")

	// ErrSessionNotFound is an exported constant or variable used by the authentication engine.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionCreationFailed is an exported constant or variable used by the authentication engine.
	//
	// It surfaces only after every bounded attempt to claim a fresh session
	// identifier lost to an existing key, which should never happen outside of
	// a broken random source.
	ErrSessionCreationFailed = errors.New("session creation failed")

	// ErrRefreshInvalid is an exported constant or variable used by the authentication engine.
	ErrRefreshInvalid = errors.New("refresh token invalid")

	// ErrRefreshReuseDetected is an exported constant or variable used by the authentication engine.
	//
	// The session behind the replayed token is destroyed before this error is
	// returned.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")
)

/*
====================================
MFA ERRORS
====================================
*/

var (
	// ErrMFARequired is an exported constant or variable used by the authentication engine.
	ErrMFARequired = errors.New("mfa confirmation required")

	// ErrMFALoginNotFound is an exported constant or variable used by the authentication engine.
	ErrMFALoginNotFound = errors.New("mfa login challenge not found")

	// ErrMFALoginExpired is an exported constant or variable used by the authentication engine.
	ErrMFALoginExpired = errors.New("mfa login challenge expired")

	// ErrMFALoginAttemptsExceeded is an exported constant or variable used by the authentication engine.
	ErrMFALoginAttemptsExceeded = errors.New("mfa login attempts exceeded")

	// ErrTOTPNotEnabled is an exported constant or variable used by the authentication engine.
	ErrTOTPNotEnabled = errors.New("totp not enabled")

	// ErrTOTPAlreadyEnabled is an exported constant or variable used by the authentication engine.
	ErrTOTPAlreadyEnabled = errors.New("totp already enabled")

	// ErrTOTPSetupNotFound is an exported constant or variable used by the authentication engine.
	ErrTOTPSetupNotFound = errors.New("totp setup not found")

	// ErrTOTPInvalidCode is an exported constant or variable used by the authentication engine.
	ErrTOTPInvalidCode = errors.New("invalid totp code")

	// ErrTOTPReplayed is an exported constant or variable used by the authentication engine.
	ErrTOTPReplayed = errors.New("totp code already used")

	// ErrBackupCodeInvalid is an exported constant or variable used by the authentication engine.
	ErrBackupCodeInvalid = errors.New("invalid backup code")

	// ErrBackupCodesExhausted is an exported constant or variable used by the authentication engine.
	ErrBackupCodesExhausted = errors.New("no backup codes remaining")
)

/*
====================================
AUTHORIZATION + INFRASTRUCTURE ERRORS
====================================
*/

var (
	// ErrPermissionDenied is an exported constant or variable used by the authentication engine.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrRoleDenied is an exported constant or variable used by the authentication engine.
	ErrRoleDenied = errors.New("role requirement not satisfied")

	// ErrEngineNotReady is an exported constant or variable used by the authentication engine.
	ErrEngineNotReady = errors.New("engine not fully configured")

	// ErrProviderUnavailable is an exported constant or variable used by the authentication engine.
	ErrProviderUnavailable = errors.New("user provider unavailable")

	// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
