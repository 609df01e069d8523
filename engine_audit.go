package authgate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess           = "login_success"
	auditEventLoginFailure           = "login_failure"
	auditEventAccountLockedOut       = "account_locked_out"
	auditEventRefreshSuccess         = "refresh_success"
	auditEventRefreshInvalid         = "refresh_invalid"
	auditEventRefreshReuseDetected   = "refresh_reuse_detected"
	auditEventPasswordChangeSuccess  = "password_change_success"
	auditEventPasswordChangeFailure  = "password_change_failure"
	auditEventAccountCreated         = "account_created"
	auditEventAccountCreationFailure = "account_creation_failure"
	auditEventAccountStatusChange    = "account_status_change"
	auditEventLogoutSession          = "logout_session"
	auditEventLogoutAll              = "logout_all"
	auditEventSessionSweep           = "session_sweep"
	auditEventTOTPSetupRequested     = "totp_setup_requested"
	auditEventTOTPEnabled            = "totp_enabled"
	auditEventTOTPDisabled           = "totp_disabled"
	auditEventMFARequired            = "mfa_required"
	auditEventMFASuccess             = "mfa_success"
	auditEventMFAFailure             = "mfa_failure"
	auditEventMFAAttemptsExceeded    = "mfa_attempts_exceeded"
	auditEventBackupCodesGenerated   = "backup_codes_generated"
	auditEventBackupCodeUsed         = "backup_code_used"
	auditEventBackupCodeFailed       = "backup_code_failed"
	auditEventRoleAssigned           = "role_assigned"
	auditEventRoleRevoked            = "role_revoked"
	auditEventPermissionDenied       = "permission_denied"
)

// AuditErrorCode defines a public type used by authgate APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials    AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked         AuditErrorCode = "account_locked"
	auditErrAccountDisabled       AuditErrorCode = "account_disabled"
	auditErrAccountDeactivated    AuditErrorCode = "account_deactivated"
	auditErrUserNotFound          AuditErrorCode = "user_not_found"
	auditErrDuplicate             AuditErrorCode = "duplicate"
	auditErrPasswordReuse         AuditErrorCode = "password_reuse"
	auditErrWeakPassword          AuditErrorCode = "weak_password"
	auditErrInvalidToken          AuditErrorCode = "invalid_token"
	auditErrSessionNotFound       AuditErrorCode = "session_not_found"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrRefreshReuse          AuditErrorCode = "refresh_reuse"
	auditErrMFARequired           AuditErrorCode = "mfa_required"
	auditErrMFAInvalid            AuditErrorCode = "mfa_invalid"
	auditErrMFAAttemptsExceeded   AuditErrorCode = "mfa_attempts_exceeded"
	auditErrTOTPInvalid           AuditErrorCode = "totp_invalid"
	auditErrTOTPReplay            AuditErrorCode = "totp_replay"
	auditErrBackupCodeInvalid     AuditErrorCode = "backup_code_invalid"
	auditErrPermissionDenied      AuditErrorCode = "permission_denied"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        newEventID(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		ActorID:   ActorFromContext(ctx),
		SessionID: sessionID,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
		event.ErrorCode = string(auditErrorCode(err))
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountDeactivated):
		return auditErrAccountDeactivated
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrDuplicateIdentifier):
		return auditErrDuplicate
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrWeakPassword):
		return auditErrWeakPassword
	case errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired):
		return auditErrInvalidToken
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreationFailed
	case errors.Is(err, ErrRefreshReuseDetected):
		return auditErrRefreshReuse
	case errors.Is(err, ErrMFARequired):
		return auditErrMFARequired
	case errors.Is(err, ErrMFALoginNotFound),
		errors.Is(err, ErrMFALoginExpired):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFALoginAttemptsExceeded):
		return auditErrMFAAttemptsExceeded
	case errors.Is(err, ErrTOTPReplayed):
		return auditErrTOTPReplay
	case errors.Is(err, ErrTOTPInvalidCode),
		errors.Is(err, ErrTOTPNotEnabled),
		errors.Is(err, ErrTOTPAlreadyEnabled),
		errors.Is(err, ErrTOTPSetupNotFound):
		return auditErrTOTPInvalid
	case errors.Is(err, ErrBackupCodeInvalid),
		errors.Is(err, ErrBackupCodesExhausted):
		return auditErrBackupCodeInvalid
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrRoleDenied):
		return auditErrPermissionDenied
	case errors.Is(err, ErrRefreshInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrProviderUnavailable),
		errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
