package authgate

import (
	"context"
	"errors"
	"log"
)

// DisableAccount describes the disableaccount operation and its observable behavior.
//
// DisableAccount may return an error when input validation, dependency calls, or security checks fail.
// DisableAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Disabling revokes every live session so the change takes effect before any
// access token expires.
func (e *Engine) DisableAccount(ctx context.Context, userID string) error {
	return e.setAccountStatus(ctx, userID, AccountDisabled, true)
}

// EnableAccount describes the enableaccount operation and its observable behavior.
//
// EnableAccount may return an error when input validation, dependency calls, or security checks fail.
// EnableAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EnableAccount(ctx context.Context, userID string) error {
	if err := e.lockout.Unlock(ctx, userID); err != nil {
		log.Print("authgate: lockout clear on enable failed")
	}
	return e.setAccountStatus(ctx, userID, AccountActive, false)
}

// LockAccount describes the lockaccount operation and its observable behavior.
//
// LockAccount may return an error when input validation, dependency calls, or security checks fail.
// LockAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LockAccount(ctx context.Context, userID string) error {
	return e.setAccountStatus(ctx, userID, AccountLockedStatus, true)
}

// DeactivateAccount describes the deactivateaccount operation and its observable behavior.
//
// DeactivateAccount may return an error when input validation, dependency calls, or security checks fail.
// DeactivateAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) DeactivateAccount(ctx context.Context, userID string) error {
	return e.setAccountStatus(ctx, userID, AccountDeactivated, true)
}

func (e *Engine) setAccountStatus(ctx context.Context, userID string, status AccountStatus, revokeSessions bool) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventAccountStatusChange, false, userID, "", ErrUserNotFound, nil)
		return ErrUserNotFound
	}
	if user.Status == status {
		return nil
	}

	if err := e.userProvider.UpdateAccountStatus(ctx, userID, status); err != nil {
		e.emitAudit(ctx, auditEventAccountStatusChange, false, userID, "", err, nil)
		return errors.Join(ErrProviderUnavailable, err)
	}

	if revokeSessions {
		if err := e.LogoutAll(ctx, userID); err != nil {
			log.Print("authgate: session revocation on status change failed")
		}
	}

	e.metricInc(MetricAccountStatusChange)
	e.emitAudit(ctx, auditEventAccountStatusChange, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"from": string(user.Status),
			"to":   string(status),
		}
	})
	return nil
}
