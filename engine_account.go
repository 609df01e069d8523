package authgate

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateAccount describes the createaccount operation and its observable behavior.
//
// CreateAccount may return an error when input validation, dependency calls, or security checks fail.
// CreateAccount does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The new account starts active with the configured default role unless the
// request names roles explicitly. With AutoLogin on, a token pair for the
// fresh account comes back in the result.
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*CreateAccountResult, error) {
	if e == nil || e.passwordHash == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "empty_identifier",
			}
		})
		return nil, ErrInvalidCredentials
	}
	if len(req.Password) < e.config.Account.MinPasswordLength {
		e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", "", ErrWeakPassword, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "password_too_short",
			}
		})
		return nil, ErrWeakPassword
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &UserRecord{
		ID:           uuid.NewString(),
		Identifier:   identifier,
		PasswordHash: hash,
		Status:       AccountActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.userProvider.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateIdentifier) {
			e.metricInc(MetricAccountCreationDuplicate)
			e.emitAudit(ctx, auditEventAccountCreationFailure, false, "", "", ErrDuplicateIdentifier, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
					"reason":     "duplicate",
				}
			})
			return nil, ErrDuplicateIdentifier
		}
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	roles := req.Roles
	if len(roles) == 0 && e.config.Account.DefaultRole != "" {
		roles = []string{e.config.Account.DefaultRole}
	}
	for _, role := range roles {
		if _, err := e.directory.AssignRole(ctx, user.ID, role, "system", nil); err != nil {
			e.emitAudit(ctx, auditEventAccountCreationFailure, false, user.ID, "", err, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
					"reason":     "role_bootstrap",
					"role":       role,
				}
			})
			return nil, errors.Join(ErrProviderUnavailable, err)
		}
	}
	if e.resolver != nil {
		e.resolver.Invalidate(user.ID)
	}

	e.metricInc(MetricAccountCreationSuccess)
	e.emitAudit(ctx, auditEventAccountCreated, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})

	result := &CreateAccountResult{UserID: user.ID}
	if e.config.Account.AutoLogin {
		tokens, err := e.issueSessionTokens(ctx, user)
		if err != nil {
			return nil, err
		}
		result.Tokens = tokens
	}

	return result, nil
}

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The old password is re-verified and the new one must differ from it. All
// of the user's other sessions are revoked after the hash is swapped.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil || e.passwordHash == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}
	if userID == "" || oldPassword == "" {
		return ErrInvalidCredentials
	}
	if len(newPassword) < e.config.Account.MinPasswordLength {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", ErrWeakPassword, func() map[string]string {
			return map[string]string{
				"reason": "password_too_short",
			}
		})
		return ErrWeakPassword
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", ErrUserNotFound, nil)
		return ErrUserNotFound
	}
	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", statusErr, nil)
		return statusErr
	}

	ok, err := e.passwordHash.Verify(oldPassword, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"reason": "invalid_old_password",
			}
		})
		return ErrInvalidCredentials
	}

	if newPassword == oldPassword {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	hash, err := e.passwordHash.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.userProvider.UpdatePasswordHash(ctx, userID, hash); err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, userID, "", err, nil)
		return errors.Join(ErrProviderUnavailable, err)
	}

	if err := e.LogoutAll(ctx, userID); err != nil {
		log.Print("authgate: session revocation after password change failed")
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, userID, "", nil, nil)
	return nil
}
