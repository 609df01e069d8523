package authgate

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"
)

// GenerateTOTPSetup describes the generatetotpsetup operation and its observable behavior.
//
// GenerateTOTPSetup may return an error when input validation, dependency calls, or security checks fail.
// GenerateTOTPSetup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// It mints a fresh authenticator secret, stores it sealed, and returns the
// plaintext exactly once. The record stays pending until ConfirmTOTPSetup
// proves the user enrolled the secret; logins are not gated on a pending
// record, and backup codes are only minted at confirmation. Calling it again
// before confirmation replaces the pending secret.
func (e *Engine) GenerateTOTPSetup(ctx context.Context, userID string) (*TOTPSetup, error) {
	if e == nil || e.totp == nil || e.secretCipher == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		return nil, statusErr
	}

	existing, err := e.userProvider.GetTOTPRecord(ctx, userID)
	if err != nil && !errors.Is(err, ErrTOTPSetupNotFound) {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	if existing != nil && existing.Enabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	secret, secretBase32, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	sealed, err := e.secretCipher.Seal(secret, []byte(userID))
	if err != nil {
		return nil, err
	}

	rec := &TOTPRecord{
		UserID:       userID,
		SealedSecret: sealed,
		Confirmed:    false,
		Enabled:      false,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.userProvider.SaveTOTPRecord(ctx, rec); err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, userID, "", nil, nil)

	return &TOTPSetup{
		Secret: secretBase32,
		URI:    e.totp.ProvisionURI(secretBase32, user.Identifier),
	}, nil
}

// ConfirmTOTPSetup describes the confirmtotpsetup operation and its observable behavior.
//
// ConfirmTOTPSetup may return an error when input validation, dependency calls, or security checks fail.
// ConfirmTOTPSetup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// A valid code from the pending secret flips the record to confirmed and
// enabled and returns the freshly minted backup code plaintext exactly once;
// from then on Login demands MFA confirmation for the account. A wrong code
// burns the enrollment: the pending secret is discarded and the user must
// start over with GenerateTOTPSetup.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, userID, code string) ([]string, error) {
	if e == nil || e.totp == nil || e.secretCipher == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.userProvider.GetTOTPRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrTOTPSetupNotFound) {
			return nil, ErrTOTPSetupNotFound
		}
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	if rec.Enabled {
		return nil, ErrTOTPAlreadyEnabled
	}

	secret, err := e.secretCipher.Open(rec.SealedSecret, []byte(userID))
	if err != nil {
		e.discardPendingTOTP(ctx, userID)
		return nil, ErrTOTPInvalidCode
	}

	ok, matchedCounter, err := e.totp.VerifyCode(secret, code, time.Now())
	if err != nil || !ok {
		e.discardPendingTOTP(ctx, userID)
		e.emitAudit(ctx, auditEventMFAFailure, false, userID, "", ErrTOTPInvalidCode, func() map[string]string {
			return map[string]string{
				"phase": "setup_confirmation",
			}
		})
		return nil, ErrTOTPInvalidCode
	}

	rec.Confirmed = true
	rec.Enabled = true
	rec.LastUsedCounter = matchedCounter
	if err := e.userProvider.SaveTOTPRecord(ctx, rec); err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	plaintextCodes, records, err := e.newBackupCodeSet(userID)
	if err != nil {
		return nil, err
	}
	if err := e.userProvider.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	e.metricInc(MetricTOTPEnabled)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, userID, "", nil, nil)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"count": strconv.Itoa(len(records)),
		}
	})
	return plaintextCodes, nil
}

// discardPendingTOTP tears down an unconfirmed enrollment after a failed
// confirmation so the unproven secret cannot be retried.
func (e *Engine) discardPendingTOTP(ctx context.Context, userID string) {
	if err := e.userProvider.DeleteTOTPRecord(ctx, userID); err != nil {
		log.Print("authgate: pending totp teardown failed")
	}
	if err := e.userProvider.ReplaceBackupCodes(ctx, userID, nil); err != nil {
		log.Print("authgate: pending backup code teardown failed")
	}
}

// DisableTOTP describes the disabletotp operation and its observable behavior.
//
// DisableTOTP may return an error when input validation, dependency calls, or security checks fail.
// DisableTOTP does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The caller must present a currently valid authenticator code; disabling
// also discards the backup code set.
func (e *Engine) DisableTOTP(ctx context.Context, userID, code string) error {
	if e == nil || e.userProvider == nil {
		return ErrEngineNotReady
	}

	rec, err := e.userProvider.GetTOTPRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrTOTPSetupNotFound) {
			return ErrTOTPNotEnabled
		}
		return errors.Join(ErrProviderUnavailable, err)
	}
	if !rec.Enabled {
		return ErrTOTPNotEnabled
	}

	if err := e.verifyLoginTOTP(ctx, userID, code); err != nil {
		e.emitAudit(ctx, auditEventMFAFailure, false, userID, "", err, func() map[string]string {
			return map[string]string{
				"phase": "disable",
			}
		})
		return err
	}

	if err := e.userProvider.DeleteTOTPRecord(ctx, userID); err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	if err := e.userProvider.ReplaceBackupCodes(ctx, userID, nil); err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}

	e.metricInc(MetricTOTPDisabled)
	e.emitAudit(ctx, auditEventTOTPDisabled, true, userID, "", nil, nil)
	return nil
}
