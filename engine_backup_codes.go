package authgate

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"

	"github.com/venrik/authgate/internal"
)

const backupCodeSaltBytes = 16

// newBackupCodeSet mints the configured number of backup codes. Each code
// gets its own random salt and the stored hash covers salt plus plaintext,
// so equal codes across users never share a digest.
func (e *Engine) newBackupCodeSet(userID string) ([]string, []BackupCodeRecord, error) {
	count := e.config.TOTP.BackupCodeCount
	if count <= 0 {
		count = 1
	}

	plaintext := make([]string, 0, count)
	records := make([]BackupCodeRecord, 0, count)

	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode()
		if err != nil {
			return nil, nil, err
		}
		salt, err := internal.NewSalt(backupCodeSaltBytes)
		if err != nil {
			return nil, nil, err
		}
		hash, err := e.passwordHash.Hash(string(salt) + code)
		if err != nil {
			return nil, nil, err
		}

		plaintext = append(plaintext, code)
		records = append(records, BackupCodeRecord{
			ID:     uuid.NewString(),
			UserID: userID,
			Salt:   salt,
			Hash:   hash,
		})
	}

	return plaintext, records, nil
}

// RegenerateBackupCodes describes the regeneratebackupcodes operation and its observable behavior.
//
// RegenerateBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// RegenerateBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The caller proves possession of the authenticator with a current code; the
// old set, used and unused alike, is replaced outright.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, userID, totpCode string) ([]string, error) {
	if e == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	rec, err := e.userProvider.GetTOTPRecord(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrTOTPSetupNotFound) {
			return nil, ErrTOTPNotEnabled
		}
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	if !rec.Enabled {
		return nil, ErrTOTPNotEnabled
	}

	if err := e.verifyLoginTOTP(ctx, userID, totpCode); err != nil {
		e.metricInc(MetricBackupCodeFailed)
		e.emitAudit(ctx, auditEventBackupCodeFailed, false, userID, "", err, func() map[string]string {
			return map[string]string{
				"phase": "regeneration",
			}
		})
		return nil, err
	}

	plaintext, records, err := e.newBackupCodeSet(userID)
	if err != nil {
		return nil, err
	}
	if err := e.userProvider.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditEventBackupCodesGenerated, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"count": strconv.Itoa(len(records)),
		}
	})

	return plaintext, nil
}

// BackupCodesRemaining describes the backupcodesremaining operation and its observable behavior.
//
// BackupCodesRemaining may return an error when input validation, dependency calls, or security checks fail.
// BackupCodesRemaining does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) BackupCodesRemaining(ctx context.Context, userID string) (int, error) {
	if e == nil || e.userProvider == nil {
		return 0, ErrEngineNotReady
	}

	records, err := e.userProvider.GetBackupCodes(ctx, userID)
	if err != nil {
		return 0, errors.Join(ErrProviderUnavailable, err)
	}

	remaining := 0
	for _, rec := range records {
		if !rec.Used {
			remaining++
		}
	}
	return remaining, nil
}
