package authgate

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

// ConfirmLoginMFA describes the confirmloginmfa operation and its observable behavior.
//
// ConfirmLoginMFA may return an error when input validation, dependency calls, or security checks fail.
// ConfirmLoginMFA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// mfaSession is the challenge id returned by Login. The challenge is single
// use: it is consumed on success and torn down when the attempt budget runs
// out. mfaType selects between an authenticator code and a backup code; on
// the TOTP path a code the authenticator rejects is also matched against the
// unused backup set, so a user holding only a recovery code still gets in.
func (e *Engine) ConfirmLoginMFA(ctx context.Context, mfaSession, code string, mfaType MFAType) (*LoginResult, error) {
	if e == nil || e.mfaLoginStore == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	challenge, err := e.mfaLoginStore.Get(ctx, mfaSession)
	if err != nil {
		switch {
		case errors.Is(err, errMFALoginChallengeNotFound):
			e.metricInc(MetricMFALoginFailure)
			e.emitAudit(ctx, auditEventMFAFailure, false, "", "", ErrMFALoginNotFound, nil)
			return nil, ErrMFALoginNotFound
		case errors.Is(err, errMFALoginChallengeExpired):
			e.metricInc(MetricMFALoginFailure)
			e.emitAudit(ctx, auditEventMFAFailure, false, "", "", ErrMFALoginExpired, nil)
			return nil, ErrMFALoginExpired
		default:
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
	}

	user, err := e.userProvider.GetUserByID(ctx, challenge.UserID)
	if err != nil {
		e.metricInc(MetricMFALoginFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, challenge.UserID, "", ErrUserNotFound, nil)
		return nil, ErrMFALoginNotFound
	}
	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		_, _ = e.mfaLoginStore.Delete(ctx, mfaSession)
		e.metricInc(MetricMFALoginFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.ID, "", statusErr, nil)
		return nil, statusErr
	}

	method := mfaType
	var verifyErr error
	switch mfaType {
	case MFATypeTOTP:
		verifyErr = e.verifyLoginTOTP(ctx, user.ID, code)
		// Backup code fallback. Replays keep their distinct error: the code
		// did match an authenticator window once.
		if errors.Is(verifyErr, ErrTOTPInvalidCode) {
			if e.consumeBackupCode(ctx, user.ID, code) == nil {
				verifyErr = nil
				method = MFATypeBackupCode
			}
		}
	case MFATypeBackupCode:
		verifyErr = e.consumeBackupCode(ctx, user.ID, code)
	default:
		verifyErr = ErrTOTPInvalidCode
	}

	if verifyErr != nil {
		exceeded, recErr := e.mfaLoginStore.RecordFailure(ctx, mfaSession, e.config.TOTP.MFALoginMaxAttempts)
		if recErr != nil && !errors.Is(recErr, errMFALoginChallengeNotFound) && !errors.Is(recErr, errMFALoginChallengeExpired) {
			log.Print("authgate: mfa attempt tracking failed")
		}
		if exceeded {
			e.metricInc(MetricMFALoginFailure)
			e.emitAudit(ctx, auditEventMFAAttemptsExceeded, false, user.ID, "", ErrMFALoginAttemptsExceeded, nil)
			return nil, ErrMFALoginAttemptsExceeded
		}

		e.metricInc(MetricMFALoginFailure)
		if mfaType == MFATypeBackupCode {
			e.metricInc(MetricBackupCodeFailed)
			e.emitAudit(ctx, auditEventBackupCodeFailed, false, user.ID, "", verifyErr, nil)
		} else {
			e.emitAudit(ctx, auditEventMFAFailure, false, user.ID, "", verifyErr, nil)
		}
		return nil, verifyErr
	}

	// Single use: whoever deletes the challenge key wins the confirmation.
	removed, err := e.mfaLoginStore.Delete(ctx, mfaSession)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if !removed {
		e.metricInc(MetricMFALoginFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.ID, "", ErrMFALoginNotFound, nil)
		return nil, ErrMFALoginNotFound
	}

	tokens, err := e.issueSessionTokens(ctx, user)
	if err != nil {
		e.metricInc(MetricMFALoginFailure)
		e.emitAudit(ctx, auditEventMFAFailure, false, user.ID, "", err, nil)
		return nil, err
	}

	if err := e.userProvider.StampLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		log.Print("authgate: last login stamp failed")
	}

	e.metricInc(MetricMFALoginSuccess)
	e.metricInc(MetricLoginSuccess)
	if method == MFATypeBackupCode {
		e.metricInc(MetricBackupCodeUsed)
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, user.ID, tokens.SessionID, nil, nil)
	}
	e.emitAudit(ctx, auditEventMFASuccess, true, user.ID, tokens.SessionID, nil, func() map[string]string {
		return map[string]string{
			"method": string(method),
		}
	})
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, tokens.SessionID, nil, func() map[string]string {
		return map[string]string{
			"mfa": string(method),
		}
	})

	return &LoginResult{UserID: user.ID, Tokens: tokens}, nil
}

// verifyLoginTOTP checks an authenticator code against the enabled TOTP
// record and advances the replay floor. A code whose matched time step is at
// or below the recorded floor is rejected as replayed; so is losing the
// counter advance to a concurrent verification of the same code.
func (e *Engine) verifyLoginTOTP(ctx context.Context, userID, code string) error {
	if e.totp == nil || e.secretCipher == nil {
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

	secret, err := e.secretCipher.Open(rec.SealedSecret, []byte(userID))
	if err != nil {
		return ErrTOTPInvalidCode
	}

	ok, matchedCounter, err := e.totp.VerifyCode(secret, code, time.Now())
	if err != nil || !ok {
		return ErrTOTPInvalidCode
	}

	if matchedCounter <= rec.LastUsedCounter {
		e.metricInc(MetricTOTPReplayAttempt)
		return ErrTOTPReplayed
	}
	advanced, err := e.userProvider.AdvanceTOTPCounter(ctx, userID, rec.LastUsedCounter, matchedCounter)
	if err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	if !advanced {
		e.metricInc(MetricTOTPReplayAttempt)
		return ErrTOTPReplayed
	}

	return nil
}

// consumeBackupCode matches the presented code against the user's unused
// set and burns it. MarkBackupCodeUsed is the atomicity point: a code that
// two callers race on is consumed exactly once.
func (e *Engine) consumeBackupCode(ctx context.Context, userID, code string) error {
	normalized := normalizeBackupCode(code)
	if normalized == "" {
		return ErrBackupCodeInvalid
	}

	records, err := e.userProvider.GetBackupCodes(ctx, userID)
	if err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}

	remaining := 0
	for _, rec := range records {
		if rec.Used {
			continue
		}
		remaining++
	}
	if remaining == 0 {
		return ErrBackupCodesExhausted
	}

	for _, rec := range records {
		if rec.Used {
			continue
		}
		ok, err := e.passwordHash.Verify(string(rec.Salt)+normalized, rec.Hash)
		if err != nil || !ok {
			continue
		}

		consumed, err := e.userProvider.MarkBackupCodeUsed(ctx, userID, rec.ID, time.Now().UTC())
		if err != nil {
			return errors.Join(ErrProviderUnavailable, err)
		}
		if !consumed {
			return ErrBackupCodeInvalid
		}
		return nil
	}

	return ErrBackupCodeInvalid
}

func normalizeBackupCode(code string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	trimmed = strings.ReplaceAll(trimmed, " ", "")
	return trimmed
}
