package authgate

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/venrik/authgate/internal"
	"github.com/venrik/authgate/jwt"
	"github.com/venrik/authgate/password"
	"github.com/venrik/authgate/rbac"
	"github.com/venrik/authgate/secrets"
	"github.com/venrik/authgate/session"
)

// sessionBackend is the slice of *session.Store the engine relies on. The
// indirection lets tests substitute a misbehaving store.
type sessionBackend interface {
	Save(ctx context.Context, sess *session.Session, lifetime time.Duration) error
	GetReadOnly(ctx context.Context, sessionID string) (*session.Session, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	RotateRefreshHash(ctx context.Context, sessionID string, providedHash, nextHash [32]byte) (*session.Session, error)
	TrackReplayAnomaly(ctx context.Context, sessionID string, ttl time.Duration) error
	SweepExpiredIndexes(ctx context.Context) (int, error)
	Ping(ctx context.Context) (time.Duration, error)
}

// Engine defines a public type used by authgate APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config        Config
	sessionStore  sessionBackend
	lockout       *lockoutLimiter
	mfaLoginStore *mfaLoginChallengeStore
	audit         *auditDispatcher
	metrics       *Metrics
	passwordHash  *password.Hasher
	totp          *totpManager
	secretCipher  *secrets.Cipher
	jwtManager    *jwt.Manager
	userProvider  UserProvider
	directory     rbac.Directory
	resolver      *rbac.Resolver
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func accountStatusToError(status AccountStatus) error {
	switch status {
	case AccountActive:
		return nil
	case AccountDisabled:
		return ErrAccountDisabled
	case AccountLockedStatus:
		return ErrAccountLocked
	case AccountDeactivated:
		return ErrAccountDeactivated
	default:
		return ErrAccountDisabled
	}
}

/*
====================================
LOGIN
====================================
*/

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// A nil error with MFARequired set means the password was accepted but the
// account has TOTP enabled: call ConfirmLoginMFA with the returned MFASession
// to finish. Unknown identifiers and wrong passwords both come back as
// ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, identifier, pass string) (*LoginResult, error) {
	if e == nil || e.passwordHash == nil || e.userProvider == nil {
		return nil, ErrEngineNotReady
	}

	if pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "empty_password",
			}
		})
		return nil, ErrInvalidCredentials
	}

	user, err := e.userProvider.GetUserByIdentifier(ctx, identifier)
	if err != nil {
		// Burn a hash comparison anyway so the timing difference between
		// unknown and known identifiers stays small.
		_, _ = e.passwordHash.Verify(pass, unknownUserHash)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "user_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if err := e.lockout.Check(ctx, user.ID); err != nil {
		if errors.Is(err, errLockoutActive) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrAccountLocked, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
					"reason":     "lockout_active",
				}
			})
			return nil, ErrAccountLocked
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	if statusErr := accountStatusToError(user.Status); statusErr != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", statusErr, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "account_status",
			}
		})
		return nil, statusErr
	}

	ok, err := e.passwordHash.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		locked, lockErr := e.lockout.RecordFailure(ctx, user.ID)
		if lockErr != nil {
			log.Print("authgate: lockout failure tracking unavailable")
		}
		if locked {
			e.metricInc(MetricAccountLockedOut)
			e.emitAudit(ctx, auditEventAccountLockedOut, false, user.ID, "", ErrAccountLocked, func() map[string]string {
				return map[string]string{
					"identifier": identifier,
				}
			})
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "password_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		if needsRehash, err := e.passwordHash.NeedsRehash(user.PasswordHash); err == nil && needsRehash {
			if upgraded, err := e.passwordHash.Hash(pass); err == nil {
				// Best effort, must not block a successful login.
				if err := e.userProvider.UpdatePasswordHash(ctx, user.ID, upgraded); err != nil {
					log.Print("authgate: password hash upgrade update failed")
				}
			} else {
				log.Print("authgate: password hash upgrade generation failed")
			}
		}
	}
	pass = ""

	if err := e.lockout.Reset(ctx, user.ID); err != nil {
		log.Print("authgate: lockout counter reset failed")
	}

	totpRec, err := e.userProvider.GetTOTPRecord(ctx, user.ID)
	if err != nil && !errors.Is(err, ErrTOTPSetupNotFound) {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	if totpRec != nil && totpRec.Enabled {
		return e.beginMFALogin(ctx, user, identifier)
	}

	tokens, err := e.issueSessionTokens(ctx, user)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"reason":     "token_issuance",
			}
		})
		return nil, err
	}

	if err := e.userProvider.StampLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		log.Print("authgate: last login stamp failed")
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, tokens.SessionID, nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})

	return &LoginResult{UserID: user.ID, Tokens: tokens}, nil
}

// unknownUserHash is a throwaway argon2id digest used to equalize the cost of
// login attempts against identifiers that do not exist.
const unknownUserHash = "$argon2id$v=19$m=65536,t=3,p=2$AAAAAAAAAAAAAAAAAAAAAA$pLhTVcZDaPyu1rQYZBXSJFlIv1rDklDpbBRV7Qw39Eo"

func (e *Engine) beginMFALogin(ctx context.Context, user *UserRecord, identifier string) (*LoginResult, error) {
	if e.mfaLoginStore == nil {
		return nil, ErrEngineNotReady
	}

	cid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	challengeID := cid.String()

	ttl := e.config.TOTP.MFALoginChallengeTTL
	record := &mfaLoginChallenge{
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	if err := e.mfaLoginStore.Save(ctx, challengeID, record, ttl); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	e.metricInc(MetricMFALoginRequired)
	e.emitAudit(ctx, auditEventMFARequired, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})

	return &LoginResult{UserID: user.ID, MFARequired: true, MFASession: challengeID}, nil
}

/*
====================================
TOKEN ISSUANCE
====================================
*/

// issueSessionTokens claims a fresh session key and mints the token pair.
// Session id collisions are retried a bounded number of times; losing every
// attempt surfaces ErrSessionCreationFailed.
func (e *Engine) issueSessionTokens(ctx context.Context, user *UserRecord) (*TokenPair, error) {
	roles, err := e.userRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	lifetime := e.config.JWT.RefreshTTL

	attempts := e.config.Session.CreateMaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		sid, err := internal.NewSessionID()
		if err != nil {
			return nil, err
		}
		sessionID := sid.String()

		refreshSecret, err := internal.NewRefreshSecret()
		if err != nil {
			return nil, err
		}

		sess := &session.Session{
			SessionID:     sessionID,
			UserID:        user.ID,
			Roles:         roles,
			RefreshHash:   internal.HashRefreshSecret(refreshSecret),
			IPHash:        hashContextValue(ClientIPFromContext(ctx)),
			UserAgentHash: hashContextValue(UserAgentFromContext(ctx)),
			CreatedAt:     now.Unix(),
			ExpiresAt:     now.Add(lifetime).Unix(),
		}

		err = e.sessionStore.Save(ctx, sess, lifetime)
		if errors.Is(err, session.ErrSessionExists) {
			e.metricInc(MetricSessionCollision)
			continue
		}
		if err != nil {
			return nil, errors.Join(ErrStoreUnavailable, err)
		}

		access, err := e.jwtManager.CreateAccess(user.ID, sessionID, uuid.NewString(), roles)
		if err != nil {
			_ = e.sessionStore.Delete(ctx, sessionID)
			return nil, err
		}

		refresh, err := internal.EncodeRefreshToken(sessionID, refreshSecret)
		if err != nil {
			_ = e.sessionStore.Delete(ctx, sessionID)
			return nil, err
		}

		e.metricInc(MetricSessionCreated)
		return &TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			SessionID:    sessionID,
			AccessExpiry: now.Add(e.config.JWT.AccessTTL),
		}, nil
	}

	e.metricInc(MetricSessionCreationFailed)
	e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, "", ErrSessionCreationFailed, nil)
	return nil, ErrSessionCreationFailed
}

func (e *Engine) userRoles(ctx context.Context, userID string) ([]string, error) {
	if e.directory == nil {
		return nil, ErrEngineNotReady
	}
	grants, err := e.directory.UserGrants(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	now := time.Now()
	roles := make([]string, 0, len(grants))
	for _, g := range grants {
		if g.Expired(now) {
			continue
		}
		roles = append(roles, g.Role)
	}
	return roles, nil
}

func hashContextValue(v string) [32]byte {
	if v == "" {
		return [32]byte{}
	}
	return internal.HashClientValue(v)
}

/*
====================================
REFRESH
====================================
*/

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Rotation is compare-and-swap on the stored refresh hash: of two concurrent
// calls with the same token exactly one wins. A token whose hash no longer
// matches is treated as replayed and the whole session is destroyed.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.sessionStore == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}

	sessionID, providedSecret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshInvalid, func() map[string]string {
			return map[string]string{
				"reason": "decode_failed",
			}
		})
		return nil, ErrRefreshInvalid
	}

	nextSecret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	sess, err := e.sessionStore.RotateRefreshHash(
		ctx,
		sessionID,
		internal.HashRefreshSecret(providedSecret),
		internal.HashRefreshSecret(nextSecret),
	)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshHashMismatch):
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricSessionInvalidated)
			if delErr := e.sessionStore.Delete(ctx, sessionID); delErr != nil {
				log.Print("authgate: reuse session teardown failed")
			}
			if trackErr := e.sessionStore.TrackReplayAnomaly(ctx, sessionID, e.config.JWT.RefreshTTL); trackErr != nil {
				log.Print("authgate: replay anomaly tracking failed")
			}
			e.emitAudit(ctx, auditEventRefreshReuseDetected, false, "", sessionID, ErrRefreshReuseDetected, nil)
			return nil, ErrRefreshReuseDetected
		case errors.Is(err, session.ErrRefreshSessionNotFound),
			errors.Is(err, session.ErrRefreshSessionExpired),
			errors.Is(err, redis.Nil):
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, ErrRefreshInvalid, func() map[string]string {
				return map[string]string{
					"reason": "session_gone",
				}
			})
			return nil, ErrRefreshInvalid
		default:
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, "", sessionID, err, func() map[string]string {
				return map[string]string{
					"reason": "rotate_failed",
				}
			})
			return nil, errors.Join(ErrStoreUnavailable, err)
		}
	}

	access, err := e.jwtManager.CreateAccess(sess.UserID, sess.SessionID, uuid.NewString(), sess.Roles)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	refresh, err := internal.EncodeRefreshToken(sess.SessionID, nextSecret)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.UserID, sess.SessionID, nil, nil)

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sess.SessionID,
		AccessExpiry: time.Now().Add(e.config.JWT.AccessTTL),
	}, nil
}

/*
====================================
VALIDATE
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The token signature and claims are checked first, then the backing session
// is looked up so a revoked session rejects still-unexpired access tokens.
func (e *Engine) Validate(ctx context.Context, tokenStr string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	sess, err := e.sessionStore.GetReadOnly(ctx, claims.SID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	if sess.UserID != claims.UID {
		return nil, ErrTokenInvalid
	}

	res := &AuthResult{
		UserID:    claims.UID,
		SessionID: claims.SID,
		TokenID:   claims.ID,
		Roles:     sess.Roles,
	}

	if e.config.RBAC.IncludePermissions && e.resolver != nil {
		if _, perms, err := e.resolver.EffectivePermissions(ctx, claims.UID); err == nil {
			res.Permissions = perms
		}
	}

	return res, nil
}

/*
====================================
LOGOUT
====================================
*/

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	err := e.sessionStore.Delete(ctx, sessionID)
	if err == nil {
		e.metricInc(MetricLogout)
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutSession, err == nil, "", sessionID, err, nil)
	return err
}

// LogoutByAccessToken describes the logoutbyaccesstoken operation and its observable behavior.
//
// LogoutByAccessToken may return an error when input validation, dependency calls, or security checks fail.
// LogoutByAccessToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutByAccessToken(ctx context.Context, tokenStr string) error {
	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		e.emitAudit(ctx, auditEventLogoutSession, false, "", "", ErrTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "invalid_access_token",
			}
		})
		return ErrTokenInvalid
	}
	return e.Logout(ctx, claims.SID)
}

// LogoutAll describes the logoutall operation and its observable behavior.
//
// LogoutAll may return an error when input validation, dependency calls, or security checks fail.
// LogoutAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	n, err := e.sessionStore.DeleteAllForUser(ctx, userID)
	if err == nil {
		e.metricInc(MetricLogoutAll)
		for i := 0; i < n; i++ {
			e.metricInc(MetricSessionInvalidated)
		}
	}
	e.emitAudit(ctx, auditEventLogoutAll, err == nil, userID, "", err, func() map[string]string {
		return map[string]string{
			"sessions_removed": strconv.Itoa(n),
		}
	})
	return err
}

/*
====================================
MAINTENANCE
====================================
*/

// SweepExpiredSessions describes the sweepexpiredsessions operation and its observable behavior.
//
// SweepExpiredSessions may return an error when input validation, dependency calls, or security checks fail.
// SweepExpiredSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// It removes user-index entries whose sessions have already expired out of
// Redis. Intended for a periodic background caller.
func (e *Engine) SweepExpiredSessions(ctx context.Context) (int, error) {
	n, err := e.sessionStore.SweepExpiredIndexes(ctx)
	if err == nil {
		for i := 0; i < n; i++ {
			e.metricInc(MetricSessionSwept)
		}
	}
	e.emitAudit(ctx, auditEventSessionSweep, err == nil, "", "", err, func() map[string]string {
		return map[string]string{
			"entries_removed": strconv.Itoa(n),
		}
	})
	return n, err
}

// Ping describes the ping operation and its observable behavior.
//
// Ping may return an error when input validation, dependency calls, or security checks fail.
// Ping does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessionStore.Ping(ctx)
}
