package internaldefs

import (
	"github.com/venrik/authgate"
)

// CounterDef defines a public type used by authgate APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by authgate APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful login attempts."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Failed login attempts."},
	{ID: authgate.MetricAccountLockedOut, Name: "authgate_account_locked_out_total", Help: "Accounts locked after repeated login failures."},
	{ID: authgate.MetricRefreshSuccess, Name: "authgate_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authgate.MetricRefreshFailure, Name: "authgate_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: authgate.MetricRefreshReuseDetected, Name: "authgate_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authgate.MetricSessionCreated, Name: "authgate_session_created_total", Help: "Created sessions."},
	{ID: authgate.MetricSessionCollision, Name: "authgate_session_collision_total", Help: "Session identifier collisions that triggered a retry."},
	{ID: authgate.MetricSessionCreationFailed, Name: "authgate_session_creation_failed_total", Help: "Session creation attempts abandoned after retry exhaustion."},
	{ID: authgate.MetricSessionInvalidated, Name: "authgate_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: authgate.MetricSessionSwept, Name: "authgate_session_swept_total", Help: "Expired session index entries removed by sweeps."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Single-session logout operations."},
	{ID: authgate.MetricLogoutAll, Name: "authgate_logout_all_total", Help: "Logout-all operations."},
	{ID: authgate.MetricMFALoginRequired, Name: "authgate_mfa_login_required_total", Help: "Login flows requiring MFA step-up."},
	{ID: authgate.MetricMFALoginSuccess, Name: "authgate_mfa_login_success_total", Help: "Successful MFA login confirmations."},
	{ID: authgate.MetricMFALoginFailure, Name: "authgate_mfa_login_failure_total", Help: "Failed MFA login confirmations."},
	{ID: authgate.MetricTOTPReplayAttempt, Name: "authgate_totp_replay_attempt_total", Help: "Detected TOTP replay attempts."},
	{ID: authgate.MetricTOTPEnabled, Name: "authgate_totp_enabled_total", Help: "TOTP enrollments confirmed."},
	{ID: authgate.MetricTOTPDisabled, Name: "authgate_totp_disabled_total", Help: "TOTP enrollments disabled."},
	{ID: authgate.MetricBackupCodeUsed, Name: "authgate_backup_code_used_total", Help: "Successful backup-code authentications."},
	{ID: authgate.MetricBackupCodeFailed, Name: "authgate_backup_code_failed_total", Help: "Failed backup-code authentications."},
	{ID: authgate.MetricBackupCodeRegenerated, Name: "authgate_backup_code_regenerated_total", Help: "Backup-code regeneration operations."},
	{ID: authgate.MetricAccountCreationSuccess, Name: "authgate_account_creation_success_total", Help: "Successful account creations."},
	{ID: authgate.MetricAccountCreationDuplicate, Name: "authgate_account_creation_duplicate_total", Help: "Account creation attempts rejected as duplicate."},
	{ID: authgate.MetricPasswordChangeSuccess, Name: "authgate_password_change_success_total", Help: "Successful password changes."},
	{ID: authgate.MetricPasswordChangeFailure, Name: "authgate_password_change_failure_total", Help: "Failed password changes."},
	{ID: authgate.MetricAccountStatusChange, Name: "authgate_account_status_change_total", Help: "Account status transitions."},
	{ID: authgate.MetricRoleAssigned, Name: "authgate_role_assigned_total", Help: "Role assignment operations."},
	{ID: authgate.MetricRoleRevoked, Name: "authgate_role_revoked_total", Help: "Role revocation operations."},
	{ID: authgate.MetricPermissionChecked, Name: "authgate_permission_checked_total", Help: "Permission checks performed."},
	{ID: authgate.MetricPermissionDenied, Name: "authgate_permission_denied_total", Help: "Permission checks that denied access."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricValidateLatency, Name: "authgate_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []float64{
	0.005,
	0.01,
	0.025,
	0.05,
	0.1,
	0.25,
	0.5,
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
