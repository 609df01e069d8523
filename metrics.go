package authgate

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by authgate APIs.
//
// MetricID instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	// MetricLoginSuccess is an exported constant or variable used by the authentication engine.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant or variable used by the authentication engine.
	MetricLoginFailure
	// MetricAccountLockedOut is an exported constant or variable used by the authentication engine.
	MetricAccountLockedOut
	// MetricRefreshSuccess is an exported constant or variable used by the authentication engine.
	MetricRefreshSuccess
	// MetricRefreshFailure is an exported constant or variable used by the authentication engine.
	MetricRefreshFailure
	// MetricRefreshReuseDetected is an exported constant or variable used by the authentication engine.
	MetricRefreshReuseDetected
	// MetricSessionCreated is an exported constant or variable used by the authentication engine.
	MetricSessionCreated
	// MetricSessionCollision is an exported constant or variable used by the authentication engine.
	MetricSessionCollision
	// MetricSessionCreationFailed is an exported constant or variable used by the authentication engine.
	MetricSessionCreationFailed
	// MetricSessionInvalidated is an exported constant or variable used by the authentication engine.
	MetricSessionInvalidated
	// MetricSessionSwept is an exported constant or variable used by the authentication engine.
	MetricSessionSwept
	// MetricLogout is an exported constant or variable used by the authentication engine.
	MetricLogout
	// MetricLogoutAll is an exported constant or variable used by the authentication engine.
	MetricLogoutAll
	// MetricMFALoginRequired is an exported constant or variable used by the authentication engine.
	MetricMFALoginRequired
	// MetricMFALoginSuccess is an exported constant or variable used by the authentication engine.
	MetricMFALoginSuccess
	// MetricMFALoginFailure is an exported constant or variable used by the authentication engine.
	MetricMFALoginFailure
	// MetricTOTPReplayAttempt is an exported constant or variable used by the authentication engine.
	MetricTOTPReplayAttempt
	// MetricTOTPEnabled is an exported constant or variable used by the authentication engine.
	MetricTOTPEnabled
	// MetricTOTPDisabled is an exported constant or variable used by the authentication engine.
	MetricTOTPDisabled
	// MetricBackupCodeUsed is an exported constant or variable used by the authentication engine.
	MetricBackupCodeUsed
	// MetricBackupCodeFailed is an exported constant or variable used by the authentication engine.
	MetricBackupCodeFailed
	// MetricBackupCodeRegenerated is an exported constant or variable used by the authentication engine.
	MetricBackupCodeRegenerated
	// MetricAccountCreationSuccess is an exported constant or variable used by the authentication engine.
	MetricAccountCreationSuccess
	// MetricAccountCreationDuplicate is an exported constant or variable used by the authentication engine.
	MetricAccountCreationDuplicate
	// MetricPasswordChangeSuccess is an exported constant or variable used by the authentication engine.
	MetricPasswordChangeSuccess
	// MetricPasswordChangeFailure is an exported constant or variable used by the authentication engine.
	MetricPasswordChangeFailure
	// MetricAccountStatusChange is an exported constant or variable used by the authentication engine.
	MetricAccountStatusChange
	// MetricRoleAssigned is an exported constant or variable used by the authentication engine.
	MetricRoleAssigned
	// MetricRoleRevoked is an exported constant or variable used by the authentication engine.
	MetricRoleRevoked
	// MetricPermissionChecked is an exported constant or variable used by the authentication engine.
	MetricPermissionChecked
	// MetricPermissionDenied is an exported constant or variable used by the authentication engine.
	MetricPermissionDenied
	// MetricValidateLatency is an exported constant or variable used by the authentication engine.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics defines a public type used by authgate APIs.
//
// Metrics instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by authgate APIs.
//
// MetricsSnapshot instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics may return an error when input validation, dependency calls, or security checks fail.
// NewMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled describes the enabled operation and its observable behavior.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled describes the latencyenabled operation and its observable behavior.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc describes the inc operation and its observable behavior.
//
// Inc may return an error when input validation, dependency calls, or security checks fail.
// Inc does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe describes the observe operation and its observable behavior.
//
// Observe may return an error when input validation, dependency calls, or security checks fail.
// Observe does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value describes the value operation and its observable behavior.
//
// Value may return an error when input validation, dependency calls, or security checks fail.
// Value does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot may return an error when input validation, dependency calls, or security checks fail.
// Snapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

// HistogramBucketBounds describes the histogrambucketbounds operation and its observable behavior.
//
// It returns the upper bounds in milliseconds for each latency bucket; the
// final bucket is unbounded and reported as 0.
func HistogramBucketBounds() []int64 {
	return []int64{5, 10, 25, 50, 100, 250, 500, 0}
}

// MetricName describes the metricname operation and its observable behavior.
//
// MetricName may return an error when input validation, dependency calls, or security checks fail.
// MetricName does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func MetricName(id MetricID) string {
	switch id {
	case MetricLoginSuccess:
		return "login_success"
	case MetricLoginFailure:
		return "login_failure"
	case MetricAccountLockedOut:
		return "account_locked_out"
	case MetricRefreshSuccess:
		return "refresh_success"
	case MetricRefreshFailure:
		return "refresh_failure"
	case MetricRefreshReuseDetected:
		return "refresh_reuse_detected"
	case MetricSessionCreated:
		return "session_created"
	case MetricSessionCollision:
		return "session_collision"
	case MetricSessionCreationFailed:
		return "session_creation_failed"
	case MetricSessionInvalidated:
		return "session_invalidated"
	case MetricSessionSwept:
		return "session_swept"
	case MetricLogout:
		return "logout"
	case MetricLogoutAll:
		return "logout_all"
	case MetricMFALoginRequired:
		return "mfa_login_required"
	case MetricMFALoginSuccess:
		return "mfa_login_success"
	case MetricMFALoginFailure:
		return "mfa_login_failure"
	case MetricTOTPReplayAttempt:
		return "totp_replay_attempt"
	case MetricTOTPEnabled:
		return "totp_enabled"
	case MetricTOTPDisabled:
		return "totp_disabled"
	case MetricBackupCodeUsed:
		return "backup_code_used"
	case MetricBackupCodeFailed:
		return "backup_code_failed"
	case MetricBackupCodeRegenerated:
		return "backup_code_regenerated"
	case MetricAccountCreationSuccess:
		return "account_creation_success"
	case MetricAccountCreationDuplicate:
		return "account_creation_duplicate"
	case MetricPasswordChangeSuccess:
		return "password_change_success"
	case MetricPasswordChangeFailure:
		return "password_change_failure"
	case MetricAccountStatusChange:
		return "account_status_change"
	case MetricRoleAssigned:
		return "role_assigned"
	case MetricRoleRevoked:
		return "role_revoked"
	case MetricPermissionChecked:
		return "permission_checked"
	case MetricPermissionDenied:
		return "permission_denied"
	case MetricValidateLatency:
		return "validate_latency"
	default:
		return "unknown"
	}
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
