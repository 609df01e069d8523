package gormstore

import "time"

// User is the relational row behind an authgate account.
type User struct {
	ID           string    `gorm:"primaryKey;size:36"       json:"id"`
	Identifier   string    `gorm:"uniqueIndex;not null"     json:"identifier"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Status       string    `gorm:"not null;default:active"  json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	LastLoginAt  time.Time `json:"last_login_at"`
}

// TOTPCredential holds the sealed authenticator secret and replay floor for
// one user. At most one row per user.
type TOTPCredential struct {
	UserID          string    `gorm:"primaryKey;size:36" json:"user_id"`
	SealedSecret    []byte    `gorm:"not null"           json:"-"`
	Confirmed       bool      `gorm:"not null"           json:"confirmed"`
	Enabled         bool      `gorm:"not null"           json:"enabled"`
	LastUsedCounter int64     `gorm:"not null"           json:"last_used_counter"`
	CreatedAt       time.Time `json:"created_at"`
}

// BackupCode is one single-use recovery code. Rows are kept after use so the
// consumption time survives for review.
type BackupCode struct {
	ID     string     `gorm:"primaryKey;size:36" json:"id"`
	UserID string     `gorm:"index;not null"     json:"user_id"`
	Salt   []byte     `gorm:"not null"           json:"-"`
	Hash   string     `gorm:"not null"           json:"-"`
	Used   bool       `gorm:"not null"           json:"used"`
	UsedAt *time.Time `json:"used_at,omitempty"`
}

// Role is a named permission bundle.
type Role struct {
	Name        string `gorm:"primaryKey" json:"name"`
	Description string `json:"description"`
	System      bool   `gorm:"not null"   json:"system"`
}

// Permission is a registered capability.
type Permission struct {
	Name        string `gorm:"primaryKey" json:"name"`
	Resource    string `gorm:"not null"   json:"resource"`
	Action      string `gorm:"not null"   json:"action"`
	Description string `json:"description"`
}

// RolePermission is an edge between a role and a permission.
type RolePermission struct {
	RoleName   string    `gorm:"primaryKey" json:"role_name"`
	Permission string    `gorm:"primaryKey" json:"permission"`
	GrantedBy  string    `json:"granted_by"`
	GrantedAt  time.Time `json:"granted_at"`
}

// UserRole is an edge between a user and a role, optionally time-bounded.
type UserRole struct {
	UserID    string     `gorm:"primaryKey;size:36" json:"user_id"`
	RoleName  string     `gorm:"primaryKey"         json:"role_name"`
	GrantedBy string     `json:"granted_by"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// AuditRecord is a persisted audit event. Append-only: nothing in this
// package updates or deletes rows.
type AuditRecord struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	Timestamp time.Time `gorm:"index"              json:"timestamp"`
	EventType string    `gorm:"index;not null"     json:"event_type"`
	UserID    string    `gorm:"index"              json:"user_id"`
	ActorID   string    `json:"actor_id"`
	SessionID string    `json:"session_id"`
	IP        string    `json:"ip"`
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	ErrorCode string    `json:"error_code"`
	Metadata  string    `json:"metadata"`
}
