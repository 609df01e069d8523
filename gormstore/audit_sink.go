package gormstore

import (
	"context"
	"encoding/json"
	"log"

	"gorm.io/gorm"

	"github.com/venrik/authgate"
)

// AuditSink persists audit events as append-only rows. It satisfies
// authgate.AuditSink; Emit is called from the dispatcher's single goroutine.
type AuditSink struct {
	db *gorm.DB
}

// NewAuditSink describes the newauditsink operation and its observable behavior.
func NewAuditSink(db *gorm.DB) *AuditSink {
	return &AuditSink{db: db}
}

// Emit describes the emit operation and its observable behavior.
//
// A failed insert is logged and dropped rather than retried; the audit
// stream must never block authentication traffic.
func (s *AuditSink) Emit(ctx context.Context, event authgate.AuditEvent) {
	if s == nil || s.db == nil {
		return
	}

	metadata := ""
	if len(event.Metadata) > 0 {
		if data, err := json.Marshal(event.Metadata); err == nil {
			metadata = string(data)
		}
	}

	row := AuditRecord{
		ID:        event.ID,
		Timestamp: event.Timestamp,
		EventType: event.EventType,
		UserID:    event.UserID,
		ActorID:   event.ActorID,
		SessionID: event.SessionID,
		IP:        event.IP,
		Success:   event.Success,
		Error:     event.Error,
		ErrorCode: event.ErrorCode,
		Metadata:  metadata,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		log.Print("gormstore: audit insert failed")
	}
}

// EventsForUser returns the persisted audit trail for one user, newest
// first, capped at limit.
func (s *AuditSink) EventsForUser(ctx context.Context, userID string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []AuditRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
