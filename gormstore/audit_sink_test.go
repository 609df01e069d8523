package gormstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/venrik/authgate"
)

func TestAuditSinkPersistsEvents(t *testing.T) {
	db := newTestDB(t)
	sink := NewAuditSink(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	sink.Emit(ctx, authgate.AuditEvent{
		ID:        "01AN4Z07BY79KA1307SR9X4MV3",
		Timestamp: base,
		EventType: "login_failure",
		UserID:    "u1",
		IP:        "203.0.113.9",
		Success:   false,
		Error:     "invalid credentials",
		ErrorCode: "invalid_credentials",
	})
	sink.Emit(ctx, authgate.AuditEvent{
		ID:        "01AN4Z07BY79KA1307SR9X4MV4",
		Timestamp: base.Add(time.Second),
		EventType: "login_success",
		UserID:    "u1",
		ActorID:   "u1",
		SessionID: "s1",
		Success:   true,
		Metadata:  map[string]string{"mfa": "totp"},
	})

	rows, err := sink.EventsForUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Newest first by ULID ordering.
	require.Equal(t, "login_success", rows[0].EventType)
	require.True(t, rows[0].Success)
	require.Contains(t, rows[0].Metadata, `"mfa":"totp"`)
	require.Equal(t, "s1", rows[0].SessionID)

	require.Equal(t, "login_failure", rows[1].EventType)
	require.Equal(t, "invalid_credentials", rows[1].ErrorCode)
	require.Equal(t, "203.0.113.9", rows[1].IP)
}
