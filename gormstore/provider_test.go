package gormstore

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/venrik/authgate"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "open in-memory db")
	require.NoError(t, Migrate(db), "migrate schema")
	return db
}

func seedUser(t *testing.T, p *Provider, id, identifier string) {
	t.Helper()
	require.NoError(t, p.CreateUser(context.Background(), &authgate.UserRecord{
		ID:           id,
		Identifier:   identifier,
		PasswordHash: "$argon2id$fake",
		Status:       authgate.AccountActive,
		CreatedAt:    time.Now().UTC(),
	}))
}

func TestProviderCreateAndFetchUser(t *testing.T) {
	p := NewProvider(newTestDB(t))
	ctx := context.Background()

	seedUser(t, p, "u1", "alice@example.com")

	byIdentifier, err := p.GetUserByIdentifier(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, "u1", byIdentifier.ID)
	require.Equal(t, authgate.AccountActive, byIdentifier.Status)

	byID, err := p.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", byID.Identifier)

	_, err = p.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, authgate.ErrUserNotFound)

	_, err = p.GetUserByIdentifier(ctx, "nobody@example.com")
	require.ErrorIs(t, err, authgate.ErrUserNotFound)
}

func TestProviderDuplicateIdentifier(t *testing.T) {
	p := NewProvider(newTestDB(t))
	ctx := context.Background()

	seedUser(t, p, "u1", "alice@example.com")

	err := p.CreateUser(ctx, &authgate.UserRecord{
		ID:           "u2",
		Identifier:   "alice@example.com",
		PasswordHash: "$argon2id$fake",
		Status:       authgate.AccountActive,
	})
	require.ErrorIs(t, err, authgate.ErrDuplicateIdentifier)
}

func TestProviderUpdatePasswordAndStatus(t *testing.T) {
	p := NewProvider(newTestDB(t))
	ctx := context.Background()

	seedUser(t, p, "u1", "alice@example.com")

	require.NoError(t, p.UpdatePasswordHash(ctx, "u1", "$argon2id$next"))
	require.NoError(t, p.UpdateAccountStatus(ctx, "u1", authgate.AccountDisabled))

	user, err := p.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "$argon2id$next", user.PasswordHash)
	require.Equal(t, authgate.AccountDisabled, user.Status)

	require.ErrorIs(t, p.UpdatePasswordHash(ctx, "missing", "x"), authgate.ErrUserNotFound)
	require.ErrorIs(t, p.UpdateAccountStatus(ctx, "missing", authgate.AccountActive), authgate.ErrUserNotFound)
}

func TestProviderStampLastLogin(t *testing.T) {
	p := NewProvider(newTestDB(t))
	ctx := context.Background()

	seedUser(t, p, "u1", "alice@example.com")

	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	require.NoError(t, p.StampLastLogin(ctx, "u1", at))

	user, err := p.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, user.LastLoginAt.Equal(at))
}

func TestProviderTOTPRecordLifecycle(t *testing.T) {
	p := NewProvider(newTestDB(t))
	ctx := context.Background()

	seedUser(t, p, "u1", "alice@example.com")

	_, err := p.GetTOTPRecord(ctx, "u1")
	require.ErrorIs(t, err, authgate.ErrTOTPSetupNotFound)

	rec := &authgate.TOTPRecord{
		UserID:          "u1",
		SealedSecret:    []byte{0x01, 0x02, 0x03},
		Confirmed:       false,
		Enabled:         false,
		LastUsedCounter: 0,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, p.SaveTOTPRecord(ctx, rec))

	rec.Confirmed = true
	rec.Enabled = true
	rec.LastUsedCounter = 42
	require.NoError(t, p.SaveTOTPRecord(ctx, rec))

	got, err := p.GetTOTPRecord(ctx, "u1")
	require.NoError(t, err)
	require.True(t, got.Enabled)
	require.Equal(t, int64(42), got.LastUsedCounter)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, got.SealedSecret)

	require.NoError(t, p.DeleteTOTPRecord(ctx, "u1"))
	_, err = p.GetTOTPRecord(ctx, "u1")
	require.ErrorIs(t, err, authgate.ErrTOTPSetupNotFound)
}

func TestProviderAdvanceTOTPCounterSingleWinner(t *testing.T) {
	p := NewProvider(newTestDB(t))
	ctx := context.Background()

	seedUser(t, p, "u1", "alice@example.com")
	require.NoError(t, p.SaveTOTPRecord(ctx, &authgate.TOTPRecord{
		UserID:          "u1",
		SealedSecret:    []byte{0xAA},
		Confirmed:       true,
		Enabled:         true,
		LastUsedCounter: 100,
		CreatedAt:       time.Now().UTC(),
	}))

	// First advance from the current counter wins.
	won, err := p.AdvanceTOTPCounter(ctx, "u1", 100, 101)
	require.NoError(t, err)
	require.True(t, won)

	// A second advance from the stale counter loses.
	won, err = p.AdvanceTOTPCounter(ctx, "u1", 100, 101)
	require.NoError(t, err)
	require.False(t, won)

	got, err := p.GetTOTPRecord(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(101), got.LastUsedCounter)
}

func TestProviderBackupCodeReplaceAndConsume(t *testing.T) {
	p := NewProvider(newTestDB(t))
	ctx := context.Background()

	seedUser(t, p, "u1", "alice@example.com")

	first := []authgate.BackupCodeRecord{
		{ID: "bc1", UserID: "u1", Salt: []byte("salt-1"), Hash: "$argon2id$one"},
		{ID: "bc2", UserID: "u1", Salt: []byte("salt-2"), Hash: "$argon2id$two"},
	}
	require.NoError(t, p.ReplaceBackupCodes(ctx, "u1", first))

	codes, err := p.GetBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, codes, 2)

	// Only the first consumption of a code succeeds.
	consumed, err := p.MarkBackupCodeUsed(ctx, "u1", "bc1", time.Now().UTC())
	require.NoError(t, err)
	require.True(t, consumed)

	consumed, err = p.MarkBackupCodeUsed(ctx, "u1", "bc1", time.Now().UTC())
	require.NoError(t, err)
	require.False(t, consumed)

	codes, err = p.GetBackupCodes(ctx, "u1")
	require.NoError(t, err)
	used := 0
	for _, c := range codes {
		if c.Used {
			used++
			require.False(t, c.UsedAt.IsZero())
		}
	}
	require.Equal(t, 1, used)

	// Replacement swaps the whole set, clearing consumed state.
	second := []authgate.BackupCodeRecord{
		{ID: "bc3", UserID: "u1", Salt: []byte("salt-3"), Hash: "$argon2id$three"},
	}
	require.NoError(t, p.ReplaceBackupCodes(ctx, "u1", second))

	codes, err = p.GetBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, codes, 1)
	require.Equal(t, "bc3", codes[0].ID)
	require.False(t, codes[0].Used)

	// Clearing with an empty set removes everything.
	require.NoError(t, p.ReplaceBackupCodes(ctx, "u1", nil))
	codes, err = p.GetBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, codes)
}
