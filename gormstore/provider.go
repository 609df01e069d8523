package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/venrik/authgate"
)

// Provider implements authgate.UserProvider on a gorm database.
type Provider struct {
	db *gorm.DB
}

// NewProvider describes the newprovider operation and its observable behavior.
func NewProvider(db *gorm.DB) *Provider {
	return &Provider{db: db}
}

func toUserRecord(u *User) *authgate.UserRecord {
	return &authgate.UserRecord{
		ID:           u.ID,
		Identifier:   u.Identifier,
		PasswordHash: u.PasswordHash,
		Status:       authgate.AccountStatus(u.Status),
		CreatedAt:    u.CreatedAt,
		LastLoginAt:  u.LastLoginAt,
	}
}

// GetUserByIdentifier describes the getuserbyidentifier operation and its observable behavior.
//
// GetUserByIdentifier may return an error when input validation, dependency calls, or security checks fail.
// GetUserByIdentifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Provider) GetUserByIdentifier(ctx context.Context, identifier string) (*authgate.UserRecord, error) {
	var u User
	err := p.db.WithContext(ctx).Where("identifier = ?", identifier).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authgate.ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user by identifier: %w", err)
	}
	return toUserRecord(&u), nil
}

// GetUserByID describes the getuserbyid operation and its observable behavior.
//
// GetUserByID may return an error when input validation, dependency calls, or security checks fail.
// GetUserByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Provider) GetUserByID(ctx context.Context, userID string) (*authgate.UserRecord, error) {
	var u User
	err := p.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authgate.ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user by id: %w", err)
	}
	return toUserRecord(&u), nil
}

// CreateUser describes the createuser operation and its observable behavior.
//
// CreateUser may return an error when input validation, dependency calls, or security checks fail.
// CreateUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Provider) CreateUser(ctx context.Context, user *authgate.UserRecord) error {
	row := User{
		ID:           user.ID,
		Identifier:   user.Identifier,
		PasswordHash: user.PasswordHash,
		Status:       string(user.Status),
		CreatedAt:    user.CreatedAt,
		LastLoginAt:  user.LastLoginAt,
	}
	err := p.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return authgate.ErrDuplicateIdentifier
		}
		// Drivers without error translation report the unique violation as a
		// generic error; disambiguate with a lookup.
		var existing User
		if lookupErr := p.db.WithContext(ctx).Where("identifier = ?", user.Identifier).First(&existing).Error; lookupErr == nil {
			return authgate.ErrDuplicateIdentifier
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
//
// UpdatePasswordHash may return an error when input validation, dependency calls, or security checks fail.
// UpdatePasswordHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Provider) UpdatePasswordHash(ctx context.Context, userID, hash string) error {
	res := p.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("password_hash", hash)
	if res.Error != nil {
		return fmt.Errorf("update password hash: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return authgate.ErrUserNotFound
	}
	return nil
}

// UpdateAccountStatus describes the updateaccountstatus operation and its observable behavior.
//
// UpdateAccountStatus may return an error when input validation, dependency calls, or security checks fail.
// UpdateAccountStatus does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Provider) UpdateAccountStatus(ctx context.Context, userID string, status authgate.AccountStatus) error {
	res := p.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("update account status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return authgate.ErrUserNotFound
	}
	return nil
}

// StampLastLogin describes the stamplastlogin operation and its observable behavior.
//
// StampLastLogin may return an error when input validation, dependency calls, or security checks fail.
// StampLastLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Provider) StampLastLogin(ctx context.Context, userID string, at time.Time) error {
	res := p.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("last_login_at", at)
	if res.Error != nil {
		return fmt.Errorf("stamp last login: %w", res.Error)
	}
	return nil
}

/*
====================================
TOTP STATE
====================================
*/

// GetTOTPRecord describes the gettotprecord operation and its observable behavior.
//
// GetTOTPRecord may return an error when input validation, dependency calls, or security checks fail.
// GetTOTPRecord does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Provider) GetTOTPRecord(ctx context.Context, userID string) (*authgate.TOTPRecord, error) {
	var row TOTPCredential
	err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, authgate.ErrTOTPSetupNotFound
		}
		return nil, fmt.Errorf("lookup totp record: %w", err)
	}
	return &authgate.TOTPRecord{
		UserID:          row.UserID,
		SealedSecret:    row.SealedSecret,
		Confirmed:       row.Confirmed,
		Enabled:         row.Enabled,
		LastUsedCounter: row.LastUsedCounter,
		CreatedAt:       row.CreatedAt,
	}, nil
}

// SaveTOTPRecord describes the savetotprecord operation and its observable behavior.
//
// SaveTOTPRecord may return an error when input validation, dependency calls, or security checks fail.
// SaveTOTPRecord does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Provider) SaveTOTPRecord(ctx context.Context, rec *authgate.TOTPRecord) error {
	row := TOTPCredential{
		UserID:          rec.UserID,
		SealedSecret:    rec.SealedSecret,
		Confirmed:       rec.Confirmed,
		Enabled:         rec.Enabled,
		LastUsedCounter: rec.LastUsedCounter,
		CreatedAt:       rec.CreatedAt,
	}
	err := p.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return fmt.Errorf("save totp record: %w", err)
	}
	return nil
}

// DeleteTOTPRecord describes the deletetotprecord operation and its observable behavior.
//
// DeleteTOTPRecord may return an error when input validation, dependency calls, or security checks fail.
// DeleteTOTPRecord does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Provider) DeleteTOTPRecord(ctx context.Context, userID string) error {
	err := p.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&TOTPCredential{}).Error
	if err != nil {
		return fmt.Errorf("delete totp record: %w", err)
	}
	return nil
}

// AdvanceTOTPCounter describes the advancetotpcounter operation and its observable behavior.
//
// AdvanceTOTPCounter may return an error when input validation, dependency calls, or security checks fail.
// AdvanceTOTPCounter does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The update is conditional on the stored counter still equaling prev, so
// two verifications of the same code produce one winner.
func (p *Provider) AdvanceTOTPCounter(ctx context.Context, userID string, prev, next int64) (bool, error) {
	res := p.db.WithContext(ctx).
		Model(&TOTPCredential{}).
		Where("user_id = ? AND last_used_counter = ?", userID, prev).
		Update("last_used_counter", next)
	if res.Error != nil {
		return false, fmt.Errorf("advance totp counter: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

/*
====================================
BACKUP CODES
====================================
*/

// GetBackupCodes describes the getbackupcodes operation and its observable behavior.
//
// GetBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// GetBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Provider) GetBackupCodes(ctx context.Context, userID string) ([]authgate.BackupCodeRecord, error) {
	var rows []BackupCode
	err := p.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list backup codes: %w", err)
	}

	out := make([]authgate.BackupCodeRecord, 0, len(rows))
	for _, row := range rows {
		rec := authgate.BackupCodeRecord{
			ID:     row.ID,
			UserID: row.UserID,
			Salt:   row.Salt,
			Hash:   row.Hash,
			Used:   row.Used,
		}
		if row.UsedAt != nil {
			rec.UsedAt = *row.UsedAt
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReplaceBackupCodes describes the replacebackupcodes operation and its observable behavior.
//
// ReplaceBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// ReplaceBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// The swap happens inside one transaction: the old set is never partially
// visible next to the new one.
func (p *Provider) ReplaceBackupCodes(ctx context.Context, userID string, codes []authgate.BackupCodeRecord) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
			return fmt.Errorf("clear backup codes: %w", err)
		}
		for _, rec := range codes {
			row := BackupCode{
				ID:     rec.ID,
				UserID: rec.UserID,
				Salt:   rec.Salt,
				Hash:   rec.Hash,
				Used:   rec.Used,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert backup code: %w", err)
			}
		}
		return nil
	})
}

// MarkBackupCodeUsed describes the markbackupcodeused operation and its observable behavior.
//
// MarkBackupCodeUsed may return an error when input validation, dependency calls, or security checks fail.
// MarkBackupCodeUsed does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Consumption is conditional on used still being false; racing callers get
// exactly one true result.
func (p *Provider) MarkBackupCodeUsed(ctx context.Context, userID, codeID string, at time.Time) (bool, error) {
	res := p.db.WithContext(ctx).
		Model(&BackupCode{}).
		Where("id = ? AND user_id = ? AND used = ?", codeID, userID, false).
		Updates(map[string]interface{}{"used": true, "used_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("mark backup code used: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
