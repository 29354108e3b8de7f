package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-refund-backend/internal/domain"
)

// GetMerchant fetches a merchant by id.
func GetMerchant(ctx context.Context, db *gorm.DB, id string) (*domain.Merchant, error) {
	var m domain.Merchant
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMerchantByApp fetches a merchant by its authorized app id.
func GetMerchantByApp(ctx context.Context, db *gorm.DB, authorizedAppID string) (*domain.Merchant, error) {
	var m domain.Merchant
	if err := db.WithContext(ctx).Where("authorized_app_id = ?", authorizedAppID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FirstMerchant returns the oldest merchant. The single-store portal uses it
// when the caller does not name a store.
func FirstMerchant(ctx context.Context, db *gorm.DB) (*domain.Merchant, error) {
	var m domain.Merchant
	if err := db.WithContext(ctx).Order("created_at asc").Order("id asc").First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMerchant inserts m. A concurrent insert of the same merchant yields
// ErrDuplicate.
func CreateMerchant(ctx context.Context, db *gorm.DB, m *domain.Merchant) error {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// UpdateMerchantSettings writes the portal settings of merchant id.
func UpdateMerchantSettings(ctx context.Context, db *gorm.DB, id string, portalURL *string, portalEnabled bool) error {
	res := db.WithContext(ctx).
		Model(&domain.Merchant{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"portal_url":     portalURL,
			"portal_enabled": portalEnabled,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAuthTokenByApp returns the stored credential of an installation.
func GetAuthTokenByApp(ctx context.Context, db *gorm.DB, authorizedAppID string) (*domain.AuthToken, error) {
	var t domain.AuthToken
	if err := db.WithContext(ctx).Where("authorized_app_id = ?", authorizedAppID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetAuthTokenForMerchant returns the most recently refreshed credential of
// any installation belonging to merchantID.
func GetAuthTokenForMerchant(ctx context.Context, db *gorm.DB, merchantID string) (*domain.AuthToken, error) {
	var t domain.AuthToken
	err := db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("updated_at desc").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveAuthToken inserts or replaces the credential of an installation.
func SaveAuthToken(ctx context.Context, db *gorm.DB, t *domain.AuthToken) error {
	if t == nil || t.AuthorizedAppID == "" {
		return errors.New("auth token requires authorized app id")
	}
	t.UpdatedAt = time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "authorized_app_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"merchant_id", "access_token", "token_type", "expires_at", "updated_at"}),
		}).
		Create(t).Error
}
