package tokens

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pennyflow/backend/internal/models"
)

// Store persists token records, one row per user
type Store struct {
	db *gorm.DB
}

// NewStore creates a credential store backed by the given database
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the token record for a user, or nil when the user has never
// completed a link. Absence is not an error.
func (s *Store) Get(ctx context.Context, userID int) (*models.TokenRecord, error) {
	var rec models.TokenRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token record: %w", err)
	}
	return &rec, nil
}

// Save upserts the token record for rec.UserID, replacing any existing row.
// created_at is reset so the stored timestamp always reflects the latest
// issuance, which the expiry fallback depends on.
func (s *Store) Save(ctx context.Context, rec *models.TokenRecord) (*models.TokenRecord, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"access_token", "refresh_token", "expires_in", "scope", "token_type", "created_at",
		}),
	}).Create(rec).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save token record: %w", err)
	}
	return rec, nil
}
