package repository

import (
	"time"

	"touchbase-backend/internal/integration/domain"

	"gorm.io/gorm"
)

type OAuthStateRepository interface {
	Create(state *domain.OAuthState) error
	// Consume atomically deletes and returns the state, so a replayed
	// callback with the same value fails. Returns nil when the state does
	// not exist or has already been used.
	Consume(state string) (*domain.OAuthState, error)
	DeleteExpired(before time.Time) (int64, error)
}

type oauthStateRepository struct {
	db *gorm.DB
}

func NewOAuthStateRepository(db *gorm.DB) OAuthStateRepository {
	return &oauthStateRepository{db: db}
}

func (r *oauthStateRepository) Create(state *domain.OAuthState) error {
	return r.db.Create(state).Error
}

func (r *oauthStateRepository) Consume(state string) (*domain.OAuthState, error) {
	var record domain.OAuthState
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("state = ?", state).First(&record).Error; err != nil {
			return err
		}
		return tx.Where("state = ?", state).Delete(&domain.OAuthState{}).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *oauthStateRepository) DeleteExpired(before time.Time) (int64, error) {
	result := r.db.Where("expires_at < ?", before).Delete(&domain.OAuthState{})
	return result.RowsAffected, result.Error
}
