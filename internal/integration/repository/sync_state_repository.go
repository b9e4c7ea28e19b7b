package repository

import (
	"touchbase-backend/internal/integration/domain"

	"gorm.io/gorm"
)

type SyncStateRepository interface {
	Create(state *domain.SyncState) error
	Update(state *domain.SyncState) error
	GetByUserAndProvider(userID string, provider domain.ProviderType) (*domain.SyncState, error)
	ListByUser(userID string) ([]domain.SyncState, error)
	DeleteByUserAndProvider(userID string, provider domain.ProviderType) error
}

type syncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) SyncStateRepository {
	return &syncStateRepository{db: db}
}

func (r *syncStateRepository) Create(state *domain.SyncState) error {
	return r.db.Create(state).Error
}

func (r *syncStateRepository) Update(state *domain.SyncState) error {
	return r.db.Save(state).Error
}

func (r *syncStateRepository) GetByUserAndProvider(userID string, provider domain.ProviderType) (*domain.SyncState, error) {
	var state domain.SyncState
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&state).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *syncStateRepository) ListByUser(userID string) ([]domain.SyncState, error) {
	var states []domain.SyncState
	err := r.db.Where("user_id = ?", userID).Find(&states).Error
	if err != nil {
		return nil, err
	}
	return states, nil
}

func (r *syncStateRepository) DeleteByUserAndProvider(userID string, provider domain.ProviderType) error {
	return r.db.Where("user_id = ? AND provider = ?", userID, provider).Delete(&domain.SyncState{}).Error
}
