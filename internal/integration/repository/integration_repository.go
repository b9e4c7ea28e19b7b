package repository

import (
	"touchbase-backend/internal/integration/domain"

	"gorm.io/gorm"
)

type IntegrationRepository interface {
	Create(integration *domain.Integration) error
	Update(integration *domain.Integration) error
	GetByID(id string) (*domain.Integration, error)
	GetByUserAndProvider(userID string, provider domain.ProviderType) (*domain.Integration, error)
	ListByUser(userID string) ([]domain.Integration, error)
	ListActive() ([]domain.Integration, error)
	Delete(id string) error
}

type integrationRepository struct {
	db *gorm.DB
}

func NewIntegrationRepository(db *gorm.DB) IntegrationRepository {
	return &integrationRepository{db: db}
}

func (r *integrationRepository) Create(integration *domain.Integration) error {
	return r.db.Create(integration).Error
}

func (r *integrationRepository) Update(integration *domain.Integration) error {
	return r.db.Save(integration).Error
}

func (r *integrationRepository) GetByID(id string) (*domain.Integration, error) {
	var integration domain.Integration
	err := r.db.Where("id = ?", id).First(&integration).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) GetByUserAndProvider(userID string, provider domain.ProviderType) (*domain.Integration, error) {
	var integration domain.Integration
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&integration).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) ListByUser(userID string) ([]domain.Integration, error) {
	var integrations []domain.Integration
	err := r.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&integrations).Error
	if err != nil {
		return nil, err
	}
	return integrations, nil
}

func (r *integrationRepository) ListActive() ([]domain.Integration, error) {
	var integrations []domain.Integration
	err := r.db.Where("is_active = ?", true).Find(&integrations).Error
	if err != nil {
		return nil, err
	}
	return integrations, nil
}

func (r *integrationRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&domain.Integration{}).Error
}
