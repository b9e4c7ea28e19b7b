package repository

import (
	"time"

	"touchbase-backend/internal/contact/domain"

	"gorm.io/gorm"
)

type InteractionRepository interface {
	Create(interaction *domain.Interaction) error
	Update(interaction *domain.Interaction) error
	GetByExternal(userID, externalID, externalSource string) (*domain.Interaction, error)
	ListByUser(userID string, from, to time.Time, limit, offset int) ([]domain.Interaction, int64, error)
	ListByContact(userID, contactID string, limit int) ([]domain.Interaction, error)
	ReplaceParticipants(interactionID string, participants []domain.InteractionParticipant) error
}

type interactionRepository struct {
	db *gorm.DB
}

func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

func (r *interactionRepository) Create(interaction *domain.Interaction) error {
	return r.db.Create(interaction).Error
}

func (r *interactionRepository) Update(interaction *domain.Interaction) error {
	return r.db.Omit("Participants").Save(interaction).Error
}

func (r *interactionRepository) GetByExternal(userID, externalID, externalSource string) (*domain.Interaction, error) {
	var interaction domain.Interaction
	err := r.db.Where("user_id = ? AND external_id = ? AND external_source = ?", userID, externalID, externalSource).
		Preload("Participants").
		First(&interaction).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &interaction, nil
}

func (r *interactionRepository) ListByUser(userID string, from, to time.Time, limit, offset int) ([]domain.Interaction, int64, error) {
	query := r.db.Model(&domain.Interaction{}).Where("user_id = ?", userID)
	if !from.IsZero() {
		query = query.Where("occurred_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("occurred_at <= ?", to)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var interactions []domain.Interaction
	err := query.Preload("Participants").
		Order("occurred_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&interactions).Error
	if err != nil {
		return nil, 0, err
	}
	return interactions, total, nil
}

func (r *interactionRepository) ListByContact(userID, contactID string, limit int) ([]domain.Interaction, error) {
	var ids []string
	err := r.db.Model(&domain.InteractionParticipant{}).
		Where("contact_id = ?", contactID).
		Pluck("interaction_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var interactions []domain.Interaction
	err = r.db.Where("user_id = ? AND id IN ?", userID, ids).
		Preload("Participants").
		Order("occurred_at DESC").
		Limit(limit).
		Find(&interactions).Error
	if err != nil {
		return nil, err
	}
	return interactions, nil
}

func (r *interactionRepository) ReplaceParticipants(interactionID string, participants []domain.InteractionParticipant) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("interaction_id = ?", interactionID).Delete(&domain.InteractionParticipant{}).Error; err != nil {
			return err
		}
		if len(participants) == 0 {
			return nil
		}
		return tx.Create(&participants).Error
	})
}
