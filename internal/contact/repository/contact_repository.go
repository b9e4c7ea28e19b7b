package repository

import (
	"strings"
	"time"

	"touchbase-backend/internal/contact/domain"

	"gorm.io/gorm"
)

type ContactRepository interface {
	Create(contact *domain.Contact) error
	CreateBatch(contacts []*domain.Contact) error
	Update(contact *domain.Contact) error
	GetByID(userID, id string) (*domain.Contact, error)
	ListByUser(userID string, limit, offset int) ([]domain.Contact, int64, error)
	// FindByEmails resolves all given addresses case-insensitively in one
	// query. Keys in the returned map are lowercased.
	FindByEmails(userID string, emails []string) (map[string]*domain.Contact, error)
	// AdvanceLastContact moves last_contact_at forward to at, never
	// backward.
	AdvanceLastContact(contactID string, at time.Time) error
	Delete(userID, id string) error
}

type contactRepository struct {
	db *gorm.DB
}

func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) Create(contact *domain.Contact) error {
	return r.db.Create(contact).Error
}

func (r *contactRepository) CreateBatch(contacts []*domain.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	return r.db.Create(contacts).Error
}

func (r *contactRepository) Update(contact *domain.Contact) error {
	return r.db.Save(contact).Error
}

func (r *contactRepository) GetByID(userID, id string) (*domain.Contact, error) {
	var contact domain.Contact
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&contact).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

func (r *contactRepository) ListByUser(userID string, limit, offset int) ([]domain.Contact, int64, error) {
	var contacts []domain.Contact
	var total int64

	if err := r.db.Model(&domain.Contact{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Where("user_id = ?", userID).
		Order("last_contact_at DESC NULLS LAST").
		Limit(limit).
		Offset(offset).
		Find(&contacts).Error
	if err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

func (r *contactRepository) FindByEmails(userID string, emails []string) (map[string]*domain.Contact, error) {
	result := make(map[string]*domain.Contact, len(emails))
	if len(emails) == 0 {
		return result, nil
	}

	lowered := make([]string, 0, len(emails))
	for _, email := range emails {
		if email == "" {
			continue
		}
		lowered = append(lowered, strings.ToLower(email))
	}
	if len(lowered) == 0 {
		return result, nil
	}

	var contacts []domain.Contact
	err := r.db.Where("user_id = ? AND LOWER(email) IN ?", userID, lowered).Find(&contacts).Error
	if err != nil {
		return nil, err
	}
	for i := range contacts {
		result[strings.ToLower(contacts[i].Email)] = &contacts[i]
	}
	return result, nil
}

func (r *contactRepository) AdvanceLastContact(contactID string, at time.Time) error {
	return r.db.Model(&domain.Contact{}).
		Where("id = ? AND (last_contact_at IS NULL OR last_contact_at < ?)", contactID, at).
		Update("last_contact_at", at).Error
}

func (r *contactRepository) Delete(userID, id string) error {
	return r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Contact{}).Error
}
