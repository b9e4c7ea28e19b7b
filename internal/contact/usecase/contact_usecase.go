package usecase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"touchbase-backend/internal/contact/domain"
	"touchbase-backend/internal/contact/repository"
)

type CreateContactInput struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
	JobTitle  string `json:"job_title"`
	Notes     string `json:"notes"`
}

type UpdateContactInput struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
	Company   *string `json:"company"`
	JobTitle  *string `json:"job_title"`
	Notes     *string `json:"notes"`
}

type ContactUsecase struct {
	contactRepo     repository.ContactRepository
	interactionRepo repository.InteractionRepository
}

func NewContactUsecase(contactRepo repository.ContactRepository, interactionRepo repository.InteractionRepository) *ContactUsecase {
	return &ContactUsecase{
		contactRepo:     contactRepo,
		interactionRepo: interactionRepo,
	}
}

func (u *ContactUsecase) Create(userID string, input *CreateContactInput) (*domain.Contact, error) {
	contact := &domain.Contact{
		ID:        uuid.New().String(),
		UserID:    userID,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:     input.Phone,
		Company:   input.Company,
		JobTitle:  input.JobTitle,
		Notes:     input.Notes,
		Source:    "manual",
	}
	if err := u.contactRepo.Create(contact); err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	return contact, nil
}

func (u *ContactUsecase) Update(userID, id string, input *UpdateContactInput) (*domain.Contact, error) {
	contact, err := u.contactRepo.GetByID(userID, id)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, errors.New("contact not found")
	}

	if input.FirstName != nil {
		contact.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		contact.LastName = *input.LastName
	}
	if input.Email != nil {
		contact.Email = strings.ToLower(strings.TrimSpace(*input.Email))
	}
	if input.Phone != nil {
		contact.Phone = *input.Phone
	}
	if input.Company != nil {
		contact.Company = *input.Company
	}
	if input.JobTitle != nil {
		contact.JobTitle = *input.JobTitle
	}
	if input.Notes != nil {
		contact.Notes = *input.Notes
	}

	if err := u.contactRepo.Update(contact); err != nil {
		return nil, fmt.Errorf("failed to update contact: %w", err)
	}
	return contact, nil
}

func (u *ContactUsecase) Get(userID, id string) (*domain.Contact, error) {
	return u.contactRepo.GetByID(userID, id)
}

func (u *ContactUsecase) List(userID string, limit, offset int) ([]domain.Contact, int64, error) {
	return u.contactRepo.ListByUser(userID, limit, offset)
}

func (u *ContactUsecase) Delete(userID, id string) error {
	return u.contactRepo.Delete(userID, id)
}

func (u *ContactUsecase) History(userID, contactID string, limit int) ([]domain.Interaction, error) {
	return u.interactionRepo.ListByContact(userID, contactID, limit)
}

func (u *ContactUsecase) Timeline(userID string, from, to time.Time, limit, offset int) ([]domain.Interaction, int64, error) {
	return u.interactionRepo.ListByUser(userID, from, to, limit, offset)
}
