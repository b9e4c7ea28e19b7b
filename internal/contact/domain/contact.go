package domain

import "time"

// Contact is a person the user knows, created manually or imported from a
// synced calendar or mailbox.
type Contact struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	UserID        string     `json:"user_id" gorm:"index;not null"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Email         string     `json:"email" gorm:"index"`
	Phone         string     `json:"phone"`
	Company       string     `json:"company"`
	JobTitle      string     `json:"job_title"`
	Source        string     `json:"source"` // "manual" or a provider type
	LastContactAt *time.Time `json:"last_contact_at"`
	Notes         string     `json:"notes" gorm:"type:text"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// FullName joins the name parts, skipping the placeholder used when a
// participant arrived with no usable name.
func (c *Contact) FullName() string {
	if c.FirstName == UnknownName && c.LastName == "" {
		return c.Email
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// UnknownName marks contacts whose display name could not be derived.
const UnknownName = "Unknown"

// Interaction is one synced meeting or email thread touching the user.
// (user_id, external_id, external_source) is the upsert key: re-syncing the
// same item updates in place.
type Interaction struct {
	ID             string     `json:"id" gorm:"primaryKey"`
	UserID         string     `json:"user_id" gorm:"index;uniqueIndex:idx_interaction_external;not null"`
	Kind           string     `json:"kind"` // "meeting" or "email"
	Title          string     `json:"title"`
	OccurredAt     time.Time  `json:"occurred_at" gorm:"index"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	ExternalID     string     `json:"external_id" gorm:"uniqueIndex:idx_interaction_external;not null"`
	ExternalSource string     `json:"external_source" gorm:"uniqueIndex:idx_interaction_external;not null"`
	Location       string     `json:"location"`
	Description    string     `json:"description" gorm:"type:text"`

	Participants []InteractionParticipant `json:"participants" gorm:"foreignKey:InteractionID"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// InteractionParticipant records one attendee or correspondent on an
// interaction. ContactID is set only when the participant matched or created
// a contact.
type InteractionParticipant struct {
	ID             string `json:"id" gorm:"primaryKey"`
	InteractionID  string `json:"interaction_id" gorm:"index;not null"`
	ContactID      string `json:"contact_id,omitempty" gorm:"index"`
	Email          string `json:"email"`
	DisplayName    string `json:"display_name"`
	IsOrganizer    bool   `json:"is_organizer"`
	ResponseStatus string `json:"response_status"` // accepted, tentative, declined, needsAction
}
