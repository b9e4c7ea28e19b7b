package domain

import "time"

// ProviderType identifies one external calendar or mailbox source
type ProviderType string

const (
	ProviderGoogleCalendar  ProviderType = "calendar-google"
	ProviderOutlookCalendar ProviderType = "calendar-outlook"
	ProviderGmail           ProviderType = "mail-gmail"
	ProviderOutlookMail     ProviderType = "mail-outlook"
)

// Valid reports whether t is a known provider type
func (t ProviderType) Valid() bool {
	switch t {
	case ProviderGoogleCalendar, ProviderOutlookCalendar, ProviderGmail, ProviderOutlookMail:
		return true
	}
	return false
}

// IsCalendar reports whether the provider syncs calendar events
func (t ProviderType) IsCalendar() bool {
	return t == ProviderGoogleCalendar || t == ProviderOutlookCalendar
}

// Integration stores one user's connection to an external provider.
// Tokens are encrypted at rest; at most one active integration exists per
// (user, provider type).
type Integration struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	UserID       string       `json:"user_id" gorm:"index:idx_integration_user_provider,unique;not null"`
	Provider     ProviderType `json:"provider" gorm:"index:idx_integration_user_provider,unique;not null"`
	AccessToken  string       `json:"-" gorm:"not null"` // encrypted
	RefreshToken string       `json:"-"`                 // encrypted, may be empty
	ExpiresAt    time.Time    `json:"expires_at"`
	AccountEmail string       `json:"account_email"`
	IsActive     bool         `json:"is_active" gorm:"default:true"`
	Metadata     string       `json:"-" gorm:"type:text"` // provider-specific JSON
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// OAuthState is a short-lived, single-use CSRF token for the authorization
// step. Persisted so correctness survives restarts and multiple instances.
type OAuthState struct {
	State      string       `json:"state" gorm:"primaryKey"`
	UserID     string       `json:"user_id" gorm:"not null"`
	Provider   ProviderType `json:"provider" gorm:"not null"`
	RedirectTo string       `json:"redirect_to"`
	ExpiresAt  time.Time    `json:"expires_at" gorm:"index"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Expired reports whether the state is past its TTL
func (s *OAuthState) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// SyncState holds the incremental cursor and settings for one (user, provider)
// sync domain. The cursor is opaque: a Google syncToken, a Gmail historyId or
// a Graph deltaLink, depending on the provider.
type SyncState struct {
	ID              string       `json:"id" gorm:"primaryKey"`
	UserID          string       `json:"user_id" gorm:"index:idx_sync_state_user_provider,unique;not null"`
	Provider        ProviderType `json:"provider" gorm:"index:idx_sync_state_user_provider,unique;not null"`
	Cursor          string       `json:"-" gorm:"type:text"`
	LastSyncAt      *time.Time   `json:"last_sync_at"`
	Enabled         bool         `json:"enabled" gorm:"default:true"`
	SelectedSources string       `json:"selected_sources" gorm:"type:text"` // JSON array of calendar/folder IDs
	LookbackDays    int          `json:"lookback_days" gorm:"default:90"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
