package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"touchbase-backend/internal/contact/domain"
	"touchbase-backend/internal/contact/repository"
)

// webmailDomains are consumer mail providers whose domain says nothing about
// where the person works.
var webmailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"live.com":       true,
	"msn.com":        true,
	"aol.com":        true,
	"icloud.com":     true,
	"me.com":         true,
	"proton.me":      true,
	"protonmail.com": true,
	"gmx.com":        true,
	"mail.com":       true,
	"zoho.com":       true,
	"yandex.com":     true,
	"fastmail.com":   true,
	"hey.com":        true,
}

// ParticipantInput is one attendee or correspondent to resolve against the
// contact book.
type ParticipantInput struct {
	Email          string
	DisplayName    string
	IsOrganizer    bool
	ResponseStatus string
}

// Countable reports whether the participant represents a real attendee for
// contact purposes: not the organizer, and not someone who declined or never
// answered.
func (p ParticipantInput) Countable() bool {
	if p.IsOrganizer {
		return false
	}
	switch strings.ToLower(p.ResponseStatus) {
	case "accepted", "tentative", "tentativelyaccepted":
		return true
	case "":
		// mail correspondents carry no response status
		return true
	}
	return false
}

// MatchResult reports what happened to a batch of participants.
type MatchResult struct {
	// ByEmail maps lowercased address to the matched or created contact.
	ByEmail map[string]*domain.Contact
	Created int
	Matched int
}

// Matcher resolves external participants to contacts, creating new ones for
// addresses never seen before.
type Matcher struct {
	contactRepo repository.ContactRepository
	selfEmails  func(userID string) []string
}

// NewMatcher builds a Matcher. selfEmails returns the user's own connected
// account addresses so the user never becomes their own contact; it may be
// nil.
func NewMatcher(contactRepo repository.ContactRepository, selfEmails func(userID string) []string) *Matcher {
	return &Matcher{contactRepo: contactRepo, selfEmails: selfEmails}
}

// MatchOrCreate resolves every countable participant in one batched lookup,
// then creates contacts for the remainder. source labels where created
// contacts came from.
func (m *Matcher) MatchOrCreate(userID string, participants []ParticipantInput, source string) (*MatchResult, error) {
	result := &MatchResult{ByEmail: make(map[string]*domain.Contact)}

	self := make(map[string]bool)
	if m.selfEmails != nil {
		for _, email := range m.selfEmails(userID) {
			self[strings.ToLower(email)] = true
		}
	}

	seen := make(map[string]ParticipantInput)
	emails := make([]string, 0, len(participants))
	for _, p := range participants {
		if !p.Countable() || p.Email == "" {
			continue
		}
		key := strings.ToLower(p.Email)
		if self[key] {
			continue
		}
		if _, ok := seen[key]; !ok {
			seen[key] = p
			emails = append(emails, key)
		}
	}
	if len(emails) == 0 {
		return result, nil
	}

	existing, err := m.contactRepo.FindByEmails(userID, emails)
	if err != nil {
		return nil, fmt.Errorf("failed to look up contacts by email: %w", err)
	}

	var created []*domain.Contact
	for _, key := range emails {
		if contact, ok := existing[key]; ok {
			result.ByEmail[key] = contact
			result.Matched++
			continue
		}
		p := seen[key]
		contact := m.newContact(userID, p, source)
		created = append(created, contact)
		result.ByEmail[key] = contact
		result.Created++
	}

	if err := m.contactRepo.CreateBatch(created); err != nil {
		return nil, fmt.Errorf("failed to create contacts: %w", err)
	}
	return result, nil
}

func (m *Matcher) newContact(userID string, p ParticipantInput, source string) *domain.Contact {
	first, last := ParseName(p.DisplayName, p.Email)
	return &domain.Contact{
		ID:        uuid.New().String(),
		UserID:    userID,
		FirstName: first,
		LastName:  last,
		Email:     strings.ToLower(p.Email),
		Company:   InferCompany(p.Email),
		Source:    source,
	}
}

// ParseName derives first and last name from a display name, falling back to
// the email local part. When nothing usable remains the first name is the
// "Unknown" placeholder.
func ParseName(displayName, email string) (first, last string) {
	name := strings.TrimSpace(displayName)
	// providers sometimes echo the address as the display name
	if strings.EqualFold(name, email) {
		name = ""
	}
	if name != "" {
		parts := strings.Fields(name)
		if len(parts) == 1 {
			return parts[0], ""
		}
		return parts[0], strings.Join(parts[1:], " ")
	}

	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	parts := splitLocalPart(local)
	switch len(parts) {
	case 0:
		return domain.UnknownName, ""
	case 1:
		return titleCase(parts[0]), ""
	default:
		return titleCase(parts[0]), titleCase(strings.Join(parts[1:], " "))
	}
}

func splitLocalPart(local string) []string {
	fields := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" && !isNumeric(f) {
			out = append(out, f)
		}
	}
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// InferCompany guesses an organization from the email domain. Webmail domains
// yield nothing.
func InferCompany(email string) string {
	at := strings.Index(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	host := strings.ToLower(email[at+1:])
	if webmailDomains[host] {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return ""
	}
	return titleCase(labels[0])
}

// AttendeeSummary aggregates how often one address showed up across meetings.
type AttendeeSummary struct {
	Email            string    `json:"email"`
	DisplayName      string    `json:"display_name"`
	MeetingCount     int       `json:"meeting_count"`
	FirstMeetingDate time.Time `json:"first_meeting_date"`
	LastMeetingDate  time.Time `json:"last_meeting_date"`
}

// AggregateAttendees rolls interactions up into per-address summaries,
// counting only participants who actually attended. Results are ordered by
// meeting count, then address.
func AggregateAttendees(interactions []domain.Interaction) []AttendeeSummary {
	byEmail := make(map[string]*AttendeeSummary)
	for _, interaction := range interactions {
		for _, p := range interaction.Participants {
			input := ParticipantInput{
				Email:          p.Email,
				IsOrganizer:    p.IsOrganizer,
				ResponseStatus: p.ResponseStatus,
			}
			if !input.Countable() || p.Email == "" {
				continue
			}
			key := strings.ToLower(p.Email)
			summary, ok := byEmail[key]
			if !ok {
				summary = &AttendeeSummary{Email: key, DisplayName: p.DisplayName}
				byEmail[key] = summary
			}
			if summary.DisplayName == "" {
				summary.DisplayName = p.DisplayName
			}
			summary.MeetingCount++
			occurred := interaction.OccurredAt
			if summary.FirstMeetingDate.IsZero() || occurred.Before(summary.FirstMeetingDate) {
				summary.FirstMeetingDate = occurred
			}
			if occurred.After(summary.LastMeetingDate) {
				summary.LastMeetingDate = occurred
			}
		}
	}

	summaries := make([]AttendeeSummary, 0, len(byEmail))
	for _, s := range byEmail {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].MeetingCount != summaries[j].MeetingCount {
			return summaries[i].MeetingCount > summaries[j].MeetingCount
		}
		return summaries[i].Email < summaries[j].Email
	})
	return summaries
}
