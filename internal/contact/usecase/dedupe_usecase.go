package usecase

import (
	"fmt"
	"strings"

	"touchbase-backend/internal/contact/domain"
	"touchbase-backend/internal/contact/repository"
	"touchbase-backend/pkg/fuzzy"
)

// MatchLevel buckets a duplicate score.
type MatchLevel string

const (
	MatchExact     MatchLevel = "exact"
	MatchFuzzy     MatchLevel = "fuzzy"
	MatchPotential MatchLevel = "potential"
)

const (
	exactThreshold     = 1.0
	fuzzyThreshold     = 0.85
	potentialThreshold = 0.70
)

// DuplicatePair is a candidate pair of contacts that likely describe the same
// person.
type DuplicatePair struct {
	ContactA *domain.Contact `json:"contact_a"`
	ContactB *domain.Contact `json:"contact_b"`
	Score    float64         `json:"score"`
	Level    MatchLevel      `json:"level"`
	Reasons  []string        `json:"reasons"`
}

// Deduplicator scores contact pairs and reports probable duplicates.
type Deduplicator struct {
	contactRepo repository.ContactRepository
}

func NewDeduplicator(contactRepo repository.ContactRepository) *Deduplicator {
	return &Deduplicator{contactRepo: contactRepo}
}

// FindDuplicates compares every pair of the user's contacts and returns those
// scoring at or above the potential threshold, strongest first.
func (d *Deduplicator) FindDuplicates(userID string) ([]DuplicatePair, error) {
	contacts, _, err := d.contactRepo.ListByUser(userID, 10000, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}

	var pairs []DuplicatePair
	for i := 0; i < len(contacts); i++ {
		for j := i + 1; j < len(contacts); j++ {
			score, reasons := Score(&contacts[i], &contacts[j])
			if score < potentialThreshold {
				continue
			}
			pairs = append(pairs, DuplicatePair{
				ContactA: &contacts[i],
				ContactB: &contacts[j],
				Score:    score,
				Level:    levelFor(score),
				Reasons:  reasons,
			})
		}
	}

	for i := 0; i < len(pairs); i++ {
		for j := i + 1; j < len(pairs); j++ {
			if pairs[j].Score > pairs[i].Score {
				pairs[i], pairs[j] = pairs[j], pairs[i]
			}
		}
	}
	return pairs, nil
}

// Score rates how likely two contacts are the same person, in [0, 1]. It is
// the average edit-distance similarity over every field both contacts have
// filled in, so a pair described only by names can still reach the fuzzy
// threshold. Email identity alone is conclusive and bypasses the average.
func Score(a, b *domain.Contact) (float64, []string) {
	if a.Email != "" && strings.EqualFold(a.Email, b.Email) {
		return 1.0, []string{"identical email"}
	}

	var reasons []string
	total := 0.0
	fields := 0
	compare := func(va, vb, label string) {
		sim := fuzzy.Similarity(va, vb)
		total += sim
		fields++
		if sim >= 0.9 {
			reasons = append(reasons, label)
		}
	}

	// local parts only: shared mail domains would inflate the distance score
	if la, lb := localPart(a.Email), localPart(b.Email); la != "" && lb != "" {
		compare(la, lb, "similar email")
	}
	if pa, pb := normalizePhone(a.Phone), normalizePhone(b.Phone); pa != "" && pb != "" {
		compare(pa, pb, "similar phone")
	}
	if a.FirstName != "" && b.FirstName != "" &&
		a.FirstName != domain.UnknownName && b.FirstName != domain.UnknownName {
		compare(a.FirstName, b.FirstName, "similar first name")
	}
	if a.LastName != "" && b.LastName != "" {
		compare(a.LastName, b.LastName, "similar last name")
	}
	if a.Company != "" && b.Company != "" {
		compare(a.Company, b.Company, "similar company")
	}

	if fields == 0 {
		return 0, nil
	}
	return total / float64(fields), reasons
}

func levelFor(score float64) MatchLevel {
	switch {
	case score >= exactThreshold:
		return MatchExact
	case score >= fuzzyThreshold:
		return MatchFuzzy
	default:
		return MatchPotential
	}
}

func normalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	s := digits.String()
	// compare national significant numbers regardless of country prefix
	if len(s) > 10 {
		s = s[len(s)-10:]
	}
	return s
}

func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return strings.ToLower(email[:at])
	}
	return ""
}
