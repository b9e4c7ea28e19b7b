package usecase

import (
	"testing"

	"github.com/google/uuid"

	"touchbase-backend/internal/contact/domain"
	"touchbase-backend/internal/contact/repository"
)

func TestScoreIdenticalEmail(t *testing.T) {
	a := &domain.Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@acme.com"}
	b := &domain.Contact{FirstName: "J", LastName: "D", Email: "JANE@ACME.COM"}

	score, reasons := Score(a, b)
	if score != 1.0 {
		t.Errorf("score = %f, want 1.0", score)
	}
	if len(reasons) == 0 || reasons[0] != "identical email" {
		t.Errorf("reasons = %v", reasons)
	}
	if levelFor(score) != MatchExact {
		t.Errorf("level = %s, want exact", levelFor(score))
	}
}

func TestScoreNamePlusPhone(t *testing.T) {
	a := &domain.Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@acme.com", Phone: "+1 (555) 123-4567"}
	b := &domain.Contact{FirstName: "Jane", LastName: "Doe", Email: "jdoe@other.org", Phone: "5551234567"}

	score, _ := Score(a, b)
	if score < fuzzyThreshold {
		t.Errorf("score = %f, want >= %f", score, fuzzyThreshold)
	}
	if levelFor(score) != MatchFuzzy && levelFor(score) != MatchExact {
		t.Errorf("level = %s", levelFor(score))
	}
}

func TestScoreAveragesPresentFields(t *testing.T) {
	cases := []struct {
		name    string
		a, b    *domain.Contact
		atLeast float64
		below   float64
	}{
		{
			name:    "one-character last name edit scores fuzzy",
			a:       &domain.Contact{FirstName: "Jane", LastName: "Smith"},
			b:       &domain.Contact{FirstName: "Jane", LastName: "Smyth"},
			atLeast: fuzzyThreshold,
		},
		{
			name:    "matching company lifts a near-identical pair",
			a:       &domain.Contact{FirstName: "Jane", LastName: "Smith", Company: "Initech"},
			b:       &domain.Contact{FirstName: "Jane", LastName: "Smyth", Company: "Initech"},
			atLeast: fuzzyThreshold,
		},
		{
			name:  "divergent phone drags matching names below potential",
			a:     &domain.Contact{FirstName: "Jane", LastName: "Smith", Phone: "555-123-4567"},
			b:     &domain.Contact{FirstName: "Jane", LastName: "Smith", Phone: "999-888-7777"},
			below: potentialThreshold,
		},
		{
			name:    "fields missing on one side are not compared",
			a:       &domain.Contact{FirstName: "Jane", LastName: "Smith", Company: "Initech", Phone: "555-123-4567"},
			b:       &domain.Contact{FirstName: "Jane", LastName: "Smith"},
			atLeast: exactThreshold,
		},
		{
			name:    "reformatted phone still compares as identical digits",
			a:       &domain.Contact{FirstName: "Jane", LastName: "Smith", Phone: "+1 (555) 123-4567"},
			b:       &domain.Contact{FirstName: "Jane", LastName: "Smith", Phone: "5551234567"},
			atLeast: exactThreshold,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score, _ := Score(tc.a, tc.b)
			if tc.atLeast > 0 && score < tc.atLeast {
				t.Errorf("score = %f, want >= %f", score, tc.atLeast)
			}
			if tc.below > 0 && score >= tc.below {
				t.Errorf("score = %f, want < %f", score, tc.below)
			}
		})
	}
}

func TestScoreUnrelatedContacts(t *testing.T) {
	a := &domain.Contact{FirstName: "Jane", LastName: "Doe", Email: "jane@acme.com"}
	b := &domain.Contact{FirstName: "Robert", LastName: "Zimmerman", Email: "bob@initech.com"}

	score, _ := Score(a, b)
	if score >= potentialThreshold {
		t.Errorf("unrelated contacts scored %f, want < %f", score, potentialThreshold)
	}
}

func TestScoreIgnoresUnknownNames(t *testing.T) {
	a := &domain.Contact{FirstName: domain.UnknownName, Email: "a1@x.com"}
	b := &domain.Contact{FirstName: domain.UnknownName, Email: "b2@y.com"}

	score, _ := Score(a, b)
	if score >= potentialThreshold {
		t.Errorf("two Unknown contacts scored %f as duplicates", score)
	}
}

func TestFindDuplicates(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewContactRepository(db)
	userID := uuid.New().String()

	contacts := []*domain.Contact{
		{ID: uuid.New().String(), UserID: userID, FirstName: "Jane", LastName: "Doe", Email: "jane@acme.com", Phone: "555-123-4567"},
		{ID: uuid.New().String(), UserID: userID, FirstName: "Jane", LastName: "Doe", Email: "jane.doe@gmail.com", Phone: "(555) 123 4567"},
		{ID: uuid.New().String(), UserID: userID, FirstName: "Completely", LastName: "Different", Email: "x@z.io"},
	}
	for _, c := range contacts {
		if err := repo.Create(c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	dedupe := NewDeduplicator(repo)
	pairs, err := dedupe.FindDuplicates(userID)
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}

	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1: %+v", len(pairs), pairs)
	}
	pair := pairs[0]
	if pair.Level == MatchPotential && pair.Score < potentialThreshold {
		t.Errorf("pair below threshold returned: %+v", pair)
	}
	got := map[string]bool{pair.ContactA.Email: true, pair.ContactB.Email: true}
	if !got["jane@acme.com"] || !got["jane.doe@gmail.com"] {
		t.Errorf("wrong pair: %+v", got)
	}
}
