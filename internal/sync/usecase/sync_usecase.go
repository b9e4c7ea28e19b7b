package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	authrepo "touchbase-backend/internal/auth/repository"
	contactdomain "touchbase-backend/internal/contact/domain"
	contactrepo "touchbase-backend/internal/contact/repository"
	contactusecase "touchbase-backend/internal/contact/usecase"
	integrationdomain "touchbase-backend/internal/integration/domain"
	integrationrepo "touchbase-backend/internal/integration/repository"
	integrationusecase "touchbase-backend/internal/integration/usecase"
	syncdomain "touchbase-backend/internal/sync/domain"
	"touchbase-backend/internal/sync/provider"
)

// Mode selects how a sync run starts. Incremental falls back to full on its
// own when the cursor is missing or rejected.
type Mode string

const (
	ModeIncremental Mode = "incremental"
	ModeFull        Mode = "full"
)

// ProgressFunc receives running counts while a sync executes. May be nil.
type ProgressFunc func(result syncdomain.SyncResult)

// Orchestrator drives one provider sync end to end: paging, contact matching,
// interaction upserts and cursor bookkeeping.
type Orchestrator struct {
	registry        *provider.Registry
	vault           *integrationusecase.TokenVault
	integrationRepo integrationrepo.IntegrationRepository
	syncStateRepo   integrationrepo.SyncStateRepository
	contactRepo     contactrepo.ContactRepository
	interactionRepo contactrepo.InteractionRepository
	matcher         *contactusecase.Matcher
	userRepo        authrepo.UserRepository
	now             func() time.Time
}

func NewOrchestrator(
	registry *provider.Registry,
	vault *integrationusecase.TokenVault,
	integrationRepo integrationrepo.IntegrationRepository,
	syncStateRepo integrationrepo.SyncStateRepository,
	contactRepo contactrepo.ContactRepository,
	interactionRepo contactrepo.InteractionRepository,
	matcher *contactusecase.Matcher,
	userRepo authrepo.UserRepository,
) *Orchestrator {
	return &Orchestrator{
		registry:        registry,
		vault:           vault,
		integrationRepo: integrationRepo,
		syncStateRepo:   syncStateRepo,
		contactRepo:     contactRepo,
		interactionRepo: interactionRepo,
		matcher:         matcher,
		userRepo:        userRepo,
		now:             time.Now,
	}
}

// Sync runs one sync for (userID, providerType). Rate limiting and reconnect
// conditions come back unwrapped so callers can schedule retries or surface
// the reconnect.
func (o *Orchestrator) Sync(ctx context.Context, userID string, providerType integrationdomain.ProviderType, mode Mode, progress ProgressFunc) (*syncdomain.SyncResult, error) {
	prov, err := o.registry.Get(providerType)
	if err != nil {
		return nil, err
	}

	integration, err := o.integrationRepo.GetByUserAndProvider(userID, providerType)
	if err != nil {
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}
	if integration == nil {
		return nil, fmt.Errorf("no %s integration for user", providerType)
	}

	state, err := o.syncStateRepo.GetByUserAndProvider(userID, providerType)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("no sync state for %s", providerType)
	}
	if !state.Enabled {
		return nil, fmt.Errorf("sync disabled for %s", providerType)
	}

	acct, err := o.account(ctx, userID, integration)
	if err != nil {
		return nil, err
	}

	result := &syncdomain.SyncResult{}
	runFull := mode == ModeFull || state.Cursor == ""

	if !runFull {
		err = o.runIncremental(ctx, prov, acct, state.Cursor, result, progress)
		if errors.Is(err, syncdomain.ErrCursorExpired) {
			log.Printf("[Sync] cursor expired for user %s provider %s, falling back to full sync", userID, providerType)
			// the provider rejected this cursor for good; never hand it out again
			state.Cursor = ""
			*result = syncdomain.SyncResult{}
			runFull = true
		} else if err != nil {
			return nil, err
		}
	}

	if runFull {
		window := o.window(state)
		if err := o.runFull(ctx, prov, acct, window, result, progress); err != nil {
			return nil, err
		}
		result.FullSync = true
	}

	result.SyncedAt = o.now()
	if result.NewCursor != "" {
		state.Cursor = result.NewCursor
	}
	state.LastSyncAt = &result.SyncedAt
	if err := o.syncStateRepo.Update(state); err != nil {
		return nil, fmt.Errorf("failed to persist sync state: %w", err)
	}

	log.Printf("[Sync] user %s provider %s: synced=%d added=%d updated=%d skipped=%d full=%t",
		userID, providerType, result.Synced, result.Added, result.Updated, result.Skipped, result.FullSync)
	return result, nil
}

func (o *Orchestrator) runIncremental(ctx context.Context, prov provider.Provider, acct provider.Account, cursor string, result *syncdomain.SyncResult, progress ProgressFunc) error {
	pageToken := ""
	for {
		page, err := prov.FetchIncremental(ctx, acct, cursor, pageToken)
		if err != nil {
			return err
		}
		o.processPage(acct, page, result)
		if progress != nil {
			progress(*result)
		}
		if page.NewCursor != "" {
			result.NewCursor = page.NewCursor
		}
		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

func (o *Orchestrator) runFull(ctx context.Context, prov provider.Provider, acct provider.Account, window syncdomain.TimeWindow, result *syncdomain.SyncResult, progress ProgressFunc) error {
	pageToken := ""
	for {
		page, err := prov.FetchFull(ctx, acct, window, pageToken)
		if err != nil {
			return err
		}
		o.processPage(acct, page, result)
		if progress != nil {
			progress(*result)
		}
		if page.NewCursor != "" {
			result.NewCursor = page.NewCursor
		}
		if page.NextPageToken == "" {
			return nil
		}
		pageToken = page.NextPageToken
	}
}

// processPage imports every item on the page. A failing item is counted as
// skipped, never fails the run.
func (o *Orchestrator) processPage(acct provider.Account, page *syncdomain.Page, result *syncdomain.SyncResult) {
	now := o.now()
	for i := range page.Items {
		item := &page.Items[i]
		outcome, err := o.importItem(acct, item, now)
		if err != nil {
			log.Printf("[Sync] skipping item %s: %v", item.ExternalID, err)
			result.Skipped++
			continue
		}
		switch outcome {
		case outcomeAdded:
			result.Added++
			result.Synced++
		case outcomeUpdated:
			result.Updated++
			result.Synced++
		case outcomeSkipped:
			result.Skipped++
		}
	}
}

type importOutcome int

const (
	outcomeSkipped importOutcome = iota
	outcomeAdded
	outcomeUpdated
)

// importItem upserts one external item as an interaction and resolves its
// participants to contacts. Future items never create contacts: only meetings
// that already happened count as having been in touch.
func (o *Orchestrator) importItem(acct provider.Account, item *syncdomain.ExternalItem, now time.Time) (importOutcome, error) {
	if item.Deleted {
		return outcomeSkipped, nil
	}
	if item.StartsAt.IsZero() || item.StartsAt.After(now) {
		return outcomeSkipped, nil
	}

	source := string(acct.Integration.Provider)

	participants := make([]contactusecase.ParticipantInput, 0, len(item.Participants))
	for _, p := range item.Participants {
		participants = append(participants, contactusecase.ParticipantInput{
			Email:          p.Email,
			DisplayName:    p.DisplayName,
			IsOrganizer:    p.IsOrganizer,
			ResponseStatus: p.ResponseStatus,
		})
	}

	match, err := o.matcher.MatchOrCreate(acct.UserID, participants, source)
	if err != nil {
		return outcomeSkipped, err
	}

	interaction, err := o.interactionRepo.GetByExternal(acct.UserID, item.ExternalID, source)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("failed to look up interaction: %w", err)
	}

	outcome := outcomeUpdated
	if interaction == nil {
		interaction = &contactdomain.Interaction{
			ID:             uuid.New().String(),
			UserID:         acct.UserID,
			ExternalID:     item.ExternalID,
			ExternalSource: source,
		}
		outcome = outcomeAdded
	}
	interaction.Kind = string(item.Kind)
	interaction.Title = item.Title
	interaction.OccurredAt = item.StartsAt
	interaction.EndedAt = item.EndsAt
	interaction.Location = item.Location
	interaction.Description = item.Description
	interaction.Participants = nil

	if outcome == outcomeAdded {
		if err := o.interactionRepo.Create(interaction); err != nil {
			return outcomeSkipped, fmt.Errorf("failed to create interaction: %w", err)
		}
	} else {
		if err := o.interactionRepo.Update(interaction); err != nil {
			return outcomeSkipped, fmt.Errorf("failed to update interaction: %w", err)
		}
	}

	rows := make([]contactdomain.InteractionParticipant, 0, len(item.Participants))
	for _, p := range item.Participants {
		row := contactdomain.InteractionParticipant{
			ID:             uuid.New().String(),
			InteractionID:  interaction.ID,
			Email:          p.Email,
			DisplayName:    p.DisplayName,
			IsOrganizer:    p.IsOrganizer,
			ResponseStatus: p.ResponseStatus,
		}
		if contact, ok := match.ByEmail[strings.ToLower(p.Email)]; ok {
			row.ContactID = contact.ID
		}
		rows = append(rows, row)
	}
	if err := o.interactionRepo.ReplaceParticipants(interaction.ID, rows); err != nil {
		return outcomeSkipped, fmt.Errorf("failed to store participants: %w", err)
	}

	for _, contact := range match.ByEmail {
		if err := o.contactRepo.AdvanceLastContact(contact.ID, item.StartsAt); err != nil {
			return outcomeSkipped, fmt.Errorf("failed to advance last contact: %w", err)
		}
	}
	return outcome, nil
}

func (o *Orchestrator) window(state *integrationdomain.SyncState) syncdomain.TimeWindow {
	days := state.LookbackDays
	if days <= 0 {
		days = 90
	}
	now := o.now()
	return syncdomain.TimeWindow{
		Start: now.AddDate(0, 0, -days),
		End:   now,
	}
}

func (o *Orchestrator) account(ctx context.Context, userID string, integration *integrationdomain.Integration) (provider.Account, error) {
	client, err := o.vault.Client(ctx, integration)
	if err != nil {
		return provider.Account{}, err
	}
	return provider.Account{
		UserID:      userID,
		Integration: integration,
		Client:      client,
	}, nil
}

// SelfEmails returns the addresses belonging to the user themselves, so the
// matcher never turns the user into their own contact.
func (o *Orchestrator) SelfEmails(userID string) []string {
	var emails []string
	if user, err := o.userRepo.FindByID(userID); err == nil && user != nil {
		emails = append(emails, user.Email)
	}
	integrations, err := o.integrationRepo.ListByUser(userID)
	if err != nil {
		return emails
	}
	for _, integration := range integrations {
		if integration.AccountEmail != "" {
			emails = append(emails, integration.AccountEmail)
		}
	}
	return emails
}

// Preview fetches the full window from the provider without importing
// anything, for user-facing review before a first import.
func (o *Orchestrator) Preview(ctx context.Context, userID string, providerType integrationdomain.ProviderType, limit int) ([]syncdomain.ExternalItem, error) {
	prov, err := o.registry.Get(providerType)
	if err != nil {
		return nil, err
	}
	integration, err := o.integrationRepo.GetByUserAndProvider(userID, providerType)
	if err != nil {
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}
	if integration == nil {
		return nil, fmt.Errorf("no %s integration for user", providerType)
	}
	state, err := o.syncStateRepo.GetByUserAndProvider(userID, providerType)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync state: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("no sync state for %s", providerType)
	}

	acct, err := o.account(ctx, userID, integration)
	if err != nil {
		return nil, err
	}

	window := o.window(state)
	var items []syncdomain.ExternalItem
	pageToken := ""
	for {
		page, err := prov.FetchFull(ctx, acct, window, pageToken)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if item.Deleted {
				continue
			}
			items = append(items, item)
			if limit > 0 && len(items) >= limit {
				return items, nil
			}
		}
		if page.NextPageToken == "" {
			return items, nil
		}
		pageToken = page.NextPageToken
	}
}

// PreviewAttendees rolls previewed items up into per-address summaries so the
// user can pick who to import. Only meetings that already happened count, the
// same rule the import path applies.
func (o *Orchestrator) PreviewAttendees(items []syncdomain.ExternalItem) []contactusecase.AttendeeSummary {
	now := o.now()
	interactions := make([]contactdomain.Interaction, 0, len(items))
	for _, item := range items {
		if item.Deleted || item.StartsAt.IsZero() || item.StartsAt.After(now) {
			continue
		}
		interaction := contactdomain.Interaction{OccurredAt: item.StartsAt}
		for _, p := range item.Participants {
			interaction.Participants = append(interaction.Participants, contactdomain.InteractionParticipant{
				Email:          p.Email,
				DisplayName:    p.DisplayName,
				IsOrganizer:    p.IsOrganizer,
				ResponseStatus: p.ResponseStatus,
			})
		}
		interactions = append(interactions, interaction)
	}
	return contactusecase.AggregateAttendees(interactions)
}

// ImportByID imports specific items the user picked out of a preview.
func (o *Orchestrator) ImportByID(ctx context.Context, userID string, providerType integrationdomain.ProviderType, externalIDs []string) (*syncdomain.SyncResult, error) {
	prov, err := o.registry.Get(providerType)
	if err != nil {
		return nil, err
	}
	integration, err := o.integrationRepo.GetByUserAndProvider(userID, providerType)
	if err != nil {
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}
	if integration == nil {
		return nil, fmt.Errorf("no %s integration for user", providerType)
	}

	acct, err := o.account(ctx, userID, integration)
	if err != nil {
		return nil, err
	}

	result := &syncdomain.SyncResult{}
	now := o.now()
	for _, externalID := range externalIDs {
		item, err := prov.FetchByID(ctx, acct, externalID)
		if err != nil {
			return nil, err
		}
		if item == nil {
			result.Skipped++
			continue
		}
		outcome, err := o.importItem(acct, item, now)
		if err != nil {
			log.Printf("[Sync] skipping item %s: %v", externalID, err)
			result.Skipped++
			continue
		}
		switch outcome {
		case outcomeAdded:
			result.Added++
			result.Synced++
		case outcomeUpdated:
			result.Updated++
			result.Synced++
		case outcomeSkipped:
			result.Skipped++
		}
	}
	result.SyncedAt = now
	return result, nil
}

