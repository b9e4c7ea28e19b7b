package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"touchbase-backend/internal/integration/domain"
	"touchbase-backend/internal/integration/repository"
	"touchbase-backend/pkg/config"
)

// States older than this are rejected at callback time and purged in the
// background.
const stateTTL = 10 * time.Minute

// BuildOAuthConfigs maps each supported provider to its oauth2 client
// configuration.
func BuildOAuthConfigs(cfg *config.Config) map[domain.ProviderType]*oauth2.Config {
	msEndpoint := microsoft.AzureADEndpoint(cfg.MicrosoftTenant)
	return map[domain.ProviderType]*oauth2.Config{
		domain.ProviderGoogleCalendar: {
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/calendar.readonly",
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
		domain.ProviderGmail: {
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/gmail.readonly",
				"https://www.googleapis.com/auth/userinfo.email",
			},
		},
		domain.ProviderOutlookCalendar: {
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			RedirectURL:  cfg.MicrosoftRedirectURI,
			Endpoint:     msEndpoint,
			Scopes: []string{
				"https://graph.microsoft.com/Calendars.Read",
				"https://graph.microsoft.com/User.Read",
				"offline_access",
			},
		},
		domain.ProviderOutlookMail: {
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			RedirectURL:  cfg.MicrosoftRedirectURI,
			Endpoint:     msEndpoint,
			Scopes: []string{
				"https://graph.microsoft.com/Mail.Read",
				"https://graph.microsoft.com/User.Read",
				"offline_access",
			},
		},
	}
}

type OAuthUsecase struct {
	integrationRepo repository.IntegrationRepository
	stateRepo       repository.OAuthStateRepository
	syncStateRepo   repository.SyncStateRepository
	vault           *TokenVault
	configs         map[domain.ProviderType]*oauth2.Config
	lookbackDays    int
	now             func() time.Time
	fetchEmail      func(ctx context.Context, provider domain.ProviderType, config *oauth2.Config, token *oauth2.Token) (string, error)
	scheduleSync    func(userID string, provider domain.ProviderType)
}

func NewOAuthUsecase(
	integrationRepo repository.IntegrationRepository,
	stateRepo repository.OAuthStateRepository,
	syncStateRepo repository.SyncStateRepository,
	vault *TokenVault,
	configs map[domain.ProviderType]*oauth2.Config,
	lookbackDays int,
) *OAuthUsecase {
	u := &OAuthUsecase{
		integrationRepo: integrationRepo,
		stateRepo:       stateRepo,
		syncStateRepo:   syncStateRepo,
		vault:           vault,
		configs:         configs,
		lookbackDays:    lookbackDays,
		now:             time.Now,
	}
	u.fetchEmail = u.accountEmail
	return u
}

// OnConnected registers a hook run after a successful callback, used to kick
// off the first full sync for a freshly connected account.
func (u *OAuthUsecase) OnConnected(fn func(userID string, provider domain.ProviderType)) {
	u.scheduleSync = fn
}

// Connect records a single-use state and returns the provider authorization
// URL the client should redirect to.
func (u *OAuthUsecase) Connect(userID string, provider domain.ProviderType, redirectTo string) (string, error) {
	config, ok := u.configs[provider]
	if !ok {
		return "", fmt.Errorf("unsupported provider: %s", provider)
	}

	state, err := randomState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	record := &domain.OAuthState{
		State:      state,
		UserID:     userID,
		Provider:   provider,
		RedirectTo: redirectTo,
		ExpiresAt:  u.now().Add(stateTTL),
	}
	if err := u.stateRepo.Create(record); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}

	opts := []oauth2.AuthCodeOption{oauth2.AccessTypeOffline}
	if provider == domain.ProviderGoogleCalendar || provider == domain.ProviderGmail {
		// prompt=consent forces Google to return a refresh token on
		// reconnect, not just first consent
		opts = append(opts, oauth2.ApprovalForce)
	}
	return config.AuthCodeURL(state, opts...), nil
}

// CallbackResult is what the callback handler needs to finish the flow.
type CallbackResult struct {
	Integration *domain.Integration
	RedirectTo  string
}

// HandleCallback consumes the state, exchanges the authorization code and
// upserts the integration with encrypted tokens. A replayed or expired state
// fails the whole exchange.
func (u *OAuthUsecase) HandleCallback(ctx context.Context, state, code string) (*CallbackResult, error) {
	record, err := u.stateRepo.Consume(state)
	if err != nil {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("unknown or already used oauth state")
	}
	if record.Expired(u.now()) {
		return nil, fmt.Errorf("oauth state expired")
	}

	config, ok := u.configs[record.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", record.Provider)
	}

	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	email, err := u.fetchEmail(ctx, record.Provider, config, token)
	if err != nil {
		log.Printf("[OAuth] could not resolve account email for user %s: %v", record.UserID, err)
	}

	integration, err := u.integrationRepo.GetByUserAndProvider(record.UserID, record.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to look up integration: %w", err)
	}
	if integration == nil {
		integration = &domain.Integration{
			ID:       uuid.New().String(),
			UserID:   record.UserID,
			Provider: record.Provider,
		}
		if err := u.vault.StoreTokens(integration, token); err != nil {
			return nil, err
		}
		integration.AccountEmail = email
		integration.IsActive = true
		if err := u.integrationRepo.Create(integration); err != nil {
			return nil, fmt.Errorf("failed to create integration: %w", err)
		}
	} else {
		if err := u.vault.StoreTokens(integration, token); err != nil {
			return nil, err
		}
		if email != "" {
			integration.AccountEmail = email
		}
		integration.IsActive = true
		if err := u.integrationRepo.Update(integration); err != nil {
			return nil, fmt.Errorf("failed to update integration: %w", err)
		}
	}

	if err := u.ensureSyncState(record.UserID, record.Provider); err != nil {
		return nil, err
	}
	if u.scheduleSync != nil {
		u.scheduleSync(record.UserID, record.Provider)
	}

	log.Printf("[OAuth] connected %s for user %s", record.Provider, record.UserID)
	return &CallbackResult{Integration: integration, RedirectTo: record.RedirectTo}, nil
}

// Disconnect revokes the provider credentials best-effort and removes the
// integration along with its sync cursor.
func (u *OAuthUsecase) Disconnect(ctx context.Context, userID string, provider domain.ProviderType) error {
	integration, err := u.integrationRepo.GetByUserAndProvider(userID, provider)
	if err != nil {
		return fmt.Errorf("failed to look up integration: %w", err)
	}
	if integration == nil {
		return fmt.Errorf("integration not found")
	}

	u.vault.Revoke(ctx, integration)

	if err := u.syncStateRepo.DeleteByUserAndProvider(userID, provider); err != nil {
		return fmt.Errorf("failed to delete sync state: %w", err)
	}
	if err := u.integrationRepo.Delete(integration.ID); err != nil {
		return fmt.Errorf("failed to delete integration: %w", err)
	}
	log.Printf("[OAuth] disconnected %s for user %s", provider, userID)
	return nil
}

// IntegrationStatus is the per-provider connection view returned to clients.
type IntegrationStatus struct {
	Provider     domain.ProviderType `json:"provider"`
	Connected    bool                `json:"connected"`
	IsActive     bool                `json:"is_active"`
	AccountEmail string              `json:"account_email,omitempty"`
	LastSyncAt   *time.Time          `json:"last_sync_at,omitempty"`
	Enabled      bool                `json:"sync_enabled"`
}

// Status reports every supported provider, connected or not.
func (u *OAuthUsecase) Status(userID string) ([]IntegrationStatus, error) {
	integrations, err := u.integrationRepo.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	states, err := u.syncStateRepo.ListByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync states: %w", err)
	}

	byProvider := make(map[domain.ProviderType]*domain.Integration, len(integrations))
	for i := range integrations {
		byProvider[integrations[i].Provider] = &integrations[i]
	}
	stateByProvider := make(map[domain.ProviderType]*domain.SyncState, len(states))
	for i := range states {
		stateByProvider[states[i].Provider] = &states[i]
	}

	all := []domain.ProviderType{
		domain.ProviderGoogleCalendar,
		domain.ProviderOutlookCalendar,
		domain.ProviderGmail,
		domain.ProviderOutlookMail,
	}
	result := make([]IntegrationStatus, 0, len(all))
	for _, provider := range all {
		status := IntegrationStatus{Provider: provider}
		if integration, ok := byProvider[provider]; ok {
			status.Connected = true
			status.IsActive = integration.IsActive
			status.AccountEmail = integration.AccountEmail
		}
		if state, ok := stateByProvider[provider]; ok {
			status.LastSyncAt = state.LastSyncAt
			status.Enabled = state.Enabled
		}
		result = append(result, status)
	}
	return result, nil
}

// PurgeExpiredStates removes abandoned authorization attempts.
func (u *OAuthUsecase) PurgeExpiredStates() {
	deleted, err := u.stateRepo.DeleteExpired(u.now())
	if err != nil {
		log.Printf("[OAuth] failed to purge expired states: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("[OAuth] purged %d expired oauth states", deleted)
	}
}

func (u *OAuthUsecase) ensureSyncState(userID string, provider domain.ProviderType) error {
	state, err := u.syncStateRepo.GetByUserAndProvider(userID, provider)
	if err != nil {
		return fmt.Errorf("failed to look up sync state: %w", err)
	}
	if state != nil {
		return nil
	}
	state = &domain.SyncState{
		ID:           uuid.New().String(),
		UserID:       userID,
		Provider:     provider,
		Enabled:      true,
		LookbackDays: u.lookbackDays,
	}
	if err := u.syncStateRepo.Create(state); err != nil {
		return fmt.Errorf("failed to create sync state: %w", err)
	}
	return nil
}

func (u *OAuthUsecase) accountEmail(ctx context.Context, provider domain.ProviderType, config *oauth2.Config, token *oauth2.Token) (string, error) {
	client := config.Client(ctx, token)
	client.Timeout = 15 * time.Second

	switch provider {
	case domain.ProviderGoogleCalendar, domain.ProviderGmail:
		return userinfoEmail(client, "https://www.googleapis.com/oauth2/v2/userinfo", func(body map[string]any) string {
			email, _ := body["email"].(string)
			return email
		})
	case domain.ProviderOutlookCalendar, domain.ProviderOutlookMail:
		return userinfoEmail(client, "https://graph.microsoft.com/v1.0/me", func(body map[string]any) string {
			if email, ok := body["mail"].(string); ok && email != "" {
				return email
			}
			email, _ := body["userPrincipalName"].(string)
			return email
		})
	}
	return "", nil
}

func userinfoEmail(client *http.Client, endpoint string, extract func(map[string]any) string) (string, error) {
	resp, err := client.Get(endpoint)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return extract(body), nil
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
