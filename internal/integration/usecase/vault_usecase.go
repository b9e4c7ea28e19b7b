package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"touchbase-backend/internal/integration/domain"
	"touchbase-backend/internal/integration/repository"
	"touchbase-backend/pkg/crypto"
)

// ErrReconnectRequired is returned when stored credentials can no longer be
// refreshed and the user must go through the consent flow again.
var ErrReconnectRequired = errors.New("integration requires reconnection")

const (
	// Tokens closer than this to expiry are refreshed before use, so a
	// request started now cannot see them expire mid-flight.
	refreshMargin = 5 * time.Minute

	googleRevokeURL = "https://oauth2.googleapis.com/revoke"
)

// TokenVault hands out valid plaintext access tokens for stored integrations,
// refreshing and re-encrypting them as needed. It is the only component that
// sees token plaintext.
type TokenVault struct {
	integrationRepo repository.IntegrationRepository
	encryptor       *crypto.Encryptor
	configs         map[domain.ProviderType]*oauth2.Config
	httpClient      *http.Client
	now             func() time.Time
}

func NewTokenVault(integrationRepo repository.IntegrationRepository, encryptor *crypto.Encryptor, configs map[domain.ProviderType]*oauth2.Config) *TokenVault {
	return &TokenVault{
		integrationRepo: integrationRepo,
		encryptor:       encryptor,
		configs:         configs,
		httpClient:      &http.Client{Timeout: 15 * time.Second},
		now:             time.Now,
	}
}

// StoreTokens encrypts and persists a freshly obtained token pair on the
// integration. A missing refresh token keeps the previously stored one, which
// Google omits on repeat consent.
func (v *TokenVault) StoreTokens(integration *domain.Integration, token *oauth2.Token) error {
	encAccess, err := v.encryptor.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	integration.AccessToken = encAccess
	integration.ExpiresAt = token.Expiry

	if token.RefreshToken != "" {
		encRefresh, err := v.encryptor.Encrypt(token.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		integration.RefreshToken = encRefresh
	}
	return nil
}

// AccessToken returns a plaintext access token valid for at least the refresh
// margin, refreshing through the provider when the stored one is too close to
// expiry. Permanently failed refreshes deactivate the integration and return
// ErrReconnectRequired.
func (v *TokenVault) AccessToken(ctx context.Context, integration *domain.Integration) (string, error) {
	if !integration.IsActive {
		return "", ErrReconnectRequired
	}

	accessToken, err := v.encryptor.Decrypt(integration.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt access token: %w", err)
	}

	if integration.ExpiresAt.After(v.now().Add(refreshMargin)) {
		return accessToken, nil
	}

	refreshToken := ""
	if integration.RefreshToken != "" {
		refreshToken, err = v.encryptor.Decrypt(integration.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
	}
	if refreshToken == "" {
		log.Printf("[TokenVault] integration %s expired with no refresh token, reconnect required", integration.ID)
		return "", v.deactivate(integration)
	}

	config, ok := v.configs[integration.Provider]
	if !ok {
		return "", fmt.Errorf("no oauth config for provider %s", integration.Provider)
	}

	// leave AccessToken empty so the token source always round-trips to
	// the provider; its own staleness check uses a much smaller margin
	stale := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       integration.ExpiresAt,
	}
	fresh, err := config.TokenSource(ctx, stale).Token()
	if err != nil {
		if isPermanentRefreshError(err) {
			log.Printf("[TokenVault] refresh permanently failed for integration %s: %v", integration.ID, err)
			return "", v.deactivate(integration)
		}
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	if err := v.StoreTokens(integration, fresh); err != nil {
		return "", err
	}
	if err := v.integrationRepo.Update(integration); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	log.Printf("[TokenVault] refreshed token for integration %s, new expiry %s", integration.ID, fresh.Expiry.Format(time.RFC3339))
	return fresh.AccessToken, nil
}

// Client returns an HTTP client that authorizes requests with the
// integration's current access token.
func (v *TokenVault) Client(ctx context.Context, integration *domain.Integration) (*http.Client, error) {
	accessToken, err := v.AccessToken(ctx, integration)
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{AccessToken: accessToken, Expiry: integration.ExpiresAt}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token)), nil
}

// Revoke tells the provider to invalidate the stored credentials. Failures are
// logged, not returned: local disconnection proceeds regardless.
func (v *TokenVault) Revoke(ctx context.Context, integration *domain.Integration) {
	switch integration.Provider {
	case domain.ProviderGoogleCalendar, domain.ProviderGmail:
		v.revokeGoogle(ctx, integration)
	default:
		// Microsoft has no per-token revocation endpoint; tokens lapse
		// on their own once we stop refreshing them.
	}
}

func (v *TokenVault) revokeGoogle(ctx context.Context, integration *domain.Integration) {
	token, err := v.encryptor.Decrypt(integration.AccessToken)
	if err != nil {
		log.Printf("[TokenVault] revoke skipped for integration %s: %v", integration.ID, err)
		return
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleRevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Printf("[TokenVault] revoke request failed for integration %s: %v", integration.ID, err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := v.httpClient.Do(req)
	if err != nil {
		log.Printf("[TokenVault] revoke call failed for integration %s: %v", integration.ID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("[TokenVault] revoke returned status %d for integration %s", resp.StatusCode, integration.ID)
	}
}

func (v *TokenVault) deactivate(integration *domain.Integration) error {
	integration.IsActive = false
	if err := v.integrationRepo.Update(integration); err != nil {
		return fmt.Errorf("failed to deactivate integration: %w", err)
	}
	return ErrReconnectRequired
}

// isPermanentRefreshError distinguishes revoked or expired grants, which
// retrying can never fix, from transient provider failures.
func isPermanentRefreshError(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "unauthorized_client", "access_denied":
			return true
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusBadRequest {
			return strings.Contains(string(retrieveErr.Body), "invalid_grant")
		}
	}
	return false
}
