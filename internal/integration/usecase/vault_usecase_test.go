package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"touchbase-backend/internal/integration/domain"
	"touchbase-backend/internal/integration/repository"
	"touchbase-backend/pkg/crypto"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Integration{},
		&domain.OAuthState{},
		&domain.SyncState{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	enc, err := crypto.NewEncryptor(base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	return enc
}

func seedIntegration(t *testing.T, vault *TokenVault, repo repository.IntegrationRepository, token *oauth2.Token) *domain.Integration {
	t.Helper()
	integration := &domain.Integration{
		ID:       uuid.New().String(),
		UserID:   uuid.New().String(),
		Provider: domain.ProviderGoogleCalendar,
		IsActive: true,
	}
	if err := vault.StoreTokens(integration, token); err != nil {
		t.Fatalf("StoreTokens: %v", err)
	}
	if err := repo.Create(integration); err != nil {
		t.Fatalf("create integration: %v", err)
	}
	return integration
}

func TestStoreTokensEncryptsAtRest(t *testing.T) {
	db := newTestDB(t)
	enc := newTestEncryptor(t)
	repo := repository.NewIntegrationRepository(db)
	vault := NewTokenVault(repo, enc, nil)

	token := &oauth2.Token{
		AccessToken:  "plain-access",
		RefreshToken: "plain-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}
	integration := seedIntegration(t, vault, repo, token)

	if integration.AccessToken == "plain-access" {
		t.Error("access token stored in plaintext")
	}
	if integration.RefreshToken == "plain-refresh" {
		t.Error("refresh token stored in plaintext")
	}

	got, err := enc.Decrypt(integration.AccessToken)
	if err != nil || got != "plain-access" {
		t.Errorf("decrypt access = %q, %v", got, err)
	}
}

func TestStoreTokensKeepsRefreshWhenOmitted(t *testing.T) {
	db := newTestDB(t)
	enc := newTestEncryptor(t)
	repo := repository.NewIntegrationRepository(db)
	vault := NewTokenVault(repo, enc, nil)

	integration := seedIntegration(t, vault, repo, &oauth2.Token{
		AccessToken:  "first-access",
		RefreshToken: "first-refresh",
		Expiry:       time.Now().Add(time.Hour),
	})
	stored := integration.RefreshToken

	// repeat consent without a refresh token in the response
	if err := vault.StoreTokens(integration, &oauth2.Token{
		AccessToken: "second-access",
		Expiry:      time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("StoreTokens: %v", err)
	}
	if integration.RefreshToken != stored {
		t.Error("refresh token dropped when provider omitted it")
	}
}

func TestAccessTokenFreshNoRefresh(t *testing.T) {
	db := newTestDB(t)
	enc := newTestEncryptor(t)
	repo := repository.NewIntegrationRepository(db)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("token endpoint must not be called for a fresh token")
	}))
	defer server.Close()

	vault := NewTokenVault(repo, enc, testConfigs(server.URL))
	integration := seedIntegration(t, vault, repo, &oauth2.Token{
		AccessToken:  "still-good",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
	})

	got, err := vault.AccessToken(context.Background(), integration)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if got != "still-good" {
		t.Errorf("got %q, want still-good", got)
	}
}

func TestAccessTokenRefreshesNearExpiry(t *testing.T) {
	db := newTestDB(t)
	enc := newTestEncryptor(t)
	repo := repository.NewIntegrationRepository(db)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"refreshed","refresh_token":"rotated","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	vault := NewTokenVault(repo, enc, testConfigs(server.URL))
	integration := seedIntegration(t, vault, repo, &oauth2.Token{
		AccessToken:  "nearly-dead",
		RefreshToken: "old-refresh",
		// inside the refresh margin
		Expiry: time.Now().Add(time.Minute),
	})

	got, err := vault.AccessToken(context.Background(), integration)
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if got != "refreshed" {
		t.Errorf("got %q, want refreshed", got)
	}

	// rotated refresh token is persisted encrypted
	reloaded, err := repo.GetByID(integration.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload: %v", err)
	}
	refresh, err := enc.Decrypt(reloaded.RefreshToken)
	if err != nil {
		t.Fatalf("decrypt refresh: %v", err)
	}
	if refresh != "rotated" {
		t.Errorf("stored refresh = %q, want rotated", refresh)
	}
	if !reloaded.ExpiresAt.After(time.Now().Add(30 * time.Minute)) {
		t.Error("expiry not advanced after refresh")
	}
}

func TestAccessTokenPermanentFailureRequiresReconnect(t *testing.T) {
	db := newTestDB(t)
	enc := newTestEncryptor(t)
	repo := repository.NewIntegrationRepository(db)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Token has been revoked."}`)
	}))
	defer server.Close()

	vault := NewTokenVault(repo, enc, testConfigs(server.URL))
	integration := seedIntegration(t, vault, repo, &oauth2.Token{
		AccessToken:  "dead",
		RefreshToken: "revoked",
		Expiry:       time.Now().Add(-time.Hour),
	})

	_, err := vault.AccessToken(context.Background(), integration)
	if !errors.Is(err, ErrReconnectRequired) {
		t.Fatalf("err = %v, want ErrReconnectRequired", err)
	}

	reloaded, err := repo.GetByID(integration.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.IsActive {
		t.Error("integration still active after permanent refresh failure")
	}

	// subsequent calls short-circuit
	if _, err := vault.AccessToken(context.Background(), reloaded); !errors.Is(err, ErrReconnectRequired) {
		t.Errorf("inactive integration err = %v, want ErrReconnectRequired", err)
	}
}

func TestAccessTokenExpiredWithoutRefreshToken(t *testing.T) {
	db := newTestDB(t)
	enc := newTestEncryptor(t)
	repo := repository.NewIntegrationRepository(db)
	vault := NewTokenVault(repo, enc, testConfigs("http://nowhere.invalid"))

	integration := seedIntegration(t, vault, repo, &oauth2.Token{
		AccessToken: "expired",
		Expiry:      time.Now().Add(-time.Hour),
	})

	_, err := vault.AccessToken(context.Background(), integration)
	if !errors.Is(err, ErrReconnectRequired) {
		t.Fatalf("err = %v, want ErrReconnectRequired", err)
	}
}

func testConfigs(tokenURL string) map[domain.ProviderType]*oauth2.Config {
	return map[domain.ProviderType]*oauth2.Config{
		domain.ProviderGoogleCalendar: {
			ClientID:     "client",
			ClientSecret: "secret",
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
	}
}
