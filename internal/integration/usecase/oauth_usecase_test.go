package usecase

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"touchbase-backend/internal/integration/domain"
	"touchbase-backend/internal/integration/repository"
)

func newOAuthFixture(t *testing.T, tokenURL string) (*OAuthUsecase, repository.IntegrationRepository, repository.SyncStateRepository) {
	t.Helper()
	db := newTestDB(t)
	enc := newTestEncryptor(t)
	integrationRepo := repository.NewIntegrationRepository(db)
	stateRepo := repository.NewOAuthStateRepository(db)
	syncStateRepo := repository.NewSyncStateRepository(db)

	configs := map[domain.ProviderType]*oauth2.Config{
		domain.ProviderGoogleCalendar: {
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost/callback",
			Endpoint:     oauth2.Endpoint{AuthURL: "http://auth.example/authorize", TokenURL: tokenURL},
		},
	}
	vault := NewTokenVault(integrationRepo, enc, configs)
	uc := NewOAuthUsecase(integrationRepo, stateRepo, syncStateRepo, vault, configs, 90)
	uc.fetchEmail = func(context.Context, domain.ProviderType, *oauth2.Config, *oauth2.Token) (string, error) {
		return "me@example.com", nil
	}
	return uc, integrationRepo, syncStateRepo
}

func TestConnectReturnsAuthURLWithStoredState(t *testing.T) {
	uc, _, _ := newOAuthFixture(t, "http://nowhere.invalid")
	userID := uuid.New().String()

	authURL, err := uc.Connect(userID, domain.ProviderGoogleCalendar, "/settings")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	if parsed.Host != "auth.example" {
		t.Errorf("auth url host = %s", parsed.Host)
	}
	state := parsed.Query().Get("state")
	if state == "" {
		t.Fatal("auth url carries no state")
	}
	if parsed.Query().Get("access_type") != "offline" {
		t.Error("offline access not requested")
	}
}

func TestConnectUnsupportedProvider(t *testing.T) {
	uc, _, _ := newOAuthFixture(t, "http://nowhere.invalid")
	if _, err := uc.Connect("u1", domain.ProviderType("carrier-pigeon"), ""); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestHandleCallbackCreatesIntegrationAndSyncState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"granted","refresh_token":"keep-me","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	uc, integrationRepo, syncStateRepo := newOAuthFixture(t, server.URL)
	userID := uuid.New().String()

	var scheduled []domain.ProviderType
	uc.OnConnected(func(uid string, provider domain.ProviderType) {
		if uid != userID {
			t.Errorf("initial sync scheduled for user %s, want %s", uid, userID)
		}
		scheduled = append(scheduled, provider)
	})

	authURL, err := uc.Connect(userID, domain.ProviderGoogleCalendar, "/done")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	result, err := uc.HandleCallback(context.Background(), state, "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if result.RedirectTo != "/done" {
		t.Errorf("redirect = %q", result.RedirectTo)
	}

	integration, err := integrationRepo.GetByUserAndProvider(userID, domain.ProviderGoogleCalendar)
	if err != nil || integration == nil {
		t.Fatalf("integration not stored: %v", err)
	}
	if !integration.IsActive {
		t.Error("integration not active")
	}
	if integration.AccessToken == "granted" {
		t.Error("access token stored unencrypted")
	}

	syncState, err := syncStateRepo.GetByUserAndProvider(userID, domain.ProviderGoogleCalendar)
	if err != nil || syncState == nil {
		t.Fatalf("sync state not created: %v", err)
	}
	if !syncState.Enabled || syncState.LookbackDays != 90 {
		t.Errorf("sync state defaults wrong: %+v", syncState)
	}
	if syncState.Cursor != "" {
		t.Error("fresh sync state must start without a cursor")
	}

	if len(scheduled) != 1 || scheduled[0] != domain.ProviderGoogleCalendar {
		t.Errorf("initial sync not scheduled: %v", scheduled)
	}
}

func TestHandleCallbackRejectsReplayedState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"granted","token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	uc, _, _ := newOAuthFixture(t, server.URL)

	authURL, err := uc.Connect(uuid.New().String(), domain.ProviderGoogleCalendar, "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	if _, err := uc.HandleCallback(context.Background(), state, "code"); err != nil {
		t.Fatalf("first callback: %v", err)
	}
	if _, err := uc.HandleCallback(context.Background(), state, "code"); err == nil {
		t.Error("replayed state accepted")
	}
}

func TestHandleCallbackRejectsExpiredState(t *testing.T) {
	uc, _, _ := newOAuthFixture(t, "http://nowhere.invalid")
	uc.now = func() time.Time { return time.Now().Add(-time.Hour) }

	authURL, err := uc.Connect(uuid.New().String(), domain.ProviderGoogleCalendar, "")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	parsed, _ := url.Parse(authURL)
	state := parsed.Query().Get("state")

	uc.now = time.Now
	if _, err := uc.HandleCallback(context.Background(), state, "code"); err == nil ||
		!strings.Contains(err.Error(), "expired") {
		t.Errorf("err = %v, want expired state rejection", err)
	}
}

func TestHandleCallbackUnknownState(t *testing.T) {
	uc, _, _ := newOAuthFixture(t, "http://nowhere.invalid")
	if _, err := uc.HandleCallback(context.Background(), "made-up", "code"); err == nil {
		t.Error("unknown state accepted")
	}
}
