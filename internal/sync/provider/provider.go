package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	integrationdomain "touchbase-backend/internal/integration/domain"
	syncdomain "touchbase-backend/internal/sync/domain"
)

// Account is one authenticated provider account to fetch on behalf of. Client
// already carries the access token.
type Account struct {
	UserID      string
	Integration *integrationdomain.Integration
	Client      *http.Client
}

// Provider fetches items from one external source. Implementations surface
// cursor invalidation as syncdomain.ErrCursorExpired and throttling as
// syncdomain.ErrRateLimited so callers can react uniformly.
type Provider interface {
	Type() integrationdomain.ProviderType

	// FetchFull lists everything inside the window, one page at a time.
	// A non-empty pageToken continues a previous page's listing.
	FetchFull(ctx context.Context, acct Account, window syncdomain.TimeWindow, pageToken string) (*syncdomain.Page, error)

	// FetchIncremental lists changes since the cursor.
	FetchIncremental(ctx context.Context, acct Account, cursor, pageToken string) (*syncdomain.Page, error)

	// FetchByID retrieves a single item, nil when the provider no longer
	// has it.
	FetchByID(ctx context.Context, acct Account, externalID string) (*syncdomain.ExternalItem, error)
}

// Registry holds the configured providers, keyed by type. Safe for concurrent
// use.
type Registry struct {
	mu        sync.RWMutex
	providers map[integrationdomain.ProviderType]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[integrationdomain.ProviderType]Provider),
	}
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Type()] = p
}

func (r *Registry) Get(t integrationdomain.ProviderType) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[t]
	if !ok {
		return nil, fmt.Errorf("no provider registered for %s", t)
	}
	return p, nil
}

func (r *Registry) Types() []integrationdomain.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]integrationdomain.ProviderType, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	return types
}
