// Package msgraph is a thin Microsoft Graph REST client used by the Outlook
// providers. It works on raw delta links, which the official SDK's request
// builders cannot carry across calls.
package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	syncdomain "touchbase-backend/internal/sync/domain"
)

const BaseURL = "https://graph.microsoft.com/v1.0"

// DeltaPage is the common envelope of Graph delta and listing responses.
type DeltaPage struct {
	Value     []json.RawMessage `json:"value"`
	NextLink  string            `json:"@odata.nextLink"`
	DeltaLink string            `json:"@odata.deltaLink"`
}

// Get fetches url with the account's client and decodes the body into out.
// Graph's sync failure modes map onto the shared sentinel errors: 410 Gone
// means the delta token is dead, 429 means throttled.
func Get(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build graph request: %w", err)
	}
	// date-times come back in UTC instead of the mailbox zone
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		return syncdomain.ErrCursorExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		return syncdomain.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("graph returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode graph response: %w", err)
	}
	return nil
}

// ErrNotFound reports a 404 from Graph.
var ErrNotFound = fmt.Errorf("graph resource not found")

// EmailAddress is Graph's nested address shape.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Recipient wraps an EmailAddress the way Graph does.
type Recipient struct {
	EmailAddress EmailAddress `json:"emailAddress"`
}

// DateTimeZone is Graph's {dateTime, timeZone} pair.
type DateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// graph serializes event times without an offset, fractional seconds optional
const graphTimeLayout = "2006-01-02T15:04:05.9999999"

// Time parses the pair, trusting the UTC Prefer header.
func (d DateTimeZone) Time() time.Time {
	if d.DateTime == "" {
		return time.Time{}
	}
	if t, err := time.Parse(graphTimeLayout, d.DateTime); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, d.DateTime); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// Removed is present on delta entries for deleted resources.
type Removed struct {
	Reason string `json:"reason"`
}
