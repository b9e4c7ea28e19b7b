package googlecal

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	integrationdomain "touchbase-backend/internal/integration/domain"
	syncdomain "touchbase-backend/internal/sync/domain"
	"touchbase-backend/internal/sync/provider"
)

const pageSize = 250

// Provider syncs the user's primary Google calendar.
type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Type() integrationdomain.ProviderType {
	return integrationdomain.ProviderGoogleCalendar
}

// FetchFull walks the whole calendar and filters to the window client side.
// Google only hands out a nextSyncToken on unfiltered listings, so the window
// cannot be pushed into the query without losing the cursor.
func (p *Provider) FetchFull(ctx context.Context, acct provider.Account, window syncdomain.TimeWindow, pageToken string) (*syncdomain.Page, error) {
	svc, err := p.service(ctx, acct)
	if err != nil {
		return nil, err
	}

	call := svc.Events.List("primary").
		SingleEvents(true).
		ShowDeleted(false).
		MaxResults(pageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, mapError(err)
	}

	page := &syncdomain.Page{NextPageToken: resp.NextPageToken}
	for _, ev := range resp.Items {
		item, ok := convertEvent(ev)
		if !ok {
			continue
		}
		if !inWindow(item.StartsAt, window) {
			continue
		}
		page.Items = append(page.Items, item)
	}
	if resp.NextPageToken == "" {
		page.NewCursor = resp.NextSyncToken
	}
	return page, nil
}

func (p *Provider) FetchIncremental(ctx context.Context, acct provider.Account, cursor, pageToken string) (*syncdomain.Page, error) {
	svc, err := p.service(ctx, acct)
	if err != nil {
		return nil, err
	}

	call := svc.Events.List("primary").
		SyncToken(cursor).
		MaxResults(pageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, mapError(err)
	}

	page := &syncdomain.Page{NextPageToken: resp.NextPageToken}
	for _, ev := range resp.Items {
		item, ok := convertEvent(ev)
		if !ok {
			continue
		}
		page.Items = append(page.Items, item)
	}
	if resp.NextPageToken == "" {
		page.NewCursor = resp.NextSyncToken
	}
	return page, nil
}

func (p *Provider) FetchByID(ctx context.Context, acct provider.Account, externalID string) (*syncdomain.ExternalItem, error) {
	svc, err := p.service(ctx, acct)
	if err != nil {
		return nil, err
	}

	ev, err := svc.Events.Get("primary", externalID).Context(ctx).Do()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && (apiErr.Code == 404 || apiErr.Code == 410) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	item, ok := convertEvent(ev)
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (p *Provider) service(ctx context.Context, acct provider.Account) (*calendar.Service, error) {
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(acct.Client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return svc, nil
}

func convertEvent(ev *calendar.Event) (syncdomain.ExternalItem, bool) {
	if ev.Id == "" {
		return syncdomain.ExternalItem{}, false
	}

	item := syncdomain.ExternalItem{
		ExternalID:  ev.Id,
		Kind:        syncdomain.ItemMeeting,
		Title:       ev.Summary,
		Location:    ev.Location,
		Description: ev.Description,
		Deleted:     ev.Status == "cancelled",
	}

	if ev.Start != nil {
		item.StartsAt = parseEventTime(ev.Start)
	}
	if ev.End != nil {
		end := parseEventTime(ev.End)
		if !end.IsZero() {
			item.EndsAt = &end
		}
	}
	if item.StartsAt.IsZero() && !item.Deleted {
		return syncdomain.ExternalItem{}, false
	}

	for _, a := range ev.Attendees {
		if a.Resource {
			continue
		}
		item.Participants = append(item.Participants, syncdomain.Participant{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			IsOrganizer:    a.Organizer,
			ResponseStatus: a.ResponseStatus,
		})
	}
	return item, true
}

func parseEventTime(t *calendar.EventDateTime) time.Time {
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed
		}
	}
	if t.Date != "" {
		if parsed, err := time.Parse("2006-01-02", t.Date); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

func inWindow(at time.Time, window syncdomain.TimeWindow) bool {
	if at.IsZero() {
		return false
	}
	if !window.Start.IsZero() && at.Before(window.Start) {
		return false
	}
	if !window.End.IsZero() && !at.Before(window.End) {
		return false
	}
	return true
}

func mapError(err error) error {
	apiErr, ok := err.(*googleapi.Error)
	if !ok {
		return err
	}
	switch apiErr.Code {
	case 410:
		return syncdomain.ErrCursorExpired
	case 429:
		return syncdomain.ErrRateLimited
	case 403:
		for _, item := range apiErr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return syncdomain.ErrRateLimited
			}
		}
	}
	return err
}
