package outlookcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	integrationdomain "touchbase-backend/internal/integration/domain"
	syncdomain "touchbase-backend/internal/sync/domain"
	"touchbase-backend/internal/sync/provider"
	"touchbase-backend/internal/sync/provider/msgraph"
)

// Provider syncs the user's default Outlook calendar through the Graph
// calendarView delta endpoint. Page tokens and cursors are the raw
// @odata.nextLink and @odata.deltaLink URLs.
type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Type() integrationdomain.ProviderType {
	return integrationdomain.ProviderOutlookCalendar
}

type graphEvent struct {
	ID          string               `json:"id"`
	Subject     string               `json:"subject"`
	Start       msgraph.DateTimeZone `json:"start"`
	End         msgraph.DateTimeZone `json:"end"`
	BodyPreview string               `json:"bodyPreview"`
	IsCancelled bool                 `json:"isCancelled"`
	Location    struct {
		DisplayName string `json:"displayName"`
	} `json:"location"`
	Organizer *msgraph.Recipient `json:"organizer"`
	Attendees []struct {
		EmailAddress msgraph.EmailAddress `json:"emailAddress"`
		Type         string               `json:"type"`
		Status       struct {
			Response string `json:"response"`
		} `json:"status"`
	} `json:"attendees"`
	Removed *msgraph.Removed `json:"@removed"`
}

func (p *Provider) FetchFull(ctx context.Context, acct provider.Account, window syncdomain.TimeWindow, pageToken string) (*syncdomain.Page, error) {
	target := pageToken
	if target == "" {
		target = fmt.Sprintf("%s/me/calendarView/delta?startDateTime=%s&endDateTime=%s",
			msgraph.BaseURL,
			url.QueryEscape(window.Start.UTC().Format(time.RFC3339)),
			url.QueryEscape(window.End.UTC().Format(time.RFC3339)))
	}
	return p.fetchPage(ctx, acct, target)
}

func (p *Provider) FetchIncremental(ctx context.Context, acct provider.Account, cursor, pageToken string) (*syncdomain.Page, error) {
	target := pageToken
	if target == "" {
		target = cursor
	}
	return p.fetchPage(ctx, acct, target)
}

func (p *Provider) FetchByID(ctx context.Context, acct provider.Account, externalID string) (*syncdomain.ExternalItem, error) {
	var ev graphEvent
	err := msgraph.Get(ctx, acct.Client, msgraph.BaseURL+"/me/events/"+url.PathEscape(externalID), &ev)
	if err != nil {
		if errors.Is(err, msgraph.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	item := convertEvent(&ev)
	return &item, nil
}

func (p *Provider) fetchPage(ctx context.Context, acct provider.Account, target string) (*syncdomain.Page, error) {
	var resp msgraph.DeltaPage
	if err := msgraph.Get(ctx, acct.Client, target, &resp); err != nil {
		return nil, err
	}

	page := &syncdomain.Page{
		NextPageToken: resp.NextLink,
		NewCursor:     resp.DeltaLink,
	}
	for _, raw := range resp.Value {
		var ev graphEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode graph event: %w", err)
		}
		if ev.ID == "" {
			continue
		}
		page.Items = append(page.Items, convertEvent(&ev))
	}
	return page, nil
}

func convertEvent(ev *graphEvent) syncdomain.ExternalItem {
	item := syncdomain.ExternalItem{
		ExternalID:  ev.ID,
		Kind:        syncdomain.ItemMeeting,
		Title:       ev.Subject,
		StartsAt:    ev.Start.Time(),
		Location:    ev.Location.DisplayName,
		Description: ev.BodyPreview,
		Deleted:     ev.IsCancelled || ev.Removed != nil,
	}
	if end := ev.End.Time(); !end.IsZero() {
		item.EndsAt = &end
	}

	if ev.Organizer != nil && ev.Organizer.EmailAddress.Address != "" {
		item.Participants = append(item.Participants, syncdomain.Participant{
			Email:       ev.Organizer.EmailAddress.Address,
			DisplayName: ev.Organizer.EmailAddress.Name,
			IsOrganizer: true,
		})
	}
	for _, a := range ev.Attendees {
		if a.EmailAddress.Address == "" || a.Type == "resource" {
			continue
		}
		if ev.Organizer != nil && a.EmailAddress.Address == ev.Organizer.EmailAddress.Address {
			continue
		}
		item.Participants = append(item.Participants, syncdomain.Participant{
			Email:          a.EmailAddress.Address,
			DisplayName:    a.EmailAddress.Name,
			ResponseStatus: a.Status.Response,
		})
	}
	return item
}
