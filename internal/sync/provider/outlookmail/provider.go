package outlookmail

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

const selectFields = "id,subject,receivedDateTime,from,toRecipients,ccRecipients"

// Provider syncs inbox message metadata through the Graph delta endpoint.
// Message delta cannot be filtered by date server side, so full syncs filter
// to the window client side while still walking the delta listing, which is
// what yields the next cursor.
type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Type() integrationdomain.ProviderType {
	return integrationdomain.ProviderOutlookMail
}

type graphMessage struct {
	ID               string              `json:"id"`
	Subject          string              `json:"subject"`
	ReceivedDateTime string              `json:"receivedDateTime"`
	From             *msgraph.Recipient  `json:"from"`
	ToRecipients     []msgraph.Recipient `json:"toRecipients"`
	CcRecipients     []msgraph.Recipient `json:"ccRecipients"`
	Removed          *msgraph.Removed    `json:"@removed"`
}

func (p *Provider) FetchFull(ctx context.Context, acct provider.Account, window syncdomain.TimeWindow, pageToken string) (*syncdomain.Page, error) {
	target := pageToken
	if target == "" {
		target = fmt.Sprintf("%s/me/mailFolders/inbox/messages/delta?$select=%s",
			msgraph.BaseURL, url.QueryEscape(selectFields))
	}
	page, err := p.fetchPage(ctx, acct, target)
	if err != nil {
		return nil, err
	}

	filtered := page.Items[:0]
	for _, item := range page.Items {
		if item.Deleted {
			continue
		}
		if inWindow(item.StartsAt, window) {
			filtered = append(filtered, item)
		}
	}
	page.Items = filtered
	return page, nil
}

func (p *Provider) FetchIncremental(ctx context.Context, acct provider.Account, cursor, pageToken string) (*syncdomain.Page, error) {
	target := pageToken
	if target == "" {
		target = cursor
	}
	return p.fetchPage(ctx, acct, target)
}

func (p *Provider) FetchByID(ctx context.Context, acct provider.Account, externalID string) (*syncdomain.ExternalItem, error) {
	var msg graphMessage
	target := fmt.Sprintf("%s/me/messages/%s?$select=%s",
		msgraph.BaseURL, url.PathEscape(externalID), url.QueryEscape(selectFields))
	if err := msgraph.Get(ctx, acct.Client, target, &msg); err != nil {
		if errors.Is(err, msgraph.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	item := convertMessage(&msg)
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
		var msg graphMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("failed to decode graph message: %w", err)
		}
		if msg.ID == "" {
			continue
		}
		page.Items = append(page.Items, convertMessage(&msg))
	}
	return page, nil
}

func convertMessage(msg *graphMessage) syncdomain.ExternalItem {
	item := syncdomain.ExternalItem{
		ExternalID: msg.ID,
		Kind:       syncdomain.ItemEmail,
		Title:      msg.Subject,
		Deleted:    msg.Removed != nil,
	}
	if msg.ReceivedDateTime != "" {
		if t, err := time.Parse(time.RFC3339, msg.ReceivedDateTime); err == nil {
			item.StartsAt = t.UTC()
		}
	}

	if msg.From != nil && msg.From.EmailAddress.Address != "" {
		item.Participants = append(item.Participants, syncdomain.Participant{
			Email:       msg.From.EmailAddress.Address,
			DisplayName: msg.From.EmailAddress.Name,
		})
	}
	for _, r := range append(msg.ToRecipients, msg.CcRecipients...) {
		if r.EmailAddress.Address == "" {
			continue
		}
		item.Participants = append(item.Participants, syncdomain.Participant{
			Email:       r.EmailAddress.Address,
			DisplayName: r.EmailAddress.Name,
		})
	}
	return item
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
