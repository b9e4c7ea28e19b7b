package gmailmail

import (
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	integrationdomain "touchbase-backend/internal/integration/domain"
	syncdomain "touchbase-backend/internal/sync/domain"
	"touchbase-backend/internal/sync/provider"
)

const pageSize = 100

// Provider syncs message metadata from the user's Gmail mailbox. Bodies are
// never fetched.
type Provider struct{}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Type() integrationdomain.ProviderType {
	return integrationdomain.ProviderGmail
}

// FetchFull lists messages inside the window via a search query. The cursor
// for subsequent incremental syncs is the mailbox's current history id, taken
// on the final page.
func (p *Provider) FetchFull(ctx context.Context, acct provider.Account, window syncdomain.TimeWindow, pageToken string) (*syncdomain.Page, error) {
	svc, err := p.service(ctx, acct)
	if err != nil {
		return nil, err
	}

	call := svc.Users.Messages.List("me").
		Q(windowQuery(window)).
		IncludeSpamTrash(false).
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
	for _, ref := range resp.Messages {
		item, err := p.fetchMessage(ctx, svc, ref.Id)
		if err != nil {
			return nil, err
		}
		if item != nil {
			page.Items = append(page.Items, *item)
		}
	}

	if resp.NextPageToken == "" {
		profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
		if err != nil {
			return nil, mapError(err)
		}
		page.NewCursor = strconv.FormatUint(profile.HistoryId, 10)
	}
	return page, nil
}

// FetchIncremental walks the history log from the stored history id. Gmail
// answers 404 when the id has aged out, which maps to a cursor reset.
func (p *Provider) FetchIncremental(ctx context.Context, acct provider.Account, cursor, pageToken string) (*syncdomain.Page, error) {
	svc, err := p.service(ctx, acct)
	if err != nil {
		return nil, err
	}

	startHistoryID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, syncdomain.ErrCursorExpired
	}

	call := svc.Users.History.List("me").
		StartHistoryId(startHistoryID).
		HistoryTypes("messageAdded").
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
	seen := make(map[string]bool)
	for _, history := range resp.History {
		for _, record := range history.MessagesAdded {
			if record.Message == nil || seen[record.Message.Id] {
				continue
			}
			seen[record.Message.Id] = true
			item, err := p.fetchMessage(ctx, svc, record.Message.Id)
			if err != nil {
				return nil, err
			}
			if item != nil {
				page.Items = append(page.Items, *item)
			}
		}
	}

	if resp.NextPageToken == "" && resp.HistoryId != 0 {
		page.NewCursor = strconv.FormatUint(resp.HistoryId, 10)
	}
	return page, nil
}

func (p *Provider) FetchByID(ctx context.Context, acct provider.Account, externalID string) (*syncdomain.ExternalItem, error) {
	svc, err := p.service(ctx, acct)
	if err != nil {
		return nil, err
	}
	return p.fetchMessage(ctx, svc, externalID)
}

func (p *Provider) service(ctx context.Context, acct provider.Account) (*gmail.Service, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(acct.Client))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return svc, nil
}

func (p *Provider) fetchMessage(ctx context.Context, svc *gmail.Service, id string) (*syncdomain.ExternalItem, error) {
	msg, err := svc.Users.Messages.Get("me", id).Format("metadata").
		MetadataHeaders("From", "To", "Cc", "Subject").
		Context(ctx).Do()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 404 {
			// message deleted between listing and fetch
			return nil, nil
		}
		return nil, mapError(err)
	}
	item := convertMessage(msg)
	return &item, nil
}

func convertMessage(msg *gmail.Message) syncdomain.ExternalItem {
	headers := make(map[string]string)
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[h.Name] = h.Value
		}
	}

	item := syncdomain.ExternalItem{
		ExternalID: msg.Id,
		Kind:       syncdomain.ItemEmail,
		Title:      headers["Subject"],
		StartsAt:   time.UnixMilli(msg.InternalDate).UTC(),
	}

	item.Participants = append(item.Participants, parseAddresses(headers["From"])...)
	item.Participants = append(item.Participants, parseAddresses(headers["To"])...)
	item.Participants = append(item.Participants, parseAddresses(headers["Cc"])...)
	return item
}

func parseAddresses(header string) []syncdomain.Participant {
	if header == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(header)
	if err != nil {
		return nil
	}
	participants := make([]syncdomain.Participant, 0, len(addrs))
	for _, a := range addrs {
		participants = append(participants, syncdomain.Participant{
			Email:       a.Address,
			DisplayName: a.Name,
		})
	}
	return participants
}

func windowQuery(window syncdomain.TimeWindow) string {
	q := "after:" + window.Start.Format("2006/01/02")
	if !window.End.IsZero() {
		q += " before:" + window.End.Format("2006/01/02")
	}
	return q
}

func mapError(err error) error {
	apiErr, ok := err.(*googleapi.Error)
	if !ok {
		return err
	}
	switch apiErr.Code {
	case 404:
		// history.list answers 404 when startHistoryId has aged out
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
