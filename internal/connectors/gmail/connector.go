// Package gmail fetches messages through the Gmail API.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailorder/internal"
	"mailorder/internal/config"
)

const (
	provider = "gmail"
	userID   = "me"
)

type Connector struct {
	service *gmail.Service
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, v := range []struct{ name, value string }{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	} {
		if err := cfg.Require(v.name, v.value); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
	ctx := context.Background()
	tokens := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	return newConnector(ctx, option.WithTokenSource(tokens))
}

func newConnector(ctx context.Context, opts ...option.ClientOption) (*Connector, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return &Connector{service: svc}, nil
}

// FetchInbox returns up to max messages carrying label. Headers come from the
// raw RFC 5322 payload, so each message costs one API call.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	list := c.service.Users.Messages.List(userID).LabelIds(label).Context(ctx)
	if max > 0 {
		list = list.MaxResults(int64(max))
	}
	resp, err := list.Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list %q: %w", label, err)
	}

	out := make([]internal.FetchedMailMessage, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		if ref == nil || ref.Id == "" {
			continue
		}
		msg, err := c.service.Users.Messages.Get(userID, ref.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("gmail get %s: %w", ref.Id, err)
		}
		fetched, ok, err := toFetched(ref.Id, msg)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, fetched)
		}
	}
	return out, nil
}

func toFetched(id string, msg *gmail.Message) (internal.FetchedMailMessage, bool, error) {
	if msg.Raw == "" {
		return internal.FetchedMailMessage{}, false, nil
	}
	raw, err := decodeBase64URL(msg.Raw)
	if err != nil {
		return internal.FetchedMailMessage{}, false, fmt.Errorf("gmail message %s: %w", id, err)
	}

	fetched := internal.FetchedMailMessage{
		Provider:   provider,
		MessageID:  id,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	if msg.InternalDate > 0 {
		fetched.ReceivedAt = time.UnixMilli(msg.InternalDate).UTC().Format(time.RFC3339)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return fetched, true, nil
	}
	if messageID := strings.TrimSpace(env.GetHeader("Message-ID")); messageID != "" {
		fetched.MessageID = messageID
	}
	fetched.Subject = strings.TrimSpace(env.GetHeader("Subject"))
	if from, err := env.AddressList("From"); err == nil && len(from) > 0 {
		fetched.From = from[0].Address
	} else {
		fetched.From = strings.TrimSpace(env.GetHeader("From"))
	}
	if t, err := parseMailDate(env.GetHeader("Date")); err == nil {
		fetched.ReceivedAt = t.UTC().Format(time.RFC3339)
	}
	return fetched, true, nil
}

func decodeBase64URL(input string) ([]byte, error) {
	if decoded, err := base64.RawURLEncoding.DecodeString(input); err == nil {
		return decoded, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}
	return decoded, nil
}

func parseMailDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if parsed, err := mail.ParseDate(value); err == nil {
		return parsed, nil
	}
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC850, time.ANSIC} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %q", value)
}
