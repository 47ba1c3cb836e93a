package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"time"

	"github.com/jhillyerd/enmime"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"quickestimate/internal"
	"quickestimate/internal/config"
)

type Connector struct {
	service *gmail.Service
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	return newConnector(ctx, option.WithTokenSource(tokenSource))
}

func newConnector(ctx context.Context, opts ...option.ClientOption) (*Connector, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Connector{service: svc}, nil
}

// FetchInbox downloads the newest max messages under label in raw form.
// Subject, sender and date are read from the message headers.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	listResp, err := c.service.Users.Messages.List("me").LabelIds(label).MaxResults(int64(max)).Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	out := make([]internal.FetchedMailMessage, 0, len(listResp.Messages))
	for _, msgRef := range listResp.Messages {
		if msgRef.Id == "" {
			continue
		}

		rawResp, err := c.service.Users.Messages.Get("me", msgRef.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, err
		}
		if rawResp.Raw == "" {
			continue
		}
		rawBytes, err := decodeBase64URL(rawResp.Raw)
		if err != nil {
			return nil, err
		}

		msg := internal.FetchedMailMessage{
			Provider:   "gmail",
			MessageID:  msgRef.Id,
			ReceivedAt: time.UnixMilli(rawResp.InternalDate).UTC().Format(time.RFC3339),
			Raw:        rawBytes,
		}
		if env, err := enmime.ReadEnvelope(bytes.NewReader(rawBytes)); err == nil {
			if id := env.GetHeader("Message-ID"); id != "" {
				msg.MessageID = id
			}
			msg.Subject = env.GetHeader("Subject")
			msg.From = env.GetHeader("From")
			if t, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
				msg.ReceivedAt = t.UTC().Format(time.RFC3339)
			}
		}
		out = append(out, msg)
	}

	return out, nil
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
