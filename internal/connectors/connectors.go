package connectors

import (
	"context"
	"fmt"
	"strings"

	"quickestimate/internal"
	"quickestimate/internal/config"
	gmailconnector "quickestimate/internal/connectors/gmail"
	imapconnector "quickestimate/internal/connectors/imap"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// Open builds the connector for provider ("gmail" or "imap").
func Open(ctx context.Context, cfg config.Config, provider string) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
