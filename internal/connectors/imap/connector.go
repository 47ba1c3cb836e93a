package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"quickestimate/internal"
	"quickestimate/internal/config"
)

const dialTimeout = 30 * time.Second

type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	markSeen bool
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	return &Connector{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
	}, nil
}

// FetchInbox returns up to max unseen messages from label, newest last.
// With markSeen set the fetched messages are flagged \Seen once the whole
// batch has been read.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer client.Logout()
	client.Timeout = dialTimeout

	if err := client.Login(c.user, c.password); err != nil {
		return nil, err
	}

	if _, err := client.Select(label, false); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := client.Search(criteria)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}
	messages := make(chan *imap.Message, len(ids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- client.Fetch(seqset, items, messages) }()

	out := make([]internal.FetchedMailMessage, 0, len(ids))
	seen := new(imap.SeqSet)
	var readErr error
	for msg := range messages {
		if msg == nil || readErr != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			readErr = err
			continue
		}
		out = append(out, toFetched(msg, raw))
		seen.AddNum(msg.SeqNum)
	}

	if err := <-fetchDone; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.markSeen && !seen.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := client.Store(seen, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (c *Connector) dial() (*imapclient.Client, error) {
	addr := net.JoinHostPort(c.host, fmt.Sprint(c.port))
	dialer := &net.Dialer{Timeout: dialTimeout}
	if c.secure {
		return imapclient.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: c.host})
	}
	return imapclient.DialWithDialer(dialer, addr)
}

func toFetched(msg *imap.Message, raw []byte) internal.FetchedMailMessage {
	out := internal.FetchedMailMessage{
		Provider:   "imap",
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	if msg.Envelope != nil {
		out.MessageID = msg.Envelope.MessageId
		out.Subject = msg.Envelope.Subject
		out.From = formatAddresses(msg.Envelope.From)
	}
	if out.MessageID == "" {
		out.MessageID = fmt.Sprintf("imap-%d", msg.Uid)
	}
	if !msg.InternalDate.IsZero() {
		out.ReceivedAt = msg.InternalDate.UTC().Format(time.RFC3339)
	}
	return out
}

func formatAddresses(addrs []*imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(strings.Join([]string{a.MailboxName, a.HostName}, "@"), "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}
