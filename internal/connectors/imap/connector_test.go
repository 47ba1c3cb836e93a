package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"

	"quickestimate/internal/config"
)

func TestFormatAddresses(t *testing.T) {
	cases := []struct {
		name  string
		addrs []*imap.Address
		want  string
	}{
		{"empty", nil, ""},
		{"bare", []*imap.Address{{MailboxName: "site", HostName: "example.com"}}, "site@example.com"},
		{"named", []*imap.Address{{PersonalName: "Site Office", MailboxName: "site", HostName: "example.com"}}, "Site Office <site@example.com>"},
		{"skips nil", []*imap.Address{nil, {MailboxName: "a", HostName: "b.c"}, {MailboxName: "d", HostName: "e.f"}}, "a@b.c, d@e.f"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatAddresses(tc.addrs); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestToFetched(t *testing.T) {
	when := time.Date(2026, 10, 12, 4, 0, 0, 0, time.UTC)
	msg := &imap.Message{
		Uid:          42,
		InternalDate: when,
		Envelope:     &imap.Envelope{Subject: "Estimate", From: []*imap.Address{{MailboxName: "site", HostName: "example.com"}}},
	}
	got := toFetched(msg, []byte("raw"))
	if got.MessageID != "imap-42" || got.Subject != "Estimate" || got.From != "site@example.com" {
		t.Fatalf("got %+v", got)
	}
	if got.ReceivedAt != "2026-10-12T04:00:00Z" || got.Provider != "imap" {
		t.Fatalf("got %+v", got)
	}
}

func TestNewConnectorRequiresHost(t *testing.T) {
	if _, err := NewConnector(config.Config{IMAPUser: "u", IMAPPassword: "p"}); err == nil {
		t.Fatal("expected error")
	}
	c, err := NewConnector(config.Config{IMAPHost: "mail.example.com", IMAPPort: 993, IMAPUser: "u", IMAPPassword: "p", IMAPMarkSeen: true})
	if err != nil {
		t.Fatal(err)
	}
	if !c.markSeen || c.port != 993 {
		t.Fatalf("connector=%+v", c)
	}
}
