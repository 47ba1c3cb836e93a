package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/api/option"

	"quickestimate/internal/config"
)

const rawMail = "Message-ID: <sheet-1@example.com>\r\n" +
	"From: Site Office <site@example.com>\r\n" +
	"Subject: Estimate sheet\r\n" +
	"Date: Mon, 12 Oct 2026 09:30:00 +0530\r\n" +
	"Content-Type: text/plain\r\n\r\n" +
	"8 4 120\r\n"

func TestFetchInbox(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			if r.URL.Query().Get("labelIds") != "INBOX" || r.URL.Query().Get("maxResults") != "5" {
				t.Errorf("query=%s", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{{"id": "m1"}, {"id": ""}}})
		case strings.HasSuffix(r.URL.Path, "/users/me/messages/m1"):
			if r.URL.Query().Get("format") != "raw" {
				t.Errorf("format=%s", r.URL.Query().Get("format"))
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":           "m1",
				"internalDate": "1760000000000",
				"raw":          base64.RawURLEncoding.EncodeToString([]byte(rawMail)),
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := newConnector(context.Background(), option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	msgs, err := c.FetchInbox(context.Background(), "INBOX", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len=%d", len(msgs))
	}
	m := msgs[0]
	if m.Provider != "gmail" || m.MessageID != "<sheet-1@example.com>" || m.Subject != "Estimate sheet" {
		t.Fatalf("msg=%+v", m)
	}
	if m.ReceivedAt != "2026-10-12T04:00:00Z" {
		t.Fatalf("receivedAt=%s", m.ReceivedAt)
	}
	if string(m.Raw) != rawMail {
		t.Fatalf("raw mismatch")
	}
}

func TestNewConnectorRequiresCredentials(t *testing.T) {
	if _, err := NewConnector(context.Background(), config.Config{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeBase64URL(t *testing.T) {
	for _, in := range []string{"aGk", "aGk="} {
		got, err := decodeBase64URL(in)
		if err != nil || string(got) != "hi" {
			t.Fatalf("%q: %q %v", in, got, err)
		}
	}
	if _, err := decodeBase64URL("***"); err == nil {
		t.Fatal("expected error")
	}
}
