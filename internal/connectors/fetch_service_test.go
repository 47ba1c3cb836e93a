package connectors

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"quickestimate/internal"
	"quickestimate/internal/blob"
	"quickestimate/internal/config"
	"quickestimate/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
	err      error
}

func (f fakeConnector) FetchInbox(_ context.Context, _ string, max int) ([]internal.FetchedMailMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.messages) > max {
		return f.messages[:max], nil
	}
	return f.messages, nil
}

func TestFetchAndStore(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	blobs := blob.NewMemory()

	conn := fakeConnector{messages: []internal.FetchedMailMessage{
		{Provider: "imap", MessageID: "<a@x>", Subject: "sheet", Raw: []byte("Subject: sheet\r\n\r\nbody a")},
		{Provider: "imap", MessageID: "<b@x>", Subject: "sheet 2", Raw: []byte("Subject: sheet 2\r\n\r\nbody b")},
	}}
	svc := NewFetchService(db, blobs, conn)

	res, err := svc.FetchAndStore(context.Background(), "INBOX", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 2 || res.Stored != 2 {
		t.Fatalf("res=%+v", res)
	}

	email, err := db.MustEmailByProviderMessageID("imap", "<a@x>")
	if err != nil {
		t.Fatal(err)
	}
	if email.Status != internal.EmailFetched || email.RawRef != RawKey(email.Hash) {
		t.Fatalf("email=%+v", email)
	}
	_, raw, err := blobs.Get(context.Background(), email.RawRef)
	if err != nil || string(raw) != "Subject: sheet\r\n\r\nbody a" {
		t.Fatalf("raw=%q err=%v", raw, err)
	}

	// A refetch after processing must not requeue the message.
	if err := db.UpdateEmailStatus(email.ID, internal.EmailProcessed); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.FetchAndStore(context.Background(), "INBOX", 10); err != nil {
		t.Fatal(err)
	}
	again, _ := db.GetEmailByID(email.ID)
	if again.Status != internal.EmailProcessed {
		t.Fatalf("status=%s", again.Status)
	}
	if v, _ := db.GetMetadata("mail:lastFetchAt"); v == nil {
		t.Fatal("lastFetchAt not recorded")
	}
}

func TestFetchAndStoreConnectorError(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	boom := errors.New("login failed")
	_, err = NewFetchService(db, blob.NewMemory(), fakeConnector{err: boom}).FetchAndStore(context.Background(), "INBOX", 5)
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestOpenUnknownProvider(t *testing.T) {
	if _, err := Open(context.Background(), config.Config{}, "pop3"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Open(context.Background(), config.Config{}, "imap"); err == nil {
		t.Fatal("imap without host accepted")
	}
}
