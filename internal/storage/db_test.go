package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"quickestimate/internal"
	"quickestimate/internal/estimate"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEstimateRoundTrip(t *testing.T) {
	db := openTestDB(t)

	s := estimate.NewStore(estimate.ModeFree, nil)
	if _, err := s.AddRow(estimate.RowPatch{SizeFeet: estimate.Dec(decimal.NewFromInt(8)), Pieces: estimate.Int(4), Rate: estimate.Dec(decimal.RequireFromString("120.50"))}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddRow(estimate.RowPatch{
		SizeFeet:   estimate.Dec(decimal.RequireFromString("7.25")),
		SizeMeters: estimate.Dec(decimal.RequireFromString("1.234")),
		Pieces:     estimate.Int(3),
		Rate:       estimate.Dec(decimal.NewFromInt(100)),
	}); err != nil {
		t.Fatal(err)
	}

	created, err := db.CreateEstimate("site A", estimate.ModeFree, nil, s.List())
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.CreatedAt == "" {
		t.Fatalf("created=%+v", created)
	}

	loaded, err := db.LoadEstimate(created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Name != "site A" || loaded.Mode != estimate.ModeFree || len(loaded.Rows) != 2 {
		t.Fatalf("loaded=%+v", loaded)
	}
	want := s.List()
	for i := range want {
		got := loaded.Rows[i]
		if got.ID != want[i].ID || !got.SizeFeet.Equal(want[i].SizeFeet) || !got.SizeMeters.Equal(want[i].SizeMeters) ||
			got.Pieces != want[i].Pieces || !got.Rate.Equal(want[i].Rate) || got.Custom != want[i].Custom {
			t.Fatalf("row %d: got %+v want %+v", i, got, want[i])
		}
	}
	if loaded.Rows[1].SizeMeters.String() != "1.234" {
		t.Fatalf("meters lost precision: %s", loaded.Rows[1].SizeMeters)
	}

	restored := loaded.NewStore(nil)
	if got := restored.Summary(estimate.DefaultFilterMeters).GrandTotal.StringFixed(2); got != "1575.00" {
		// 2.5*4*120.50 = 1205.00, 3.70*100 = 370.00
		t.Fatalf("grand total=%s", got)
	}
}

func TestSaveReplacesRows(t *testing.T) {
	db := openTestDB(t)
	s := estimate.NewStore(estimate.ModeFixed, nil)
	e, err := db.CreateEstimate("fixed", estimate.ModeFixed, nil, s.List())
	if err != nil {
		t.Fatal(err)
	}
	e.Rows = e.Rows[:2]
	e.Name = "renamed"
	if err := db.SaveEstimate(&e); err != nil {
		t.Fatal(err)
	}
	loaded, err := db.LoadEstimate(e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Name != "renamed" || len(loaded.Rows) != 2 {
		t.Fatalf("loaded=%+v", loaded)
	}

	list, err := db.ListEstimates()
	if err != nil || len(list) != 1 {
		t.Fatalf("list=%v err=%v", list, err)
	}

	ok, err := db.DeleteEstimate(e.ID)
	if err != nil || !ok {
		t.Fatalf("delete=%v err=%v", ok, err)
	}
	if _, err := db.LoadEstimate(e.ID); !errors.Is(err, ErrEstimateNotFound) {
		t.Fatalf("err=%v", err)
	}
	if ok, _ := db.DeleteEstimate(e.ID); ok {
		t.Fatal("second delete reported a row")
	}
}

func TestSaveRejectsBadID(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveEstimate(&Estimate{ID: "not-a-uuid", Mode: estimate.ModeFree}); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmailLifecycle(t *testing.T) {
	db := openTestDB(t)

	row, err := db.UpsertEmail("imap", "<m1@x>", "Estimate", "a@b.c", "2026-10-01T10:00:00Z", "h1", "mail/h1.eml", internal.EmailFetched)
	if err != nil {
		t.Fatal(err)
	}
	again, err := db.UpsertEmail("imap", "<m1@x>", "Estimate v2", "a@b.c", "2026-10-01T10:00:00Z", "h1", "mail/h1.eml", internal.EmailFetched)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != row.ID || again.Subject != "Estimate v2" {
		t.Fatalf("upsert created a new row: %+v", again)
	}

	pending, err := db.ListEmailsByStatus(internal.EmailFetched, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending=%v err=%v", pending, err)
	}

	e, err := db.CreateEstimate("from mail", estimate.ModeFixed, &row.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.LinkEmailEstimate(row.ID, e.ID); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateEmailStatus(row.ID, internal.EmailProcessed); err != nil {
		t.Fatal(err)
	}
	got, err := db.GetEmailByID(row.ID)
	if err != nil || got == nil {
		t.Fatalf("get=%v err=%v", got, err)
	}
	if got.Status != internal.EmailProcessed || got.EstimateID == nil || *got.EstimateID != e.ID {
		t.Fatalf("email=%+v", got)
	}

	if err := db.InsertRun("trace-1", row.ID, e.ID, map[string]float64{"totalMs": 1}, map[string]int{"patched": 5}); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertRun("trace-2", 0, "", nil, nil); err != nil {
		t.Fatal(err)
	}
	if n, err := db.CountRuns(); err != nil || n != 2 {
		t.Fatalf("runs=%d err=%v", n, err)
	}

	if missing, err := db.GetEmailByProviderMessageID("imap", "nope"); err != nil || missing != nil {
		t.Fatalf("missing=%v err=%v", missing, err)
	}
	if _, err := db.MustEmailByProviderMessageID("imap", "nope"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)
	if v, err := db.GetMetadata("lastFetch"); err != nil || v != nil {
		t.Fatalf("v=%v err=%v", v, err)
	}
	if err := db.SetMetadata("lastFetch", "1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetMetadata("lastFetch", "2"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetMetadata("lastFetch")
	if err != nil || v == nil || *v != "2" {
		t.Fatalf("v=%v err=%v", v, err)
	}
}
