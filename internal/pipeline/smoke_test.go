package pipeline

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jhillyerd/enmime"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"quickestimate/internal"
	"quickestimate/internal/blob"
	"quickestimate/internal/config"
	"quickestimate/internal/extract"
	"quickestimate/internal/storage"
)

type fixture struct {
	db    *storage.DB
	blobs *blob.Memory
	cfg   config.Config
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	cfg, _ := config.Load()
	cfg.UnmatchedPolicy = "drop"
	cfg.ExtractTimeoutMs = 2000
	return fixture{db: db, blobs: blob.NewMemory(), cfg: cfg}
}

type attachment struct {
	name, contentType string
	content           []byte
}

func buildMail(t *testing.T, subject, text string, atts ...attachment) []byte {
	t.Helper()
	b := enmime.Builder().
		From("Site Office", "site@example.com").
		To("Billing", "billing@example.com").
		Subject(subject).
		Text([]byte(text))
	for _, a := range atts {
		b = b.AddAttachment(a.content, a.contentType, a.name)
	}
	part, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	buf := bytes.NewBuffer(nil)
	if err := part.Encode(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func (f fixture) store(t *testing.T, messageID string, raw []byte) internal.EmailRow {
	t.Helper()
	key := "mail/" + messageID + ".eml"
	if _, err := f.blobs.Put(context.Background(), key, raw, "message/rfc822"); err != nil {
		t.Fatal(err)
	}
	email, err := f.db.UpsertEmail("imap", messageID, "", "site@example.com", "2026-10-01T00:00:00Z", "hash-"+messageID, key, internal.EmailFetched)
	if err != nil {
		t.Fatal(err)
	}
	return email
}

func sheetXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Size Ft", "Size M", "PCS", "Rate"},
		{6, 1.75, 2, 110},
		{8, 2.5, 4, 120},
		{12, 3.6, 1, 150},
		{9, 2.7, 5, 100},
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSmokeSpreadsheetEmailToEstimate(t *testing.T) {
	f := newFixture(t)
	raw := buildMail(t, "Estimate sheet for block C", "Please find the sheet attached.",
		attachment{"sheet.xlsx", XLSXContentType, sheetXLSX(t)})
	email := f.store(t, "<xlsx-1@example.com>", raw)

	proc := NewProcessingService(f.db, f.blobs, f.cfg, nil)
	res, err := proc.ProcessEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != internal.EmailProcessed || res.Failure != nil {
		t.Fatalf("res=%+v", res)
	}
	if res.Patched != 3 || res.Dropped != 1 {
		t.Fatalf("patched=%d dropped=%d", res.Patched, res.Dropped)
	}

	saved, err := f.db.LoadEstimate(res.EstimateID)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Rows) != 5 {
		t.Fatalf("rows=%d", len(saved.Rows))
	}
	// 1.75*2=3.50*110=385, 2.5*4=10*120=1200, 3.6*1=3.60*150=540
	summary := saved.NewStore(nil).Summary(decimal.RequireFromString("3.6"))
	if summary.GrandTotal.StringFixed(2) != "2125.00" {
		t.Fatalf("grand total=%s", summary.GrandTotal.StringFixed(2))
	}

	stored, _ := f.db.GetEmailByID(email.ID)
	if stored.Status != internal.EmailProcessed || stored.EstimateID == nil || *stored.EstimateID != res.EstimateID {
		t.Fatalf("email=%+v", stored)
	}
	if n, _ := f.db.CountRuns(); n != 1 {
		t.Fatalf("runs=%d", n)
	}

	out := filepath.Join(t.TempDir(), "result.xlsx")
	if err := ExportEstimateToXLSX(saved, decimal.RequireFromString("3.6"), out); err != nil {
		t.Fatal(err)
	}
}

func TestPhotoEmailUsesImageExtractor(t *testing.T) {
	f := newFixture(t)
	raw := buildMail(t, "sheet", "photo attached",
		attachment{"IMG_0042.jpg", "image/jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}})
	email := f.store(t, "<photo-1@example.com>", raw)

	stub := &extract.StubExtractor{Patches: []internal.ExtractedPatch{
		{SizeFeet: decimal.NewFromInt(10), Pieces: decimal.NewFromInt(3), Rate: decimal.NewFromInt(90)},
	}}
	proc := NewProcessingService(f.db, f.blobs, f.cfg, stub)
	res, err := proc.ProcessEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != internal.EmailProcessed || stub.Calls() != 1 || res.Patched != 1 {
		t.Fatalf("res=%+v calls=%d", res, stub.Calls())
	}
}

func TestFailedExtractionStoresNothing(t *testing.T) {
	f := newFixture(t)
	raw := buildMail(t, "Estimate sheet", "photo attached",
		attachment{"sheet.png", "image/png", []byte("png")})
	email := f.store(t, "<photo-2@example.com>", raw)

	stub := &extract.StubExtractor{Err: &extract.ExtractionError{Kind: extract.KindSchema, Op: "gemini", Err: errors.New("missing pcs")}}
	proc := NewProcessingService(f.db, f.blobs, f.cfg, stub)
	res, err := proc.ProcessEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != internal.EmailFailed || extract.KindOf(res.Failure) != extract.KindSchema {
		t.Fatalf("res=%+v", res)
	}
	if list, _ := f.db.ListEstimates(); len(list) != 0 {
		t.Fatalf("estimates=%d", len(list))
	}
	stored, _ := f.db.GetEmailByID(email.ID)
	if stored.Status != internal.EmailFailed || stored.EstimateID != nil {
		t.Fatalf("email=%+v", stored)
	}
}

func TestPhotoWithoutExtractorFails(t *testing.T) {
	f := newFixture(t)
	email := f.store(t, "<photo-3@example.com>", buildMail(t, "Estimate", "x",
		attachment{"sheet.jpg", "image/jpeg", []byte{0xFF, 0xD8}}))
	res, err := NewProcessingService(f.db, f.blobs, f.cfg, nil).ProcessEmail(context.Background(), email)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != internal.EmailFailed || !errors.Is(res.Failure, ErrNoImageExtractor) {
		t.Fatalf("res=%+v", res)
	}
}

func TestProcessPendingSkipsUnrelatedMail(t *testing.T) {
	f := newFixture(t)
	f.store(t, "<news@example.com>", buildMail(t, "Weekly newsletter", "Nothing to see here."))
	f.store(t, "<typed@example.com>", buildMail(t, "Estimate", "Size Ft PCS Rate\n8 4 120\n10 2 100\n"))

	proc := NewProcessingService(f.db, f.blobs, f.cfg, nil)
	results, err := proc.ProcessPending(context.Background(), 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results=%+v", results)
	}
	statuses := map[internal.EmailStatus]int{}
	for _, r := range results {
		statuses[r.Status]++
	}
	if statuses[internal.EmailSkipped] != 1 || statuses[internal.EmailProcessed] != 1 {
		t.Fatalf("statuses=%v", statuses)
	}
	if left, _ := f.db.ListEmailsByStatus(internal.EmailFetched, 10); len(left) != 0 {
		t.Fatalf("pending left=%d", len(left))
	}
}

func TestExtractorForReportsCause(t *testing.T) {
	f := newFixture(t)
	proc := NewProcessingService(f.db, f.blobs, f.cfg, nil)

	if _, err := proc.extractorFor(source{name: "sheet.jpg", contentType: "image/jpeg", image: true}); !errors.Is(err, ErrNoImageExtractor) {
		t.Fatalf("photo err=%v", err)
	}
	_, err := proc.extractorFor(source{name: "notes.bin", contentType: "application/octet-stream"})
	if !errors.Is(err, ErrUnsupportedDocument) || errors.Is(err, ErrNoImageExtractor) {
		t.Fatalf("document err=%v", err)
	}
	if ex, err := proc.extractorFor(source{name: "body.txt", contentType: "text/plain"}); err != nil || ex == nil {
		t.Fatalf("text ex=%v err=%v", ex, err)
	}
}
