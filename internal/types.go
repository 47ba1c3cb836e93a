package internal

import "github.com/shopspring/decimal"

type PatchSource string

const (
	SourceImage     PatchSource = "image"
	SourceText      PatchSource = "text"
	SourceHTMLTable PatchSource = "html_table"
	SourceXLSX      PatchSource = "xlsx"
	SourcePDF       PatchSource = "pdf"
)

// ExtractedPatch is one size row read off a document. It only patches an
// existing row with the same size; see estimate.UnmatchedPolicy.
type ExtractedPatch struct {
	SizeFeet decimal.Decimal `json:"sizeFt"`
	Pieces   decimal.Decimal `json:"pcs"`
	Rate     decimal.Decimal `json:"rate"`
	Source   PatchSource     `json:"-"`
}

type EmailStatus string

const (
	EmailFetched   EmailStatus = "fetched"
	EmailProcessed EmailStatus = "processed"
	EmailSkipped   EmailStatus = "skipped"
	EmailFailed    EmailStatus = "failed"
	EmailExported  EmailStatus = "exported"
)

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     EmailStatus
	RawRef     string
	EstimateID *string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
