package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"quickestimate/internal"
	"quickestimate/internal/catalog"
	"quickestimate/internal/estimate"
)

var ErrEstimateNotFound = errors.New("estimate not found")

// Estimate is a saved sheet: its header plus the ordered rows.
type Estimate struct {
	ID        string
	Name      string
	Mode      estimate.Mode
	EmailID   *int
	CreatedAt string
	UpdatedAt string
	Rows      []estimate.Row
}

// NewStore loads the saved rows into an editable store.
func (e Estimate) NewStore(cat *catalog.Catalog) *estimate.Store {
	s := estimate.NewStore(e.Mode, cat)
	s.ResetAll(e.Rows)
	return s
}

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  estimateId TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS estimates (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  mode TEXT NOT NULL,
  emailId INTEGER,
  createdAt TEXT NOT NULL,
  updatedAt TEXT NOT NULL,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);
CREATE INDEX IF NOT EXISTS idx_estimates_updatedAt ON estimates(updatedAt);

CREATE TABLE IF NOT EXISTS estimate_rows (
  estimateId TEXT NOT NULL,
  position INTEGER NOT NULL,
  rowId INTEGER NOT NULL,
  sizeFeet TEXT NOT NULL,
  sizeMeters TEXT NOT NULL,
  pieces INTEGER NOT NULL,
  rate TEXT NOT NULL,
  custom INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY(estimateId, position),
  FOREIGN KEY(estimateId) REFERENCES estimates(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  emailId INTEGER,
  estimateId TEXT,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// CreateEstimate stores a new estimate under a fresh UUID.
func (d *DB) CreateEstimate(name string, mode estimate.Mode, emailID *int, rows []estimate.Row) (Estimate, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	e := Estimate{
		ID:        uuid.NewString(),
		Name:      name,
		Mode:      mode,
		EmailID:   emailID,
		CreatedAt: now,
		UpdatedAt: now,
		Rows:      rows,
	}
	if err := d.SaveEstimate(&e); err != nil {
		return Estimate{}, err
	}
	return e, nil
}

// SaveEstimate writes the header and replaces all rows in one transaction.
func (d *DB) SaveEstimate(e *Estimate) error {
	if e.ID == "" {
		return errors.New("estimate id required")
	}
	if _, err := uuid.Parse(e.ID); err != nil {
		return fmt.Errorf("estimate id %q: %w", e.ID, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if e.CreatedAt == "" {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
INSERT INTO estimates (id, name, mode, emailId, createdAt, updatedAt)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  mode=excluded.mode,
  emailId=excluded.emailId,
  updatedAt=excluded.updatedAt
`, e.ID, e.Name, string(e.Mode), e.EmailID, e.CreatedAt, e.UpdatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM estimate_rows WHERE estimateId = ?`, e.ID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO estimate_rows (estimateId, position, rowId, sizeFeet, sizeMeters, pieces, rate, custom)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range e.Rows {
		if _, err := stmt.Exec(e.ID, i, int64(r.ID), r.SizeFeet, r.SizeMeters, r.Pieces, r.Rate, r.Custom); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) LoadEstimate(id string) (Estimate, error) {
	var e Estimate
	var mode string
	var emailID sql.NullInt64
	err := d.conn.QueryRow(`
SELECT id, name, mode, emailId, createdAt, updatedAt FROM estimates WHERE id = ?
`, id).Scan(&e.ID, &e.Name, &mode, &emailID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Estimate{}, fmt.Errorf("%w: %s", ErrEstimateNotFound, id)
	}
	if err != nil {
		return Estimate{}, err
	}
	e.Mode = estimate.Mode(mode)
	if emailID.Valid {
		v := int(emailID.Int64)
		e.EmailID = &v
	}

	rows, err := d.loadRows(id)
	if err != nil {
		return Estimate{}, err
	}
	e.Rows = rows
	return e, nil
}

func (d *DB) loadRows(estimateID string) ([]estimate.Row, error) {
	rows, err := d.conn.Query(`
SELECT rowId, sizeFeet, sizeMeters, pieces, rate, custom
FROM estimate_rows WHERE estimateId = ? ORDER BY position ASC
`, estimateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []estimate.Row{}
	for rows.Next() {
		var r estimate.Row
		var rowID int64
		var feet, meters, rate decimal.Decimal
		if err := rows.Scan(&rowID, &feet, &meters, &r.Pieces, &rate, &r.Custom); err != nil {
			return nil, err
		}
		r.ID = estimate.RowID(rowID)
		r.SizeFeet, r.SizeMeters, r.Rate = feet, meters, rate
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListEstimates returns all estimates, most recently updated first.
func (d *DB) ListEstimates() ([]Estimate, error) {
	rows, err := d.conn.Query(`SELECT id FROM estimates ORDER BY updatedAt DESC, createdAt DESC`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Estimate, 0, len(ids))
	for _, id := range ids {
		e, err := d.LoadEstimate(id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *DB) DeleteEstimate(id string) (bool, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM estimate_rows WHERE estimateId = ?`, id); err != nil {
		return false, err
	}
	if _, err := tx.Exec(`UPDATE emails SET estimateId = NULL WHERE estimateId = ?`, id); err != nil {
		return false, err
	}
	res, err := tx.Exec(`DELETE FROM estimates WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, tx.Commit()
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef, estimateId`

type scanner interface {
	Scan(dest ...any) error
}

func scanEmail(s scanner) (internal.EmailRow, error) {
	var row internal.EmailRow
	var subject, sender, receivedAt, estimateID sql.NullString
	var status string
	if err := s.Scan(&row.ID, &row.Provider, &row.MessageID, &subject, &sender, &receivedAt, &row.Hash, &status, &row.RawRef, &estimateID); err != nil {
		return internal.EmailRow{}, err
	}
	row.Subject, row.Sender, row.ReceivedAt = subject.String, sender.String, receivedAt.String
	row.Status = internal.EmailStatus(status)
	if estimateID.Valid {
		v := estimateID.String
		row.EstimateID = &v
	}
	return row, nil
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef string, status internal.EmailStatus) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, string(status), rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

func (d *DB) ListEmailsByStatus(status internal.EmailStatus, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status internal.EmailStatus) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, string(status), emailID)
	return err
}

// LinkEmailEstimate records which estimate an email produced.
func (d *DB) LinkEmailEstimate(emailID int, estimateID string) error {
	_, err := d.conn.Exec(`UPDATE emails SET estimateId = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, estimateID, emailID)
	return err
}

func (d *DB) InsertRun(traceID string, emailID int, estimateID string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	var emailRef, estimateRef any
	if emailID > 0 {
		emailRef = emailID
	}
	if estimateID != "" {
		estimateRef = estimateID
	}
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, emailId, estimateId, timingsJson, countsJson) VALUES (?, ?, ?, ?, ?)`,
		traceID, emailRef, estimateRef, string(timingsJSON), string(countsJSON))
	return err
}

// CountRuns reports how many processing runs were recorded.
func (d *DB) CountRuns() (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n)
	return n, err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
