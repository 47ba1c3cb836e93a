package connectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"quickestimate/internal"
	"quickestimate/internal/blob"
	"quickestimate/internal/storage"
)

type MailStoreService struct {
	db    *storage.DB
	blobs blob.Store
}

func NewMailStoreService(db *storage.DB, blobs blob.Store) *MailStoreService {
	return &MailStoreService{db: db, blobs: blobs}
}

// RawKey is the blob key of a raw message, addressed by content hash.
func RawKey(hash string) string {
	return "mail/" + hash + ".eml"
}

// Store archives the raw message and records it as fetched. Refetching
// the same message updates the row without resetting its status.
func (s *MailStoreService) Store(ctx context.Context, msg internal.FetchedMailMessage) (internal.EmailRow, error) {
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	key := RawKey(hash)
	if _, err := s.blobs.Put(ctx, key, msg.Raw, "message/rfc822"); err != nil {
		return internal.EmailRow{}, err
	}

	return s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, key, internal.EmailFetched)
}
