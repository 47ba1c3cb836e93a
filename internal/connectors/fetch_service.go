package connectors

import (
	"context"
	"time"

	"quickestimate/internal/blob"
	"quickestimate/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *MailStoreService
}

type FetchResult struct {
	Fetched int
	Stored  int
}

func NewFetchService(db *storage.DB, blobs blob.Store, connector MailConnector) *FetchService {
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewMailStoreService(db, blobs),
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	stored := 0
	for _, msg := range messages {
		if _, err := s.store.Store(ctx, msg); err != nil {
			return FetchResult{}, err
		}
		stored++
	}

	if err := s.db.SetMetadata("mail:lastFetchAt", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Fetched: len(messages), Stored: stored}, nil
}
