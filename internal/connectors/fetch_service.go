package connectors

import (
	"context"
	"fmt"

	"mailorder/internal/storage"
)

// FetchService moves messages from a mailbox into the emails table.
type FetchService struct {
	connector MailConnector
	store     *MailStoreService
}

// FetchResult counts one fetch. Known messages were recorded by an earlier
// fetch and keep their processing status.
type FetchResult struct {
	Fetched int
	Stored  int
	Known   int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		_, created, err := s.store.Store(ctx, msg)
		if err != nil {
			return res, fmt.Errorf("store message %s: %w", msg.MessageID, err)
		}
		if created {
			res.Stored++
		} else {
			res.Known++
		}
	}
	return res, nil
}
