package cache

import (
	"context"
	"time"
)

// DocumentCache holds rendered sale documents (invoice, quote,
// warranty HTML) keyed by sale id, kind and revision.
type DocumentCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, html string, ttl time.Duration) error
}

type NoopDocumentCache struct{}

func (NoopDocumentCache) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (NoopDocumentCache) Set(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}
