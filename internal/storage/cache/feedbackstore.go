// Package cache adds a Redis read-aside layer in front of a dead-token store.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
	"github.com/tinywideclouds/go-apns-gateway/pkg/dispatch"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns the value or an error if not found.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the keys.
	Del(ctx context.Context, keys ...string) error
}

// lookupEntry caches both hits and misses; most tokens are never reported.
type lookupEntry struct {
	Found  bool                `json:"found"`
	Record apns.FeedbackRecord `json:"record"`
}

// CachedFeedbackStore is a Decorator that adds read-aside caching to any
// FeedbackStore.
type CachedFeedbackStore struct {
	realStore dispatch.FeedbackStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedFeedbackStore(realStore dispatch.FeedbackStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedFeedbackStore {
	return &CachedFeedbackStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedFeedbackStore"),
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedFeedbackStore) Lookup(ctx context.Context, token string) (apns.FeedbackRecord, bool, error) {
	key := s.cacheKey(token)

	var entry lookupEntry
	if err := s.cache.Get(ctx, key, &entry); err == nil {
		return entry.Record, entry.Found, nil
	}

	record, found, err := s.realStore.Lookup(ctx, token)
	if err != nil {
		return apns.FeedbackRecord{}, false, err
	}

	// Caching is an optimization; a Redis failure falls back to the store.
	_ = s.cache.Set(ctx, key, lookupEntry{Found: found, Record: record}, s.ttl)

	return record, found, nil
}

func (s *CachedFeedbackStore) List(ctx context.Context) ([]apns.FeedbackRecord, error) {
	return s.realStore.List(ctx)
}

// --- WRITE PATH (Invalidate-on-Write) ---

// Record writes through and drops the cached answers for the reported
// tokens, so cached misses stop hiding a fresh report. Once the store has
// the records a failed invalidation is only logged; stale entries expire
// with the TTL.
func (s *CachedFeedbackStore) Record(ctx context.Context, records []apns.FeedbackRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.realStore.Record(ctx, records); err != nil {
		return err
	}

	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, s.cacheKey(r.DeviceToken))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.Warn("Failed to invalidate cached feedback lookups", "keys", len(keys), "ttl", s.ttl, "err", err)
	}
	return nil
}

func (s *CachedFeedbackStore) cacheKey(token string) string {
	return "apns:feedback:" + apns.NormalizeToken(token)
}
