package cache_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-apns-gateway/internal/storage/cache"
	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *MockCache) Del(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

type MockRealStore struct {
	mock.Mock
}

func (m *MockRealStore) Record(ctx context.Context, records []apns.FeedbackRecord) error {
	return m.Called(ctx, records).Error(0)
}
func (m *MockRealStore) Lookup(ctx context.Context, token string) (apns.FeedbackRecord, bool, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(apns.FeedbackRecord), args.Bool(1), args.Error(2)
}
func (m *MockRealStore) List(ctx context.Context) ([]apns.FeedbackRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]apns.FeedbackRecord), args.Error(1)
}

func TestCachedFeedbackStore(t *testing.T) {
	ctx := context.Background()
	token := "aabbcc"
	cacheKey := "apns:feedback:aabbcc"
	reported := apns.FeedbackRecord{DeviceToken: token, Timestamp: time.Unix(1700000000, 0).UTC()}

	t.Run("Cache miss falls back to the store and fills the cache", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedFeedbackStore(mockDB, mockCache, time.Hour, newTestLogger())

		mockCache.On("Get", ctx, cacheKey, mock.Anything).Return(assert.AnError)
		mockDB.On("Lookup", ctx, token).Return(reported, true, nil)
		mockCache.On("Set", ctx, cacheKey, mock.Anything, time.Hour).Return(nil)

		record, found, err := store.Lookup(ctx, token)

		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, reported, record)
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Cache hit skips the store", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedFeedbackStore(mockDB, mockCache, time.Hour, newTestLogger())

		mockCache.On("Get", ctx, cacheKey, mock.Anything).Return(nil)

		_, found, err := store.Lookup(ctx, token)

		require.NoError(t, err)
		assert.False(t, found)
		mockDB.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	})

	t.Run("Record invalidates cached answers", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedFeedbackStore(mockDB, mockCache, time.Hour, newTestLogger())

		records := []apns.FeedbackRecord{reported, {DeviceToken: "ddeeff"}}
		mockDB.On("Record", ctx, records).Return(nil)
		mockCache.On("Del", ctx, []string{cacheKey, "apns:feedback:ddeeff"}).Return(nil)

		require.NoError(t, store.Record(ctx, records))
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Store failure skips invalidation", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedFeedbackStore(mockDB, mockCache, time.Hour, newTestLogger())

		mockDB.On("Record", ctx, mock.Anything).Return(assert.AnError)

		assert.Error(t, store.Record(ctx, []apns.FeedbackRecord{reported}))
		mockCache.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
	})

	t.Run("Invalidation failure after a successful write is not an error", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedFeedbackStore(mockDB, mockCache, time.Hour, newTestLogger())

		records := []apns.FeedbackRecord{reported}
		mockDB.On("Record", ctx, records).Return(nil)
		mockCache.On("Del", ctx, []string{cacheKey}).Return(assert.AnError)

		require.NoError(t, store.Record(ctx, records))
		mockDB.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Cache keys ignore token casing", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockRealStore)
		store := cache.NewCachedFeedbackStore(mockDB, mockCache, time.Hour, newTestLogger())

		mockCache.On("Get", ctx, cacheKey, mock.Anything).Return(nil)

		_, _, err := store.Lookup(ctx, " "+strings.ToUpper(token)+" ")

		require.NoError(t, err)
		mockCache.AssertExpectations(t)
		mockDB.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	})
}
