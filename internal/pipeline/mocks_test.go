package pipeline_test

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"
	"github.com/tinywideclouds/go-apns-gateway/pkg/apns"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendAll(ctx context.Context, notifications []apns.Notification) error {
	return m.Called(ctx, notifications).Error(0)
}

type mockFeedbackStore struct {
	mock.Mock
}

func (m *mockFeedbackStore) Record(ctx context.Context, records []apns.FeedbackRecord) error {
	return m.Called(ctx, records).Error(0)
}
func (m *mockFeedbackStore) Lookup(ctx context.Context, token string) (apns.FeedbackRecord, bool, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(apns.FeedbackRecord), args.Bool(1), args.Error(2)
}
func (m *mockFeedbackStore) List(ctx context.Context) ([]apns.FeedbackRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]apns.FeedbackRecord), args.Error(1)
}

func tokensOf(notifications []apns.Notification) []string {
	out := make([]string, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, n.DeviceToken)
	}
	return out
}
