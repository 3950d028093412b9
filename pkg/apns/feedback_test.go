package apns

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedbackHost(t *testing.T) {
	assert.Equal(t, "feedback.sandbox.push.apple.com", FeedbackHost("gateway.sandbox.push.apple.com"))
	assert.Equal(t, "feedback.push.apple.com", FeedbackHost("gateway.push.apple.com"))
	assert.Equal(t, "127.0.0.1", FeedbackHost("127.0.0.1"))
}

func TestFeedbackClient_Fetch(t *testing.T) {
	ctx := context.Background()
	pki := newTestPKI(t)

	tokenA, _ := ParseToken(testToken)
	tokenB := make([]byte, TokenSize)
	for i := range tokenB {
		tokenB[i] = byte(i)
	}

	fetch := func(t *testing.T, body []byte) ([]FeedbackRecord, *recordingObserver, error) {
		port := startFeedbackServer(t, pki, body)
		obs := &recordingObserver{}
		client := NewFeedbackClient(pki.config(port, false), newTestLogger(), WithFeedbackObserver(obs))
		records, err := client.Fetch(ctx)
		return records, obs, err
	}

	t.Run("Two records in stream order", func(t *testing.T) {
		body := append(feedbackChunk(1700000000, tokenA), feedbackChunk(1700000100, tokenB)...)

		records, obs, err := fetch(t, body)

		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, testToken, records[0].DeviceToken)
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), records[0].Timestamp)
		assert.Equal(t, hex.EncodeToString(tokenB), records[1].DeviceToken)
		assert.Equal(t, time.Unix(1700000100, 0).UTC(), records[1].Timestamp)
		assert.Equal(t, 2, obs.feedback)
	})

	t.Run("Empty stream is not an error", func(t *testing.T) {
		records, _, err := fetch(t, nil)

		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("Trailing partial record is discarded", func(t *testing.T) {
		body := append(feedbackChunk(1700000000, tokenA), feedbackChunk(1700000100, tokenB)[:10]...)

		records, _, err := fetch(t, body)

		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, testToken, records[0].DeviceToken)
	})

	t.Run("Malformed record surfaces an error", func(t *testing.T) {
		chunk := feedbackChunk(1700000000, tokenA)
		chunk[5] = 0xff

		_, _, err := fetch(t, chunk)
		assert.ErrorIs(t, err, ErrMalformedRecord)
	})

	t.Run("Silent feedback service honors the context", func(t *testing.T) {
		port := startSilentFeedbackServer(t, pki)
		client := NewFeedbackClient(pki.config(port, false), newTestLogger())

		cctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()

		start := time.Now()
		records, err := client.Fetch(cctx)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Nil(t, records)
		assert.Less(t, time.Since(start), 3*time.Second)
	})

	t.Run("Unreachable feedback service", func(t *testing.T) {
		rejecting := startRejectingListener(t)
		client := NewFeedbackClient(pki.config(rejecting.port(), false), newTestLogger())

		_, err := client.Fetch(ctx)
		assert.True(t, IsTransient(err))
	})
}

func TestGateway_Feedback(t *testing.T) {
	pki := newTestPKI(t)
	token, _ := ParseToken(testToken)
	port := startFeedbackServer(t, pki, feedbackChunk(42, token))

	g, err := New(pki.config(port, false), newTestLogger())
	require.NoError(t, err)

	records, err := g.Feedback().Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, time.Unix(42, 0).UTC(), records[0].Timestamp)
}
