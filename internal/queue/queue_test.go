package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestQueue() *InMemoryQueue {
	q := NewInMemoryQueue(zap.NewNop())
	q.BackoffUnit = time.Millisecond
	return q
}

func TestInMemoryQueue_PublishWithoutSubscribers(t *testing.T) {
	q := newTestQueue()
	err := q.Publish(context.Background(), "scans", ScanJob{Kind: ScanScheduled})
	assert.Error(t, err)
}

func TestInMemoryQueue_DeliversToAllSubscribers(t *testing.T) {
	q := newTestQueue()

	var mu sync.Mutex
	var got []string
	for i := 0; i < 2; i++ {
		require.NoError(t, q.Subscribe("scans", func(_ context.Context, body []byte) error {
			var job ScanJob
			require.NoError(t, json.Unmarshal(body, &job))
			mu.Lock()
			got = append(got, job.Kind)
			mu.Unlock()
			return nil
		}))
	}

	require.NoError(t, q.Publish(context.Background(), "scans", ScanJob{Kind: ScanReengagement}))
	require.NoError(t, q.Close())

	assert.Equal(t, []string{ScanReengagement, ScanReengagement}, got)
}

func TestInMemoryQueue_RetriesUntilSuccess(t *testing.T) {
	q := newTestQueue()

	var calls int32
	require.NoError(t, q.Subscribe("scans", func(context.Context, []byte) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	require.NoError(t, q.Publish(context.Background(), "scans", ScanJob{Kind: ScanScheduled}))
	require.NoError(t, q.Close())

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestInMemoryQueue_GivesUpAfterMaxRetries(t *testing.T) {
	q := newTestQueue()
	q.MaxRetries = 2

	var calls int32
	require.NoError(t, q.Subscribe("scans", func(context.Context, []byte) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("always")
	}))

	require.NoError(t, q.Publish(context.Background(), "scans", ScanJob{Kind: ScanScheduled}))
	require.NoError(t, q.Close())

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestStartScanSubscriber(t *testing.T) {
	q := newTestQueue()

	var mu sync.Mutex
	var kinds []string
	err := StartScanSubscriber(q, "scans", zap.NewNop(), func(_ context.Context, kind string) error {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, "scans", ScanJob{Kind: ScanScheduled}))
	require.NoError(t, q.Publish(ctx, "scans", ScanJob{Kind: "bogus"}))
	require.NoError(t, q.Publish(ctx, "scans", "not a job"))
	require.NoError(t, q.Close())

	assert.Equal(t, []string{ScanScheduled}, kinds)
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, int32(0), retryCount(nil))
	assert.Equal(t, int32(2), retryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, int32(4), retryCount(amqp.Table{retryHeader: int64(4)}))
	assert.Equal(t, int32(0), retryCount(amqp.Table{retryHeader: "x"}))
}
