package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantops/sentinel/internal/alerting"
)

func newTestQueue(t *testing.T) *BadgerQueue {
	t.Helper()
	q, err := NewBadgerQueue(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func testJob(id string, notBefore time.Time) Job {
	return Job{
		ID:      id,
		AlertID: "alert-1",
		Record: alerting.NotificationRecord{
			ID:      id,
			Channel: alerting.NotificationChannel{Type: alerting.ChannelConsole, Enabled: true, RetryAttempts: 3},
			Status:  alerting.NotificationPending,
		},
		Message:   Message{AlertID: "alert-1", Subject: "test"},
		NotBefore: notBefore,
	}
}

func TestQueueEnqueueDequeueDue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, q.Enqueue(ctx, testJob("b", now.Add(-time.Second))))
	require.NoError(t, q.Enqueue(ctx, testJob("a", now.Add(-2*time.Second))))
	require.NoError(t, q.Enqueue(ctx, testJob("c", now.Add(time.Hour))))

	jobs, err := q.DequeueDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	// Earliest due first.
	assert.Equal(t, "a", jobs[0].ID)
	assert.Equal(t, "b", jobs[1].ID)

	depth, err := q.Depth()
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}

func TestQueueDuplicateRejected(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	job := testJob("x", now)
	require.NoError(t, q.Enqueue(ctx, job))
	assert.Error(t, q.Enqueue(ctx, job))
}

func TestQueueAcknowledgeRemoves(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	job := testJob("x", now.Add(-time.Second))
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, q.Acknowledge(ctx, job))

	jobs, err := q.DequeueDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	depth, err := q.Depth()
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestQueueRescheduleMovesDueTime(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	job := testJob("x", now.Add(-time.Second))
	require.NoError(t, q.Enqueue(ctx, job))

	moved, err := q.Reschedule(ctx, job, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "x", moved.ID)

	jobs, err := q.DequeueDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	jobs, err = q.DequeueDue(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "x", jobs[0].ID)

	depth, err := q.Depth()
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestQueueBatchLimit(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(ctx, testJob(string(rune('a'+i)), now.Add(-time.Duration(5-i)*time.Second))))
	}

	jobs, err := q.DequeueDue(ctx, now, 3)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}
