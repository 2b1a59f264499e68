package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/review-runner/internal/module/llmjob/domain"
)

func TestChannel_PublishConsume(t *testing.T) {
	q := NewChannel(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, domain.JobMessage{JobID: "1", JobType: domain.JobTypeReviewColab}))

	deliveries, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		assert.Equal(t, "1", d.Message.JobID)
		assert.NoError(t, d.Ack())
	case <-time.After(time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestChannel_NackRequeue(t *testing.T) {
	q := NewChannel(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, domain.JobMessage{JobID: "1"}))
	deliveries, err := q.Consume(ctx)
	require.NoError(t, err)

	first := <-deliveries
	require.NoError(t, first.Nack(true))

	select {
	case d := <-deliveries:
		assert.Equal(t, "1", d.Message.JobID)
	case <-time.After(time.Second):
		t.Fatal("requeued message was not redelivered")
	}
}

func TestChannel_ConsumeStopsOnCancel(t *testing.T) {
	q := NewChannel(1)
	ctx, cancel := context.WithCancel(context.Background())

	deliveries, err := q.Consume(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-deliveries:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("delivery channel was not closed")
	}
}

func TestChannel_PublishAfterClose(t *testing.T) {
	q := NewChannel(1)
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.Publish(context.Background(), domain.JobMessage{JobID: "1"}), ErrClosed)
}

func TestChannel_PublishBlocksUntilContextDone(t *testing.T) {
	q := NewChannel(1)
	require.NoError(t, q.Publish(context.Background(), domain.JobMessage{JobID: "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, domain.JobMessage{JobID: "2"}), context.DeadlineExceeded)
}
