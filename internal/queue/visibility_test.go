package queue_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-streamshop/internal/queue"
)

// A handler that blocks past its soft deadline must be retried with a higher
// attempt counter, and the queue must be drained once the retry succeeds.
func TestVisibilityTimeoutRequeue(t *testing.T) {
	client := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enq := queue.Enqueuer{R: client, Prefix: "vis", DedupTTL: time.Minute, MaxAttempts: 3}
	log := zerolog.New(io.Discard)

	attempts := make(chan int, 2)
	worker := queue.Worker{
		R:                 client,
		Prefix:            "vis",
		Kind:              "order-email",
		Concurrency:       1,
		VisibilityTimeout: 150 * time.Millisecond,
		SoftDeadline:      80 * time.Millisecond,
		RetryBase:         20 * time.Millisecond,
		Store:             newStubStore(),
		Logger:            &log,
		Handler: func(jobCtx context.Context, task queue.Task) error {
			attempts <- task.Attempt
			if task.Attempt == 1 {
				<-jobCtx.Done()
				return jobCtx.Err()
			}
			cancel()
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	require.NoError(t, enq.Enqueue(context.Background(), queue.Task{
		Kind:           "order-email",
		Payload:        []byte("payload"),
		IdempotencyKey: "order-9",
		MaxAttempts:    3,
	}))

	require.Eventually(t, func() bool { return len(attempts) >= 2 }, 2*time.Second, 20*time.Millisecond)
	require.Equal(t, 1, <-attempts)
	require.Equal(t, 2, <-attempts)

	<-done

	depth, err := client.ZCard(context.Background(), "vis:queue:order-email").Result()
	require.NoError(t, err)
	require.Zero(t, depth)
}
