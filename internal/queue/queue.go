// Package queue implements a small Redis-backed task queue with delayed
// delivery, at-least-once processing and a Postgres dead letter table.
//
// Ready tasks live in a sorted set scored by their ready-at timestamp in
// nanoseconds. A worker moves a claimed task into a per-kind processing set
// scored by its visibility deadline; tasks whose deadline passes are swept
// back into the ready set, which is what gives crashed workers redelivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-streamshop/internal/resilience"
)

const (
	defaultMaxAttempts   = 10
	defaultDedupTTL      = 24 * time.Hour
	defaultVisibility    = 30 * time.Second
	defaultRetryBase     = 200 * time.Millisecond
	idlePollInterval     = 100 * time.Millisecond
	expirySweepInterval  = time.Second
	maxNotDueSleepWindow = time.Second
)

// Task represents a job to be processed asynchronously. Attempt is populated
// on delivery and starts at 1.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Attempt        int
	Delay          time.Duration
}

// taskMessage is the wire form stored in Redis and in DLQ payloads.
type taskMessage struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	AvailableAt int64  `json:"available_at"`
}

func (m taskMessage) encode() (string, error) {
	raw, err := json.Marshal(m)
	return string(raw), err
}

func decodeMessage(raw string) (taskMessage, error) {
	var msg taskMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return taskMessage{}, err
	}
	return msg, nil
}

// Enqueuer publishes tasks to Redis backed queues.
type Enqueuer struct {
	R           *redis.Client
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
}

// Enqueue inserts the task into the queue. With an idempotency key the task
// is enqueued at most once per deduplication window.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	kind := sanitizeKind(t.Kind)
	if kind == "" {
		return errors.New("queue: task kind is required")
	}

	maxAttempts := t.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.MaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	msg := taskMessage{
		Kind:        kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		MaxAttempts: maxAttempts,
		AvailableAt: time.Now().Add(t.Delay).UnixNano(),
	}

	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = defaultDedupTTL
		}
		fresh, err := e.R.SetNX(ctx, e.dedupKey(kind, msg.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}
	}

	raw, err := msg.encode()
	if err != nil {
		return err
	}
	return e.R.ZAdd(ctx, e.queueKey(kind), redis.Z{Score: float64(msg.AvailableAt), Member: raw}).Err()
}

func (e Enqueuer) queueKey(kind string) string {
	return prefixed(e.Prefix, "queue:"+kind)
}

func (e Enqueuer) dedupKey(kind, key string) string {
	if e.Prefix == "" {
		return "queue:dedup:" + kind + ":" + key
	}
	return e.Prefix + ":dedup:" + kind + ":" + key
}

func prefixed(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + ":" + suffix
}

// sanitizeKind keeps lowercase alphanumerics plus "-", "_" and ":"; anything
// else invalidates the kind.
func sanitizeKind(kind string) string {
	for i := 0; i < len(kind); i++ {
		switch c := kind[i]; {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == ':':
		default:
			return ""
		}
	}
	return kind
}

func queueLabel(kind string) string {
	if kind == "" {
		return "all"
	}
	return kind
}

// Worker consumes tasks for a specific kind.
type Worker struct {
	R                 *redis.Client
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	SoftDeadline      time.Duration
	Handler           func(context.Context, Task) error
	RetryBase         time.Duration
	RetryJitter       float64
	Store             Store
	Logger            *zerolog.Logger
}

// Run processes tasks until the context is cancelled, then waits for
// in-flight handlers to finish.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	kind := sanitizeKind(w.Kind)
	if kind == "" {
		return errors.New("queue: worker kind is required")
	}

	concurrency := max(w.Concurrency, 1)
	visibility := w.VisibilityTimeout
	if visibility <= 0 {
		visibility = defaultVisibility
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}

	queueKey := w.queueKey(kind)
	processingKey := w.processingKey(kind)
	slots := make(chan struct{}, concurrency)
	var inflight sync.WaitGroup

	sweep := time.NewTicker(expirySweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			inflight.Wait()
			return nil
		case <-sweep.C:
			if err := w.requeueExpired(ctx, processingKey, queueKey); err != nil {
				return err
			}
		default:
		}

		raw, msg, ok, err := w.claim(ctx, queueKey)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if !ok {
			continue
		}

		deadline := time.Now().Add(visibility).UnixNano()
		if err := w.R.ZAdd(ctx, processingKey, redis.Z{Score: float64(deadline), Member: raw}).Err(); err != nil {
			return err
		}

		slots <- struct{}{}
		inflight.Add(1)
		go func(raw string, m taskMessage) {
			defer inflight.Done()
			defer func() { <-slots }()
			w.process(ctx, queueKey, processingKey, raw, m, retryBase)
		}(raw, msg)
	}
}

// claim pops the head of the ready set. A popped task that is not due yet is
// pushed back and the worker naps until it becomes due.
func (w Worker) claim(ctx context.Context, queueKey string) (string, taskMessage, bool, error) {
	res, err := w.R.ZPopMin(ctx, queueKey, 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", taskMessage{}, false, err
	}
	if len(res) == 0 {
		time.Sleep(idlePollInterval)
		return "", taskMessage{}, false, nil
	}
	member, ok := res[0].Member.(string)
	if !ok {
		return "", taskMessage{}, false, nil
	}
	msg, err := decodeMessage(member)
	if err != nil {
		// Undecodable garbage is dropped rather than looped forever.
		return "", taskMessage{}, false, nil
	}

	now := time.Now().UnixNano()
	if msg.AvailableAt > now {
		w.R.ZAdd(ctx, queueKey, redis.Z{Score: float64(msg.AvailableAt), Member: member})
		time.Sleep(min(time.Duration(msg.AvailableAt-now), maxNotDueSleepWindow))
		return "", taskMessage{}, false, nil
	}

	msg.Attempt++
	raw, err := msg.encode()
	if err != nil {
		return "", taskMessage{}, false, nil
	}
	return raw, msg, true, nil
}

// process runs the handler under the soft deadline. Bookkeeping after the
// handler returns uses the worker context, since the job context may already
// be expired.
func (w Worker) process(ctx context.Context, queueKey, processingKey, raw string, m taskMessage, retryBase time.Duration) {
	jobCtx := ctx
	var cancel context.CancelFunc
	if w.SoftDeadline > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.SoftDeadline)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	err := w.Handler(jobCtx, Task{
		Kind:           m.Kind,
		Payload:        m.Payload,
		IdempotencyKey: m.Key,
		MaxAttempts:    m.MaxAttempts,
		Attempt:        m.Attempt,
	})
	if err != nil {
		if w.Logger != nil {
			w.Logger.Warn().Err(err).Str("kind", m.Kind).Int("attempt", m.Attempt).Msg("task handler failed")
		}
		w.handleFailure(ctx, queueKey, processingKey, raw, m, retryBase)
		return
	}
	w.ack(ctx, processingKey, raw, m)
}

func (w Worker) handleFailure(ctx context.Context, queueKey, processingKey, raw string, msg taskMessage, base time.Duration) {
	if raw != "" {
		_ = w.R.ZRem(ctx, processingKey, raw)
	}
	if msg.MaxAttempts > 0 && msg.Attempt >= msg.MaxAttempts {
		w.deadLetter(ctx, msg)
		return
	}

	delay := resilience.Backoff(base, msg.Attempt, w.RetryJitter)
	msg.AvailableAt = time.Now().Add(delay).UnixNano()
	encoded, err := msg.encode()
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, queueKey, redis.Z{Score: float64(msg.AvailableAt), Member: encoded}).Err()
}

// deadLetter moves an exhausted task into the Postgres DLQ, falling back to
// a Redis list when the store is unavailable so the task is not lost.
func (w Worker) deadLetter(ctx context.Context, msg taskMessage) {
	if w.Store != nil {
		reason := "max attempts exhausted"
		entry := DLQEntry{
			Kind:           msg.Kind,
			IdempotencyKey: msg.Key,
			Payload:        msg.Payload,
			Attempts:       msg.Attempt,
			LastError:      &reason,
		}
		if _, err := w.Store.InsertQueueDlq(ctx, entry); err == nil {
			QueueProcessedTotal.WithLabelValues(msg.Kind, "dead_lettered").Inc()
			if w.Logger != nil {
				w.Logger.Error().Str("kind", msg.Kind).Str("key", msg.Key).Int("attempts", msg.Attempt).Msg("task dead lettered")
			}
			w.releaseDedup(ctx, msg)
			return
		}
	}
	encoded, err := msg.encode()
	if err != nil {
		return
	}
	_ = w.R.LPush(ctx, w.dlqKey(msg.Kind), encoded).Err()
	w.releaseDedup(ctx, msg)
}

func (w Worker) ack(ctx context.Context, processingKey, raw string, msg taskMessage) {
	if raw != "" {
		_ = w.R.ZRem(ctx, processingKey, raw)
	}
	w.releaseDedup(ctx, msg)
}

func (w Worker) releaseDedup(ctx context.Context, msg taskMessage) {
	if msg.Key != "" {
		_ = w.R.Del(ctx, w.dedupKey(msg.Kind, msg.Key)).Err()
	}
}

// requeueExpired sweeps the processing set for tasks whose visibility
// deadline has passed and makes them immediately available again.
func (w Worker) requeueExpired(ctx context.Context, processingKey, queueKey string) error {
	now := fmt.Sprintf("%f", float64(time.Now().UnixNano()))
	due, err := w.R.ZRangeByScore(ctx, processingKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, raw := range due {
		msg, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		_ = w.R.ZRem(ctx, processingKey, raw).Err()
		msg.AvailableAt = time.Now().UnixNano()
		encoded, err := msg.encode()
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, queueKey, redis.Z{Score: float64(msg.AvailableAt), Member: encoded}).Err()
	}
	return nil
}

func (w Worker) queueKey(kind string) string {
	return prefixed(w.Prefix, "queue:"+kind)
}

func (w Worker) processingKey(kind string) string {
	if w.Prefix == "" {
		return "queue:" + kind + ":processing"
	}
	return w.Prefix + ":" + kind + ":processing"
}

func (w Worker) dlqKey(kind string) string {
	if w.Prefix == "" {
		return "queue:" + kind + ":dlq"
	}
	return w.Prefix + ":" + kind + ":dlq"
}

func (w Worker) dedupKey(kind, key string) string {
	if w.Prefix == "" {
		return "queue:dedup:" + kind + ":" + key
	}
	return w.Prefix + ":dedup:" + kind + ":" + key
}
