package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, maxRetries int) (*RedisJobQueue, context.Context) {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisSrv.Addr()})
	q, err := NewRedisJobQueue(Config{
		Client:     client,
		Stream:     "test:reprocess",
		Group:      "test-group",
		Consumer:   "consumer-1",
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	ctx := context.Background()
	q.ensureGroup(ctx)
	return q, ctx
}

func readOne(t *testing.T, q *RedisJobQueue, ctx context.Context) redis.XMessage {
	t.Helper()
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-1",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one message, got %+v", streams)
	}
	return streams[0].Messages[0]
}

func TestEnqueueRecordsStatus(t *testing.T) {
	q, ctx := newTestQueue(t, 3)
	job, err := q.Enqueue(ctx, "doc-1", "summarizing")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got, found, err := q.GetJob(ctx, job.ID)
	if err != nil || !found {
		t.Fatalf("GetJob: found=%v err=%v", found, err)
	}
	if got.DocumentID != "doc-1" || got.Stage != "summarizing" || got.Status != StatusQueued {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestEnqueueRequiresDocumentID(t *testing.T) {
	q, ctx := newTestQueue(t, 3)
	if _, err := q.Enqueue(ctx, "  ", ""); err == nil {
		t.Fatal("expected error for empty document id")
	}
}

func TestHandleMessageSuccessAcksAndMarksDone(t *testing.T) {
	q, ctx := newTestQueue(t, 3)
	job, err := q.Enqueue(ctx, "doc-1", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msg := readOne(t, q, ctx)

	var handled Job
	q.handleMessage(ctx, msg, func(_ context.Context, j Job) error {
		handled = j
		return nil
	})

	if handled.DocumentID != "doc-1" || handled.Attempts != 1 {
		t.Fatalf("handler saw %+v", handled)
	}
	got, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != StatusDone {
		t.Fatalf("status = %q, want done", got.Status)
	}
	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}
}

func TestHandleMessageFailureRequeues(t *testing.T) {
	q, ctx := newTestQueue(t, 3)
	job, err := q.Enqueue(ctx, "doc-1", "ingesting")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msg := readOne(t, q, ctx)

	q.handleMessage(ctx, msg, func(context.Context, Job) error {
		return errors.New("transient")
	})

	got, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != StatusQueued || got.ErrorMessage != "transient" || got.Attempts != 1 {
		t.Fatalf("unexpected job after retry: %+v", got)
	}

	requeued := readOne(t, q, ctx)
	if requeued.Values["document_id"] != "doc-1" || requeued.Values["stage"] != "ingesting" {
		t.Fatalf("unexpected requeued payload: %+v", requeued.Values)
	}
}

func TestHandleMessageExhaustedRetriesMarksFailed(t *testing.T) {
	q, ctx := newTestQueue(t, 1)
	job, err := q.Enqueue(ctx, "doc-1", "")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msg := readOne(t, q, ctx)

	q.handleMessage(ctx, msg, func(context.Context, Job) error {
		return errors.New("permanent")
	})

	got, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != StatusFailed || got.ErrorMessage != "permanent" {
		t.Fatalf("unexpected job after exhaustion: %+v", got)
	}
	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}
}

func TestGetJobUnknownID(t *testing.T) {
	q, ctx := newTestQueue(t, 3)
	_, found, err := q.GetJob(ctx, "missing")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if found {
		t.Fatal("expected unknown job to be not found")
	}
}
