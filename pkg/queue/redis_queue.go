// Package queue provides the Redis Streams job queue used for document
// reprocessing. Jobs survive restarts: a consumer group with XAUTOCLAIM picks
// up messages abandoned by crashed workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"lexdocs/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Job is a reprocess request for one document. Stage records where the
// processing pipeline should resume; empty means start from the beginning.
type Job struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"documentId"`
	Stage        string    `json:"stage,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Handler processes one claimed job. A nil return acknowledges the job; an
// error requeues it until the retry budget runs out.
type Handler func(context.Context, Job) error

type Config struct {
	Client     *redis.Client
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
}

// RedisJobQueue is a consumer-group backed job queue on one Redis stream.
type RedisJobQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	once         sync.Once
}

func NewRedisJobQueue(cfg Config) (*RedisJobQueue, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		return nil, errors.New("queue stream required")
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "workers"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	q := &RedisJobQueue{
		client:       cfg.Client,
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       cfg.JobTTL,
		maxRetries:   cfg.MaxRetries,
		block:        cfg.Block,
		claimIdle:    cfg.ClaimIdle,
		retryDelay:   cfg.RetryDelay,
		maxLen:       cfg.MaxLen,
		readCount:    cfg.ReadCount,
	}
	if q.jobTTL <= 0 {
		q.jobTTL = 24 * time.Hour
	}
	if q.maxRetries <= 0 {
		q.maxRetries = 3
	}
	if q.block <= 0 {
		q.block = 5 * time.Second
	}
	if q.claimIdle <= 0 {
		q.claimIdle = 30 * time.Second
	}
	if q.retryDelay <= 0 {
		q.retryDelay = 2 * time.Second
	}
	if q.maxLen <= 0 {
		q.maxLen = 10000
	}
	if q.readCount <= 0 {
		q.readCount = 10
	}
	return q, nil
}

// Enqueue records a queued job and publishes it on the stream.
func (q *RedisJobQueue) Enqueue(ctx context.Context, documentID, stage string) (Job, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return Job{}, errors.New("documentId required")
	}
	now := time.Now().UTC()
	job := Job{
		ID:         util.NewID(),
		DocumentID: documentID,
		Stage:      stage,
		Status:     StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return Job{}, err
	}
	if err := q.publish(ctx, nil, job.ID, job.DocumentID, job.Stage); err != nil {
		return Job{}, err
	}
	return job, nil
}

// GetJob loads a job's status record. The bool is false when the job is
// unknown or its TTL expired.
func (q *RedisJobQueue) GetJob(ctx context.Context, jobID string) (Job, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return Job{}, false, err
	}
	if len(data) == 0 {
		return Job{}, false, nil
	}
	return decodeJob(jobID, data), true, nil
}

// Start launches the consumer goroutines. They run until ctx is cancelled.
func (q *RedisJobQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

func (q *RedisJobQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			// surfaces again on consume
		}
	})
}

func (q *RedisJobQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimAbandoned(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *RedisJobQueue) claimAbandoned(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.readCount,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return msgs, err
}

func (q *RedisJobQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	jobID, _ := msg.Values["job_id"].(string)
	documentID, _ := msg.Values["document_id"].(string)
	stage, _ := msg.Values["stage"].(string)
	if jobID == "" || documentID == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job, err := q.beginAttempt(ctx, jobID, documentID, stage)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if err := handler(ctx, job); err == nil {
		job.Status = StatusDone
		job.ErrorMessage = ""
		job.UpdatedAt = time.Now().UTC()
		_ = q.writeStatus(ctx, job)
		q.ackAndDel(ctx, msg.ID)
		return
	} else if job.Attempts >= q.maxRetries {
		job.Status = StatusFailed
		job.ErrorMessage = err.Error()
		job.UpdatedAt = time.Now().UTC()
		_ = q.writeStatus(ctx, job)
		q.ackAndDel(ctx, msg.ID)
		return
	} else {
		job.Status = StatusQueued
		job.ErrorMessage = err.Error()
		job.UpdatedAt = time.Now().UTC()
		_ = q.writeStatus(ctx, job)
	}
	if q.retryDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
	pipe := q.client.TxPipeline()
	_ = q.publish(ctx, pipe, job.ID, job.DocumentID, job.Stage)
	pipe.XAck(ctx, q.stream, q.group, msg.ID)
	pipe.XDel(ctx, q.stream, msg.ID)
	_, _ = pipe.Exec(ctx)
}

// beginAttempt bumps the attempt counter and marks the job processing.
func (q *RedisJobQueue) beginAttempt(ctx context.Context, jobID, documentID, stage string) (Job, error) {
	job, found, err := q.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, err
	}
	if !found {
		job = Job{ID: jobID, CreatedAt: time.Now().UTC()}
	}
	job.DocumentID = documentID
	job.Stage = stage
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if err := q.writeStatus(ctx, job); err != nil {
		return Job{}, err
	}
	return job, nil
}

func (q *RedisJobQueue) publish(ctx context.Context, pipe redis.Pipeliner, jobID, documentID, stage string) error {
	args := &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":      jobID,
			"document_id": documentID,
			"stage":       stage,
		},
	}
	if pipe != nil {
		pipe.XAdd(ctx, args)
		return nil
	}
	return q.client.XAdd(ctx, args).Err()
}

func (q *RedisJobQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

func (q *RedisJobQueue) writeStatus(ctx context.Context, job Job) error {
	payload := map[string]any{
		"documentId": job.DocumentID,
		"stage":      job.Stage,
		"status":     job.Status,
		"error":      job.ErrorMessage,
		"attempts":   strconv.Itoa(job.Attempts),
		"createdAt":  job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt":  job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, q.jobKey(job.ID), payload).Err(); err != nil {
		return err
	}
	return q.client.Expire(ctx, q.jobKey(job.ID), q.jobTTL).Err()
}

func (q *RedisJobQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func decodeJob(jobID string, data map[string]string) Job {
	job := Job{
		ID:           jobID,
		DocumentID:   data["documentId"],
		Stage:        data["stage"],
		Status:       data["status"],
		ErrorMessage: data["error"],
	}
	if n, err := strconv.Atoi(data["attempts"]); err == nil {
		job.Attempts = n
	}
	if t, err := time.Parse(time.RFC3339Nano, data["createdAt"]); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, data["updatedAt"]); err == nil {
		job.UpdatedAt = t
	}
	return job
}
