// Package worker consumes document re-process jobs from the Redis Streams
// queue and resumes the processing pipeline.
package worker

import (
	"context"
	"errors"
	"log/slog"

	"lexdocs/internal/app"
	"lexdocs/pkg/queue"
)

// Queue is the consuming side of the job queue.
type Queue interface {
	Start(ctx context.Context, concurrency int, handler queue.Handler)
}

// Worker resumes failed document processing off the queue.
type Worker struct {
	app    *app.App
	queue  Queue
	logger *slog.Logger
}

func New(a *app.App, q Queue, logger *slog.Logger) (*Worker, error) {
	if a == nil {
		return nil, errors.New("worker requires the app")
	}
	if q == nil {
		return nil, errors.New("worker requires a queue")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{app: a, queue: q, logger: logger}, nil
}

// Start launches the queue consumers. They run until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	w.queue.Start(ctx, concurrency, w.handle)
}

func (w *Worker) handle(ctx context.Context, job queue.Job) error {
	w.logger.Info("worker.reprocess start", "jobId", job.ID, "documentId", job.DocumentID, "attempt", job.Attempts)
	doc, err := w.app.ResumeProcessing(ctx, job.DocumentID)
	if err != nil {
		if errors.Is(err, app.ErrDocumentNotFound) {
			// Deleted since enqueue; nothing to retry.
			w.logger.Warn("worker.reprocess skipped", "jobId", job.ID, "documentId", job.DocumentID)
			return nil
		}
		w.logger.Warn("worker.reprocess fail", "jobId", job.ID, "documentId", job.DocumentID, "error", err)
		return err
	}
	w.logger.Info("worker.reprocess done", "jobId", job.ID, "documentId", doc.ID, "stage", doc.Stage)
	return nil
}
