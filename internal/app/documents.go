package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"lexdocs/internal/util"
	"lexdocs/pkg/analysis"
	"lexdocs/pkg/domain"
)

// Upload validates and stores an uploaded file, creates its document row, and
// runs the processing pipeline. Pipeline failures do not fail the upload: the
// row is kept with processed=false and the failure recorded, so the document
// can be re-processed later.
func (a *App) Upload(ctx context.Context, user domain.User, filename, contentType string, size int64, r io.Reader) (domain.Document, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return domain.Document{}, ErrFileRequired
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := a.allowedExts[ext]; !ok {
		return domain.Document{}, ErrFileTypeInvalid
	}
	if size > a.maxUploadBytes {
		return domain.Document{}, ErrFileTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(r, a.maxUploadBytes+1))
	if err != nil {
		return domain.Document{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return domain.Document{}, ErrFileRequired
	}
	if int64(len(data)) > a.maxUploadBytes {
		return domain.Document{}, ErrFileTooLarge
	}

	storageKey := uuid.NewString() + ext
	if err := a.objects.Put(ctx, storageKey, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return domain.Document{}, fmt.Errorf("store object: %w", err)
	}

	now := time.Now().UTC()
	doc := domain.Document{
		ID:               util.NewID(),
		OwnerID:          user.ID,
		OriginalFilename: filename,
		StoredName:       storageKey,
		StorageKey:       storageKey,
		SizeBytes:        int64(len(data)),
		ContentType:      contentType,
		Stage:            domain.StageUploaded,
		UploadedAt:       now,
		UpdatedAt:        now,
	}
	if err := a.store.SaveDocument(doc); err != nil {
		return domain.Document{}, fmt.Errorf("save document: %w", err)
	}

	return a.process(ctx, doc, data), nil
}

// process runs the pipeline from the document's first incomplete step and
// persists progress after every step. The returned document reflects the
// final state; step failures are recorded, not returned.
func (a *App) process(ctx context.Context, doc domain.Document, data []byte) domain.Document {
	f := analysis.File{ID: doc.ID, Name: doc.OriginalFilename, Data: data}

	fail := func(step string, err error) domain.Document {
		doc.Stage = domain.StageFailed
		doc.Processed = false
		doc.ProcessingError = fmt.Sprintf("%s: %v", step, err)
		doc.UpdatedAt = time.Now().UTC()
		if saveErr := a.store.SaveDocument(doc); saveErr != nil {
			a.logger.Error("document.save fail", "documentId", doc.ID, "error", saveErr)
		}
		a.logger.Warn("document.process fail", "documentId", doc.ID, "step", step, "error", err)
		return doc
	}
	advance := func(stage domain.DocumentStage) {
		doc.Stage = stage
		doc.ProcessingError = ""
		doc.UpdatedAt = time.Now().UTC()
		if err := a.store.SetDocumentStage(doc.ID, stage, ""); err != nil {
			a.logger.Error("document.stage fail", "documentId", doc.ID, "error", err)
		}
	}

	if doc.Classification == "" {
		advance(domain.StageClassifying)
		classification, err := a.engine.Classify(ctx, f)
		if err != nil {
			return fail("classify", err)
		}
		doc.Classification = classification
	}
	if doc.Summary == "" {
		advance(domain.StageSummarizing)
		summary, err := a.engine.Summarize(ctx, f, doc.Classification)
		if err != nil {
			return fail("summarize", err)
		}
		doc.Summary = summary
	}
	if doc.ChunkCount == 0 {
		advance(domain.StageIngesting)
		result, err := a.engine.Ingest(ctx, f)
		if err != nil {
			return fail("ingest", err)
		}
		doc.ChunkCount = result.ChunksCreated
	}

	doc.Processed = true
	doc.Stage = domain.StageProcessed
	doc.ProcessingError = ""
	doc.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveDocument(doc); err != nil {
		a.logger.Error("document.save fail", "documentId", doc.ID, "error", err)
	}
	a.logger.Info("document.processed", "documentId", doc.ID, "classification", doc.Classification, "chunks", doc.ChunkCount)
	return doc
}

// Reprocess queues a failed document for another pipeline run. The worker
// resumes from the first incomplete step.
func (a *App) Reprocess(ctx context.Context, user domain.User, documentID string) (domain.Document, error) {
	doc, err := a.ownedDocument(user, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	if doc.Processed {
		return domain.Document{}, ErrDocumentProcessed
	}
	if a.queue == nil {
		// No queue configured: run inline.
		return a.ResumeProcessing(ctx, doc.ID)
	}
	if _, err := a.queue.Enqueue(ctx, doc.ID, string(doc.Stage)); err != nil {
		return domain.Document{}, fmt.Errorf("enqueue reprocess: %w", err)
	}
	return doc, nil
}

// ResumeProcessing reloads the document and its stored object and runs the
// pipeline from the first incomplete step. Used by the re-process worker.
func (a *App) ResumeProcessing(ctx context.Context, documentID string) (domain.Document, error) {
	doc, found, err := a.store.GetDocument(documentID)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document: %w", err)
	}
	if !found {
		return domain.Document{}, ErrDocumentNotFound
	}
	if doc.Processed {
		return doc, nil
	}
	obj, err := a.objects.Get(ctx, doc.StorageKey)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load object: %w", err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read object: %w", err)
	}
	doc = a.process(ctx, doc, data)
	if !doc.Processed {
		return doc, fmt.Errorf("process document: %s", doc.ProcessingError)
	}
	return doc, nil
}

// UploadStatus reports the processing state of an owned document.
func (a *App) UploadStatus(user domain.User, documentID string) (domain.Document, error) {
	return a.ownedDocument(user, documentID)
}

// ListDocuments returns the user's documents, newest first.
func (a *App) ListDocuments(user domain.User) ([]domain.Document, error) {
	docs, err := a.store.ListDocumentsByOwner(user.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// GetDocument returns one owned document.
func (a *App) GetDocument(user domain.User, documentID string) (domain.Document, error) {
	return a.ownedDocument(user, documentID)
}

// DeleteDocument removes the document row, its chunks, and the stored object.
// Chat history referencing the document is kept.
func (a *App) DeleteDocument(ctx context.Context, user domain.User, documentID string) error {
	doc, err := a.ownedDocument(user, documentID)
	if err != nil {
		return err
	}
	if err := a.store.DeleteDocument(doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := a.objects.Delete(ctx, doc.StorageKey); err != nil {
		a.logger.Warn("document.object delete fail", "documentId", doc.ID, "error", err)
	}
	return nil
}

func (a *App) ownedDocument(user domain.User, documentID string) (domain.Document, error) {
	doc, found, err := a.store.GetDocument(strings.TrimSpace(documentID))
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document: %w", err)
	}
	if !found {
		return domain.Document{}, ErrDocumentNotFound
	}
	if doc.OwnerID != user.ID {
		return domain.Document{}, ErrDocumentForbidden
	}
	return doc, nil
}
