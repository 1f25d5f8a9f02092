// Package analysis implements the document-analysis engine: classification,
// summarization, retrieval ingestion, and retrieval-augmented chat. It is the
// in-process replacement for the per-request script bridge the product started
// with; callers get typed results instead of parsed process output.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lexdocs/pkg/ai"
	"lexdocs/pkg/domain"
	"lexdocs/pkg/store"
)

// FallbackResponse is returned by Chat whenever the upstream model fails.
// Kept conversational so the client always has something to render; the
// Degraded flag is the machine-readable failure signal.
const FallbackResponse = "I apologize, but I'm having trouble processing your request right now. Please try again later."

// File is the engine's view of an uploaded document.
type File struct {
	ID   string
	Name string
	Data []byte
}

// IngestResult reports what retrieval ingestion produced.
type IngestResult struct {
	DocumentID    string `json:"documentId"`
	ChunksCreated int    `json:"chunksCreated"`
}

// ChatRequest is one chat turn against an optional document.
type ChatRequest struct {
	Message    string
	DocumentID string
	Mode       domain.ChatMode
	History    []domain.ChatMessage
}

// ChatResult is the outcome of a chat turn. Degraded marks fallback answers
// produced because the model call failed.
type ChatResult struct {
	Response string          `json:"response"`
	Sources  []string        `json:"sources"`
	Mode     domain.ChatMode `json:"mode"`
	Degraded bool            `json:"degraded"`
}

// Config wires the engine's dependencies.
type Config struct {
	Store           store.Store
	Generator       ai.Generator
	Embedder        ai.Embedder
	GenerationModel string
	ChunkSize       int
	ChunkOverlap    int
	TopK            int
	HistoryLimit    int
}

// Engine runs the four analysis operations in-process.
type Engine struct {
	store        store.Store
	generator    ai.Generator
	embedder     ai.Embedder
	model        string
	chunkSize    int
	chunkOverlap int
	topK         int
	historyLimit int
}

// New constructs the engine. It fails fast when a dependency is missing so a
// misconfigured deployment is caught at startup, not on the first upload.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("analysis engine requires a store")
	}
	if cfg.Generator == nil {
		return nil, errors.New("analysis engine requires a generator")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("analysis engine requires an embedder")
	}
	if strings.TrimSpace(cfg.GenerationModel) == "" {
		return nil, errors.New("analysis engine requires a generation model")
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 800
	}
	chunkOverlap := cfg.ChunkOverlap
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}
	return &Engine{
		store:        cfg.Store,
		generator:    cfg.Generator,
		embedder:     cfg.Embedder,
		model:        cfg.GenerationModel,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		topK:         topK,
		historyLimit: historyLimit,
	}, nil
}

// Ingest parses, chunks, and embeds a document for retrieval. Existing chunks
// for the document are replaced, so re-processing is safe.
func (e *Engine) Ingest(ctx context.Context, f File) (IngestResult, error) {
	if strings.TrimSpace(f.ID) == "" {
		return IngestResult{}, errors.New("document id required")
	}
	chunks, err := e.parseAndChunk(f)
	if err != nil {
		return IngestResult{}, fmt.Errorf("parse document: %w", err)
	}
	if len(chunks) == 0 {
		return IngestResult{}, errors.New("no text extracted from document")
	}
	if err := e.store.ReplaceChunks(f.ID, chunks); err != nil {
		return IngestResult{}, fmt.Errorf("store chunks: %w", err)
	}
	for _, chunk := range chunks {
		embedding, err := e.embedder.EmbedText(ctx, chunk.Content, "RETRIEVAL_DOCUMENT")
		if err != nil {
			return IngestResult{}, fmt.Errorf("embed chunk: %w", err)
		}
		if err := e.store.SetChunkEmbedding(chunk.ID, embedding); err != nil {
			return IngestResult{}, fmt.Errorf("save embedding: %w", err)
		}
	}
	return IngestResult{DocumentID: f.ID, ChunksCreated: len(chunks)}, nil
}
