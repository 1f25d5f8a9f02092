// Package app is the core application service: it owns orchestration of
// identity, document processing, and chat on top of the storage, queue, and
// analysis components.
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"lexdocs/internal/otp"
	"lexdocs/internal/sms"
	"lexdocs/pkg/analysis"
	"lexdocs/pkg/auth"
	"lexdocs/pkg/queue"
	"lexdocs/pkg/storage"
	"lexdocs/pkg/store"
)

// Engine is the document analysis surface the app depends on. It is satisfied
// by *analysis.Engine; tests substitute a recording stub.
type Engine interface {
	Classify(ctx context.Context, f analysis.File) (string, error)
	Summarize(ctx context.Context, f analysis.File, classification string) (string, error)
	Ingest(ctx context.Context, f analysis.File) (analysis.IngestResult, error)
	Chat(ctx context.Context, req analysis.ChatRequest) analysis.ChatResult
}

// Enqueuer publishes document re-process jobs. Satisfied by *queue.RedisJobQueue.
type Enqueuer interface {
	Enqueue(ctx context.Context, documentID, stage string) (queue.Job, error)
}

// SendLimiter bounds verification code sends per phone.
type SendLimiter interface {
	Allow(key string) bool
}

// Config wires the application's dependencies. Store, Objects, Engine, and
// Tokens are required; OTP, SMS, Queue, and Limiter may be nil, disabling the
// features that need them.
type Config struct {
	Store          store.Store
	Objects        storage.ObjectStore
	Engine         Engine
	Tokens         *auth.TokenIssuer
	OTP            *otp.Store
	SMS            sms.Sender
	Queue          Enqueuer
	SendLimiter    SendLimiter
	Logger         *slog.Logger
	Env            string
	MaxUploadBytes int64
	AllowedTypes   []string
	HistoryLimit   int
}

// App is the core application service.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	engine         Engine
	tokens         *auth.TokenIssuer
	otp            *otp.Store
	sms            sms.Sender
	queue          Enqueuer
	sendLimiter    SendLimiter
	logger         *slog.Logger
	env            string
	maxUploadBytes int64
	allowedExts    map[string]struct{}
	historyLimit   int
}

const defaultMaxUploadBytes = 50 << 20

var defaultAllowedTypes = []string{".pdf", ".doc", ".docx", ".txt"}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("app requires a store")
	}
	if cfg.Objects == nil {
		return nil, errors.New("app requires an object store")
	}
	if cfg.Engine == nil {
		return nil, errors.New("app requires an analysis engine")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("app requires a token issuer")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	allowedTypes := cfg.AllowedTypes
	if len(allowedTypes) == 0 {
		allowedTypes = defaultAllowedTypes
	}
	allowedExts := make(map[string]struct{}, len(allowedTypes))
	for _, ext := range allowedTypes {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowedExts[ext] = struct{}{}
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}
	return &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		engine:         cfg.Engine,
		tokens:         cfg.Tokens,
		otp:            cfg.OTP,
		sms:            cfg.SMS,
		queue:          cfg.Queue,
		sendLimiter:    cfg.SendLimiter,
		logger:         logger,
		env:            strings.ToLower(strings.TrimSpace(cfg.Env)),
		maxUploadBytes: maxUploadBytes,
		allowedExts:    allowedExts,
		historyLimit:   historyLimit,
	}, nil
}

func (a *App) production() bool {
	return a.env == "production"
}
