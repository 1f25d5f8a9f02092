package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"lexdocs/internal/app"
	"lexdocs/internal/config"
	"lexdocs/internal/otp"
	"lexdocs/internal/ratelimit"
	"lexdocs/internal/server"
	"lexdocs/internal/sms"
	"lexdocs/internal/util"
	"lexdocs/internal/worker"
	"lexdocs/pkg/ai"
	"lexdocs/pkg/analysis"
	"lexdocs/pkg/auth"
	"lexdocs/pkg/queue"
	"lexdocs/pkg/storage"
	"lexdocs/pkg/store"
)

const otpSendLimit = 3

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL, store.WithEmbeddingDim(cfg.Embedding.Dim))
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	objects, err := newObjectStore(cfg)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.SessionTTLHours)*time.Hour)
	if err != nil {
		log.Fatalf("failed to init token issuer: %v", err)
	}

	otpStore, err := otp.NewStore(otp.Config{Client: redisClient})
	if err != nil {
		log.Fatalf("failed to init otp store: %v", err)
	}

	sendLimiter, err := ratelimit.NewFixedWindowLimiter(redisClient, "lexdocs:otp:send", otpSendLimit, time.Minute)
	if err != nil {
		log.Fatalf("failed to init send limiter: %v", err)
	}

	jobQueue, err := queue.NewRedisJobQueue(queue.Config{
		Client: redisClient,
		Stream: cfg.ReprocessStream,
		Group:  cfg.ReprocessGroup,
	})
	if err != nil {
		log.Fatalf("failed to init job queue: %v", err)
	}

	engine, err := newEngine(cfg, dataStore)
	if err != nil {
		log.Fatalf("failed to init analysis engine: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:          dataStore,
		Objects:        objects,
		Engine:         engine,
		Tokens:         tokens,
		OTP:            otpStore,
		SMS:            newSMSSender(cfg, logger),
		Queue:          jobQueue,
		SendLimiter:    sendLimiter,
		Logger:         logger,
		Env:            cfg.Env,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowedTypes:   cfg.AllowedTypes,
		HistoryLimit:   cfg.HistoryLimit,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		AllowedOrigin:  cfg.AllowedOrigin,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Production:     cfg.Env == "production",
		Probes: map[string]server.Probe{
			"postgres": dataStore.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
			"storage": objects.Ping,
		},
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reprocessWorker, err := worker.New(appCore, jobQueue, logger)
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}
	reprocessWorker.Start(ctx, cfg.ReprocessConcurrency)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}()

	slog.Info("lexdocs server listening", "addr", addr, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newObjectStore(cfg config.Config) (storage.ObjectStore, error) {
	if cfg.StorageDriver == "minio" {
		return storage.NewMinioStore(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.UseSSL)
	}
	return storage.NewFileStore(cfg.UploadDir)
}

func newEngine(cfg config.Config, dataStore store.Store) (*analysis.Engine, error) {
	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
	if err != nil {
		return nil, err
	}
	var embedder ai.Embedder
	if cfg.Embedding.BaseURL != "" {
		embedder = ai.NewOllamaEmbedder(ai.NewOllamaClient(cfg.Embedding.BaseURL), cfg.Embedding.Model, cfg.Embedding.Dim)
	} else {
		embedder = ai.NewGeminiEmbedder(gemini, cfg.Embedding.Model)
	}
	return analysis.New(analysis.Config{
		Store:           dataStore,
		Generator:       gemini,
		Embedder:        embedder,
		GenerationModel: cfg.GenerationModel,
		ChunkSize:       cfg.ChunkSize,
		ChunkOverlap:    cfg.ChunkOverlap,
		TopK:            cfg.TopK,
		HistoryLimit:    cfg.HistoryLimit,
	})
}

func newSMSSender(cfg config.Config, logger *slog.Logger) sms.Sender {
	if cfg.SMS.AccessKeyID != "" && cfg.SMS.AccessKeySecret != "" {
		sender, err := sms.NewAliyunSender(sms.AliyunConfig{
			AccessKeyID:     cfg.SMS.AccessKeyID,
			AccessKeySecret: cfg.SMS.AccessKeySecret,
			SignName:        cfg.SMS.SignName,
			TemplateCode:    cfg.SMS.TemplateCode,
		})
		if err != nil {
			log.Fatalf("failed to init sms sender: %v", err)
		}
		return sender
	}
	return &sms.LogSender{Logger: logger}
}
