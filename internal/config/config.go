// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Config is the full service configuration.
type Config struct {
	Port          string `yaml:"port"`
	Env           string `yaml:"env"`
	LogLevel      string `yaml:"logLevel"`
	AllowedOrigin string `yaml:"allowedOrigin"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	StorageDriver string `yaml:"storageDriver"` // minio | local
	UploadDir     string `yaml:"uploadDir"`
	Minio         struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"accessKey"`
		SecretKey string `yaml:"secretKey"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"useSSL"`
	} `yaml:"minio"`
	MaxUploadBytes int64    `yaml:"maxUploadBytes"`
	AllowedTypes   []string `yaml:"allowedTypes"`

	JWTSecret       string `yaml:"jwtSecret"`
	SessionTTLHours int    `yaml:"sessionTTLHours"`

	GeminiAPIKey    string `yaml:"geminiAPIKey"`
	GenerationModel string `yaml:"generationModel"`
	Embedding       struct {
		BaseURL string `yaml:"baseURL"`
		Model   string `yaml:"model"`
		Dim     int    `yaml:"dim"`
	} `yaml:"embedding"`
	ChunkSize    int `yaml:"chunkSize"`
	ChunkOverlap int `yaml:"chunkOverlap"`
	TopK         int `yaml:"topK"`
	HistoryLimit int `yaml:"historyLimit"`

	SMS struct {
		AccessKeyID     string `yaml:"accessKeyId"`
		AccessKeySecret string `yaml:"accessKeySecret"`
		SignName        string `yaml:"signName"`
		TemplateCode    string `yaml:"templateCode"`
	} `yaml:"sms"`

	ReprocessStream      string `yaml:"reprocessStream"`
	ReprocessGroup       string `yaml:"reprocessGroup"`
	ReprocessConcurrency int    `yaml:"reprocessConcurrency"`
}

// Load reads the config file and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrideString(&cfg.Port, "PORT")
	overrideString(&cfg.Env, "APP_ENV")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.AllowedOrigin, "ALLOWED_ORIGIN")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.RedisPassword, "REDIS_PASSWORD")
	overrideString(&cfg.StorageDriver, "STORAGE_DRIVER")
	overrideString(&cfg.UploadDir, "UPLOAD_DIR")
	overrideString(&cfg.Minio.Endpoint, "MINIO_ENDPOINT")
	overrideString(&cfg.Minio.AccessKey, "MINIO_ACCESS_KEY")
	overrideString(&cfg.Minio.SecretKey, "MINIO_SECRET_KEY")
	overrideString(&cfg.Minio.Bucket, "MINIO_BUCKET")
	overrideString(&cfg.JWTSecret, "JWT_SECRET")
	overrideString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	overrideString(&cfg.GenerationModel, "GENERATION_MODEL")
	overrideString(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	overrideString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	overrideInt(&cfg.Embedding.Dim, "EMBEDDING_DIM")
	overrideString(&cfg.SMS.AccessKeyID, "SMS_ACCESS_KEY_ID")
	overrideString(&cfg.SMS.AccessKeySecret, "SMS_ACCESS_KEY_SECRET")
	overrideString(&cfg.SMS.SignName, "SMS_SIGN_NAME")
	overrideString(&cfg.SMS.TemplateCode, "SMS_TEMPLATE_CODE")
	overrideString(&cfg.ReprocessStream, "REPROCESS_STREAM")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		cfg.Minio.UseSSL = v == "true" || v == "1"
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	overrideInt(&cfg.SessionTTLHours, "SESSION_TTL_HOURS")
	overrideInt(&cfg.ChunkSize, "CHUNK_SIZE")
	overrideInt(&cfg.ChunkOverlap, "CHUNK_OVERLAP")
	overrideInt(&cfg.TopK, "TOP_K")
	overrideInt(&cfg.HistoryLimit, "HISTORY_LIMIT")
	overrideInt(&cfg.ReprocessConcurrency, "REPROCESS_CONCURRENCY")
}

func applyDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = "local"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	if cfg.SessionTTLHours <= 0 {
		cfg.SessionTTLHours = 24
	}
	if cfg.GenerationModel == "" {
		cfg.GenerationModel = "gemini-2.0-flash"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "nomic-embed-text"
	}
	if cfg.Embedding.Dim <= 0 {
		cfg.Embedding.Dim = 768
	}
	if cfg.ReprocessStream == "" {
		cfg.ReprocessStream = "lexdocs:reprocess"
	}
	if cfg.ReprocessGroup == "" {
		cfg.ReprocessGroup = "workers"
	}
	if cfg.ReprocessConcurrency <= 0 {
		cfg.ReprocessConcurrency = 2
	}
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required")
	}
	switch cfg.StorageDriver {
	case "local":
	case "minio":
		if cfg.Minio.Endpoint == "" || cfg.Minio.Bucket == "" {
			return errors.New("config: minio endpoint and bucket are required for the minio driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", cfg.StorageDriver)
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return errors.New("config: geminiAPIKey is required")
	}
	return nil
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
