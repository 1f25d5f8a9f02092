package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
port: "8080"
databaseURL: "postgres://localhost/lexdocs"
redisAddr: "localhost:6379"
jwtSecret: "test-secret-test-secret"
geminiAPIKey: "test-key"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != "development" {
		t.Fatalf("env = %q, want development", cfg.Env)
	}
	if cfg.StorageDriver != "local" {
		t.Fatalf("storage driver = %q, want local", cfg.StorageDriver)
	}
	if cfg.MaxUploadBytes != 50<<20 {
		t.Fatalf("max upload bytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.SessionTTLHours != 24 {
		t.Fatalf("session ttl = %d", cfg.SessionTTLHours)
	}
	if cfg.Embedding.Dim != 768 {
		t.Fatalf("embedding dim = %d", cfg.Embedding.Dim)
	}
	if cfg.ReprocessStream != "lexdocs:reprocess" {
		t.Fatalf("reprocess stream = %q", cfg.ReprocessStream)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("CHUNK_SIZE", "1200")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.RedisAddr != "redis:6380" {
		t.Fatalf("redis addr = %q", cfg.RedisAddr)
	}
	if cfg.ChunkSize != 1200 {
		t.Fatalf("chunk size = %d", cfg.ChunkSize)
	}
	if cfg.MaxUploadBytes != 1<<20 {
		t.Fatalf("max upload bytes = %d", cfg.MaxUploadBytes)
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"no port", strings.Replace(minimalConfig, `port: "8080"`, "", 1), "port"},
		{"no database", strings.Replace(minimalConfig, `databaseURL: "postgres://localhost/lexdocs"`, "", 1), "databaseURL"},
		{"no jwt secret", strings.Replace(minimalConfig, `jwtSecret: "test-secret-test-secret"`, "", 1), "jwtSecret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestLoadRejectsUnknownStorageDriver(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`storageDriver: "s3"`+"\n"))
	if err == nil || !strings.Contains(err.Error(), "storage driver") {
		t.Fatalf("err = %v, want storage driver error", err)
	}
}

func TestLoadRequiresMinioSettings(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`storageDriver: "minio"`+"\n"))
	if err == nil || !strings.Contains(err.Error(), "minio") {
		t.Fatalf("err = %v, want minio error", err)
	}
}
