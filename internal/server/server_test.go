package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"lexdocs/internal/app"
	"lexdocs/internal/otp"
	"lexdocs/internal/ratelimit"
	"lexdocs/pkg/analysis"
	"lexdocs/pkg/auth"
	"lexdocs/pkg/domain"
	"lexdocs/pkg/storage"
	"lexdocs/pkg/store"
)

type stubEngine struct {
	chatCalls int
	chatErr   bool
}

func (e *stubEngine) Classify(context.Context, analysis.File) (string, error) {
	return domain.ClassTransactional, nil
}

func (e *stubEngine) Summarize(context.Context, analysis.File, string) (string, error) {
	return "a summary", nil
}

func (e *stubEngine) Ingest(context.Context, analysis.File) (analysis.IngestResult, error) {
	return analysis.IngestResult{ChunksCreated: 2}, nil
}

func (e *stubEngine) Chat(_ context.Context, req analysis.ChatRequest) analysis.ChatResult {
	e.chatCalls++
	if e.chatErr {
		return analysis.ChatResult{Response: analysis.FallbackResponse, Mode: req.Mode, Degraded: true}
	}
	return analysis.ChatResult{Response: "an answer", Mode: req.Mode, Sources: []string{"page 1"}}
}

type testServer struct {
	srv    *httptest.Server
	engine *stubEngine
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	memStore := store.NewMemoryStore()
	objects, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	tokens, err := auth.NewTokenIssuer("test-secret-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	redisSrv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisSrv.Addr()})
	otpStore, err := otp.NewStore(otp.Config{Client: client})
	if err != nil {
		t.Fatalf("otp store: %v", err)
	}
	limiter, err := ratelimit.NewFixedWindowLimiter(client, "test:otp:send", 3, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	engine := &stubEngine{}
	appCore, err := app.New(app.Config{
		Store:       memStore,
		Objects:     objects,
		Engine:      engine,
		Tokens:      tokens,
		OTP:         otpStore,
		SendLimiter: limiter,
		Env:         "development",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{App: appCore, AllowedOrigin: "http://localhost:3000"}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, engine: engine}
}

func postJSON(t *testing.T, url, token string, body any) (*http.Response, envelope) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return doRequest(t, req)
}

func doRequest(t *testing.T, req *http.Request) (*http.Response, envelope) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp, env
}

func dataMap(t *testing.T, env envelope) map[string]any {
	t.Helper()
	m, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want object: %+v", env.Data, env)
	}
	return m
}

func registerHTTP(t *testing.T, ts *testServer, email string) string {
	t.Helper()
	resp, env := postJSON(t, ts.srv.URL+"/api/auth/register", "", map[string]string{
		"email": email, "name": "Test User", "password": "password123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d: %+v", resp.StatusCode, env)
	}
	token, _ := dataMap(t, env)["token"].(string)
	if token == "" {
		t.Fatal("no token in register response")
	}
	return token
}

func uploadHTTP(t *testing.T, ts *testServer, token, filename, content string) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("document", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatalf("write form: %v", err)
	}
	mw.Close()
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/upload", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, env := doRequest(t, req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d: %+v", resp.StatusCode, env)
	}
	return dataMap(t, env)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, path := range []string{"/api/auth/me", "/api/documents", "/api/chat/sessions"} {
		resp, env := doRequest(t, mustRequest(t, http.MethodGet, ts.srv.URL+path, ""))
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, resp.StatusCode)
		}
		if env.Success {
			t.Errorf("%s envelope success = true", path)
		}
	}
}

func mustRequest(t *testing.T, method, url, token string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestRegisterLoginAndMe(t *testing.T) {
	ts := newTestServer(t, nil)
	token := registerHTTP(t, ts, "alice@example.com")

	resp, env := doRequest(t, mustRequest(t, http.MethodGet, ts.srv.URL+"/api/auth/me", token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	if email := dataMap(t, env)["email"]; email != "alice@example.com" {
		t.Fatalf("me email = %v", email)
	}

	resp, env = postJSON(t, ts.srv.URL+"/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d: %+v", resp.StatusCode, env)
	}
}

func TestClerkExchangeEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	req := mustRequest(t, http.MethodPost, ts.srv.URL+"/api/auth/clerk", "")
	req.Header.Set("X-Clerk-User-Id", "clerk-42")
	req.Header.Set("X-Clerk-User-Email", "ext@example.com")
	req.Header.Set("X-Clerk-User-Name", "External User")
	resp, env := doRequest(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clerk status = %d: %+v", resp.StatusCode, env)
	}
	if token, _ := dataMap(t, env)["token"].(string); token == "" {
		t.Fatal("no token in clerk response")
	}

	// Missing headers are a validation error.
	resp, _ = doRequest(t, mustRequest(t, http.MethodPost, ts.srv.URL+"/api/auth/clerk", ""))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("clerk without headers status = %d", resp.StatusCode)
	}
}

func TestUploadAndStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	token := registerHTTP(t, ts, "u@example.com")
	doc := uploadHTTP(t, ts, token, "contract.txt", "the parties agree as follows")
	if doc["processed"] != true {
		t.Fatalf("doc = %+v", doc)
	}
	id, _ := doc["id"].(string)

	resp, env := doRequest(t, mustRequest(t, http.MethodGet, ts.srv.URL+"/api/upload/status/"+id, token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status status = %d", resp.StatusCode)
	}
	status := dataMap(t, env)
	if status["stage"] != string(domain.StageProcessed) {
		t.Fatalf("status = %+v", status)
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	ts := newTestServer(t, nil)
	token := registerHTTP(t, ts, "u@example.com")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("document", "tool.exe")
	fmt.Fprint(fw, "MZ")
	mw.Close()
	req := mustRequest(t, http.MethodPost, ts.srv.URL+"/api/upload", token)
	req.Body = io.NopCloser(&buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, _ := doRequest(t, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("upload status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadOverCapReportsSizeLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) { cfg.MaxUploadBytes = 1024 })
	token := registerHTTP(t, ts, "u@example.com")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("document", "contract.txt")
	fw.Write(bytes.Repeat([]byte("a"), 8<<10))
	mw.Close()
	req := mustRequest(t, http.MethodPost, ts.srv.URL+"/api/upload", token)
	req.Body = io.NopCloser(&buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, env := doRequest(t, req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("upload status = %d, want 400", resp.StatusCode)
	}
	if env.Error != "document exceeds the size limit" {
		t.Fatalf("error = %q", env.Error)
	}
}

func TestChatMessageEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	token := registerHTTP(t, ts, "u@example.com")
	resp, env := postJSON(t, ts.srv.URL+"/api/chat/message", token, map[string]string{"message": "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat status = %d: %+v", resp.StatusCode, env)
	}
	data := dataMap(t, env)
	if data["response"] != "an answer" || data["sessionId"] == "" || data["mode"] != "qna" {
		t.Fatalf("chat data = %+v", data)
	}

	resp, _ = postJSON(t, ts.srv.URL+"/api/chat/message", token, map[string]string{"message": "hi", "mode": "prophesy"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d", resp.StatusCode)
	}
}

func TestChatOwnershipEnforcedBeforeEngine(t *testing.T) {
	ts := newTestServer(t, nil)
	ownerToken := registerHTTP(t, ts, "owner@example.com")
	otherToken := registerHTTP(t, ts, "other@example.com")
	doc := uploadHTTP(t, ts, ownerToken, "contract.txt", "confidential")
	id, _ := doc["id"].(string)

	ts.engine.chatCalls = 0
	resp, _ := postJSON(t, ts.srv.URL+"/api/chat/message", otherToken, map[string]string{
		"message": "leak", "documentId": id,
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign chat status = %d, want 403", resp.StatusCode)
	}
	if ts.engine.chatCalls != 0 {
		t.Fatal("engine invoked despite ownership failure")
	}

	resp, _ = doRequest(t, mustRequest(t, http.MethodGet, ts.srv.URL+"/api/chat/history/"+id, otherToken))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign history status = %d, want 403", resp.StatusCode)
	}
}

func TestSendOTPRateLimit(t *testing.T) {
	ts := newTestServer(t, nil)
	body := map[string]string{"phone": "+12025550123", "purpose": "login"}
	for i := 0; i < 3; i++ {
		resp, env := postJSON(t, ts.srv.URL+"/api/phone/send-otp", "", body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("send %d status = %d: %+v", i+1, resp.StatusCode, env)
		}
	}
	resp, _ := postJSON(t, ts.srv.URL+"/api/phone/send-otp", "", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("4th send status = %d, want 429", resp.StatusCode)
	}
}

func TestPhoneRegisterFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, env := postJSON(t, ts.srv.URL+"/api/phone/send-otp", "", map[string]string{
		"phone": "+12025550123", "purpose": "registration",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	code, _ := dataMap(t, env)["devCode"].(string)
	if code == "" {
		t.Fatal("expected devCode outside production")
	}

	resp, env = postJSON(t, ts.srv.URL+"/api/phone/register", "", map[string]string{
		"phone": "+12025550123", "name": "Phone User", "otp": code,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("phone register status = %d: %+v", resp.StatusCode, env)
	}
	if token, _ := dataMap(t, env)["token"].(string); token == "" {
		t.Fatal("no token in phone register response")
	}

	// The code is single use.
	resp, _ = postJSON(t, ts.srv.URL+"/api/phone/login", "", map[string]string{
		"phone": "+12025550123", "otp": code,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("reused code status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) {
		cfg.Probes = map[string]Probe{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}
	})
	resp, _ := doRequest(t, mustRequest(t, http.MethodGet, ts.srv.URL+"/api/health", ""))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	resp, env := doRequest(t, mustRequest(t, http.MethodGet, ts.srv.URL+"/api/health/detailed", ""))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("detailed status = %d, want 503", resp.StatusCode)
	}
	data := dataMap(t, env)
	deps, _ := data["dependencies"].(map[string]any)
	if deps["postgres"] != "ok" || deps["redis"] == "ok" {
		t.Fatalf("dependencies = %+v", deps)
	}
}

func TestCORSRestrictedToConfiguredOrigin(t *testing.T) {
	ts := newTestServer(t, nil)
	req := mustRequest(t, http.MethodGet, ts.srv.URL+"/api/health", "")
	req.Header.Set("Origin", "http://localhost:3000")
	resp, _ := doRequest(t, req)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow-origin = %q", got)
	}

	req = mustRequest(t, http.MethodGet, ts.srv.URL+"/api/health", "")
	req.Header.Set("Origin", "http://evil.example")
	resp, _ = doRequest(t, req)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got == "http://evil.example" {
		t.Fatal("foreign origin allowed")
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	ts := newTestServer(t, nil)
	token := registerHTTP(t, ts, "u@example.com")
	_, env := postJSON(t, ts.srv.URL+"/api/chat/message", token, map[string]string{"message": "hello"})
	sessionID, _ := dataMap(t, env)["sessionId"].(string)
	if sessionID == "" {
		t.Fatal("no session id")
	}

	resp, _ := doRequest(t, mustRequest(t, http.MethodDelete, ts.srv.URL+"/api/chat/sessions/"+sessionID, token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = doRequest(t, mustRequest(t, http.MethodGet, ts.srv.URL+"/api/chat/sessions/"+sessionID+"/messages", token))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("messages after delete status = %d, want 404", resp.StatusCode)
	}
}
