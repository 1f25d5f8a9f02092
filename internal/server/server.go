// Package server exposes the HTTP API: identity, phone verification, document
// upload and processing, and retrieval-augmented chat.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"lexdocs/internal/app"
	"lexdocs/internal/util"
	"lexdocs/pkg/domain"
)

// Probe checks one backing dependency for the detailed health report.
type Probe func(context.Context) error

// Config wires the HTTP server's dependencies.
type Config struct {
	App            *app.App
	AllowedOrigin  string
	MaxUploadBytes int64
	Probes         map[string]Probe
	Production     bool
}

// Server routes HTTP requests to the application service.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	allowedOrigin  string
	maxUploadBytes int64
	probes         map[string]Probe
	production     bool
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires the app")
	}
	maxUploadBytes := cfg.MaxUploadBytes
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		allowedOrigin:  cfg.AllowedOrigin,
		maxUploadBytes: maxUploadBytes,
		probes:         cfg.Probes,
		production:     cfg.Production,
	}
	s.routes()
	return s, nil
}

// Router returns the handler wrapped in the standard middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.allowedOrigin, s.mux))))
}

func (s *Server) routes() {
	// identity
	s.mux.HandleFunc("/api/auth/register", s.handleRegister)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/clerk", s.handleClerk)
	s.mux.Handle("/api/auth/me", s.withUser(s.handleMe))
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)

	// phone verification
	s.mux.HandleFunc("/api/phone/send-otp", s.handleSendOTP)
	s.mux.HandleFunc("/api/phone/verify-otp", s.handleVerifyOTP)
	s.mux.HandleFunc("/api/phone/register", s.handlePhoneRegister)
	s.mux.HandleFunc("/api/phone/login", s.handlePhoneLogin)

	// documents
	s.mux.Handle("/api/upload", s.withUser(s.handleUpload))
	s.mux.Handle("/api/upload/status/", s.withUser(s.handleUploadStatus))
	s.mux.Handle("/api/documents", s.withUser(s.handleDocuments))
	s.mux.Handle("/api/documents/", s.withUser(s.handleDocumentByID))

	// chat
	s.mux.Handle("/api/chat/message", s.withUser(s.handleChatMessage))
	s.mux.Handle("/api/chat/history/", s.withUser(s.handleChatHistory))
	s.mux.Handle("/api/chat/sessions", s.withUser(s.handleChatSessions))
	s.mux.Handle("/api/chat/sessions/", s.withUser(s.handleChatSessionByID))

	// health
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/health/detailed", s.handleHealthDetailed)
}

type userHandler func(http.ResponseWriter, *http.Request, domain.User)

// withUser authenticates the bearer token and resolves its user. Valid tokens
// whose user row is gone are rejected the same as invalid ones.
func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		user, ok := s.app.UserFromToken(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r, user)
	})
}

// pathTail returns the path segment after the prefix, rejecting nested paths.
func pathTail(r *http.Request, prefix string) (string, bool) {
	tail := strings.TrimPrefix(r.URL.Path, prefix)
	if tail == "" || strings.Contains(tail, "/") {
		return "", false
	}
	return tail, true
}
