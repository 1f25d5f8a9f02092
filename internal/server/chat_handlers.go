package server

import (
	"net/http"
	"strconv"
	"strings"

	"lexdocs/internal/app"
	"lexdocs/pkg/domain"
)

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var body struct {
		Message    string `json:"message"`
		DocumentID string `json:"documentId"`
		Mode       string `json:"mode"`
		SessionID  string `json:"sessionId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	msg, err := s.app.SendMessage(r.Context(), user, app.SendMessageInput{
		Message:    body.Message,
		DocumentID: body.DocumentID,
		Mode:       domain.ChatMode(body.Mode),
		SessionID:  body.SessionID,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"messageId": msg.ID,
		"sessionId": msg.SessionID,
		"response":  msg.Response,
		"sources":   msg.Sources,
		"mode":      msg.Mode,
		"degraded":  msg.Degraded,
		"timestamp": msg.CreatedAt,
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request, user domain.User) {
	documentID, ok := pathTail(r, "/api/chat/history/")
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		msgs, err := s.app.DocumentHistory(user, documentID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, msgs)
	case http.MethodDelete:
		if err := s.app.ClearDocumentHistory(user, documentID); err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeMessage(w, http.StatusOK, "chat history cleared", nil)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleChatSessions(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := queryLimit(r, 50)
	sessions, err := s.app.ListSessions(user, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sessions)
}

func (s *Server) handleChatSessionByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	tail := strings.TrimPrefix(r.URL.Path, "/api/chat/sessions/")
	if id, ok := strings.CutSuffix(tail, "/messages"); ok && id != "" && !strings.Contains(id, "/") {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		msgs, err := s.app.SessionMessages(user, id, queryLimit(r, 200))
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, msgs)
		return
	}
	if tail == "" || strings.Contains(tail, "/") {
		writeError(w, http.StatusNotFound, "chat session not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.app.DeleteSession(user, tail); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "chat session deleted", nil)
}

func queryLimit(r *http.Request, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
