package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lexdocs/internal/util"
	"lexdocs/pkg/analysis"
	"lexdocs/pkg/domain"
)

// SendMessageInput is one chat turn from the client.
type SendMessageInput struct {
	Message    string
	DocumentID string
	Mode       domain.ChatMode
	SessionID  string
}

// SendMessage validates ownership, resolves or creates the session, runs the
// engine with recent history, and persists the exchange. Ownership is checked
// before the engine is invoked.
func (a *App) SendMessage(ctx context.Context, user domain.User, in SendMessageInput) (domain.ChatMessage, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return domain.ChatMessage{}, ErrMessageRequired
	}
	mode := in.Mode
	if mode == "" {
		mode = domain.ModeQnA
	}
	if !domain.ValidMode(mode) {
		return domain.ChatMessage{}, ErrModeInvalid
	}
	if in.DocumentID != "" {
		if _, err := a.ownedDocument(user, in.DocumentID); err != nil {
			return domain.ChatMessage{}, err
		}
	}
	session, err := a.ensureSession(user, in.DocumentID, in.SessionID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	history, err := a.store.ListSessionMessages(session.ID, a.historyLimit)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("load history: %w", err)
	}

	result := a.engine.Chat(ctx, analysis.ChatRequest{
		Message:    message,
		DocumentID: in.DocumentID,
		Mode:       mode,
		History:    history,
	})
	if result.Degraded {
		a.logger.Warn("chat.degraded", "sessionId", session.ID, "documentId", in.DocumentID)
	}

	now := time.Now().UTC()
	msg := domain.ChatMessage{
		ID:         util.NewID(),
		OwnerID:    user.ID,
		SessionID:  session.ID,
		DocumentID: in.DocumentID,
		Message:    message,
		Response:   result.Response,
		Mode:       result.Mode,
		Sources:    result.Sources,
		Degraded:   result.Degraded,
		CreatedAt:  now,
	}
	if err := a.store.AppendMessage(msg); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("save message: %w", err)
	}
	if err := a.store.TouchSession(session.ID, now); err != nil {
		a.logger.Warn("chat.session touch fail", "sessionId", session.ID, "error", err)
	}
	return msg, nil
}

// DocumentHistory lists the user's messages for one owned document.
func (a *App) DocumentHistory(user domain.User, documentID string) ([]domain.ChatMessage, error) {
	if _, err := a.ownedDocument(user, documentID); err != nil {
		return nil, err
	}
	msgs, err := a.store.ListDocumentMessages(documentID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// ClearDocumentHistory deletes the user's messages for one owned document.
func (a *App) ClearDocumentHistory(user domain.User, documentID string) error {
	if _, err := a.ownedDocument(user, documentID); err != nil {
		return err
	}
	if err := a.store.DeleteDocumentMessages(documentID, user.ID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// ListSessions returns the user's chat sessions, most recently active first.
func (a *App) ListSessions(user domain.User, limit int) ([]domain.ChatSession, error) {
	sessions, err := a.store.ListSessionsByOwner(user.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// SessionMessages returns the messages of one owned session.
func (a *App) SessionMessages(user domain.User, sessionID string, limit int) ([]domain.ChatMessage, error) {
	if _, err := a.ownedSession(user, sessionID); err != nil {
		return nil, err
	}
	msgs, err := a.store.ListSessionMessages(sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// DeleteSession removes one owned session and all its messages.
func (a *App) DeleteSession(user domain.User, sessionID string) error {
	if _, err := a.ownedSession(user, sessionID); err != nil {
		return err
	}
	if err := a.store.DeleteSession(sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ensureSession resolves an existing owned session or lazily creates one.
func (a *App) ensureSession(user domain.User, documentID, sessionID string) (domain.ChatSession, error) {
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		return a.ownedSession(user, sessionID)
	}
	now := time.Now().UTC()
	session := domain.ChatSession{
		ID:         util.NewID(),
		OwnerID:    user.ID,
		DocumentID: documentID,
		Title:      "Chat " + now.Format("2006-01-02"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.store.CreateSession(session); err != nil {
		return domain.ChatSession{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (a *App) ownedSession(user domain.User, sessionID string) (domain.ChatSession, error) {
	session, found, err := a.store.GetSession(strings.TrimSpace(sessionID))
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("load session: %w", err)
	}
	if !found {
		return domain.ChatSession{}, ErrSessionNotFound
	}
	if session.OwnerID != user.ID {
		return domain.ChatSession{}, ErrSessionForbidden
	}
	return session, nil
}
