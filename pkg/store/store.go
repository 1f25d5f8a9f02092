package store

import (
	"time"

	"lexdocs/pkg/domain"
)

// Store defines persistence operations for users, documents, chat sessions,
// chat messages, and retrieval chunks.
type Store interface {
	// users
	SaveUser(domain.User) error
	GetUserByID(id string) (domain.User, bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByPhone(phone string) (domain.User, bool, error)
	GetUserByClerkID(clerkID string) (domain.User, bool, error)
	HasUserEmail(email string) (bool, error)
	HasUserPhone(phone string) (bool, error)

	// documents
	SaveDocument(domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocumentsByOwner(ownerID string) ([]domain.Document, error)
	SetDocumentStage(id string, stage domain.DocumentStage, errMsg string) error
	DeleteDocument(id string) error

	// chat sessions
	CreateSession(domain.ChatSession) error
	GetSession(id string) (domain.ChatSession, bool, error)
	ListSessionsByOwner(ownerID string, limit int) ([]domain.ChatSession, error)
	TouchSession(id string, at time.Time) error
	DeleteSession(id string) error

	// chat messages
	AppendMessage(domain.ChatMessage) error
	ListSessionMessages(sessionID string, limit int) ([]domain.ChatMessage, error)
	ListDocumentMessages(documentID, ownerID string) ([]domain.ChatMessage, error)
	DeleteDocumentMessages(documentID, ownerID string) error

	// chunks
	ReplaceChunks(documentID string, chunks []domain.Chunk) error
	SetChunkEmbedding(id string, embedding []float32) error
	SearchChunks(documentID string, embedding []float32, limit int) ([]domain.Chunk, error)
}
