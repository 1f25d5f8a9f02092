package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID            string `gorm:"primaryKey"`
	Email         string `gorm:"uniqueIndex;not null"`
	Name          string
	Phone         *string `gorm:"uniqueIndex"`
	PhoneVerified bool
	ClerkID       *string   `gorm:"uniqueIndex"`
	PasswordHash  string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time
}

type DocumentModel struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"not null;index"`
	OriginalFilename string `gorm:"not null"`
	StoredName       string `gorm:"not null"`
	StorageKey       string
	SizeBytes        int64  `gorm:"not null"`
	ContentType      string `gorm:"not null"`
	Processed        bool   `gorm:"not null"`
	Stage            string `gorm:"not null"`
	ProcessingError  string
	Classification   string
	Summary          string `gorm:"type:text"`
	ChunkCount       int
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type ChatSessionModel struct {
	ID         string    `gorm:"primaryKey"`
	OwnerID    string    `gorm:"not null;index"`
	DocumentID *string   `gorm:"index"`
	Title      string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null;index"`
}

type ChatMessageModel struct {
	ID         string         `gorm:"primaryKey"`
	OwnerID    string         `gorm:"not null;index"`
	SessionID  string         `gorm:"not null;index"`
	DocumentID *string        `gorm:"index"`
	Message    string         `gorm:"type:text;not null"`
	Response   string         `gorm:"type:text;not null"`
	Mode       string         `gorm:"not null"`
	Sources    datatypes.JSON `gorm:"type:jsonb"`
	Degraded   bool
	CreatedAt  time.Time `gorm:"not null;index"`
}

type ChunkModel struct {
	ID         string           `gorm:"primaryKey"`
	DocumentID string           `gorm:"not null;index"`
	Content    string           `gorm:"type:text;not null"`
	Metadata   datatypes.JSON   `gorm:"type:jsonb"`
	Embedding  *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt  time.Time        `gorm:"not null;index"`
}
