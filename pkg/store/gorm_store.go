package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"lexdocs/pkg/domain"
)

const migrateLockID int64 = 48120731

const defaultEmbeddingDim = 768

// GormStoreOptions tunes GormStore construction.
type GormStoreOptions struct {
	EmbeddingDim int
}

// GormStoreOption mutates GormStoreOptions.
type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the canonical embedding dimension used by storage.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres with pgvector.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim := opts.EmbeddingDim
	if embeddingDim <= 0 {
		embeddingDim = defaultEmbeddingDim
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&UserModel{}, &DocumentModel{}, &ChatSessionModel{}, &ChatMessageModel{}, &ChunkModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'chunk_models' AND column_name = 'embedding'
			) THEN
				ALTER TABLE chunk_models ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter chunk embedding type: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chunk_models'
					AND constraint_name = 'chunk_models_document_id_fkey'
				) THEN
					ALTER TABLE chunk_models
					ADD CONSTRAINT chunk_models_document_id_fkey
					FOREIGN KEY (document_id) REFERENCES document_models(id) ON DELETE CASCADE;
				END IF;
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chat_message_models'
					AND constraint_name = 'chat_message_models_session_id_fkey'
				) THEN
					ALTER TABLE chat_message_models
					ADD CONSTRAINT chat_message_models_session_id_fkey
					FOREIGN KEY (session_id) REFERENCES chat_session_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "phone", "phone_verified", "clerk_id", "password_hash", "updated_at"}),
	}).Create(&model).Error
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	return s.getUser("id = ?", id)
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	return s.getUser("email = ?", email)
}

// GetUserByPhone looks up a user by verified phone number.
func (s *GormStore) GetUserByPhone(phone string) (domain.User, bool, error) {
	return s.getUser("phone = ?", phone)
}

// GetUserByClerkID looks up a user by external identity id.
func (s *GormStore) GetUserByClerkID(clerkID string) (domain.User, bool, error) {
	return s.getUser("clerk_id = ?", clerkID)
}

func (s *GormStore) getUser(cond string, arg any) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where(cond, arg).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	return s.hasUser("email = ?", email)
}

// HasUserPhone checks if phone exists.
func (s *GormStore) HasUserPhone(phone string) (bool, error) {
	return s.hasUser("phone = ?", phone)
}

func (s *GormStore) hasUser(cond string, arg any) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where(cond, arg).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveDocument stores or updates a document.
func (s *GormStore) SaveDocument(d domain.Document) error {
	model := documentToModel(d)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"owner_id", "original_filename", "stored_name", "storage_key",
			"size_bytes", "content_type", "processed", "stage",
			"processing_error", "classification", "summary", "chunk_count", "updated_at",
		}),
	}).Create(&model).Error
}

// GetDocument retrieves a document.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocumentsByOwner returns documents for one owner, newest first.
func (s *GormStore) ListDocumentsByOwner(ownerID string) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

// SetDocumentStage updates the pipeline stage and error message.
func (s *GormStore) SetDocumentStage(id string, stage domain.DocumentStage, errMsg string) error {
	return s.db.Model(&DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stage":            string(stage),
			"processing_error": errMsg,
			"updated_at":       time.Now().UTC(),
		}).Error
}

// DeleteDocument removes a document and its chunks (FK cascade). Chat history
// is intentionally retained.
func (s *GormStore) DeleteDocument(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChunkModel{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&DocumentModel{}, "id = ?", id).Error
	})
}

// CreateSession creates a chat session record.
func (s *GormStore) CreateSession(session domain.ChatSession) error {
	model := sessionToModel(session)
	return s.db.Create(&model).Error
}

// GetSession returns one session by ID.
func (s *GormStore) GetSession(id string) (domain.ChatSession, bool, error) {
	var model ChatSessionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ChatSession{}, false, nil
		}
		return domain.ChatSession{}, false, err
	}
	return sessionFromModel(model), true, nil
}

// ListSessionsByOwner returns the most recently active sessions of an owner.
func (s *GormStore) ListSessionsByOwner(ownerID string, limit int) ([]domain.ChatSession, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []ChatSessionModel
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.ChatSession, 0, len(models))
	for _, model := range models {
		items = append(items, sessionFromModel(model))
	}
	return items, nil
}

// TouchSession refreshes the session's last-activity timestamp.
func (s *GormStore) TouchSession(id string, at time.Time) error {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.db.Model(&ChatSessionModel{}).Where("id = ?", id).
		Update("updated_at", at.UTC()).Error
}

// DeleteSession removes a session and its messages.
func (s *GormStore) DeleteSession(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChatMessageModel{}, "session_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ChatSessionModel{}, "id = ?", id).Error
	})
}

// AppendMessage records a chat turn.
func (s *GormStore) AppendMessage(msg domain.ChatMessage) error {
	model, err := messageToModel(msg)
	if err != nil {
		return err
	}
	return s.db.Create(&model).Error
}

// ListSessionMessages returns session messages in chronological order. A
// positive limit keeps only the most recent messages.
func (s *GormStore) ListSessionMessages(sessionID string, limit int) ([]domain.ChatMessage, error) {
	query := s.db.Where("session_id = ?", sessionID).Order("created_at ASC")
	if limit > 0 {
		// Select the newest rows, then restore chronological order.
		query = s.db.Where("session_id = ?", sessionID).Order("created_at DESC").Limit(limit)
	}
	var models []ChatMessageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	if limit > 0 {
		for i, j := 0, len(models)-1; i < j; i, j = i+1, j-1 {
			models[i], models[j] = models[j], models[i]
		}
	}
	return messagesFromModels(models)
}

// ListDocumentMessages returns one owner's chat history for a document.
func (s *GormStore) ListDocumentMessages(documentID, ownerID string) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	if err := s.db.Where("document_id = ? AND owner_id = ?", documentID, ownerID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return messagesFromModels(models)
}

// DeleteDocumentMessages removes one owner's chat history for a document.
func (s *GormStore) DeleteDocumentMessages(documentID, ownerID string) error {
	return s.db.Delete(&ChatMessageModel{}, "document_id = ? AND owner_id = ?", documentID, ownerID).Error
}

// ReplaceChunks replaces all chunks for a document.
func (s *GormStore) ReplaceChunks(documentID string, chunks []domain.Chunk) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChunkModel{}, "document_id = ?", documentID).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		models := make([]ChunkModel, 0, len(chunks))
		for _, chunk := range chunks {
			model, err := chunkToModel(chunk)
			if err != nil {
				return err
			}
			model.DocumentID = documentID
			models = append(models, model)
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

// SetChunkEmbedding updates the embedding vector for a chunk.
func (s *GormStore) SetChunkEmbedding(id string, embedding []float32) error {
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return err
	}
	return s.db.Model(&ChunkModel{}).Where("id = ?", id).
		Update("embedding", pgvector.NewVector(embedding)).Error
}

// SearchChunks finds similar chunks by cosine distance.
func (s *GormStore) SearchChunks(documentID string, embedding []float32, limit int) ([]domain.Chunk, error) {
	if limit <= 0 {
		return []domain.Chunk{}, nil
	}
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)
	var models []ChunkModel
	if err := s.db.Model(&ChunkModel{}).
		Where("document_id = ? AND embedding IS NOT NULL", documentID).
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, 0, len(models))
	for _, model := range models {
		chunk, err := chunkFromModel(model)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (s *GormStore) validateEmbeddingDim(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	if s.embeddingDim > 0 && len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.embeddingDim)
	}
	return nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Phone:         optional(u.Phone),
		PhoneVerified: u.PhoneVerified,
		ClerkID:       optional(u.ClerkID),
		PasswordHash:  u.PasswordHash,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:            m.ID,
		Email:         m.Email,
		Name:          m.Name,
		Phone:         deref(m.Phone),
		PhoneVerified: m.PhoneVerified,
		ClerkID:       deref(m.ClerkID),
		PasswordHash:  m.PasswordHash,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:               d.ID,
		OwnerID:          d.OwnerID,
		OriginalFilename: d.OriginalFilename,
		StoredName:       d.StoredName,
		StorageKey:       d.StorageKey,
		SizeBytes:        d.SizeBytes,
		ContentType:      d.ContentType,
		Processed:        d.Processed,
		Stage:            string(d.Stage),
		ProcessingError:  d.ProcessingError,
		Classification:   d.Classification,
		Summary:          d.Summary,
		ChunkCount:       d.ChunkCount,
		CreatedAt:        d.UploadedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		OriginalFilename: m.OriginalFilename,
		StoredName:       m.StoredName,
		StorageKey:       m.StorageKey,
		SizeBytes:        m.SizeBytes,
		ContentType:      m.ContentType,
		Processed:        m.Processed,
		Stage:            domain.DocumentStage(m.Stage),
		ProcessingError:  m.ProcessingError,
		Classification:   m.Classification,
		Summary:          m.Summary,
		ChunkCount:       m.ChunkCount,
		UploadedAt:       m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func sessionToModel(s domain.ChatSession) ChatSessionModel {
	return ChatSessionModel{
		ID:         s.ID,
		OwnerID:    s.OwnerID,
		DocumentID: optional(s.DocumentID),
		Title:      s.Title,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func sessionFromModel(m ChatSessionModel) domain.ChatSession {
	return domain.ChatSession{
		ID:         m.ID,
		OwnerID:    m.OwnerID,
		DocumentID: deref(m.DocumentID),
		Title:      m.Title,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func messageToModel(msg domain.ChatMessage) (ChatMessageModel, error) {
	var sources datatypes.JSON
	if len(msg.Sources) > 0 {
		raw, err := json.Marshal(msg.Sources)
		if err != nil {
			return ChatMessageModel{}, fmt.Errorf("marshal sources: %w", err)
		}
		sources = datatypes.JSON(raw)
	}
	return ChatMessageModel{
		ID:         msg.ID,
		OwnerID:    msg.OwnerID,
		SessionID:  msg.SessionID,
		DocumentID: optional(msg.DocumentID),
		Message:    msg.Message,
		Response:   msg.Response,
		Mode:       string(msg.Mode),
		Sources:    sources,
		Degraded:   msg.Degraded,
		CreatedAt:  msg.CreatedAt,
	}, nil
}

func messageFromModel(m ChatMessageModel) (domain.ChatMessage, error) {
	var sources []string
	if len(m.Sources) > 0 {
		if err := json.Unmarshal(m.Sources, &sources); err != nil {
			return domain.ChatMessage{}, fmt.Errorf("unmarshal sources: %w", err)
		}
	}
	return domain.ChatMessage{
		ID:         m.ID,
		OwnerID:    m.OwnerID,
		SessionID:  m.SessionID,
		DocumentID: deref(m.DocumentID),
		Message:    m.Message,
		Response:   m.Response,
		Mode:       domain.ChatMode(m.Mode),
		Sources:    sources,
		Degraded:   m.Degraded,
		CreatedAt:  m.CreatedAt,
	}, nil
}

func messagesFromModels(models []ChatMessageModel) ([]domain.ChatMessage, error) {
	msgs := make([]domain.ChatMessage, 0, len(models))
	for _, model := range models {
		msg, err := messageFromModel(model)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func chunkToModel(c domain.Chunk) (ChunkModel, error) {
	var metadata datatypes.JSON
	if len(c.Metadata) > 0 {
		raw, err := json.Marshal(c.Metadata)
		if err != nil {
			return ChunkModel{}, fmt.Errorf("marshal chunk metadata: %w", err)
		}
		metadata = datatypes.JSON(raw)
	}
	return ChunkModel{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		Content:    c.Content,
		Metadata:   metadata,
		CreatedAt:  c.CreatedAt,
	}, nil
}

func chunkFromModel(m ChunkModel) (domain.Chunk, error) {
	var metadata map[string]string
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &metadata); err != nil {
			return domain.Chunk{}, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
	}
	return domain.Chunk{
		ID:         m.ID,
		DocumentID: m.DocumentID,
		Content:    m.Content,
		Metadata:   metadata,
		CreatedAt:  m.CreatedAt,
	}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
