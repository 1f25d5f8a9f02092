package domain

import "time"

// DocumentStage tracks the processing pipeline position of a document.
// Stages advance in upload order; "failed" is absorbing until a re-process run
// resumes from the first incomplete step.
type DocumentStage string

const (
	StageUploaded    DocumentStage = "uploaded"
	StageClassifying DocumentStage = "classifying"
	StageSummarizing DocumentStage = "summarizing"
	StageIngesting   DocumentStage = "ingesting"
	StageProcessed   DocumentStage = "processed"
	StageFailed      DocumentStage = "failed"
)

// ChatMode selects the chat behavior for a message.
type ChatMode string

const (
	ModeQnA       ChatMode = "qna"
	ModeSummarize ChatMode = "summarize"
	ModeExplain   ChatMode = "explain"
)

// ValidMode reports whether the mode is one of the supported chat modes.
func ValidMode(m ChatMode) bool {
	switch m {
	case ModeQnA, ModeSummarize, ModeExplain:
		return true
	}
	return false
}

// Classification labels assigned by the document classifier.
const (
	ClassTransactional        = "TRANSACTIONAL"
	ClassDisputes             = "DISPUTES"
	ClassCorporate            = "CORPORATE"
	ClassRegulatory           = "REGULATORY"
	ClassIntellectualProperty = "INTELLECTUAL_PROPERTY"
	ClassOthers               = "OTHERS"
)

// ClassificationLabels lists every label the classifier may return.
var ClassificationLabels = []string{
	ClassTransactional,
	ClassDisputes,
	ClassCorporate,
	ClassRegulatory,
	ClassIntellectualProperty,
	ClassOthers,
}

// ExternalPasswordSentinel marks users whose credentials are managed by an
// external identity provider; such users cannot log in with a password.
const ExternalPasswordSentinel = "external-identity"

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Phone         string    `json:"phone,omitempty"`
	PhoneVerified bool      `json:"phoneVerified"`
	ClerkID       string    `json:"-"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Document struct {
	ID               string        `json:"id"`
	OwnerID          string        `json:"ownerId"`
	OriginalFilename string        `json:"originalFilename"`
	StoredName       string        `json:"storedName"`
	StorageKey       string        `json:"-"`
	SizeBytes        int64         `json:"sizeBytes"`
	ContentType      string        `json:"contentType"`
	Processed        bool          `json:"processed"`
	Stage            DocumentStage `json:"stage"`
	ProcessingError  string        `json:"processingError,omitempty"`
	Classification   string        `json:"classification,omitempty"`
	Summary          string        `json:"summary,omitempty"`
	ChunkCount       int           `json:"chunkCount"`
	UploadedAt       time.Time     `json:"uploadedAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

type ChatSession struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	DocumentID string    `json:"documentId,omitempty"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	SessionID  string    `json:"sessionId"`
	DocumentID string    `json:"documentId,omitempty"`
	Message    string    `json:"message"`
	Response   string    `json:"response"`
	Mode       ChatMode  `json:"mode"`
	Sources    []string  `json:"sources,omitempty"`
	Degraded   bool      `json:"degraded,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Chunk is one embedded slice of a document used for retrieval.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"documentId"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  time.Time         `json:"createdAt"`
}
