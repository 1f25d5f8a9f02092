package store

import (
	"math"
	"sort"
	"sync"
	"time"

	"lexdocs/pkg/domain"
)

// MemoryStore keeps all records in-process. It backs tests and local runs
// without Postgres; similarity search is brute-force cosine distance.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	documents  map[string]domain.Document
	docOrder   []string
	sessions   map[string]domain.ChatSession
	messages   map[string][]domain.ChatMessage // keyed by session ID
	chunks     map[string][]domain.Chunk       // keyed by document ID
	embeddings map[string][]float32            // keyed by chunk ID
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]domain.User),
		documents:  make(map[string]domain.Document),
		sessions:   make(map[string]domain.ChatSession),
		messages:   make(map[string][]domain.ChatMessage),
		chunks:     make(map[string][]domain.Chunk),
		embeddings: make(map[string][]float32),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	return m.findUser(func(u domain.User) bool { return u.Email == email })
}

func (m *MemoryStore) GetUserByPhone(phone string) (domain.User, bool, error) {
	return m.findUser(func(u domain.User) bool { return u.Phone != "" && u.Phone == phone })
}

func (m *MemoryStore) GetUserByClerkID(clerkID string) (domain.User, bool, error) {
	return m.findUser(func(u domain.User) bool { return u.ClerkID != "" && u.ClerkID == clerkID })
}

func (m *MemoryStore) findUser(match func(domain.User) bool) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	_, ok, _ := m.GetUserByEmail(email)
	return ok, nil
}

func (m *MemoryStore) HasUserPhone(phone string) (bool, error) {
	_, ok, _ := m.GetUserByPhone(phone)
	return ok, nil
}

func (m *MemoryStore) SaveDocument(d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.documents[d.ID]; !exists {
		m.docOrder = append(m.docOrder, d.ID)
	}
	m.documents[d.ID] = d
	return nil
}

func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	return d, ok, nil
}

func (m *MemoryStore) ListDocumentsByOwner(ownerID string) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0)
	for i := len(m.docOrder) - 1; i >= 0; i-- {
		if d, ok := m.documents[m.docOrder[i]]; ok && d.OwnerID == ownerID {
			res = append(res, d)
		}
	}
	return res, nil
}

func (m *MemoryStore) SetDocumentStage(id string, stage domain.DocumentStage, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return nil
	}
	d.Stage = stage
	d.ProcessingError = errMsg
	d.UpdatedAt = time.Now().UTC()
	m.documents[id] = d
	return nil
}

func (m *MemoryStore) DeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	for _, chunk := range m.chunks[id] {
		delete(m.embeddings, chunk.ID)
	}
	delete(m.chunks, id)
	return nil
}

func (m *MemoryStore) CreateSession(s domain.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSession(id string) (domain.ChatSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok, nil
}

func (m *MemoryStore) ListSessionsByOwner(ownerID string, limit int) ([]domain.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ChatSession, 0)
	for _, s := range m.sessions {
		if s.OwnerID == ownerID {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UpdatedAt.After(res[j].UpdatedAt) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStore) TouchSession(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.UpdatedAt = at.UTC()
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) DeleteSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryStore) AppendMessage(msg domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	return nil
}

func (m *MemoryStore) ListSessionMessages(sessionID string, limit int) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) ListDocumentMessages(documentID, ownerID string) ([]domain.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ChatMessage, 0)
	for _, msgs := range m.messages {
		for _, msg := range msgs {
			if msg.DocumentID == documentID && msg.OwnerID == ownerID {
				res = append(res, msg)
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) DeleteDocumentMessages(documentID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sessionID, msgs := range m.messages {
		kept := msgs[:0]
		for _, msg := range msgs {
			if msg.DocumentID != documentID || msg.OwnerID != ownerID {
				kept = append(kept, msg)
			}
		}
		m.messages[sessionID] = kept
	}
	return nil
}

func (m *MemoryStore) ReplaceChunks(documentID string, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chunk := range m.chunks[documentID] {
		delete(m.embeddings, chunk.ID)
	}
	copied := make([]domain.Chunk, len(chunks))
	copy(copied, chunks)
	m.chunks[documentID] = copied
	return nil
}

func (m *MemoryStore) SetChunkEmbedding(id string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	m.embeddings[id] = vec
	return nil
}

func (m *MemoryStore) SearchChunks(documentID string, embedding []float32, limit int) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		return []domain.Chunk{}, nil
	}
	type scored struct {
		chunk domain.Chunk
		score float64
	}
	candidates := make([]scored, 0)
	for _, chunk := range m.chunks[documentID] {
		vec, ok := m.embeddings[chunk.ID]
		if !ok {
			continue
		}
		candidates = append(candidates, scored{chunk: chunk, score: cosineSimilarity(embedding, vec)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	res := make([]domain.Chunk, 0, len(candidates))
	for _, c := range candidates {
		res = append(res, c.chunk)
	}
	return res, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
