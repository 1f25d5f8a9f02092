package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lexdocs/pkg/domain"
	"lexdocs/pkg/store"
)

type stubGenerator struct {
	response string
	err      error
	prompts  []string
	systems  []string
}

func (g *stubGenerator) GenerateText(_ context.Context, _, systemPrompt, userPrompt string) (string, error) {
	g.systems = append(g.systems, systemPrompt)
	g.prompts = append(g.prompts, userPrompt)
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

type stubEmbedder struct {
	err       error
	taskTypes []string
}

func (e *stubEmbedder) EmbedText(_ context.Context, text, taskType string) ([]float32, error) {
	e.taskTypes = append(e.taskTypes, taskType)
	if e.err != nil {
		return nil, e.err
	}
	// Deterministic embedding so similar text lands near itself.
	v := []float32{0, 0, 0}
	for i, r := range text {
		v[i%3] += float32(r % 13)
	}
	return v, nil
}

func newTestEngine(t *testing.T, gen *stubGenerator, emb *stubEmbedder, st store.Store) *Engine {
	t.Helper()
	if gen == nil {
		gen = &stubGenerator{response: "ok"}
	}
	if emb == nil {
		emb = &stubEmbedder{}
	}
	if st == nil {
		st = store.NewMemoryStore()
	}
	e, err := New(Config{
		Store:           st,
		Generator:       gen,
		Embedder:        emb,
		GenerationModel: "test-model",
		ChunkSize:       40,
		ChunkOverlap:    10,
		TopK:            2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{Generator: &stubGenerator{}, Embedder: &stubEmbedder{}, GenerationModel: "m"})
	if err == nil {
		t.Fatal("expected error without store")
	}
	_, err = New(Config{Store: store.NewMemoryStore(), Generator: &stubGenerator{}, Embedder: &stubEmbedder{}})
	if err == nil {
		t.Fatal("expected error without model")
	}
}

func TestClassifyNormalizesLabels(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"TRANSACTIONAL", domain.ClassTransactional},
		{" disputes.\n", domain.ClassDisputes},
		{"The category is REGULATORY", domain.ClassRegulatory},
		{"no idea", domain.ClassOthers},
	}
	for _, tc := range cases {
		gen := &stubGenerator{response: tc.raw}
		e := newTestEngine(t, gen, nil, nil)
		got, err := e.Classify(context.Background(), File{ID: "d1", Name: "lease.txt", Data: []byte("this lease agreement")})
		if err != nil {
			t.Fatalf("Classify(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestClassifyPropagatesModelError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model down")}
	e := newTestEngine(t, gen, nil, nil)
	if _, err := e.Classify(context.Background(), File{ID: "d1", Name: "a.txt", Data: []byte("text")}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSummarizeUsesClassificationTemplate(t *testing.T) {
	gen := &stubGenerator{response: "## Summary"}
	e := newTestEngine(t, gen, nil, nil)
	got, err := e.Summarize(context.Background(), File{ID: "d1", Name: "brief.txt", Data: []byte("plaintiff versus defendant")}, domain.ClassDisputes)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "## Summary" {
		t.Errorf("summary = %q", got)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected one model call, got %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], "litigation analyst") {
		t.Errorf("prompt did not use disputes template: %q", gen.prompts[0][:80])
	}
	if !strings.Contains(gen.prompts[0], "plaintiff versus defendant") {
		t.Error("prompt missing document text")
	}
}

func TestSummarizeUnknownClassificationFallsBack(t *testing.T) {
	gen := &stubGenerator{response: "summary"}
	e := newTestEngine(t, gen, nil, nil)
	if _, err := e.Summarize(context.Background(), File{ID: "d1", Name: "a.txt", Data: []byte("text")}, "BOGUS"); err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !strings.Contains(gen.prompts[0], "miscellaneous legal document") {
		t.Error("expected OTHERS template for unknown classification")
	}
}

func TestSummarizeLongDocumentMapReduce(t *testing.T) {
	gen := &stubGenerator{response: "partial"}
	e := newTestEngine(t, gen, nil, nil)
	long := strings.Repeat("clause text ", singlePassLimit/4)
	_, err := e.Summarize(context.Background(), File{ID: "d1", Name: "long.txt", Data: []byte(long)}, domain.ClassTransactional)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(gen.prompts) < 3 {
		t.Fatalf("expected section calls plus a master call, got %d", len(gen.prompts))
	}
	last := gen.prompts[len(gen.prompts)-1]
	if !strings.Contains(last, "Combined Section Summaries") {
		t.Error("final call is not the master summary")
	}
}

func TestIngestStoresChunksAndEmbeddings(t *testing.T) {
	st := store.NewMemoryStore()
	emb := &stubEmbedder{}
	e := newTestEngine(t, nil, emb, st)
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 10)
	res, err := e.Ingest(context.Background(), File{ID: "doc-1", Name: "notes.txt", Data: []byte(text)})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.DocumentID != "doc-1" {
		t.Errorf("DocumentID = %q", res.DocumentID)
	}
	if res.ChunksCreated < 2 {
		t.Errorf("ChunksCreated = %d, want several", res.ChunksCreated)
	}
	for _, taskType := range emb.taskTypes {
		if taskType != "RETRIEVAL_DOCUMENT" {
			t.Errorf("ingest embedded with task type %q", taskType)
		}
	}
	chunks, err := st.SearchChunks("doc-1", []float32{1, 1, 1}, 100)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(chunks) != res.ChunksCreated {
		t.Errorf("stored %d chunks, reported %d", len(chunks), res.ChunksCreated)
	}
}

func TestIngestRejectsEmptyDocument(t *testing.T) {
	e := newTestEngine(t, nil, nil, nil)
	if _, err := e.Ingest(context.Background(), File{ID: "d", Name: "empty.txt", Data: []byte("   \n  ")}); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestChatRetrievesAndAnswers(t *testing.T) {
	st := store.NewMemoryStore()
	emb := &stubEmbedder{}
	gen := &stubGenerator{response: "The rent is due monthly."}
	e := newTestEngine(t, gen, emb, st)
	text := strings.Repeat("rent is payable on the first of each month. ", 10)
	if _, err := e.Ingest(context.Background(), File{ID: "doc-1", Name: "lease.txt", Data: []byte(text)}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	res := e.Chat(context.Background(), ChatRequest{
		Message:    "When is rent due?",
		DocumentID: "doc-1",
		Mode:       domain.ModeQnA,
	})
	if res.Degraded {
		t.Fatal("unexpected degraded response")
	}
	if res.Response != "The rent is due monthly." {
		t.Errorf("Response = %q", res.Response)
	}
	if len(res.Sources) == 0 {
		t.Error("expected sources from retrieval")
	}
	if emb.taskTypes[len(emb.taskTypes)-1] != "RETRIEVAL_QUERY" {
		t.Errorf("query embedded with task type %q", emb.taskTypes[len(emb.taskTypes)-1])
	}
	prompt := gen.prompts[len(gen.prompts)-1]
	if !strings.Contains(prompt, "rent is payable") {
		t.Error("prompt missing retrieved context")
	}
}

func TestChatFallsBackOnModelFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model down")}
	e := newTestEngine(t, gen, nil, nil)
	res := e.Chat(context.Background(), ChatRequest{Message: "hello", Mode: domain.ModeQnA})
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}
	if res.Response != FallbackResponse {
		t.Errorf("Response = %q, want fallback", res.Response)
	}
}

func TestChatFallsBackOnEmbeddingFailure(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("embedder down")}
	gen := &stubGenerator{response: "should not be used"}
	e := newTestEngine(t, gen, emb, nil)
	res := e.Chat(context.Background(), ChatRequest{Message: "q", DocumentID: "doc-1", Mode: domain.ModeQnA})
	if !res.Degraded || res.Response != FallbackResponse {
		t.Fatalf("expected fallback, got %+v", res)
	}
	if len(gen.prompts) != 0 {
		t.Error("generator should not be called when retrieval fails")
	}
}

func TestChatInvalidModeDefaultsToQnA(t *testing.T) {
	gen := &stubGenerator{response: "answer"}
	e := newTestEngine(t, gen, nil, nil)
	res := e.Chat(context.Background(), ChatRequest{Message: "q", Mode: "nonsense"})
	if res.Mode != domain.ModeQnA {
		t.Errorf("Mode = %q, want qna", res.Mode)
	}
}

func TestChatIncludesHistory(t *testing.T) {
	gen := &stubGenerator{response: "answer"}
	e := newTestEngine(t, gen, nil, nil)
	e.Chat(context.Background(), ChatRequest{
		Message: "and the deposit?",
		Mode:    domain.ModeQnA,
		History: []domain.ChatMessage{
			{Message: "when is rent due?", Response: "monthly"},
		},
	})
	prompt := gen.prompts[len(gen.prompts)-1]
	if !strings.Contains(prompt, "when is rent due?") || !strings.Contains(prompt, "monthly") {
		t.Error("prompt missing prior turns")
	}
}

func TestChunkTextOverlap(t *testing.T) {
	text := strings.Repeat("a", 100)
	chunks := chunkText(text, 40, 10)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks[:len(chunks)-1] {
		if len([]rune(c)) != 40 {
			t.Errorf("chunk %d length %d", i, len([]rune(c)))
		}
	}
}
