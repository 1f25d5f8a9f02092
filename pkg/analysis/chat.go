package analysis

import (
	"context"
	"fmt"
	"strings"

	"lexdocs/pkg/domain"
)

const chatSystemPrompt = "You are a legal document assistant. Provide clear, accurate, and helpful information grounded in the document content you are given."

const qnaTemplate = "Answer the following question based on the provided legal document content. " +
	"Provide clear, accurate, and helpful information.\n\n" +
	"Document Content:\n%s\n\n%s" +
	"Question: %s\n\nAnswer:"

const summarizeChatTemplate = "Based on the following legal document content, provide a clear, concise summary " +
	"that explains the key points in simple language.\n\n" +
	"Document Content:\n%s\n\n%s" +
	"Please provide a summary that includes:\n" +
	"1. Document type and purpose\n" +
	"2. Key terms and conditions\n" +
	"3. Important dates and amounts\n" +
	"4. Rights and responsibilities of parties involved\n" +
	"5. Any important clauses or conditions\n\n" +
	"User request: %s\n\nSummary:"

const explainTemplate = "Explain the following legal clause or section in simple, easy-to-understand language. " +
	"Break down complex legal terms and explain what they mean for the average person.\n\n" +
	"Document Content:\n%s\n\n%s" +
	"Clause/Section to Explain: %s\n\nExplanation:"

// Chat runs one retrieval-augmented chat turn. It never returns an error: any
// retrieval or model failure yields the fallback response with Degraded set,
// so the conversation endpoint can always answer.
func (e *Engine) Chat(ctx context.Context, req ChatRequest) ChatResult {
	mode := req.Mode
	if !domain.ValidMode(mode) {
		mode = domain.ModeQnA
	}
	result := ChatResult{Mode: mode}

	contextText, sources, err := e.retrieve(ctx, req)
	if err != nil {
		result.Response = FallbackResponse
		result.Degraded = true
		return result
	}
	result.Sources = sources

	prompt := buildChatPrompt(mode, contextText, formatHistory(req.History, e.historyLimit), req.Message)
	response, err := e.generator.GenerateText(ctx, e.model, chatSystemPrompt, prompt)
	if err != nil || strings.TrimSpace(response) == "" {
		result.Response = FallbackResponse
		result.Degraded = true
		return result
	}
	result.Response = strings.TrimSpace(response)
	return result
}

// retrieve embeds the message and pulls the most similar chunks for the
// document. Without a document the chat runs on the message alone.
func (e *Engine) retrieve(ctx context.Context, req ChatRequest) (string, []string, error) {
	if req.DocumentID == "" {
		return "", nil, nil
	}
	embedding, err := e.embedder.EmbedText(ctx, req.Message, "RETRIEVAL_QUERY")
	if err != nil {
		return "", nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := e.store.SearchChunks(req.DocumentID, embedding, e.topK)
	if err != nil {
		return "", nil, fmt.Errorf("search chunks: %w", err)
	}
	parts := make([]string, 0, len(chunks))
	sources := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, chunk.Content)
		sources = append(sources, describeChunk(chunk))
	}
	return strings.Join(parts, "\n\n"), sources, nil
}

// describeChunk turns chunk metadata into a human-readable citation.
func describeChunk(chunk domain.Chunk) string {
	if page, ok := chunk.Metadata["page"]; ok {
		return fmt.Sprintf("page %s", page)
	}
	if n, ok := chunk.Metadata["chunk"]; ok {
		return fmt.Sprintf("section %s", n)
	}
	return chunk.ID
}

func buildChatPrompt(mode domain.ChatMode, contextText, history, message string) string {
	if contextText == "" {
		contextText = "(no document content available)"
	}
	switch mode {
	case domain.ModeSummarize:
		return fmt.Sprintf(summarizeChatTemplate, contextText, history, message)
	case domain.ModeExplain:
		return fmt.Sprintf(explainTemplate, contextText, history, message)
	default:
		return fmt.Sprintf(qnaTemplate, contextText, history, message)
	}
}

// formatHistory renders the most recent prior turns as a conversation block.
// Returns "" when there is no history so templates stay clean.
func formatHistory(history []domain.ChatMessage, limit int) string {
	if len(history) == 0 || limit == 0 {
		return ""
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	var sb strings.Builder
	sb.WriteString("Conversation so far:\n")
	for _, turn := range history {
		sb.WriteString("User: ")
		sb.WriteString(turn.Message)
		sb.WriteString("\nAssistant: ")
		sb.WriteString(turn.Response)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}
