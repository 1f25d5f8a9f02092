package analysis

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ledongthuc/pdf"

	"lexdocs/internal/util"
	"lexdocs/pkg/domain"
)

// parseAndChunk extracts text from the file and splits it into overlapping
// retrieval chunks. The chunk metadata records where each chunk came from so
// chat answers can cite locations.
func (e *Engine) parseAndChunk(f File) ([]domain.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(f.Name))
	switch ext {
	case ".pdf":
		return e.parsePDF(f)
	case ".docx":
		return e.parseDOCX(f)
	default:
		// .txt and legacy .doc files are treated as plain text.
		return e.parsePlainText(f)
	}
}

func (e *Engine) parsePDF(f File) ([]domain.Chunk, error) {
	reader, err := pdf.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	totalPages := reader.NumPage()
	var chunks []domain.Chunk
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip problematic pages instead of failing the whole document.
			continue
		}
		text = normalizeText(text)
		for idx, part := range chunkText(text, e.chunkSize, e.chunkOverlap) {
			chunks = append(chunks, e.newChunk(f.ID, part, map[string]string{
				"page":  strconv.Itoa(i),
				"chunk": strconv.Itoa(idx),
			}))
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no text extracted from PDF")
	}
	return chunks, nil
}

func (e *Engine) parseDOCX(f File) ([]domain.Chunk, error) {
	reader, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	var doc *zip.File
	for _, file := range reader.File {
		if file.Name == "word/document.xml" {
			doc = file
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("docx missing word/document.xml")
	}
	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("open docx body: %w", err)
	}
	defer rc.Close()
	text, err := extractDOCXText(rc)
	if err != nil {
		return nil, fmt.Errorf("extract docx text: %w", err)
	}
	return e.chunkPlain(f.ID, text)
}

func (e *Engine) parsePlainText(f File) ([]domain.Chunk, error) {
	return e.chunkPlain(f.ID, string(f.Data))
}

func (e *Engine) chunkPlain(documentID, text string) ([]domain.Chunk, error) {
	text = normalizeText(text)
	if text == "" {
		return nil, fmt.Errorf("document contains no text")
	}
	var chunks []domain.Chunk
	for idx, part := range chunkText(text, e.chunkSize, e.chunkOverlap) {
		chunks = append(chunks, e.newChunk(documentID, part, map[string]string{
			"chunk": strconv.Itoa(idx),
		}))
	}
	return chunks, nil
}

func (e *Engine) newChunk(documentID, content string, metadata map[string]string) domain.Chunk {
	return domain.Chunk{
		ID:         util.NewID(),
		DocumentID: documentID,
		Content:    content,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
}

// extractText returns the full normalized text of a document without
// chunking, used for prompt excerpts.
func extractText(f File) (string, error) {
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".pdf":
		reader, err := pdf.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
		if err != nil {
			return "", fmt.Errorf("open pdf: %w", err)
		}
		var sb strings.Builder
		for i := 1; i <= reader.NumPage(); i++ {
			page := reader.Page(i)
			if page.V.IsNull() {
				continue
			}
			text, err := page.GetPlainText(nil)
			if err != nil {
				continue
			}
			sb.WriteString(text)
			sb.WriteString("\n")
		}
		text := normalizeText(sb.String())
		if text == "" {
			return "", fmt.Errorf("no text extracted from PDF")
		}
		return text, nil
	case ".docx":
		reader, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
		if err != nil {
			return "", fmt.Errorf("open docx: %w", err)
		}
		for _, file := range reader.File {
			if file.Name != "word/document.xml" {
				continue
			}
			rc, err := file.Open()
			if err != nil {
				return "", fmt.Errorf("open docx body: %w", err)
			}
			defer rc.Close()
			text, err := extractDOCXText(rc)
			if err != nil {
				return "", fmt.Errorf("extract docx text: %w", err)
			}
			return normalizeText(text), nil
		}
		return "", fmt.Errorf("docx missing word/document.xml")
	default:
		return normalizeText(string(f.Data)), nil
	}
}

// extractDOCXText walks the WordprocessingML token stream collecting text
// runs (<w:t>) and paragraph breaks (<w:p>).
func extractDOCXText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

// normalizeText collapses runs of whitespace to single spaces while keeping
// paragraph breaks.
func normalizeText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.FieldsFunc(line, unicode.IsSpace)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// chunkText splits text into rune windows of size with the given overlap.
func chunkText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var parts []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if part != "" {
			parts = append(parts, part)
		}
		if end == len(runes) {
			break
		}
	}
	return parts
}
