package analysis

import (
	"context"
	"fmt"
	"strings"

	"lexdocs/pkg/domain"
)

// classifyExcerptLimit bounds how much document text is sent to the model.
const classifyExcerptLimit = 4000

const classificationGuidelines = `- TRANSACTIONAL: Contracts, leases, employment offers, agreements between private parties.
- DISPUTES: Litigation, arbitration, lawsuits, court orders, complaints, judgments.
- CORPORATE: ONLY internal governance docs like incorporation papers, bylaws, board resolutions, shareholder agreements. NEVER compliance filings, never contracts.
- REGULATORY: Statutory filings, permits, licenses, compliance documents submitted to regulators or government. NOT corporate governance.
- INTELLECTUAL_PROPERTY: Patents, trademarks, copyrights, IP-related agreements.
- OTHERS: Anything else (newsletters, opinions, academic or training docs).`

// Classify assigns one of the six legal document labels. Model output that is
// not a known label is downgraded to OTHERS rather than treated as an error;
// only transport/model failures are returned to the caller.
func (e *Engine) Classify(ctx context.Context, f File) (string, error) {
	text, err := extractExcerpt(f, classifyExcerptLimit)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	systemPrompt := "You are a legal expert. Classify the document strictly into ONE category and answer with exactly one word."
	userPrompt := fmt.Sprintf(
		"Categories and guidelines:\n%s\n\nDocument:\n%s\n\nOutput exactly ONE WORD from this list: %s",
		classificationGuidelines,
		text,
		strings.Join(domain.ClassificationLabels, ", "),
	)
	response, err := e.generator.GenerateText(ctx, e.model, systemPrompt, userPrompt)
	if err != nil {
		return "", fmt.Errorf("classify document: %w", err)
	}
	return normalizeLabel(response), nil
}

// normalizeLabel maps model output onto a known label, defaulting to OTHERS.
func normalizeLabel(raw string) string {
	label := strings.ToUpper(strings.TrimSpace(raw))
	label = strings.Trim(label, ".\"'` ")
	for _, known := range domain.ClassificationLabels {
		if label == known {
			return known
		}
	}
	// Models occasionally wrap the label in a sentence; take the first match.
	for _, known := range domain.ClassificationLabels {
		if strings.Contains(label, known) {
			return known
		}
	}
	return domain.ClassOthers
}

// extractExcerpt pulls the leading text of a document for prompting.
func extractExcerpt(f File, limit int) (string, error) {
	text, err := extractText(f)
	if err != nil {
		return "", err
	}
	runes := []rune(text)
	if limit > 0 && len(runes) > limit {
		text = string(runes[:limit])
	}
	return text, nil
}
