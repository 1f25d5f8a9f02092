package analysis

import (
	"context"
	"fmt"
	"strings"

	"lexdocs/pkg/domain"
)

// singlePassLimit is the text size (in runes) under which a document is
// summarized in one model call. Longer documents go through map-reduce.
const singlePassLimit = 24000

// mapSegmentSize is the segment size for the map phase of long-document
// summarization.
const mapSegmentSize = 8000

const summarizerSystemPrompt = "You are a senior legal analyst. Produce precise, well-structured Markdown summaries grounded only in the text you are given."

// summaryTemplates holds one prompt per classification. Each instructs the
// model to fill a fixed set of headings and to write "Not Found" for missing
// information, so summaries stay comparable across documents.
var summaryTemplates = map[string]string{
	domain.ClassTransactional: "You are a senior paralegal at a top-tier law firm, tasked with creating a preliminary summary for a senior partner. " +
		"Your summary must be precise and well-structured.\n\n" +
		"Carefully analyze the following text from a transactional document and extract the key information. " +
		"Format your summary in Markdown with the following headings:\n\n" +
		"- **Document Type:** (e.g., Master Service Agreement, NDA, Loan Agreement)\n" +
		"- **Parties:** List the names and roles of each party.\n" +
		"- **Effective Date & Term:** State the start date, end date, or duration of the agreement.\n" +
		"- **Key Obligations:** In bullet points, list the primary responsibilities and duties of each party.\n" +
		"- **Payment Terms:** Detail any financial considerations, such as amounts, payment schedules, or conditions.\n" +
		"- **Governing Law:** Identify the jurisdiction's law that governs the agreement.\n\n" +
		"**Constraint:** If any of the above information is not present, explicitly state 'Not Found' for that heading. " +
		"Base your summary *only* on the text provided below.\n\n" +
		"## Document Text:\n\n%s",
	domain.ClassDisputes: "You are a litigation analyst preparing a case brief for a legal team meeting. The summary must be clear, objective, and logically structured.\n\n" +
		"Review the following text from a dispute-related document and summarize its core components. " +
		"Format your summary in Markdown with the following headings:\n\n" +
		"- **Case Information:** Case name, number, and the court or tribunal.\n" +
		"- **Parties:** Identify the Plaintiff/Claimant and Defendant/Respondent.\n" +
		"- **Core Issue/Claim:** Briefly describe the central legal question or cause of action.\n" +
		"- **Key Arguments:** In bullet points, summarize the main arguments for each party mentioned in the text.\n" +
		"- **Requested Relief/Outcome:** State the specific remedy or decision being sought.\n\n" +
		"**Constraint:** If any information is not available in the text, write 'Not Found' for that section. " +
		"Derive your analysis *only* from the provided text.\n\n" +
		"## Document Text:\n\n%s",
	domain.ClassCorporate: "You are a corporate governance specialist summarizing a document for a company's board of directors. The summary must be concise and highlight key actions.\n\n" +
		"Analyze the following text from a corporate document. " +
		"Present your summary in Markdown under these headings:\n\n" +
		"- **Entity Name:** The name of the corporation or entity involved.\n" +
		"- **Document Type:** (e.g., Board Minutes, Articles of Incorporation, Shareholder Resolution).\n" +
		"- **Key Governance Actions:** In bullet points, list significant decisions, appointments, or structural changes mentioned.\n" +
		"- **Decisions/Resolutions Passed:** Detail any formal votes or resolutions and their outcomes.\n" +
		"- **Next Steps/Action Items:** List any tasks assigned or future actions required.\n\n" +
		"**Constraint:** If a specific piece of information is not in the text, use 'Not Found'. " +
		"Your summary must be based exclusively on the provided text.\n\n" +
		"## Document Text:\n\n%s",
	domain.ClassRegulatory: "You are a compliance officer briefing the management team on a regulatory matter. The summary needs to be clear, actionable, and focused on risk.\n\n" +
		"Examine the following text from a regulatory document. " +
		"Structure your summary in Markdown using these headings:\n\n" +
		"- **Governing Body/Agency:** The name of the regulatory authority.\n" +
		"- **Regulation/Statute:** The specific law, rule, or code being referenced.\n" +
		"- **Key Compliance Requirements:** In bullet points, list the primary obligations, prohibitions, or standards.\n" +
		"- **Affected Parties:** Identify who must comply with these regulations.\n" +
		"- **Deadlines & Penalties:** Note any critical dates for compliance and the consequences of non-compliance.\n\n" +
		"**Constraint:** For any missing information, state 'Not Found'. " +
		"Confine your analysis strictly to the text provided.\n\n" +
		"## Document Text:\n\n%s",
	domain.ClassIntellectualProperty: "You are an IP counsel providing an overview of an intellectual property document for an in-house legal team. The summary must be precise and technically accurate.\n\n" +
		"Review the following text from an IP-related document. " +
		"Format your findings in Markdown with these headings:\n\n" +
		"- **IP Type:** (e.g., Patent, Trademark, Copyright, Trade Secret).\n" +
		"- **Owner/Applicant:** The individual or entity holding or applying for the IP rights.\n" +
		"- **Identifier:** The patent number, trademark serial number, or other unique identifier.\n" +
		"- **Scope of Rights:** In bullet points, describe the key protections, claims, or rights granted or discussed.\n" +
		"- **Key Provisions:** Summarize any terms related to licensing, assignment, or infringement.\n\n" +
		"**Constraint:** If a heading's information is absent, write 'Not Found'. " +
		"Base the summary *only* on the provided text.\n\n" +
		"## Document Text:\n\n%s",
	domain.ClassOthers: "You are an expert legal summarizer tasked with making sense of a miscellaneous legal document for a junior associate.\n\n" +
		"First, analyze the provided text to infer its likely purpose. " +
		"Then, create a concise, well-structured summary in Markdown under the following headings:\n\n" +
		"- **Probable Document Type:** Your best guess of the document's classification (e.g., Will, Internal Memo, Demand Letter).\n" +
		"- **Key Points:** In bullet points, list the most critical pieces of information or main ideas.\n" +
		"- **Identified Entities:** List any people, companies, or organizations central to the document.\n" +
		"- **Apparent Purpose:** Briefly state the document's main goal or objective.\n\n" +
		"**Constraint:** Ensure the summary is clear and derived exclusively from the text below.\n\n" +
		"## Document Text:\n\n%s",
}

const masterSummaryTemplate = "You are a senior legal analyst responsible for synthesizing information from multiple sources. " +
	"The following text consists of individual summaries from sections of a large legal document. " +
	"Your task is to create a single, cohesive, and comprehensive master summary from these section summaries.\n\n" +
	"Ensure the final summary is well-structured, easy to read, and accurately reflects the key information from across the entire document. " +
	"Organize the summary logically, using the same headings as the section summaries if possible. " +
	"Eliminate redundancy and connect related points from different sections.\n\n" +
	"## Combined Section Summaries:\n\n%s\n\n" +
	"## Final Master Summary:\n"

// Summarize produces a Markdown summary of the document using the prompt for
// its classification. Short documents are summarized in a single pass; long
// ones are summarized section by section and then synthesized into a master
// summary.
func (e *Engine) Summarize(ctx context.Context, f File, classification string) (string, error) {
	text, err := extractText(f)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text extracted from document")
	}
	template, ok := summaryTemplates[classification]
	if !ok {
		template = summaryTemplates[domain.ClassOthers]
	}
	if len([]rune(text)) <= singlePassLimit {
		summary, err := e.generator.GenerateText(ctx, e.model, summarizerSystemPrompt, fmt.Sprintf(template, text))
		if err != nil {
			return "", fmt.Errorf("summarize document: %w", err)
		}
		return strings.TrimSpace(summary), nil
	}
	return e.summarizeLong(ctx, template, text)
}

// summarizeLong runs the map-reduce path: summarize fixed-size sections, then
// combine those partial summaries into one.
func (e *Engine) summarizeLong(ctx context.Context, template, text string) (string, error) {
	segments := chunkText(text, mapSegmentSize, 0)
	partials := make([]string, 0, len(segments))
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		partial, err := e.generator.GenerateText(ctx, e.model, summarizerSystemPrompt, fmt.Sprintf(template, segment))
		if err != nil {
			return "", fmt.Errorf("summarize section: %w", err)
		}
		partials = append(partials, strings.TrimSpace(partial))
	}
	if len(partials) == 0 {
		return "", fmt.Errorf("no sections to summarize")
	}
	combined := strings.Join(partials, "\n\n---\n\n")
	summary, err := e.generator.GenerateText(ctx, e.model, summarizerSystemPrompt, fmt.Sprintf(masterSummaryTemplate, combined))
	if err != nil {
		return "", fmt.Errorf("combine summaries: %w", err)
	}
	return strings.TrimSpace(summary), nil
}
