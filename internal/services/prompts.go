package services

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/docinsight/internal/models"
)

// --- Summarizer Model Prompts ---
const SummarySystemPrompt = `You are an expert document analyst. You read a document and produce a structured summary of it. You must output your response as a single valid JSON object.

The JSON object must have exactly four top-level keys:
- "summary": a string containing the executive summary of the document.
- "keyInsights": an array of objects, each with "text" (a string) and "type" (one of the allowed insight types below).
- "sections": an array of objects, each with "title" (a string) and "content" (a plain-text string, never a nested object or array).
- "suggestedQuestions": an array of 3 to 5 strings, follow-up questions a reader could ask about the document.

Allowed insight types:
- "finding": a fact or result the document establishes.
- "recommendation": an action the document proposes or implies.
- "warning": a risk, limitation or caveat the reader should be aware of.
- "statistic": a notable number, measurement or quantitative result.
- "conclusion": a final judgement or takeaway the document reaches.

Only use information contained in the document. Do not include any text before or after the JSON object.`

// --- Chat Model Prompts ---
const ChatSystemPrompt = `You are a helpful assistant answering questions about a single document. The full text of the document is provided at the start of the conversation, divided into pages marked "[Page N]".

Follow these rules:
1.  Answer only from the supplied document text. Do not use outside knowledge.
2.  If the document does not contain the information needed to answer, say so explicitly.
3.  Cite page numbers inline whenever possible, for example "On page 5, the report states...".
4.  Keep answers concise and well organized.`

type lengthSpec struct {
	words     string
	maxTokens int
}

var summaryLengths = map[models.SummaryLength]lengthSpec{
	models.LengthShort:    {words: "200-300", maxTokens: 600},
	models.LengthMedium:   {words: "500-700", maxTokens: 1400},
	models.LengthDetailed: {words: "1000-1500", maxTokens: 3000},
}

// jsonOverheadTokens covers keys, insights and questions around the summary text.
const jsonOverheadTokens = 1000

var summaryFormats = map[models.SummaryFormat]string{
	models.FormatBullet:    `Write the "summary" field as concise bullet points, one key point per line, each line starting with "- ".`,
	models.FormatParagraph: `Write the "summary" field as flowing prose in well-structured paragraphs.`,
	models.FormatDetailed:  `Write the "summary" field as a section-by-section walkthrough that follows the structure of the document.`,
}

func summaryTokenBudget(length models.SummaryLength) int {
	return summaryLengths[length].maxTokens + jsonOverheadTokens
}

// pageTaggedText renders pages as "[Page N]" blocks in ascending page order.
func pageTaggedText(pages []models.Page) string {
	blocks := make([]string, 0, len(pages))
	for _, p := range pages {
		blocks = append(blocks, fmt.Sprintf("[Page %d]\n%s", p.PageNumber, p.Content))
	}
	return strings.Join(blocks, "\n\n")
}

func buildSummaryPrompt(doc *models.Document, format models.SummaryFormat, length models.SummaryLength) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize the following document titled %q.\n\n", doc.Title)
	fmt.Fprintf(&sb, "Length: the summary should be approximately %s words.\n", summaryLengths[length].words)
	fmt.Fprintf(&sb, "Format: %s\n\n", summaryFormats[format])
	sb.WriteString("Document:\n\n")
	sb.WriteString(pageTaggedText(doc.ExtractedText))
	return sb.String()
}

func buildDocumentContext(doc *models.Document) string {
	return fmt.Sprintf("Here is the document %q that the following questions are about.\n\n%s", doc.Title, pageTaggedText(doc.ExtractedText))
}
