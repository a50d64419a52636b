package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/llm"
	"github.com/Lllllllleong/docinsight/internal/models"
)

// Completer is the gateway as seen by its callers.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Summarizer generates, normalizes and stores structured summaries.
type Summarizer struct {
	access    *Access
	summaries SummaryStore
	gate      *UsageGate
	gateway   Completer
	now       func() time.Time
}

func NewSummarizer(access *Access, summaries SummaryStore, gate *UsageGate, gateway Completer) *Summarizer {
	return &Summarizer{access: access, summaries: summaries, gate: gate, gateway: gateway, now: time.Now}
}

// Summarize generates a new summary. Generation failures leave the document
// untouched so the caller can retry.
func (s *Summarizer) Summarize(ctx context.Context, subject, documentID string, format models.SummaryFormat, length models.SummaryLength) (*models.Summary, error) {
	if format == "" {
		format = models.FormatParagraph
	}
	if length == "" {
		length = models.LengthMedium
	}
	if !format.Valid() {
		return nil, apierr.BadRequest(fmt.Sprintf("unknown summary format %q", format))
	}
	if !length.Valid() {
		return nil, apierr.BadRequest(fmt.Sprintf("unknown summary length %q", length))
	}

	user, doc, err := s.access.OwnedDocument(ctx, subject, documentID)
	if err != nil {
		return nil, err
	}
	logCtx := slog.With("documentId", doc.ID, "userId", user.ID, "format", format, "length", length)

	if err := requireReady(doc); err != nil {
		return nil, err
	}
	// Summaries share the upload quota family.
	if err := s.gate.Check(ctx, user, ActionUploadDocument, ActionContext{
		PageCount: doc.PageCount,
		FileSize:  doc.FileSize,
		Stored:    doc,
	}); err != nil {
		logCtx.Info("Summary denied by usage gate.", "error", err)
		return nil, err
	}

	logCtx.Info("Generating summary.", "pageCount", doc.PageCount)
	resp, err := s.gateway.Complete(ctx, llm.Request{
		System:      SummarySystemPrompt,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildSummaryPrompt(doc, format, length)}},
		Temperature: 0.3,
		TopP:        0.9,
		MaxTokens:   summaryTokenBudget(length),
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}

	if _, ok := parseStructured(resp.Text); !ok {
		if isRefusal(resp.Text) {
			logCtx.Error("Model refused to summarize.", "model", resp.Model, "response", resp.Text)
			return nil, apierr.GenerationFailed(fmt.Errorf("model %s refused to summarize the document", resp.Model))
		}
		logCtx.Warn("Model output was not a JSON object; using raw text as summary.", "model", resp.Model)
	}
	normalized := Normalize(resp.Text)

	summary := &models.Summary{
		DocumentID:         doc.ID,
		UserID:             user.ID,
		Format:             format,
		Length:             length,
		Content:            Render(normalized, format),
		KeyInsights:        normalized.KeyInsights,
		Sections:           normalized.Sections,
		SuggestedQuestions: normalized.SuggestedQuestions,
		Model:              resp.Model,
		TokensUsed:         resp.TokensUsed(),
		CreatedAt:          s.now().UTC(),
	}
	id, err := s.summaries.CreateSummary(ctx, summary)
	if err != nil {
		return nil, fmt.Errorf("failed to save summary: %w", err)
	}
	summary.ID = id

	if err := s.gate.Increment(ctx, user.ID, models.UsageDelta{DocumentsProcessed: 1, PagesProcessed: doc.PageCount}); err != nil {
		logCtx.Error("Failed to record summary usage.", "summaryId", id, "error", err)
	}

	logCtx.Info("Summary saved.", "summaryId", id, "model", summary.Model, "tokensUsed", summary.TokensUsed,
		"sections", len(summary.Sections), "insights", len(summary.KeyInsights))
	return summary, nil
}

// List returns the document's summaries, most recent first.
func (s *Summarizer) List(ctx context.Context, subject, documentID string) ([]models.Summary, error) {
	_, doc, err := s.access.OwnedDocument(ctx, subject, documentID)
	if err != nil {
		return nil, err
	}
	summaries, err := s.summaries.ListSummaries(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	return summaries, nil
}

var refusalPhrases = []string{
	"i am unable to",
	"i'm unable to",
	"i cannot fulfill",
	"i cannot provide",
	"i can't help with",
	"as a large language model",
}

func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
