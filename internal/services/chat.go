package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/llm"
	"github.com/Lllllllleong/docinsight/internal/models"
)

// chatHistoryLimit is the number of prior messages replayed to the model.
const chatHistoryLimit = 10

const maxQuestionLength = 4000

// Matches "page 5", "Pages 12" and "[page 7]".
var pageReference = regexp.MustCompile(`(?i)\bpages?\s+(\d+)`)

type AskResult struct {
	UserMessage      *models.ChatMessage
	AssistantMessage *models.ChatMessage
}

// ChatEngine answers questions about a document with bounded history.
type ChatEngine struct {
	access    *Access
	chats     ChatStore
	summaries SummaryStore
	gate      *UsageGate
	gateway   Completer
	now       func() time.Time
}

func NewChatEngine(access *Access, chats ChatStore, summaries SummaryStore, gate *UsageGate, gateway Completer) *ChatEngine {
	return &ChatEngine{access: access, chats: chats, summaries: summaries, gate: gate, gateway: gateway, now: time.Now}
}

// Ask stores the question, asks the model and stores the cited answer.
// Usage is checked before anything is written.
func (c *ChatEngine) Ask(ctx context.Context, subject, documentID, message string) (*AskResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apierr.BadRequest("message is required")
	}
	if len(message) > maxQuestionLength {
		return nil, apierr.BadRequest(fmt.Sprintf("message exceeds %d characters", maxQuestionLength))
	}

	user, doc, err := c.access.OwnedDocument(ctx, subject, documentID)
	if err != nil {
		return nil, err
	}
	if err := requireReady(doc); err != nil {
		return nil, err
	}

	userMsg, err := c.PostUserMessage(ctx, user, doc, message)
	if err != nil {
		return nil, err
	}
	assistantMsg, err := c.Respond(ctx, user, doc, userMsg)
	if err != nil {
		return nil, err
	}
	return &AskResult{UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

// PostUserMessage gates and stores the user's turn.
func (c *ChatEngine) PostUserMessage(ctx context.Context, user *models.User, doc *models.Document, message string) (*models.ChatMessage, error) {
	if err := c.gate.Check(ctx, user, ActionAskQuestion, ActionContext{}); err != nil {
		slog.Info("Question denied by usage gate.", "documentId", doc.ID, "userId", user.ID, "error", err)
		return nil, err
	}
	msg := &models.ChatMessage{
		DocumentID: doc.ID,
		UserID:     user.ID,
		Role:       models.RoleUser,
		Content:    message,
		CreatedAt:  c.now().UTC(),
	}
	id, err := c.chats.AppendMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	msg.ID = id
	return msg, nil
}

// Respond answers userMsg. It re-checks the question quota but only the
// answer is counted.
func (c *ChatEngine) Respond(ctx context.Context, user *models.User, doc *models.Document, userMsg *models.ChatMessage) (*models.ChatMessage, error) {
	logCtx := slog.With("documentId", doc.ID, "userId", user.ID, "messageId", userMsg.ID)

	if err := c.gate.Check(ctx, user, ActionAskQuestion, ActionContext{}); err != nil {
		return nil, err
	}

	history, err := c.chats.ListMessages(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	resp, err := c.gateway.Complete(ctx, llm.Request{
		System:      ChatSystemPrompt,
		Messages:    buildChatMessages(doc, history, userMsg),
		Temperature: 0.3,
		TopP:        1,
		MaxTokens:   1500,
	})
	if err != nil {
		return nil, err
	}

	answer := strings.TrimSpace(resp.Text)
	msg := &models.ChatMessage{
		DocumentID:     doc.ID,
		UserID:         user.ID,
		Role:           models.RoleAssistant,
		Content:        answer,
		PageReferences: ExtractPageReferences(answer),
		Model:          resp.Model,
		TokensUsed:     resp.TokensUsed(),
		CreatedAt:      c.now().UTC(),
	}
	if !msg.CreatedAt.After(userMsg.CreatedAt) {
		msg.CreatedAt = userMsg.CreatedAt.Add(time.Millisecond)
	}
	id, err := c.chats.AppendMessage(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("failed to save assistant message: %w", err)
	}
	msg.ID = id

	if err := c.gate.Increment(ctx, user.ID, models.UsageDelta{QuestionsAsked: 1}); err != nil {
		logCtx.Error("Failed to record question usage.", "error", err)
	}
	logCtx.Info("Answered question.", "model", msg.Model, "tokensUsed", msg.TokensUsed, "pageReferences", msg.PageReferences)
	return msg, nil
}

// buildChatMessages replays the document, the last chatHistoryLimit messages
// before userMsg, then userMsg itself.
func buildChatMessages(doc *models.Document, history []models.ChatMessage, userMsg *models.ChatMessage) []llm.Message {
	prior := make([]models.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.ID == userMsg.ID {
			continue
		}
		prior = append(prior, m)
	}
	if len(prior) > chatHistoryLimit {
		prior = prior[len(prior)-chatHistoryLimit:]
	}

	msgs := make([]llm.Message, 0, len(prior)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: buildDocumentContext(doc)})
	for _, m := range prior {
		role := llm.RoleUser
		if m.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: userMsg.Content})
}

// ExtractPageReferences returns the distinct page numbers cited in text, ascending.
func ExtractPageReferences(text string) []int {
	seen := make(map[int]bool)
	var pages []int
	for _, m := range pageReference.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		pages = append(pages, n)
	}
	sort.Ints(pages)
	return pages
}

// History returns the document's conversation in chronological order.
func (c *ChatEngine) History(ctx context.Context, subject, documentID string) ([]models.ChatMessage, error) {
	_, doc, err := c.access.OwnedDocument(ctx, subject, documentID)
	if err != nil {
		return nil, err
	}
	msgs, err := c.chats.ListMessages(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return msgs, nil
}

// Clear deletes the whole conversation for a document.
func (c *ChatEngine) Clear(ctx context.Context, subject, documentID string) error {
	user, doc, err := c.access.OwnedDocument(ctx, subject, documentID)
	if err != nil {
		return err
	}
	if err := c.chats.DeleteMessages(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to clear chat history: %w", err)
	}
	slog.Info("Cleared chat history.", "documentId", doc.ID, "userId", user.ID)
	return nil
}

// Suggestions returns the follow-up questions of the latest summary, if any.
func (c *ChatEngine) Suggestions(ctx context.Context, subject, documentID string) ([]string, error) {
	_, doc, err := c.access.OwnedDocument(ctx, subject, documentID)
	if err != nil {
		return nil, err
	}
	summaries, err := c.summaries.ListSummaries(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	if len(summaries) == 0 {
		return []string{}, nil
	}
	return summaries[0].SuggestedQuestions, nil
}
