package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/llm"
	"github.com/Lllllllleong/docinsight/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *serviceFixture) chat(c Completer) *ChatEngine {
	e := NewChatEngine(f.access, f.store, f.store, f.gate, c)
	e.now = fixedClock(testNow)
	return e
}

func TestExtractPageReferences(t *testing.T) {
	tests := []struct {
		text string
		want []int
	}{
		{"As noted on page 5 and Page 10, see also [page 7]; page 5 repeats.", []int{5, 7, 10}},
		{"Pages 3 and pages 12 discuss costs.", []int{3, 12}},
		{"No citations here.", nil},
		{"page 0 is not a page", nil},
		{"homepage 4 is not a citation", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPageReferences(tt.text))
		})
	}
}

func TestAskStoresBothTurns(t *testing.T) {
	f := newServiceFixture(models.TierStarter)
	f.addReadyDoc("doc-1")
	c := &stubCompleter{text: "  Revenue grew, as stated on page 1 and Page 2.  "}

	res, err := f.chat(c).Ask(context.Background(), "sub-1", "doc-1", "  How did revenue change?  ")
	require.NoError(t, err)

	assert.Equal(t, models.RoleUser, res.UserMessage.Role)
	assert.Equal(t, "How did revenue change?", res.UserMessage.Content)
	assert.Equal(t, models.RoleAssistant, res.AssistantMessage.Role)
	assert.Equal(t, "Revenue grew, as stated on page 1 and Page 2.", res.AssistantMessage.Content)
	assert.Equal(t, []int{1, 2}, res.AssistantMessage.PageReferences)
	assert.Equal(t, "test-model", res.AssistantMessage.Model)
	assert.Equal(t, 280, res.AssistantMessage.TokensUsed)
	assert.True(t, res.AssistantMessage.CreatedAt.After(res.UserMessage.CreatedAt))

	req := c.lastRequest()
	assert.Equal(t, ChatSystemPrompt, req.System)
	assert.False(t, req.JSON)
	assert.Equal(t, 1500, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[0].Content, "[Page 1]\nRevenue grew.\n\n[Page 2]\nCosts fell.")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "How did revenue change?"}, req.Messages[1])

	history, err := f.chat(c).History(context.Background(), "sub-1", "doc-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, res.UserMessage.ID, history[0].ID)
	assert.Equal(t, res.AssistantMessage.ID, history[1].ID)

	assert.Equal(t, 1, f.store.period(f.user.ID, testNow).QuestionsAsked)
}

func TestAskReplaysBoundedHistory(t *testing.T) {
	f := newServiceFixture(models.TierPro)
	f.addReadyDoc("doc-1")
	for i := 0; i < 14; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		_, err := f.store.AppendMessage(context.Background(), &models.ChatMessage{
			DocumentID: "doc-1",
			UserID:     f.user.ID,
			Role:       role,
			Content:    fmt.Sprintf("turn %d", i),
			CreatedAt:  testNow.Add(time.Duration(i-20) * time.Minute),
		})
		require.NoError(t, err)
	}
	c := &stubCompleter{text: "Answer."}

	_, err := f.chat(c).Ask(context.Background(), "sub-1", "doc-1", "latest question")
	require.NoError(t, err)

	msgs := c.lastRequest().Messages
	require.Len(t, msgs, 12)
	assert.Contains(t, msgs[0].Content, "Quarterly Report")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "turn 4"}, msgs[1])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "turn 13"}, msgs[10])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "latest question"}, msgs[11])
}

func TestAskOnFreeTierIsUnavailable(t *testing.T) {
	f := newServiceFixture(models.TierFree)
	f.addReadyDoc("doc-1")
	c := &stubCompleter{text: "Answer."}

	_, err := f.chat(c).Ask(context.Background(), "sub-1", "doc-1", "Anything?")
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeUsageLimitExceeded, ae.Code)
	assert.Equal(t, apierr.ReasonFeatureUnavailable, ae.Reason)
	assert.Empty(t, f.store.messages)
	assert.Empty(t, c.reqs)
}

func TestAskQuotaReached(t *testing.T) {
	f := newServiceFixture(models.TierStarter)
	f.addReadyDoc("doc-1")
	require.NoError(t, f.gate.Increment(context.Background(), f.user.ID, models.UsageDelta{QuestionsAsked: 100}))

	_, err := f.chat(&stubCompleter{text: "Answer."}).Ask(context.Background(), "sub-1", "doc-1", "One more?")
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.ReasonQuotaReached, ae.Reason)
	assert.Empty(t, f.store.messages)
}

func TestAskValidation(t *testing.T) {
	f := newServiceFixture(models.TierStarter)
	f.addReadyDoc("doc-1")
	f.store.putDocument(models.Document{ID: "doc-up", UserID: f.user.ID, Status: models.StatusUploading})
	e := f.chat(&stubCompleter{text: "Answer."})
	ctx := context.Background()

	_, err := e.Ask(ctx, "sub-1", "doc-1", "   ")
	assert.True(t, apierr.Is(err, apierr.CodeBadRequest))

	_, err = e.Ask(ctx, "sub-1", "doc-1", string(make([]byte, maxQuestionLength+1)))
	assert.True(t, apierr.Is(err, apierr.CodeBadRequest))

	_, err = e.Ask(ctx, "sub-1", "doc-up", "Ready yet?")
	assert.True(t, apierr.Is(err, apierr.CodeInvalidState))

	_, err = e.Ask(ctx, "", "doc-1", "Who am I?")
	assert.True(t, apierr.Is(err, apierr.CodeNotAuthenticated))
}

func TestAskGenerationFailureKeepsUserMessage(t *testing.T) {
	f := newServiceFixture(models.TierStarter)
	f.addReadyDoc("doc-1")

	_, err := f.chat(&stubCompleter{err: apierr.GenerationTimeout(context.DeadlineExceeded)}).
		Ask(context.Background(), "sub-1", "doc-1", "Slow question?")
	assert.True(t, apierr.Is(err, apierr.CodeGenerationTimeout))
	require.Len(t, f.store.messages, 1)
	for _, m := range f.store.messages {
		assert.Equal(t, models.RoleUser, m.Role)
	}
	assert.Equal(t, 0, f.store.period(f.user.ID, testNow).QuestionsAsked)
}

func TestClearAndSuggestions(t *testing.T) {
	f := newServiceFixture(models.TierStarter)
	f.addReadyDoc("doc-1")
	e := f.chat(&stubCompleter{text: "Answer."})
	ctx := context.Background()

	qs, err := e.Suggestions(ctx, "sub-1", "doc-1")
	require.NoError(t, err)
	assert.Empty(t, qs)

	_, err = f.store.CreateSummary(ctx, &models.Summary{DocumentID: "doc-1", SuggestedQuestions: []string{"old?"}, CreatedAt: testNow.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = f.store.CreateSummary(ctx, &models.Summary{DocumentID: "doc-1", SuggestedQuestions: []string{"new?"}, CreatedAt: testNow})
	require.NoError(t, err)
	qs, err = e.Suggestions(ctx, "sub-1", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"new?"}, qs)

	_, err = e.Ask(ctx, "sub-1", "doc-1", "Question?")
	require.NoError(t, err)
	require.NoError(t, e.Clear(ctx, "sub-1", "doc-1"))
	history, err := e.History(ctx, "sub-1", "doc-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}
