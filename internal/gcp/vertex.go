package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/docinsight/internal/llm"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// VertexCompleter serves completion requests with Gemini models on Vertex AI.
// It satisfies llm.Backend.
type VertexCompleter struct {
	baseClient *genai.Client
}

// NewVertexCompleter creates a client for the given project and region.
func NewVertexCompleter(ctx context.Context, projectID, region string) (*VertexCompleter, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexCompleter: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexCompleter{baseClient: baseClient}, nil
}

func (c *VertexCompleter) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// Complete sends req to modelName as a chat turn.
func (c *VertexCompleter) Complete(ctx context.Context, modelName string, req llm.Request) (*llm.Response, error) {
	history, last, err := toContents(req.Messages)
	if err != nil {
		return nil, err
	}

	model := c.baseClient.GenerativeModel(modelName)
	configureModel(model, req)

	session := model.StartChat()
	session.History = history
	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w: %v", llm.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("vertex generate content with %s: %w", modelName, err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, fmt.Errorf("vertex response from %s: %w", modelName, err)
	}
	out := &llm.Response{Text: text, Model: modelName}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func configureModel(model *genai.GenerativeModel, req llm.Request) {
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	model.SetTemperature(req.Temperature)
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockOnlyHigh},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockOnlyHigh},
	}
}

// toContents converts messages into chat history plus the final user turn.
// Consecutive turns of the same role are merged; Gemini requires the
// roles to alternate.
func toContents(msgs []llm.Message) ([]*genai.Content, *genai.Content, error) {
	var merged []*genai.Content
	for _, m := range msgs {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		if n := len(merged); n > 0 && merged[n-1].Role == role {
			merged[n-1].Parts = append(merged[n-1].Parts, genai.Text(m.Content))
			continue
		}
		merged = append(merged, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	if len(merged) == 0 {
		return nil, nil, errors.New("completion request has no messages")
	}
	last := merged[len(merged)-1]
	if last.Role != "user" {
		return nil, nil, errors.New("completion request must end with a user message")
	}
	return merged[:len(merged)-1], last, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no candidates returned")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("candidate has no text (finish reason %s)", resp.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}

func isRateLimited(err error) bool {
	if status.Code(err) == codes.ResourceExhausted {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests
}
