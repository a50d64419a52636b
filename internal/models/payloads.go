package models

// These structs define the JSON payloads exchanged with the HTTP functions.

// UploadResponse is returned after a PDF has been stored and registered.
type UploadResponse struct {
	DocumentID string `json:"documentId"`
	Status     Status `json:"status"`
	PageCount  int    `json:"pageCount"`
}

// ExtractRequest asks for (re-)extraction of an uploaded document.
type ExtractRequest struct {
	DocumentID string `json:"documentId"`
	Reextract  bool   `json:"reextract,omitempty"`
}

type ExtractResponse struct {
	DocumentID      string `json:"documentId"`
	PageCount       int    `json:"pageCount"`
	TotalCharacters int    `json:"totalCharacters"`
}

// SummarizeRequest is the input for the document-summarizer function.
type SummarizeRequest struct {
	DocumentID string        `json:"documentId"`
	Format     SummaryFormat `json:"format"`
	Length     SummaryLength `json:"length"`
}

type SummarizeResponse struct {
	SummaryID          string       `json:"summaryId"`
	Content            string       `json:"content"`
	KeyInsights        []KeyInsight `json:"keyInsights"`
	Sections           []Section    `json:"sections"`
	SuggestedQuestions []string     `json:"suggestedQuestions"`
	Model              string       `json:"model"`
	TokensUsed         int          `json:"tokensUsed"`
}

// AskRequest is the input for the document-chat function.
type AskRequest struct {
	DocumentID string `json:"documentId"`
	Message    string `json:"message"`
}

type AskResponse struct {
	MessageID      string `json:"messageId"`
	Answer         string `json:"answer"`
	PageReferences []int  `json:"pageReferences"`
	Model          string `json:"model"`
	TokensUsed     int    `json:"tokensUsed"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Limit   *int64 `json:"limit,omitempty"`
}

// GCSEvent is the payload of a Cloud Storage object event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}
