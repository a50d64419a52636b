// Package httpapi exposes the pipeline over HTTP. Callers are authenticated
// upstream; the verified subject arrives in a request header.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/models"
)

// Subject returns the authenticated subject carried in header.
func Subject(r *http.Request, header string) string {
	return strings.TrimSpace(r.Header.Get(header))
}

// DecodeJSON reads a JSON body into v. An empty body leaves v untouched.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apierr.BadRequest("could not parse JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

// WriteError renders err as an ErrorResponse. Errors outside the apierr
// taxonomy are logged and reported as a generic internal error.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := apierr.As(err)
	if !ok {
		slog.Error("Request failed.", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteJSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal",
			Message: "internal server error",
		})
		return
	}
	if ae.Status >= http.StatusInternalServerError {
		slog.Error("Request failed.", "method", r.Method, "path", r.URL.Path, "code", ae.Code, "error", err)
	}
	WriteJSON(w, apierr.StatusOf(err), models.ErrorResponse{
		Error:   string(ae.Code),
		Message: ae.Message,
		Reason:  string(ae.Reason),
		Limit:   ae.Limit,
	})
}

// ToSummarizeResponse is the wire form of a stored summary.
func ToSummarizeResponse(s *models.Summary) models.SummarizeResponse {
	return models.SummarizeResponse{
		SummaryID:          s.ID,
		Content:            s.Content,
		KeyInsights:        s.KeyInsights,
		Sections:           s.Sections,
		SuggestedQuestions: s.SuggestedQuestions,
		Model:              s.Model,
		TokensUsed:         s.TokensUsed,
	}
}

// ToAskResponse is the wire form of an assistant reply.
func ToAskResponse(m *models.ChatMessage) models.AskResponse {
	refs := m.PageReferences
	if refs == nil {
		refs = []int{}
	}
	return models.AskResponse{
		MessageID:      m.ID,
		Answer:         m.Content,
		PageReferences: refs,
		Model:          m.Model,
		TokensUsed:     m.TokensUsed,
	}
}
