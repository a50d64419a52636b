package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/models"
	"github.com/Lllllllleong/docinsight/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// maxUploadBytes caps request bodies on the upload route. Tier limits are
// enforced later by the usage gate.
const maxUploadBytes = 256 << 20

type Access interface {
	User(ctx context.Context, subject string) (*models.User, error)
	OwnedDocument(ctx context.Context, subject, documentID string) (*models.User, *models.Document, error)
}

type Uploader interface {
	Upload(ctx context.Context, subject, filename string, data []byte) (*models.Document, error)
}

type Extractor interface {
	Extract(ctx context.Context, documentID string, opts services.ExtractOptions) (*services.ExtractResult, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, subject, documentID string, format models.SummaryFormat, length models.SummaryLength) (*models.Summary, error)
	List(ctx context.Context, subject, documentID string) ([]models.Summary, error)
}

type Chat interface {
	Ask(ctx context.Context, subject, documentID, message string) (*services.AskResult, error)
	History(ctx context.Context, subject, documentID string) ([]models.ChatMessage, error)
	Clear(ctx context.Context, subject, documentID string) error
	Suggestions(ctx context.Context, subject, documentID string) ([]string, error)
}

type Deleter interface {
	Delete(ctx context.Context, subject, documentID string) error
}

type Usage interface {
	Report(ctx context.Context, user *models.User) (*services.UsageReport, error)
	EnsurePeriod(ctx context.Context, userID string) (*models.UsagePeriod, error)
}

// Handler serves the document API.
type Handler struct {
	Access        Access
	Uploader      Uploader
	Extractor     Extractor
	Summarizer    Summarizer
	Chat          Chat
	Deleter       Deleter
	Usage         Usage
	SubjectHeader string

	// ExtractOnUpload runs extraction before the upload response is written.
	ExtractOnUpload bool
}

// Router mounts every route under /api. CORS is only enabled when
// allowedOrigins is non-empty.
func (h *Handler) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", h.SubjectHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Minute))
		r.Post("/documents", h.upload)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/", h.getDocument)
			r.Delete("/", h.deleteDocument)
			r.Post("/extract", h.extract)
			r.Post("/summaries", h.summarize)
			r.Get("/summaries", h.listSummaries)
			r.Post("/chat", h.ask)
			r.Get("/chat", h.history)
			r.Delete("/chat", h.clearChat)
			r.Get("/chat/suggestions", h.suggestions)
		})
		r.Get("/usage", h.usage)
		r.Post("/usage/period", h.ensurePeriod)
	})
	return r
}

func (h *Handler) subject(r *http.Request) string {
	return Subject(r, h.SubjectHeader)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, r, apierr.BadRequest("multipart field \"file\" is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, r, apierr.BadRequest("could not read uploaded file"))
		return
	}

	doc, err := h.Uploader.Upload(r.Context(), h.subject(r), header.Filename, data)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if h.ExtractOnUpload && doc.Status == models.StatusUploading {
		doc = h.extractUploaded(r, doc)
	}
	WriteJSON(w, http.StatusCreated, models.UploadResponse{
		DocumentID: doc.ID,
		Status:     doc.Status,
		PageCount:  doc.PageCount,
	})
}

// extractUploaded extracts a new document and returns its current record.
// Extraction failures are stored on the document, so the upload still succeeds.
func (h *Handler) extractUploaded(r *http.Request, doc *models.Document) *models.Document {
	if _, err := h.Extractor.Extract(r.Context(), doc.ID, services.ExtractOptions{}); err != nil {
		slog.Warn("Extraction after upload failed.", "documentId", doc.ID, "error", err)
	}
	_, current, err := h.Access.OwnedDocument(r.Context(), h.subject(r), doc.ID)
	if err != nil {
		slog.Error("Failed to reload document after extraction.", "documentId", doc.ID, "error", err)
		return doc
	}
	return current
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	_, doc, err := h.Access.OwnedDocument(r.Context(), h.subject(r), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.Deleter.Delete(r.Context(), h.subject(r), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) extract(w http.ResponseWriter, r *http.Request) {
	var req models.ExtractRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	_, doc, err := h.Access.OwnedDocument(r.Context(), h.subject(r), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	res, err := h.Extractor.Extract(r.Context(), doc.ID, services.ExtractOptions{Reextract: req.Reextract})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, models.ExtractResponse{
		DocumentID:      res.DocumentID,
		PageCount:       res.PageCount,
		TotalCharacters: res.TotalCharacters,
	})
}

func (h *Handler) summarize(w http.ResponseWriter, r *http.Request) {
	var req models.SummarizeRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	s, err := h.Summarizer.Summarize(r.Context(), h.subject(r), chi.URLParam(r, "id"), req.Format, req.Length)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, ToSummarizeResponse(s))
}

func (h *Handler) listSummaries(w http.ResponseWriter, r *http.Request) {
	list, err := h.Summarizer.List(r.Context(), h.subject(r), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Summary{}
	}
	WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) ask(w http.ResponseWriter, r *http.Request) {
	var req models.AskRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	res, err := h.Chat.Ask(r.Context(), h.subject(r), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ToAskResponse(res.AssistantMessage))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.Chat.History(r.Context(), h.subject(r), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	WriteJSON(w, http.StatusOK, msgs)
}

func (h *Handler) clearChat(w http.ResponseWriter, r *http.Request) {
	if err := h.Chat.Clear(r.Context(), h.subject(r), chi.URLParam(r, "id")); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) suggestions(w http.ResponseWriter, r *http.Request) {
	qs, err := h.Chat.Suggestions(r.Context(), h.subject(r), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if qs == nil {
		qs = []string{}
	}
	WriteJSON(w, http.StatusOK, map[string][]string{"questions": qs})
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	user, err := h.Access.User(r.Context(), h.subject(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	report, err := h.Usage.Report(r.Context(), user)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) ensurePeriod(w http.ResponseWriter, r *http.Request) {
	user, err := h.Access.User(r.Context(), h.subject(r))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	period, err := h.Usage.EnsurePeriod(r.Context(), user.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, period)
}
