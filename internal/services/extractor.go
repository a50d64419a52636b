package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/models"
)

type ExtractOptions struct {
	// Reextract allows a ready document to be processed again.
	Reextract bool
}

type ExtractResult struct {
	DocumentID      string
	PageCount       int
	TotalCharacters int
}

// Extractor turns a stored PDF into page-addressable text and drives the
// document's status through processing to ready or error.
type Extractor struct {
	docs   DocumentStore
	blobs  BlobStore
	parser PDFParser
	locker Locker
}

func NewExtractor(docs DocumentStore, blobs BlobStore, parser PDFParser, locker Locker) *Extractor {
	return &Extractor{docs: docs, blobs: blobs, parser: parser, locker: locker}
}

// Extract runs extraction for one document. Any failure after the document
// entered processing leaves it in error and is returned to the caller.
func (e *Extractor) Extract(ctx context.Context, documentID string, opts ExtractOptions) (*ExtractResult, error) {
	logCtx := slog.With("documentId", documentID, "reextract", opts.Reextract)

	unlock, err := e.locker.Lock(ctx, "extract:"+documentID)
	if err != nil {
		logCtx.Warn("Extraction already in progress.", "error", err)
		return nil, apierr.InvalidState("document is already being processed", err)
	}
	defer unlock()

	doc, err := getDocument(ctx, e.docs, documentID)
	if err != nil {
		return nil, err
	}
	logCtx = logCtx.With("userId", doc.UserID)

	if err := e.docs.TransitionStatus(ctx, documentID, models.StatusProcessing, models.StatusUpdate{Reextract: opts.Reextract}); err != nil {
		logCtx.Warn("Refusing to start extraction.", "status", doc.Status, "error", err)
		if errors.Is(err, models.ErrNotFound) {
			return nil, apierr.NotFound("document")
		}
		return nil, apierr.InvalidState("document cannot be extracted in its current state", err)
	}
	logCtx.Info("Starting extraction.", "storageHandle", doc.StorageHandle)

	data, err := e.blobs.Get(ctx, doc.StorageHandle)
	if err != nil {
		return nil, e.handleError(ctx, logCtx, documentID, "failed to read stored PDF", err)
	}

	parsed, err := e.parser.Parse(data)
	if err != nil {
		return nil, e.handleError(ctx, logCtx, documentID, "failed to parse PDF", apierr.ExtractionFailed("failed to parse PDF", err))
	}

	pages := SegmentPages(parsed.Text, parsed.PageCount)
	if len(pages) == 0 {
		return nil, e.handleError(ctx, logCtx, documentID, "no text found",
			apierr.ExtractionFailed("no extractable text found; the PDF may contain only scanned images", nil))
	}

	total := 0
	for _, p := range pages {
		total += utf8.RuneCountInString(p.Content)
	}
	pageCount := len(pages)
	if err := e.docs.TransitionStatus(ctx, documentID, models.StatusReady, models.StatusUpdate{
		ExtractedText: pages,
		PageCount:     &pageCount,
	}); err != nil {
		return nil, e.handleError(ctx, logCtx, documentID, "failed to save extracted text", err)
	}

	logCtx.Info("Extraction complete.", "reportedPages", parsed.PageCount, "pageCount", pageCount, "totalCharacters", total)
	return &ExtractResult{DocumentID: documentID, PageCount: pageCount, TotalCharacters: total}, nil
}

// ProcessUpload runs extraction for the document stored under handle. Objects
// that are not registered documents, or documents already past uploading, are
// skipped so redelivered storage events are harmless.
func (e *Extractor) ProcessUpload(ctx context.Context, handle string) error {
	logCtx := slog.With("storageHandle", handle)

	doc, err := e.docs.DocumentByStorageHandle(ctx, handle)
	if errors.Is(err, models.ErrNotFound) {
		logCtx.Info("No document registered for object. Skipping.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up document by storage handle: %w", err)
	}
	if doc.Status != models.StatusUploading {
		logCtx.Info("Document already processed. Skipping.", "documentId", doc.ID, "status", doc.Status)
		return nil
	}

	_, err = e.Extract(ctx, doc.ID, ExtractOptions{})
	return err
}

func (e *Extractor) handleError(ctx context.Context, logCtx *slog.Logger, documentID, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	errMsg := fmt.Sprintf("%s: %v", message, originalErr)
	if ae, ok := apierr.As(originalErr); ok {
		errMsg = ae.Error()
	}
	if err := e.docs.TransitionStatus(ctx, documentID, models.StatusError, models.StatusUpdate{ErrorMessage: &errMsg}); err != nil {
		logCtx.Error("CRITICAL: Failed to set document status to error after an extraction failure.", "updateError", err)
	}
	if _, ok := apierr.As(originalErr); ok {
		return originalErr
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
