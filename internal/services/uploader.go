package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/models"
	"github.com/google/uuid"
)

// Uploader validates, stores and registers new PDFs.
type Uploader struct {
	access *Access
	docs   DocumentStore
	blobs  BlobStore
	parser PDFParser
	gate   *UsageGate
	now    func() time.Time
}

func NewUploader(access *Access, docs DocumentStore, blobs BlobStore, parser PDFParser, gate *UsageGate) *Uploader {
	return &Uploader{access: access, docs: docs, blobs: blobs, parser: parser, gate: gate, now: time.Now}
}

// Upload creates a Document in uploading status and stores its PDF. An upload
// whose bytes match a document the user already has returns that document.
func (u *Uploader) Upload(ctx context.Context, subject, filename string, data []byte) (*models.Document, error) {
	user, err := u.access.User(ctx, subject)
	if err != nil {
		return nil, err
	}
	logCtx := slog.With("userId", user.ID, "filename", filename, "fileSize", len(data))

	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, apierr.BadRequest("file is not a PDF")
	}
	pageCount, err := u.parser.PageCount(data)
	if err != nil {
		logCtx.Warn("Rejected unreadable PDF.", "error", err)
		return nil, apierr.BadRequest("file is not a readable PDF")
	}

	fileHash := calculateHash(data)
	existing, err := u.docs.DocumentByHash(ctx, user.ID, fileHash)
	if err == nil {
		logCtx.Info("Duplicate file detected. Returning existing document.", "existingDocId", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for duplicate: %w", err)
	}

	if err := u.gate.Check(ctx, user, ActionUploadDocument, ActionContext{
		PageCount: pageCount,
		FileSize:  int64(len(data)),
	}); err != nil {
		logCtx.Info("Upload denied by usage gate.", "pageCount", pageCount, "error", err)
		return nil, err
	}

	// The record exists before the object so the storage finalize event always
	// finds it.
	handle := fmt.Sprintf("%s/%s.pdf", user.ID, uuid.NewString())
	now := u.now().UTC()
	doc := &models.Document{
		UserID:           user.ID,
		Title:            titleFromFilename(filename),
		OriginalFilename: filename,
		FileSize:         int64(len(data)),
		PageCount:        pageCount,
		StorageHandle:    handle,
		FileHash:         fileHash,
		Status:           models.StatusUploading,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	id, err := u.docs.CreateDocument(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	doc.ID = id

	if err := u.blobs.Put(ctx, handle, data, "application/pdf"); err != nil {
		if derr := u.docs.DeleteDocument(ctx, id); derr != nil {
			logCtx.Error("Failed to remove document after a failed upload.", "documentId", id, "error", derr)
		}
		return nil, fmt.Errorf("failed to store PDF: %w", err)
	}

	logCtx.Info("Document uploaded.", "documentId", id, "pageCount", pageCount, "storageHandle", handle)
	return doc, nil
}

func calculateHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func titleFromFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" || title == "." || title == "/" {
		return "Untitled document"
	}
	return title
}
