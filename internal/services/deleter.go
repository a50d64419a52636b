package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/docinsight/internal/models"
	"golang.org/x/sync/errgroup"
)

// DocumentDeleter removes a document together with its summaries, chat
// messages and stored PDF.
type DocumentDeleter struct {
	access    *Access
	docs      DocumentStore
	summaries SummaryStore
	chats     ChatStore
	blobs     BlobStore
}

func NewDocumentDeleter(access *Access, docs DocumentStore, summaries SummaryStore, chats ChatStore, blobs BlobStore) *DocumentDeleter {
	return &DocumentDeleter{access: access, docs: docs, summaries: summaries, chats: chats, blobs: blobs}
}

// Delete removes dependents concurrently and the document record last, so a
// failed run can be retried.
func (d *DocumentDeleter) Delete(ctx context.Context, subject, documentID string) error {
	user, doc, err := d.access.OwnedDocument(ctx, subject, documentID)
	if err != nil {
		return err
	}
	logCtx := slog.With("documentId", doc.ID, "userId", user.ID)
	logCtx.Info("Deleting document.")

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := d.summaries.DeleteSummaries(gctx, doc.ID); err != nil {
			return fmt.Errorf("summaries: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		if err := d.chats.DeleteMessages(gctx, doc.ID); err != nil {
			return fmt.Errorf("chat messages: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		if doc.StorageHandle == "" {
			return nil
		}
		if err := d.blobs.Delete(gctx, doc.StorageHandle); err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("stored PDF: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		logCtx.Error("Failed to delete document dependents.", "error", err)
		return fmt.Errorf("failed to delete document %s: %w", doc.ID, err)
	}

	if err := d.docs.DeleteDocument(ctx, doc.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to delete document record: %w", err)
	}
	logCtx.Info("Document deleted.")
	return nil
}
