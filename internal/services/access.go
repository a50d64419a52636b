package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/models"
)

// Access resolves authenticated subjects and enforces document ownership.
type Access struct {
	users UserStore
	docs  DocumentStore
}

func NewAccess(users UserStore, docs DocumentStore) *Access {
	return &Access{users: users, docs: docs}
}

// User maps a subject to its user record.
func (a *Access) User(ctx context.Context, subject string) (*models.User, error) {
	if subject == "" {
		return nil, apierr.NotAuthenticated()
	}
	user, err := a.users.UserBySubject(ctx, subject)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apierr.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	return user, nil
}

// OwnedDocument loads a document and checks it belongs to subject.
func (a *Access) OwnedDocument(ctx context.Context, subject, documentID string) (*models.User, *models.Document, error) {
	user, err := a.User(ctx, subject)
	if err != nil {
		return nil, nil, err
	}
	doc, err := getDocument(ctx, a.docs, documentID)
	if err != nil {
		return nil, nil, err
	}
	if doc.UserID != user.ID {
		return nil, nil, apierr.AccessDenied("document")
	}
	return user, doc, nil
}

func getDocument(ctx context.Context, docs DocumentStore, id string) (*models.Document, error) {
	if id == "" {
		return nil, apierr.BadRequest("documentId is required")
	}
	doc, err := docs.GetDocument(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apierr.NotFound("document")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return doc, nil
}

// requireReady rejects documents that have no usable extracted text.
func requireReady(doc *models.Document) error {
	if doc.Status != models.StatusReady || !doc.HasText() {
		return apierr.InvalidState(fmt.Sprintf("document is %s; text is not available yet", doc.Status), nil)
	}
	return nil
}
