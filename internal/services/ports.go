package services

import (
	"context"
	"time"

	"github.com/Lllllllleong/docinsight/internal/models"
	"github.com/Lllllllleong/docinsight/internal/pdftext"
)

// Collaborator interfaces. Firestore implementations live in internal/gcp,
// blob backends in internal/gcp and internal/minio. Lookups that find nothing
// return models.ErrNotFound.

type UserStore interface {
	UserBySubject(ctx context.Context, subject string) (*models.User, error)
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) (string, error)
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DocumentByStorageHandle(ctx context.Context, handle string) (*models.Document, error)
	DocumentByHash(ctx context.Context, userID, fileHash string) (*models.Document, error)
	// TransitionStatus atomically reads the current status, validates the
	// move against the transition table and applies upd with it.
	TransitionStatus(ctx context.Context, id string, to models.Status, upd models.StatusUpdate) error
	CountDocuments(ctx context.Context, userID string) (int64, error)
	CountDocumentsSince(ctx context.Context, userID string, since time.Time) (int64, error)
	DeleteDocument(ctx context.Context, id string) error
}

type SummaryStore interface {
	CreateSummary(ctx context.Context, s *models.Summary) (string, error)
	// ListSummaries returns a document's summaries, most recent first.
	ListSummaries(ctx context.Context, documentID string) ([]models.Summary, error)
	DeleteSummaries(ctx context.Context, documentID string) error
}

type ChatStore interface {
	AppendMessage(ctx context.Context, m *models.ChatMessage) (string, error)
	// ListMessages returns a document's messages in chronological order.
	ListMessages(ctx context.Context, documentID string) ([]models.ChatMessage, error)
	DeleteMessages(ctx context.Context, documentID string) error
}

type UsageStore interface {
	// GetPeriod returns the period containing at, or models.ErrNotFound.
	GetPeriod(ctx context.Context, userID string, at time.Time) (*models.UsagePeriod, error)
	// CreatePeriod returns models.ErrAlreadyExists if the period is present.
	CreatePeriod(ctx context.Context, p *models.UsagePeriod) error
	// IncrementUsage adds delta to the period containing at in one
	// transaction. A missing period is models.ErrNotFound.
	IncrementUsage(ctx context.Context, userID string, at time.Time, delta models.UsageDelta) error
}

type BlobStore interface {
	Get(ctx context.Context, handle string) ([]byte, error)
	Put(ctx context.Context, handle string, data []byte, contentType string) error
	Delete(ctx context.Context, handle string) error
}

type PDFParser interface {
	Parse(data []byte) (*pdftext.Parsed, error)
	PageCount(data []byte) (int, error)
}

// Locker serializes work on one key across instances. Lock fails when the key
// is held elsewhere. unlock must be safe to call after the lock expired.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
