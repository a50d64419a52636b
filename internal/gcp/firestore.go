package gcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/Lllllllleong/docinsight/internal/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

const (
	usersCollection     = "users"
	documentsCollection = "documents"
	summariesCollection = "summaries"
	messagesCollection  = "chatMessages"
	periodsCollection   = "usagePeriods"
)

// FirestoreStore implements every record store on top of Firestore. All
// collection names share an optional prefix so environments can coexist in
// one project.
type FirestoreStore struct {
	client *firestore.Client
	prefix string
	now    func() time.Time
}

func NewFirestoreStore(client *firestore.Client, collectionPrefix string) *FirestoreStore {
	return &FirestoreStore{client: client, prefix: collectionPrefix, now: time.Now}
}

func (s *FirestoreStore) col(name string) *firestore.CollectionRef {
	return s.client.Collection(s.prefix + name)
}

// mapErr translates gRPC status codes into the model sentinels.
func mapErr(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return models.ErrNotFound
	case codes.AlreadyExists:
		return models.ErrAlreadyExists
	}
	return err
}

func first(ctx context.Context, q firestore.Query) (*firestore.DocumentSnapshot, error) {
	docs, err := q.Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, models.ErrNotFound
	}
	return docs[0], nil
}

func count(ctx context.Context, q firestore.Query) (int64, error) {
	res, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, err
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result type %T", res["all"])
	}
	return v.GetIntegerValue(), nil
}

// deleteWhere removes every document matched by q with a BulkWriter.
func (s *FirestoreStore) deleteWhere(ctx context.Context, q firestore.Query) error {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return nil
	}
	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(snaps))
	for _, snap := range snaps {
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return err
		}
		jobs = append(jobs, job)
	}
	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil && status.Code(err) != codes.NotFound {
			return err
		}
	}
	return nil
}

// --- Users ---

func (s *FirestoreStore) UserBySubject(ctx context.Context, subject string) (*models.User, error) {
	snap, err := first(ctx, s.col(usersCollection).Where("subject", "==", subject))
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", snap.Ref.ID, err)
	}
	u.ID = snap.Ref.ID
	return &u, nil
}

// --- Documents ---

func (s *FirestoreStore) CreateDocument(ctx context.Context, doc *models.Document) (string, error) {
	ref, _, err := s.col(documentsCollection).Add(ctx, doc)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

func decodeDocument(snap *firestore.DocumentSnapshot) (*models.Document, error) {
	var d models.Document
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
	}
	d.ID = snap.Ref.ID
	return &d, nil
}

func (s *FirestoreStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	snap, err := s.col(documentsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return decodeDocument(snap)
}

func (s *FirestoreStore) DocumentByStorageHandle(ctx context.Context, handle string) (*models.Document, error) {
	snap, err := first(ctx, s.col(documentsCollection).Where("storageHandle", "==", handle))
	if err != nil {
		return nil, err
	}
	return decodeDocument(snap)
}

func (s *FirestoreStore) DocumentByHash(ctx context.Context, userID, fileHash string) (*models.Document, error) {
	q := s.col(documentsCollection).Where("userId", "==", userID).Where("fileHash", "==", fileHash)
	snap, err := first(ctx, q)
	if err != nil {
		return nil, err
	}
	return decodeDocument(snap)
}

func (s *FirestoreStore) TransitionStatus(ctx context.Context, id string, to models.Status, upd models.StatusUpdate) error {
	ref := s.col(documentsCollection).Doc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return mapErr(err)
		}
		current, err := snap.DataAt("status")
		if err != nil {
			return fmt.Errorf("document %s has no status: %w", id, err)
		}
		from, _ := current.(string)
		if err := models.ValidateTransition(models.Status(from), to, upd.Reextract); err != nil {
			return err
		}

		updates := statusUpdates(to, upd, s.now().UTC())
		return tx.Update(ref, updates)
	})
}

// statusUpdates builds the field writes for a transition. Leaving the error
// state without a new message removes the previous one.
func statusUpdates(to models.Status, upd models.StatusUpdate, now time.Time) []firestore.Update {
	updates := []firestore.Update{
		{Path: "status", Value: to},
		{Path: "updatedAt", Value: now},
	}
	if upd.ErrorMessage != nil {
		updates = append(updates, firestore.Update{Path: "errorMessage", Value: *upd.ErrorMessage})
	} else if to != models.StatusError {
		updates = append(updates, firestore.Update{Path: "errorMessage", Value: firestore.Delete})
	}
	if upd.ExtractedText != nil {
		updates = append(updates, firestore.Update{Path: "extractedText", Value: upd.ExtractedText})
	}
	if upd.PageCount != nil {
		updates = append(updates, firestore.Update{Path: "pageCount", Value: *upd.PageCount})
	}
	return updates
}

func (s *FirestoreStore) CountDocuments(ctx context.Context, userID string) (int64, error) {
	return count(ctx, s.col(documentsCollection).Where("userId", "==", userID))
}

func (s *FirestoreStore) CountDocumentsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	q := s.col(documentsCollection).Where("userId", "==", userID).Where("createdAt", ">=", since)
	return count(ctx, q)
}

func (s *FirestoreStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.col(documentsCollection).Doc(id).Delete(ctx)
	return mapErr(err)
}

// --- Summaries ---

func (s *FirestoreStore) CreateSummary(ctx context.Context, sum *models.Summary) (string, error) {
	ref, _, err := s.col(summariesCollection).Add(ctx, sum)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

func (s *FirestoreStore) ListSummaries(ctx context.Context, documentID string) ([]models.Summary, error) {
	snaps, err := s.col(summariesCollection).
		Where("documentId", "==", documentID).
		OrderBy("createdAt", firestore.Desc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]models.Summary, 0, len(snaps))
	for _, snap := range snaps {
		var sum models.Summary
		if err := snap.DataTo(&sum); err != nil {
			return nil, fmt.Errorf("failed to decode summary %s: %w", snap.Ref.ID, err)
		}
		sum.ID = snap.Ref.ID
		out = append(out, sum)
	}
	return out, nil
}

func (s *FirestoreStore) DeleteSummaries(ctx context.Context, documentID string) error {
	return s.deleteWhere(ctx, s.col(summariesCollection).Where("documentId", "==", documentID))
}

// --- Chat messages ---

func (s *FirestoreStore) AppendMessage(ctx context.Context, m *models.ChatMessage) (string, error) {
	ref, _, err := s.col(messagesCollection).Add(ctx, m)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

func (s *FirestoreStore) ListMessages(ctx context.Context, documentID string) ([]models.ChatMessage, error) {
	snaps, err := s.col(messagesCollection).
		Where("documentId", "==", documentID).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]models.ChatMessage, 0, len(snaps))
	for _, snap := range snaps {
		var m models.ChatMessage
		if err := snap.DataTo(&m); err != nil {
			return nil, fmt.Errorf("failed to decode chat message %s: %w", snap.Ref.ID, err)
		}
		m.ID = snap.Ref.ID
		out = append(out, m)
	}
	return out, nil
}

func (s *FirestoreStore) DeleteMessages(ctx context.Context, documentID string) error {
	return s.deleteWhere(ctx, s.col(messagesCollection).Where("documentId", "==", documentID))
}

// --- Usage periods ---

func (s *FirestoreStore) GetPeriod(ctx context.Context, userID string, at time.Time) (*models.UsagePeriod, error) {
	snap, err := s.col(periodsCollection).Doc(models.PeriodID(userID, at)).Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	var p models.UsagePeriod
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("failed to decode usage period %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

func (s *FirestoreStore) CreatePeriod(ctx context.Context, p *models.UsagePeriod) error {
	_, err := s.col(periodsCollection).Doc(p.ID).Create(ctx, p)
	return mapErr(err)
}

func (s *FirestoreStore) IncrementUsage(ctx context.Context, userID string, at time.Time, delta models.UsageDelta) error {
	ref := s.col(periodsCollection).Doc(models.PeriodID(userID, at))
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return mapErr(err)
		}
		return tx.Update(ref, usageUpdates(delta))
	})
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrNotFound
	}
	return err
}

func usageUpdates(d models.UsageDelta) []firestore.Update {
	var updates []firestore.Update
	add := func(path string, n int) {
		if n != 0 {
			updates = append(updates, firestore.Update{Path: path, Value: firestore.Increment(n)})
		}
	}
	add("documentsProcessed", d.DocumentsProcessed)
	add("pagesProcessed", d.PagesProcessed)
	add("questionsAsked", d.QuestionsAsked)
	add("apiCalls", d.APICalls)
	return updates
}
