package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Lllllllleong/docinsight/internal/llm"
	"github.com/Lllllllleong/docinsight/internal/models"
	"github.com/Lllllllleong/docinsight/internal/pdftext"
)

// memStore is an in-memory implementation of every record store.
type memStore struct {
	mu        sync.Mutex
	seq       int
	users     map[string]models.User
	docs      map[string]models.Document
	summaries map[string]models.Summary
	messages  map[string]models.ChatMessage
	periods   map[string]models.UsagePeriod
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]models.User{},
		docs:      map[string]models.Document{},
		summaries: map[string]models.Summary{},
		messages:  map[string]models.ChatMessage{},
		periods:   map[string]models.UsagePeriod{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) addUser(id, subject string, tier models.Tier) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := models.User{ID: id, Subject: subject, Tier: tier}
	s.users[id] = u
	return &u
}

func (s *memStore) UserBySubject(_ context.Context, subject string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Subject == subject {
			u := u
			return &u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) CreateDocument(_ context.Context, doc *models.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := *doc
	d.ID = s.nextID("doc")
	s.docs[d.ID] = d
	return d.ID, nil
}

func (s *memStore) putDocument(doc models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
}

func (s *memStore) GetDocument(_ context.Context, id string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &d, nil
}

func (s *memStore) DocumentByStorageHandle(_ context.Context, handle string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.StorageHandle == handle {
			d := d
			return &d, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) DocumentByHash(_ context.Context, userID, fileHash string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.UserID == userID && d.FileHash == fileHash {
			d := d
			return &d, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) TransitionStatus(_ context.Context, id string, to models.Status, upd models.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return models.ErrNotFound
	}
	if err := models.ValidateTransition(d.Status, to, upd.Reextract); err != nil {
		return err
	}
	d.Status = to
	if upd.ErrorMessage != nil {
		d.ErrorMessage = *upd.ErrorMessage
	} else if to != models.StatusError {
		d.ErrorMessage = ""
	}
	if upd.ExtractedText != nil {
		d.ExtractedText = upd.ExtractedText
	}
	if upd.PageCount != nil {
		d.PageCount = *upd.PageCount
	}
	s.docs[id] = d
	return nil
}

func (s *memStore) CountDocuments(_ context.Context, userID string) (int64, error) {
	return s.countDocs(userID, time.Time{}), nil
}

func (s *memStore) CountDocumentsSince(_ context.Context, userID string, since time.Time) (int64, error) {
	return s.countDocs(userID, since), nil
}

func (s *memStore) countDocs(userID string, since time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.docs {
		if d.UserID == userID && !d.CreatedAt.Before(since) {
			n++
		}
	}
	return n
}

func (s *memStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *memStore) CreateSummary(_ context.Context, sum *models.Summary) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *sum
	v.ID = s.nextID("sum")
	s.summaries[v.ID] = v
	return v.ID, nil
}

func (s *memStore) ListSummaries(_ context.Context, documentID string) ([]models.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Summary
	for _, v := range s.summaries {
		if v.DocumentID == documentID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) DeleteSummaries(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.summaries {
		if v.DocumentID == documentID {
			delete(s.summaries, id)
		}
	}
	return nil
}

func (s *memStore) AppendMessage(_ context.Context, m *models.ChatMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *m
	v.ID = s.nextID("msg")
	s.messages[v.ID] = v
	return v.ID, nil
}

func (s *memStore) ListMessages(_ context.Context, documentID string) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatMessage
	for _, v := range s.messages {
		if v.DocumentID == documentID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) DeleteMessages(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.messages {
		if v.DocumentID == documentID {
			delete(s.messages, id)
		}
	}
	return nil
}

func (s *memStore) GetPeriod(_ context.Context, userID string, at time.Time) (*models.UsagePeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[models.PeriodID(userID, at)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (s *memStore) CreatePeriod(_ context.Context, p *models.UsagePeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.periods[p.ID]; ok {
		return models.ErrAlreadyExists
	}
	s.periods[p.ID] = *p
	return nil
}

func (s *memStore) IncrementUsage(_ context.Context, userID string, at time.Time, d models.UsageDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := models.PeriodID(userID, at)
	p, ok := s.periods[id]
	if !ok {
		return models.ErrNotFound
	}
	p.DocumentsProcessed += d.DocumentsProcessed
	p.PagesProcessed += d.PagesProcessed
	p.QuestionsAsked += d.QuestionsAsked
	p.APICalls += d.APICalls
	s.periods[id] = p
	return nil
}

func (s *memStore) addPeriod(userID string, at time.Time) {
	start, end := models.MonthBounds(at)
	_ = s.CreatePeriod(context.Background(), &models.UsagePeriod{
		ID: models.PeriodID(userID, at), UserID: userID, PeriodStart: start, PeriodEnd: end,
	})
}

func (s *memStore) period(userID string, at time.Time) models.UsagePeriod {
	p, _ := s.GetPeriod(context.Background(), userID, at)
	if p == nil {
		return models.UsagePeriod{}
	}
	return *p
}

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
	putErr  error
	// onPut runs after an object is written, like a storage finalize event.
	onPut func(handle string)
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (b *memBlobs) Get(_ context.Context, handle string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	data, ok := b.objects[handle]
	if !ok {
		return nil, models.ErrNotFound
	}
	return data, nil
}

func (b *memBlobs) Put(_ context.Context, handle string, data []byte, _ string) error {
	b.mu.Lock()
	if b.putErr != nil {
		b.mu.Unlock()
		return b.putErr
	}
	b.objects[handle] = data
	onPut := b.onPut
	b.mu.Unlock()
	if onPut != nil {
		onPut(handle)
	}
	return nil
}

func (b *memBlobs) Delete(_ context.Context, handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[handle]; !ok {
		return models.ErrNotFound
	}
	delete(b.objects, handle)
	return nil
}

// fakeParser returns canned results regardless of input.
type fakeParser struct {
	parsed   *pdftext.Parsed
	parseErr error
	pages    int
}

func (p fakeParser) Parse([]byte) (*pdftext.Parsed, error) {
	if p.parseErr != nil {
		return nil, p.parseErr
	}
	return p.parsed, nil
}

func (p fakeParser) PageCount([]byte) (int, error) {
	if p.parseErr != nil {
		return 0, p.parseErr
	}
	return p.pages, nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]bool{}} }

func (l *memLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, errors.New("lock held")
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

// scriptedBackend replays one result per call and records the models used.
type scriptedBackend struct {
	mu      sync.Mutex
	results []backendResult
	calls   []string
	reqs    []llm.Request
}

type backendResult struct {
	text string
	err  error
}

func (b *scriptedBackend) Complete(ctx context.Context, model string, req llm.Request) (*llm.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, model)
	b.reqs = append(b.reqs, req)
	if len(b.results) == 0 {
		return nil, errors.New("no scripted result")
	}
	r := b.results[0]
	b.results = b.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &llm.Response{Text: r.text, Model: model, PromptTokens: 100, CompletionTokens: 50}, nil
}

// stubCompleter answers every request with the same text.
type stubCompleter struct {
	mu   sync.Mutex
	text string
	err  error
	reqs []llm.Request
}

func (c *stubCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Text: c.text, Model: "test-model", PromptTokens: 200, CompletionTokens: 80}, nil
}

func (c *stubCompleter) lastRequest() llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reqs[len(c.reqs)-1]
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }
