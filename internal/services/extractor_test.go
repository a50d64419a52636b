package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Lllllllleong/docinsight/internal/apierr"
	"github.com/Lllllllleong/docinsight/internal/models"
	"github.com/Lllllllleong/docinsight/internal/pdftext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type extractorFixture struct {
	store  *memStore
	blobs  *memBlobs
	locker *memLocker
}

func newExtractorFixture(status models.Status) *extractorFixture {
	f := &extractorFixture{store: newMemStore(), blobs: newMemBlobs(), locker: newMemLocker()}
	f.store.putDocument(models.Document{ID: "doc-1", UserID: "u1", StorageHandle: "u1/a.pdf", PageCount: 5, Status: status})
	f.blobs.objects["u1/a.pdf"] = []byte("%PDF-1.7")
	return f
}

func (f *extractorFixture) extractor(p PDFParser) *Extractor {
	return NewExtractor(f.store, f.blobs, p, f.locker)
}

func (f *extractorFixture) doc(t *testing.T) *models.Document {
	t.Helper()
	d, err := f.store.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	return d
}

func TestExtractSuccess(t *testing.T) {
	f := newExtractorFixture(models.StatusUploading)
	p := fakeParser{parsed: &pdftext.Parsed{Text: "page one\fpage two\f", PageCount: 3}}

	res, err := f.extractor(p).Extract(context.Background(), "doc-1", ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.PageCount)
	assert.Equal(t, 16, res.TotalCharacters)

	d := f.doc(t)
	assert.Equal(t, models.StatusReady, d.Status)
	assert.Equal(t, 2, d.PageCount)
	assert.Equal(t, []models.Page{{PageNumber: 1, Content: "page one"}, {PageNumber: 2, Content: "page two"}}, d.ExtractedText)
	assert.Empty(t, f.locker.held)
}

func TestExtractNoTextSetsError(t *testing.T) {
	f := newExtractorFixture(models.StatusUploading)
	p := fakeParser{parsed: &pdftext.Parsed{Text: "\f \f\n", PageCount: 3}}

	_, err := f.extractor(p).Extract(context.Background(), "doc-1", ExtractOptions{})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeExtractionFailed))

	d := f.doc(t)
	assert.Equal(t, models.StatusError, d.Status)
	assert.Contains(t, d.ErrorMessage, "no extractable text")
	assert.Empty(t, d.ExtractedText)
}

func TestExtractParseFailureSetsError(t *testing.T) {
	f := newExtractorFixture(models.StatusUploading)
	p := fakeParser{parseErr: errors.New("xref table broken")}

	_, err := f.extractor(p).Extract(context.Background(), "doc-1", ExtractOptions{})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeExtractionFailed))
	assert.Equal(t, models.StatusError, f.doc(t).Status)
}

func TestExtractBlobFailureSetsErrorAndReraises(t *testing.T) {
	f := newExtractorFixture(models.StatusUploading)
	f.blobs.getErr = errors.New("bucket unavailable")

	_, err := f.extractor(fakeParser{}).Extract(context.Background(), "doc-1", ExtractOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, f.blobs.getErr)
	d := f.doc(t)
	assert.Equal(t, models.StatusError, d.Status)
	assert.Contains(t, d.ErrorMessage, "bucket unavailable")
}

func TestExtractReadyRequiresReextract(t *testing.T) {
	f := newExtractorFixture(models.StatusReady)
	p := fakeParser{parsed: &pdftext.Parsed{Text: "fresh text", PageCount: 1}}

	_, err := f.extractor(p).Extract(context.Background(), "doc-1", ExtractOptions{})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeInvalidState))
	assert.Equal(t, models.StatusReady, f.doc(t).Status)

	res, err := f.extractor(p).Extract(context.Background(), "doc-1", ExtractOptions{Reextract: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.PageCount)
	assert.Equal(t, "fresh text", f.doc(t).ExtractedText[0].Content)
}

func TestExtractRetryAfterError(t *testing.T) {
	f := newExtractorFixture(models.StatusUploading)
	p := fakeParser{parsed: &pdftext.Parsed{Text: "recovered", PageCount: 1}}

	f.blobs.getErr = errors.New("transient read error")
	_, err := f.extractor(p).Extract(context.Background(), "doc-1", ExtractOptions{})
	require.Error(t, err)
	assert.Equal(t, models.StatusError, f.doc(t).Status)
	assert.Contains(t, f.doc(t).ErrorMessage, "transient read error")

	f.blobs.getErr = nil
	_, err = f.extractor(p).Extract(context.Background(), "doc-1", ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, f.doc(t).Status)
	assert.Empty(t, f.doc(t).ErrorMessage)
}

func TestExtractLocked(t *testing.T) {
	f := newExtractorFixture(models.StatusUploading)
	f.locker.held["extract:doc-1"] = true

	_, err := f.extractor(fakeParser{}).Extract(context.Background(), "doc-1", ExtractOptions{})
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.CodeInvalidState))
	assert.Equal(t, models.StatusUploading, f.doc(t).Status)
}

func TestExtractUnknownDocument(t *testing.T) {
	f := newExtractorFixture(models.StatusUploading)

	_, err := f.extractor(fakeParser{}).Extract(context.Background(), "missing", ExtractOptions{})
	assert.True(t, apierr.Is(err, apierr.CodeNotFound))
}

func TestProcessUpload(t *testing.T) {
	f := newExtractorFixture(models.StatusUploading)
	p := fakeParser{parsed: &pdftext.Parsed{Text: "body", PageCount: 1}}
	ex := f.extractor(p)

	require.NoError(t, ex.ProcessUpload(context.Background(), "u1/a.pdf"))
	assert.Equal(t, models.StatusReady, f.doc(t).Status)

	// Redelivery of the same event is a no-op.
	require.NoError(t, ex.ProcessUpload(context.Background(), "u1/a.pdf"))
	// Objects without a document are ignored.
	require.NoError(t, ex.ProcessUpload(context.Background(), "u1/unknown.pdf"))
}
