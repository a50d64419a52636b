package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/docinsight/internal/models"
	"google.golang.org/api/googleapi"
)

// BucketStore keeps uploaded PDFs in a single Cloud Storage bucket, keyed by
// storage handle.
type BucketStore struct {
	bucket *storage.BucketHandle
}

func NewBucketStore(client *storage.Client, bucketName string) *BucketStore {
	return &BucketStore{bucket: client.Bucket(bucketName)}
}

func (b *BucketStore) Get(ctx context.Context, handle string) ([]byte, error) {
	reader, err := b.bucket.Object(handle).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open gs object %s: %w", handle, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs object %s: %w", handle, err)
	}
	return data, nil
}

func (b *BucketStore) Put(ctx context.Context, handle string, data []byte, contentType string) error {
	return SaveToGCSAtomically(ctx, b.bucket, handle, data, contentType)
}

func (b *BucketStore) Delete(ctx context.Context, handle string) error {
	err := b.bucket.Object(handle).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return models.ErrNotFound
	}
	return err
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// Handles are unique per upload, so an existing object is treated as already written.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, content []byte, contentType string) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists. Skipping write.", "object", objectName)
			return nil
		}
		slog.Error("Failed to close GCS writer.", "object", objectName, "error", err)
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
