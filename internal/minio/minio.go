// Package minio stores uploaded PDFs in an S3-compatible bucket for
// deployments outside Google Cloud.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Lllllllleong/docinsight/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store satisfies services.BlobStore.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to endpoint and creates bucket if it is missing.
func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}
	return &Store{client: client, bucket: bucket}, nil
}

func (s *Store) Put(ctx context.Context, handle string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, handle, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("minio put %s: %w", handle, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, handle string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, handle, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapErr(handle, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapErr(handle, err)
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, handle string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, handle, minio.StatObjectOptions{}); err != nil {
		return mapErr(handle, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, handle, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove %s: %w", handle, err)
	}
	return nil
}

func mapErr(handle string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return models.ErrNotFound
	}
	return fmt.Errorf("minio object %s: %w", handle, err)
}
