package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"meridian/internal/models"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// UsageStatement is the archived snapshot of a tenant's metered usage for
// one billing month. Statements exist for audit: the external provider's
// numbers can be reconciled against them.
type UsageStatement struct {
	TenantID    uuid.UUID             `json:"tenant_id"`
	Month       string                `json:"month"` // YYYY-MM
	Counters    []*models.UsageCounter `json:"counters"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// ArchiveService stores monthly usage statements in object storage.
type ArchiveService interface {
	EnsureBucketExists(ctx context.Context, bucketName string) error
	UploadStatement(ctx context.Context, bucketName string, statement *UsageStatement) error
}

type minioArchive struct {
	client *minio.Client
}

func NewArchiveService(endpoint, accessKey, secretKey string, useSSL bool) (ArchiveService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioArchive{client: client}, nil
}

func (m *minioArchive) EnsureBucketExists(ctx context.Context, bucketName string) error {
	found, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
	}
	return nil
}

func (m *minioArchive) UploadStatement(ctx context.Context, bucketName string, statement *UsageStatement) error {
	payload, err := json.Marshal(statement)
	if err != nil {
		return fmt.Errorf("failed to encode usage statement: %w", err)
	}

	objectName := fmt.Sprintf("statements/%s/%s.json", statement.TenantID.String(), statement.Month)
	_, err = m.client.PutObject(ctx, bucketName, objectName, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}
