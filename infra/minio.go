package infra

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tnqbao/gau-ml-service/config"
)

// MinioClient stores uploaded training datasets. The compute provider reads
// them back through a presigned GET URL, which is what the train payload carries.
type MinioClient struct {
	Client        *minio.Client
	Endpoint      string
	DatasetBucket string
	PresignExpiry time.Duration
}

type DatasetObject struct {
	ObjectKey string    `json:"object_key"`
	URL       string    `json:"file"`
	Size      int64     `json:"size"`
	ExpiresAt time.Time `json:"expires_at"`
}

func InitMinioClient(cfg *config.EnvConfig) *MinioClient {
	endpoint := cfg.Minio.Endpoint
	if endpoint == "" {
		panic("MinIO endpoint is not configured")
	}

	rootUser := cfg.Minio.RootUser
	if rootUser == "" {
		panic("MinIO root user is not configured")
	}

	rootPassword := cfg.Minio.RootPassword
	if rootPassword == "" {
		panic("MinIO root password is not configured")
	}

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(rootUser, rootPassword, ""),
		Secure: cfg.Minio.UseSSL,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize MinIO client: %v", err))
	}

	client := &MinioClient{
		Client:        minioClient,
		Endpoint:      endpoint,
		DatasetBucket: cfg.Minio.DatasetBucket,
		PresignExpiry: cfg.Minio.PresignExpiry,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.EnsureBucket(ctx); err != nil {
		log.Printf("Warning: dataset bucket %q is not ready: %v", client.DatasetBucket, err)
	}

	return client
}

func (m *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.Client.BucketExists(ctx, m.DatasetBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.Client.MakeBucket(ctx, m.DatasetBucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// DatasetObjectKey namespaces uploads per owner so two users never collide.
func DatasetObjectKey(ownerID uint, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("owners/%d/%s%s", ownerID, uuid.NewString(), ext)
}

func (m *MinioClient) UploadDataset(ctx context.Context, ownerID uint, fileName string, reader io.Reader, size int64, contentType string) (*DatasetObject, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectKey := DatasetObjectKey(ownerID, fileName)
	info, err := m.Client.PutObject(ctx, m.DatasetBucket, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"owner-id":      fmt.Sprintf("%d", ownerID),
			"original-name": filepath.Base(fileName),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload dataset: %w", err)
	}

	presigned, err := m.Client.PresignedGetObject(ctx, m.DatasetBucket, objectKey, m.PresignExpiry, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to presign dataset url: %w", err)
	}

	return &DatasetObject{
		ObjectKey: objectKey,
		URL:       presigned.String(),
		Size:      info.Size,
		ExpiresAt: time.Now().Add(m.PresignExpiry),
	}, nil
}
