package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"questplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("objectstore",
	fx.Provide(
		registerClient,
		NewStore,
	),
)

func registerClient(c *config.Config) *minio.Client {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Fatal("failed to create MinIO client", zap.Error(err))
	}

	exists, err := client.BucketExists(context.Background(), c.Minio.BucketName)
	if err != nil {
		zap.L().Fatal("failed to check if bucket exists", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
	}

	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.Bool("bucket_exists", exists))
	return client
}

// Store persists campaign media (banners, avatars) in object storage.
type Store interface {
	PutCampaignBanner(ctx context.Context, campaignID string, r io.Reader, size int64, contentType string) (string, error)
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

type store struct {
	client *minio.Client
	bucket string
}

func NewStore(client *minio.Client, cfg *config.Config) Store {
	return &store{client: client, bucket: cfg.Minio.BucketName}
}

func (s *store) PutCampaignBanner(ctx context.Context, campaignID string, r io.Reader, size int64, contentType string) (string, error) {
	objectName := path.Join("campaigns", campaignID, "banner")

	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put banner: %w", err)
	}

	return objectName, nil
}

func (s *store) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}
