// Package blobstore adapts the external MinIO object storage.
package blobstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds MinIO connection configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client wraps the MinIO client with bucket bootstrapping
type Client struct {
	mc     *minio.Client
	logger *slog.Logger
}

// NewClient creates a MinIO-backed blob store client
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	mc, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		logger.Error("Failed to create MinIO client",
			slog.String("endpoint", config.Endpoint),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	logger.Info("MinIO client initialized",
		slog.String("endpoint", config.Endpoint),
	)

	return &Client{mc: mc, logger: logger}, nil
}

// UploadFile stores a local file under bucket/object, creating the bucket if
// it does not exist
func (c *Client) UploadFile(ctx context.Context, bucket, object, localPath string) error {
	if err := c.ensureBucket(ctx, bucket); err != nil {
		return err
	}

	info, err := c.mc.FPutObject(ctx, bucket, object, localPath, minio.PutObjectOptions{})
	if err != nil {
		c.logger.Error("Failed to upload file",
			slog.String("bucket", bucket),
			slog.String("object", object),
			slog.String("local_path", localPath),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to upload file: %w", err)
	}

	c.logger.Info("File uploaded",
		slog.String("bucket", bucket),
		slog.String("object", object),
		slog.Int64("size", info.Size),
	)

	return nil
}

func (c *Client) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := c.mc.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}

	if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %q: %w", bucket, err)
	}

	c.logger.Info("Created bucket", slog.String("bucket", bucket))
	return nil
}
