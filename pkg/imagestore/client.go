// Package imagestore fetches ISO images from an S3 bucket into the
// local work directory. It sits entirely outside the pipeline: fetch
// first, then point a run at the downloaded file.
package imagestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/zikani/smartboot/pkg/errors"
)

// Client provides S3 image catalog operations.
type Client struct {
	s3Client *s3.Client
	bucket   string
}

// NewClient creates a client for anonymous access to a public image
// bucket.
func NewClient(ctx context.Context, bucket, region string) (*Client, error) {
	slog.Info("imagestore_init", "bucket", bucket, "region", region)

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(aws.AnonymousCredentials{}),
	)
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return &Client{
		s3Client: s3.NewFromConfig(cfg),
		bucket:   bucket,
	}, nil
}

// DownloadResult contains download metadata.
type DownloadResult struct {
	LocalPath string
	SHA256    string
	Size      int64
}

// Download fetches key into localDir and returns the file's checksum.
// The object lands under its own base name.
func (c *Client) Download(ctx context.Context, key, localDir string) (*DownloadResult, error) {
	slog.Info("imagestore_download_start", "bucket", c.bucket, "key", key)

	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		slog.Error("imagestore_get_object_failed", "key", key, "error", err)
		return nil, errors.Wrap(err, "failed to get object from S3")
	}
	defer result.Body.Close()

	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create download directory")
	}
	localPath := filepath.Join(localDir, filepath.Base(key))
	f, err := os.Create(localPath)
	if err != nil {
		slog.Error("imagestore_local_file_failed", "path", localPath, "error", err)
		return nil, errors.Wrap(err, "failed to create local file")
	}
	defer f.Close()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hash), result.Body)
	if err != nil {
		slog.Error("imagestore_download_failed", "key", key, "error", err)
		return nil, errors.Wrap(err, "failed to download image")
	}

	checksum := hex.EncodeToString(hash.Sum(nil))
	slog.Info("imagestore_download_complete",
		"key", key,
		"size_mb", size/1024/1024,
		"local_path", localPath,
		"sha256", checksum[:16]+"...",
	)

	return &DownloadResult{
		LocalPath: localPath,
		SHA256:    checksum,
		Size:      size,
	}, nil
}

// List returns all image keys under prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	slog.Info("imagestore_list_start", "bucket", c.bucket, "prefix", prefix)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("imagestore_list_failed", "prefix", prefix, "error", err)
			return nil, errors.Wrap(err, "failed to list objects")
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	slog.Info("imagestore_list_complete", "prefix", prefix, "object_count", len(keys))
	return keys, nil
}

// Exists checks whether key is present in the bucket.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if err.Error() == "NotFound" {
			return false, nil
		}
		slog.Error("imagestore_head_object_failed", "key", key, "error", err)
		return false, errors.Wrap(err, "failed to check object existence")
	}
	return true, nil
}
