package repositories

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"analysis-worker/domain"
)

type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Repository struct {
	client     S3API
	downloader *manager.Downloader
	tempDir    string
}

func NewS3Repository(client S3API, tempDir string) *S3Repository {
	return &S3Repository{
		client:     client,
		downloader: manager.NewDownloader(client),
		tempDir:    tempDir,
	}
}

// NewS3Client builds the SDK client used against S3 or a path-style emulator.
func NewS3Client(cfg aws.Config) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

// Fetch reads the ownership metadata of the object and downloads it into a
// uniquely named temp file. On failure no temp file is left behind.
func (r *S3Repository) Fetch(ctx context.Context, loc domain.Locator) (*domain.ContentHandle, error) {
	head, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, wrapAWSError(domain.ErrRetrieval, "head "+loc.String(), err)
	}

	ownerID := metadataValue(head.Metadata, domain.MetadataUserID)
	contentID := metadataValue(head.Metadata, domain.MetadataVideoID)
	if ownerID == "" || contentID == "" {
		return nil, fmt.Errorf("%w: %s has userid=%q videoid=%q", domain.ErrMetadataMissing, loc, ownerID, contentID)
	}

	ext := filepath.Ext(loc.Key)
	if ext == "" {
		ext = ".mp4"
	}
	path := filepath.Join(r.tempDir, uuid.New().String()+ext)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: create temp file: %w", domain.ErrRetrieval, err)
	}

	_, err = r.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, wrapAWSError(domain.ErrRetrieval, "download "+loc.String(), err)
	}

	return &domain.ContentHandle{
		LocalPath: path,
		OwnerID:   ownerID,
		ContentID: contentID,
	}, nil
}

func metadataValue(metadata map[string]string, key string) string {
	for k, v := range metadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
