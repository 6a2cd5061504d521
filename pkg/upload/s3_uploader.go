package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Uploader struct {
	bucketName string
	key        string
	client     S3Client
}

func NewS3Uploader(dstPath string, cfg aws.Config) (*S3Uploader, error) {
	// Remove the "s3://" prefix if it exists.
	dstPath = strings.TrimPrefix(dstPath, "s3://")

	// Separate the bucket name and key
	index := strings.Index(dstPath, "/")
	if index == -1 {
		return nil, fmt.Errorf("invalid S3 path: %s", dstPath)
	}
	bucketName := dstPath[:index]

	key := strings.TrimSuffix(dstPath[index+1:], "/")
	// Create an S3 client
	client := s3.NewFromConfig(cfg)

	return &S3Uploader{
		client:     client,
		bucketName: bucketName,
		key:        key,
	}, nil
}

// Upload puts the file under the configured prefix, keeping its base name.
// The local copy is kept.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := path.Join(u.key, filepath.Base(localPath))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucketName),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType(localPath)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3, %w", err)
	}

	return "s3://" + u.bucketName + "/" + key, nil
}

func contentType(p string) string {
	if filepath.Ext(p) == ".csv" {
		return "text/csv"
	}

	return "application/octet-stream"
}
