// Package upload publishes finished export files to their destination.
package upload

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/block/spooler/pkg/destinations"
)

// Uploader publishes the file at localPath and returns where it ended up.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}
type ConfigLoader func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error)

func NewUploader(ctx context.Context, tp destinations.DstType, dstPath string, loader ConfigLoader) (Uploader, error) {
	switch tp {
	case destinations.LocalFile:
		return NewFileUploader(dstPath), nil
	case destinations.S3File:
		cfg, err := loader(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load AWS SDK config, %w", err)
		}
		s3up, err := NewS3Uploader(dstPath, cfg)
		if err != nil {
			return nil, err
		}

		return s3up, nil
	}

	return nil, fmt.Errorf("unsupported destination type: %s", tp)
}
