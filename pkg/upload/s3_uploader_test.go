package upload

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	PutObjectCallBack func(ctx context.Context, params *s3.PutObjectInput, fns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, fns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.PutObjectCallBack(ctx, params, fns...)
}

func TestS3Uploader_Upload(t *testing.T) {
	localPath := filepath.Join(t.TempDir(), "ERP_SALES_ORDERS_1.csv")
	require.NoError(t, os.WriteFile(localPath, []byte("1|a\n"), 0o644))

	s3testClient := &mockS3Client{
		PutObjectCallBack: func(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			require.Equal(t, "testBucket", *params.Bucket)
			require.Equal(t, "testKey/ERP_SALES_ORDERS_1.csv", *params.Key)
			require.Equal(t, "text/csv", *params.ContentType)
			body, err := io.ReadAll(params.Body)
			require.NoError(t, err)
			require.Equal(t, "1|a\n", string(body))

			return &s3.PutObjectOutput{}, nil
		},
	}
	s3uploader := &S3Uploader{
		bucketName: "testBucket",
		key:        "testKey",
		client:     s3testClient,
	}
	dst, err := s3uploader.Upload(context.Background(), localPath)
	require.NoError(t, err)
	require.Equal(t, "s3://testBucket/testKey/ERP_SALES_ORDERS_1.csv", dst)
}

func TestS3Uploader_UploadError(t *testing.T) {
	localPath := filepath.Join(t.TempDir(), "x.csv.zst")
	require.NoError(t, os.WriteFile(localPath, []byte("z"), 0o644))

	s3uploader := &S3Uploader{
		bucketName: "testBucket",
		key:        "testKey",
		client: &mockS3Client{
			PutObjectCallBack: func(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
				require.Equal(t, "application/octet-stream", *params.ContentType)
				return nil, errors.New("AccessDenied")
			},
		},
	}
	_, err := s3uploader.Upload(context.Background(), localPath)
	require.ErrorContains(t, err, "AccessDenied")

	_, err = s3uploader.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}
