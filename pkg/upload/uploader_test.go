package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/block/spooler/pkg/destinations"
	"github.com/stretchr/testify/require"
)

func mockConfigLoader(_ context.Context, _ ...func(*config.LoadOptions) error) (aws.Config, error) {
	return aws.Config{}, nil
}

func TestNewUploader(t *testing.T) {
	uploader, err := NewUploader(context.TODO(), destinations.S3File, "s3://testBucket/testDir/testSubDir/", mockConfigLoader)
	require.NoError(t, err)
	s3uploader, ok := uploader.(*S3Uploader)
	require.True(t, ok)
	require.NotNil(t, s3uploader)
	require.Equal(t, "testBucket", s3uploader.bucketName)
	require.Equal(t, "testDir/testSubDir", s3uploader.key)

	uploader, err = NewUploader(context.TODO(), destinations.LocalFile, "", mockConfigLoader)
	require.NoError(t, err)

	fileUploader, ok := uploader.(*FileUploader)
	require.True(t, ok)
	require.NotNil(t, fileUploader)

	_, err = NewUploader(context.TODO(), destinations.S3File, "s3://no-key", mockConfigLoader)
	require.Error(t, err)
}

func TestFileUploader(t *testing.T) {
	src := filepath.Join(t.TempDir(), "ERP_SALES_ORDERS.csv")
	require.NoError(t, os.WriteFile(src, []byte("1\n"), 0o644))

	// no directory keeps the file in place
	dst, err := NewFileUploader("").Upload(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, src, dst)

	outDir := filepath.Join(t.TempDir(), "published")
	dst, err = NewFileUploader(outDir).Upload(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(outDir, "ERP_SALES_ORDERS.csv"), dst)
	require.FileExists(t, dst)
	require.NoFileExists(t, src)
}
