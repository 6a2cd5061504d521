package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileUploader moves files into a local directory. With no directory the
// file stays where the export wrote it.
type FileUploader struct {
	dir string
}

func NewFileUploader(dir string) *FileUploader {
	return &FileUploader{
		dir: dir,
	}
}

func (u *FileUploader) Upload(_ context.Context, localPath string) (string, error) {
	if u.dir == "" {
		return localPath, nil
	}
	dst := filepath.Join(u.dir, filepath.Base(localPath))
	if filepath.Clean(dst) == filepath.Clean(localPath) {
		return localPath, nil
	}
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", u.dir, err)
	}
	if err := os.Rename(localPath, dst); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", localPath, err)
	}

	return dst, nil
}
