package destinations

import "fmt"

type DstType int32

const (
	LocalFile DstType = iota
	S3File
)

func (s DstType) String() string {
	switch s {
	case LocalFile:
		return "local"
	case S3File:
		return "s3"
	}

	return "unknown"
}

// Parse maps a configured destination name to its type. Empty means local.
func Parse(s string) (DstType, error) {
	switch s {
	case "", LocalFile.String():
		return LocalFile, nil
	case S3File.String():
		return S3File, nil
	}

	return 0, fmt.Errorf("unsupported destination type: %s", s)
}
