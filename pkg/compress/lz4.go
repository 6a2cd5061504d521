package compress

import (
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

type LZ4Compressor struct{}

func NewLZ4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer := lz4.NewWriter(w)

	// Set compression level (1-9)
	if level >= 1 && level <= 9 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.CompressionLevel(level))); err != nil {
			return nil, fmt.Errorf("failed to apply compression level: %w", err)
		}
	}

	return writer, nil
}

func (c *LZ4Compressor) Extension() string {
	return ".lz4"
}

func (c *LZ4Compressor) DefaultLevel() int {
	return 1 // Fast compression
}
