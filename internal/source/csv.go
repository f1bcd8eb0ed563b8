package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/riverline/support-ingest/internal/domain"
	"github.com/riverline/support-ingest/internal/pkg/logger"
)

// CSVSource reads raw interactions from a local CSV file.
type CSVSource struct {
	path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// ReadBatches streams the file in batchSize chunks, skipping rows at or
// before the watermark.
func (s *CSVSource) ReadBatches(ctx context.Context, after *time.Time, batchSize int, fn BatchFunc) error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return fmt.Errorf("source: open %s: %w", s.path, err)
	}
	defer f.Close()

	logger.Info("Reading CSV source", "path", s.path, "batch_size", batchSize)

	return readBatches(f, after, batchSize, func(batch []domain.RawInteraction) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(batch)
	})
}
