package pipeline

import (
	"context"
	"time"

	"github.com/riverline/support-ingest/internal/domain"
	"github.com/riverline/support-ingest/internal/source"
	"github.com/riverline/support-ingest/internal/validator"
)

// Source streams raw interactions in batches. Rows at or before `after` are
// skipped by the implementation.
type Source interface {
	ReadBatches(ctx context.Context, after *time.Time, batchSize int, fn source.BatchFunc) error
}

// Sink persists processed records. Implementations dedup internally against
// their stored hashes, so a replayed batch inserts nothing.
type Sink interface {
	InsertBatch(ctx context.Context, records []domain.Record) (domain.InsertResult, error)
	ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error)
}

// MetricsSink stores per-batch validation summaries. Both sink
// implementations provide it.
type MetricsSink interface {
	RecordQualityMetrics(ctx context.Context, batchID, sourceID string, report validator.BatchReport) error
}

// WatermarkStore persists the per-source resume point.
type WatermarkStore interface {
	Get(ctx context.Context, sourceID string) (*domain.Watermark, error)
	Put(ctx context.Context, sourceID string, wm domain.Watermark) error
}
