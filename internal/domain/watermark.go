package domain

import "time"

// Watermark marks the most recent successfully committed point in a source
// stream. Exactly one current value exists per source; it only moves forward,
// and only after a run's inserts have succeeded.
type Watermark struct {
	SourceID         string    `json:"source_id"`
	LastProcessedAt  time.Time `json:"last_processed_timestamp"`
	LastProcessedID  string    `json:"last_processed_id"`
	RecordsProcessed int64     `json:"records_processed"`
	UpdatedAt        time.Time `json:"processing_timestamp"`
	BatchInfo        string    `json:"batch_info,omitempty"`
}
