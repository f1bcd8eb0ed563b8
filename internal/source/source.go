// Package source reads raw interactions from their landing locations (local
// CSV files and S3 object drops) and hands them to the pipeline in batches.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/riverline/support-ingest/internal/domain"
	"github.com/riverline/support-ingest/internal/normalizer"
)

// ErrNotFound means the configured file or object does not exist. It is
// fatal: the run aborts before any batch is processed.
var ErrNotFound = errors.New("source: data not found")

// BatchFunc receives one batch of raw rows. Returning an error stops the
// read and propagates.
type BatchFunc func(batch []domain.RawInteraction) error

// columnAliases maps known header spellings onto record fields. The Twitter
// export names differ between dataset versions.
var columnAliases = map[string]string{
	"tweet_id":                "external_id",
	"external_id":             "external_id",
	"author_id":               "author_id",
	"author":                  "author_id",
	"text":                    "text",
	"content_text":            "text",
	"created_at":              "created_at",
	"timestamp":               "created_at",
	"in_reply_to":             "in_reply_to",
	"in_reply_to_tweet_id":    "in_reply_to",
	"in_response_to_tweet_id": "in_reply_to",
}

type columnMap struct {
	externalID int
	authorID   int
	text       int
	createdAt  int
	inReplyTo  int
}

func mapHeader(header []string) (columnMap, error) {
	cm := columnMap{externalID: -1, authorID: -1, text: -1, createdAt: -1, inReplyTo: -1}
	for i, name := range header {
		switch columnAliases[strings.ToLower(strings.TrimSpace(name))] {
		case "external_id":
			cm.externalID = i
		case "author_id":
			cm.authorID = i
		case "text":
			cm.text = i
		case "created_at":
			cm.createdAt = i
		case "in_reply_to":
			cm.inReplyTo = i
		}
	}
	if cm.externalID < 0 || cm.authorID < 0 || cm.text < 0 || cm.createdAt < 0 {
		return cm, fmt.Errorf("source: header missing required columns (got %v)", header)
	}
	return cm, nil
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// readBatches streams CSV rows from r in batchSize chunks. Rows at or before
// the `after` watermark are skipped; rows whose timestamp cannot be parsed
// are kept so validation can flag them.
func readBatches(r io.Reader, after *time.Time, batchSize int, fn BatchFunc) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("source: read header: %w", err)
	}
	cm, err := mapHeader(header)
	if err != nil {
		return err
	}

	batch := make([]domain.RawInteraction, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch = make([]domain.RawInteraction, 0, batchSize)
		return nil
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed row: skip, the rest of the file is still usable.
			if errors.Is(err, csv.ErrFieldCount) {
				continue
			}
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				continue
			}
			return fmt.Errorf("source: read row: %w", err)
		}

		raw := domain.RawInteraction{
			ExternalID: field(row, cm.externalID),
			AuthorID:   field(row, cm.authorID),
			Text:       field(row, cm.text),
			CreatedAt:  field(row, cm.createdAt),
			InReplyTo:  field(row, cm.inReplyTo),
		}
		if after != nil {
			if ts, err := normalizer.ParseTimestamp(raw.CreatedAt); err == nil && !ts.UTC().After(*after) {
				continue
			}
		}

		batch = append(batch, raw)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
