package snowflake

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/riverline/support-ingest/internal/domain"
	"github.com/riverline/support-ingest/internal/validator"
)

// List-valued fields are stored as JSON strings; Snowflake array binding
// through database/sql is not worth the ceremony for columns we only read
// analytically.
func jsonList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// ExistingHashes returns which of the given hashes are already stored.
func (c *Client) ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(hashes) == 0 {
		return existing, nil
	}

	query := fmt.Sprintf(
		`SELECT RECORD_HASH FROM CUSTOMER_INTERACTIONS WHERE RECORD_HASH IN (%s)`,
		placeholders(len(hashes)),
	)
	args := make([]interface{}, len(hashes))
	for i, h := range hashes {
		args[i] = h
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan hash: %w", err)
		}
		existing[h] = struct{}{}
	}
	return existing, rows.Err()
}

// InsertBatch writes records whose hash is not already stored. Per-row insert
// failures count as errors without failing the batch.
func (c *Client) InsertBatch(ctx context.Context, records []domain.Record) (domain.InsertResult, error) {
	var result domain.InsertResult
	if len(records) == 0 {
		return result, nil
	}

	hashes := make([]string, len(records))
	for i, rec := range records {
		hashes[i] = rec.RecordHash
	}
	existing, err := c.ExistingHashes(ctx, hashes)
	if err != nil {
		return result, err
	}

	stmt, err := c.db.PrepareContext(ctx, `
		INSERT INTO CUSTOMER_INTERACTIONS (
			EXTERNAL_ID, AUTHOR_ID, TEXT, CREATED_AT, CREATED_AT_RAW, LANGUAGE,
			MENTIONS, HASHTAGS, URLS, IN_REPLY_TO,
			CONVERSATION_ID, THREAD_POSITION, IS_CUSTOMER_MESSAGE, CONVERSATION_TYPE,
			TOTAL_MESSAGES, CUSTOMER_MESSAGES, UNIQUE_PARTICIPANTS, DURATION_HOURS,
			RECORD_HASH, DATA_QUALITY_SCORE, QUALITY_ISSUES, DATA_SOURCE, PROCESSED_AT
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP())
	`)
	if err != nil {
		return result, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, dup := existing[rec.RecordHash]; dup {
			result.Duplicates++
			continue
		}

		var createdAt sql.NullTime
		if rec.CreatedAtParsed != nil {
			createdAt = sql.NullTime{Time: *rec.CreatedAtParsed, Valid: true}
		}

		_, err := stmt.ExecContext(ctx,
			rec.ExternalID, rec.AuthorID, rec.Text, createdAt, rec.CreatedAt, rec.Language,
			jsonList(rec.Mentions), jsonList(rec.Hashtags), jsonList(rec.URLs), rec.InReplyTo,
			rec.ConversationID, rec.ThreadPosition, rec.IsCustomerMessage, rec.ConversationType,
			rec.TotalMessages, rec.CustomerMessages, rec.Participants, rec.DurationHours,
			rec.RecordHash, rec.QualityScore, jsonList(rec.Issues), rec.SourceID,
		)
		if err != nil {
			result.Errors++
			continue
		}
		result.Inserted++
	}
	return result, nil
}

// RecordQualityMetrics stores one per-batch validation summary row.
func (c *Client) RecordQualityMetrics(ctx context.Context, batchID, sourceID string, report validator.BatchReport) error {
	issueCounts, err := json.Marshal(report.IssueCounts)
	if err != nil {
		return fmt.Errorf("failed to encode issue counts: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO QUALITY_METRICS (
			BATCH_ID, DATA_SOURCE, TOTAL_RECORDS, VALID_RECORDS, INVALID_RECORDS,
			AVG_QUALITY_SCORE, VALID_RATE, ISSUE_COUNTS, RECORDED_AT
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP())
	`, batchID, sourceID, report.Total, report.Valid, report.Invalid,
		report.AvgScore, report.ValidRate(), string(issueCounts))
	if err != nil {
		return fmt.Errorf("failed to record quality metrics: %w", err)
	}
	return nil
}
