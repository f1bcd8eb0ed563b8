// Package postgres implements the relational sink against PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/riverline/support-ingest/internal/domain"
	"github.com/riverline/support-ingest/internal/validator"
)

// InteractionRepo persists processed records and quality metrics.
type InteractionRepo struct{ db *sql.DB }

// NewInteractionRepo creates a Postgres-backed interaction sink.
func NewInteractionRepo(db *sql.DB) *InteractionRepo { return &InteractionRepo{db: db} }

// Open connects via lib/pq and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// ExistingHashes returns which of the given hashes are already stored.
func (r *InteractionRepo) ExistingHashes(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(hashes) == 0 {
		return existing, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT record_hash FROM customer_interactions WHERE record_hash = ANY($1)`,
		pq.Array(hashes),
	)
	if err != nil {
		return nil, fmt.Errorf("query existing hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		existing[h] = struct{}{}
	}
	return existing, rows.Err()
}

// InsertBatch writes records that are not already stored. Rows whose hash
// exists count as duplicates; a row that fails to insert counts as an error
// without failing the batch.
func (r *InteractionRepo) InsertBatch(ctx context.Context, records []domain.Record) (domain.InsertResult, error) {
	var result domain.InsertResult
	if len(records) == 0 {
		return result, nil
	}

	hashes := make([]string, len(records))
	for i, rec := range records {
		hashes[i] = rec.RecordHash
	}
	existing, err := r.ExistingHashes(ctx, hashes)
	if err != nil {
		return result, err
	}

	// Rows insert individually so one bad row cannot abort the rest of the
	// batch.
	stmt, err := r.db.PrepareContext(ctx, `
		INSERT INTO customer_interactions (
			external_id, author_id, text, created_at, created_at_raw, language,
			mentions, hashtags, urls, in_reply_to,
			conversation_id, thread_position, is_customer_message, conversation_type,
			total_messages, customer_messages, unique_participants, duration_hours,
			record_hash, data_quality_score, quality_issues, data_source, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		          $15, $16, $17, $18, $19, $20, $21, $22, NOW())
		ON CONFLICT (record_hash) DO NOTHING
	`)
	if err != nil {
		return result, fmt.Errorf("prepare insert: %w", err)
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
			pq.Array(rec.Mentions), pq.Array(rec.Hashtags), pq.Array(rec.URLs), rec.InReplyTo,
			rec.ConversationID, rec.ThreadPosition, rec.IsCustomerMessage, rec.ConversationType,
			rec.TotalMessages, rec.CustomerMessages, rec.Participants, rec.DurationHours,
			rec.RecordHash, rec.QualityScore, pq.Array(rec.Issues), rec.SourceID,
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
func (r *InteractionRepo) RecordQualityMetrics(ctx context.Context, batchID, sourceID string, report validator.BatchReport) error {
	issueCounts, err := json.Marshal(report.IssueCounts)
	if err != nil {
		return fmt.Errorf("encode issue counts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO quality_metrics (
			batch_id, data_source, total_records, valid_records, invalid_records,
			avg_quality_score, valid_rate, issue_counts, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, batchID, sourceID, report.Total, report.Valid, report.Invalid,
		report.AvgScore, report.ValidRate(), issueCounts)
	if err != nil {
		return fmt.Errorf("record quality metrics: %w", err)
	}
	return nil
}
