package domain

import "time"

// RawInteraction is a single social-media interaction as delivered by a
// source, before any cleaning. Fields may be empty; CreatedAt is the raw
// string exactly as the source produced it.
type RawInteraction struct {
	ExternalID string `json:"external_id"`
	AuthorID   string `json:"author_id"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at"`
	InReplyTo  string `json:"in_reply_to,omitempty"`
}

// NormalizedRecord is the 1:1 cleaned derivative of a RawInteraction.
//
// CreatedAt keeps the original raw string; CreatedAtParsed is nil when the
// timestamp could not be parsed (the failure surfaces as a quality issue
// rather than a substituted value).
type NormalizedRecord struct {
	ExternalID      string     `json:"external_id"`
	AuthorID        string     `json:"author_id"`
	Text            string     `json:"text"`
	CreatedAt       string     `json:"created_at"`
	CreatedAtParsed *time.Time `json:"created_at_parsed,omitempty"`
	InReplyTo       string     `json:"in_reply_to,omitempty"`
	Language        string     `json:"language"`
	Mentions        []string   `json:"mentions"`
	Hashtags        []string   `json:"hashtags"`
	URLs            []string   `json:"urls"`
}

// Record is the full persisted unit: a normalized record plus its thread
// assignment, quality verdict, and deduplication hash. This is the row shape
// every sink receives.
type Record struct {
	NormalizedRecord

	ConversationID    string  `json:"conversation_id"`
	ThreadPosition    int     `json:"thread_position"`
	IsCustomerMessage bool    `json:"is_customer_message"`
	ConversationType  string  `json:"conversation_type"`
	TotalMessages     int     `json:"total_messages"`
	CustomerMessages  int     `json:"customer_messages"`
	Participants      int     `json:"unique_participants"`
	DurationHours     float64 `json:"duration_hours"`

	RecordHash   string   `json:"record_hash"`
	QualityScore float64  `json:"data_quality_score"`
	Issues       []string `json:"quality_issues"`

	SourceID string `json:"data_source"`
}

// InsertResult reports per-batch sink outcomes.
type InsertResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}
