package domain

// Quality issue codes. The issue list on a verdict contains these codes so
// downstream histograms aggregate by stable keys rather than free text.
const (
	IssueMissingField   = "missing_required_field"
	IssueInvalidID      = "invalid_external_id"
	IssueInvalidAuthor  = "invalid_author_id"
	IssueInvalidTime    = "invalid_timestamp"
	IssueEmptyText      = "empty_text"
	IssueTextTooShort   = "text_too_short"
	IssueTextTooLong    = "text_too_long"
	IssueAllCaps        = "all_caps_text"
	IssueSymbolHeavy    = "excessive_special_chars"
	IssueRepeatedChars  = "repeated_characters"
	IssueTooManyURLs    = "multiple_urls"
	IssueReplyNoMention = "reply_without_mention"
	IssueSelfReply      = "self_reply"
)

// QualityVerdict is the per-record output of the validator. It is attached
// to a record before persistence and never stored on its own.
type QualityVerdict struct {
	IsValid bool     `json:"is_valid"`
	Issues  []string `json:"issues"`
	Score   float64  `json:"score"`
}
