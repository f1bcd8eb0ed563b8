// Package validator scores normalized records against structural and
// content-quality rules. Scoring is deterministic: the same record always
// yields the same verdict.
package validator

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/riverline/support-ingest/internal/domain"
)

// Penalty weights. Structural penalties subtract directly from the running
// score; the text and cross-field groups are each floored at zero before
// being folded in, so one terrible dimension cannot drive the total negative.
const (
	penaltyMissingField  = 0.3
	penaltyInvalidID     = 0.2
	penaltyInvalidTime   = 0.1
	penaltyInvalidAuthor = 0.1

	penaltyTextTooShort  = 0.3
	penaltyTextTooLong   = 0.2
	penaltyAllCaps       = 0.2
	penaltySymbolHeavy   = 0.3
	penaltyRepeatedChars = 0.2
	penaltyTooManyURLs   = 0.1

	penaltyReplyNoMention = 0.1
	penaltySelfReply      = 0.3
)

const (
	minIDDigits    = 10
	allCapsMinLen  = 20
	symbolRatioMax = 0.5
	repeatRunLen   = 6
	maxURLCount    = 3
)

var (
	numericIDRE = regexp.MustCompile(`^[0-9]+$`)
	authorRE    = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Validator applies the quality rules with configurable text bounds and
// acceptance threshold.
type Validator struct {
	minTextLen int
	maxTextLen int
	threshold  float64
}

// New returns a Validator. Threshold is the minimum score a record must
// reach; records at the threshold pass.
func New(minTextLen, maxTextLen int, threshold float64) *Validator {
	return &Validator{
		minTextLen: minTextLen,
		maxTextLen: maxTextLen,
		threshold:  threshold,
	}
}

// Threshold reports the configured acceptance threshold.
func (v *Validator) Threshold() float64 { return v.threshold }

// Validate scores a single record. A record is valid only when its score
// meets the threshold AND no issues were recorded; a fatal issue therefore
// rejects the record even if the score alone would pass.
func (v *Validator) Validate(rec domain.NormalizedRecord) domain.QualityVerdict {
	verdict := domain.QualityVerdict{Score: 1.0}

	v.checkStructure(rec, &verdict)
	v.checkText(rec, &verdict)
	v.checkCrossField(rec, &verdict)

	if verdict.Score < 0 {
		verdict.Score = 0
	}
	if verdict.Score > 1 {
		verdict.Score = 1
	}
	verdict.IsValid = verdict.Score >= v.threshold && len(verdict.Issues) == 0
	return verdict
}

func (v *Validator) checkStructure(rec domain.NormalizedRecord, verdict *domain.QualityVerdict) {
	missing := func(field string) {
		verdict.Issues = append(verdict.Issues, domain.IssueMissingField+":"+field)
		verdict.Score -= penaltyMissingField
	}

	if rec.ExternalID == "" {
		missing("external_id")
	} else if !numericIDRE.MatchString(rec.ExternalID) || len(rec.ExternalID) < minIDDigits {
		verdict.Issues = append(verdict.Issues, domain.IssueInvalidID)
		verdict.Score -= penaltyInvalidID
	}

	if rec.AuthorID == "" {
		missing("author_id")
	} else if !authorRE.MatchString(rec.AuthorID) {
		verdict.Issues = append(verdict.Issues, domain.IssueInvalidAuthor)
		verdict.Score -= penaltyInvalidAuthor
	}

	if rec.CreatedAt == "" {
		missing("created_at")
	} else if rec.CreatedAtParsed == nil {
		verdict.Issues = append(verdict.Issues, domain.IssueInvalidTime)
		verdict.Score -= penaltyInvalidTime
	}
}

func (v *Validator) checkText(rec domain.NormalizedRecord, verdict *domain.QualityVerdict) {
	if rec.Text == "" {
		verdict.Issues = append(verdict.Issues, domain.IssueEmptyText)
		verdict.Score = 0
		return
	}

	textScore := 1.0
	runes := []rune(rec.Text)

	if len(runes) < v.minTextLen {
		verdict.Issues = append(verdict.Issues, domain.IssueTextTooShort)
		textScore -= penaltyTextTooShort
	}
	if len(runes) > v.maxTextLen {
		verdict.Issues = append(verdict.Issues, domain.IssueTextTooLong)
		textScore -= penaltyTextTooLong
	}
	if len(runes) > allCapsMinLen && isAllCaps(rec.Text) {
		verdict.Issues = append(verdict.Issues, domain.IssueAllCaps)
		textScore -= penaltyAllCaps
	}
	if symbolRatio(runes) > symbolRatioMax {
		verdict.Issues = append(verdict.Issues, domain.IssueSymbolHeavy)
		textScore -= penaltySymbolHeavy
	}
	if hasRepeatedRun(runes, repeatRunLen) {
		verdict.Issues = append(verdict.Issues, domain.IssueRepeatedChars)
		textScore -= penaltyRepeatedChars
	}
	if len(rec.URLs) > maxURLCount {
		verdict.Issues = append(verdict.Issues, domain.IssueTooManyURLs)
		textScore -= penaltyTooManyURLs
	}

	if textScore < 0 {
		textScore = 0
	}
	if textScore < verdict.Score {
		verdict.Score = textScore
	}
}

func (v *Validator) checkCrossField(rec domain.NormalizedRecord, verdict *domain.QualityVerdict) {
	crossScore := 1.0

	if rec.InReplyTo != "" {
		// Replies typically open with the mention of who they answer.
		if !strings.HasPrefix(rec.Text, "@") {
			verdict.Issues = append(verdict.Issues, domain.IssueReplyNoMention)
			crossScore -= penaltyReplyNoMention
		}
		if rec.ExternalID != "" && rec.InReplyTo == rec.ExternalID {
			verdict.Issues = append(verdict.Issues, domain.IssueSelfReply)
			crossScore -= penaltySelfReply
		}
	}

	if crossScore < verdict.Score {
		verdict.Score = crossScore
	}
}

// isAllCaps reports whether every letter in text is uppercase and at least
// one letter exists.
func isAllCaps(text string) bool {
	hasLetter := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// hasRepeatedRun reports whether any rune appears n or more times in a row.
func hasRepeatedRun(runes []rune, n int) bool {
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// symbolRatio returns the fraction of runes that are neither letters,
// digits, nor whitespace.
func symbolRatio(runes []rune) float64 {
	if len(runes) == 0 {
		return 0
	}
	symbols := 0
	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			symbols++
		}
	}
	return float64(symbols) / float64(len(runes))
}

// RecordResult pairs a verdict with the record's position in the batch so
// downstream consumers can trace a score back to its row.
type RecordResult struct {
	Index   int
	Verdict domain.QualityVerdict
}

// BatchReport aggregates verdicts over one processing batch. Scores and
// Results are index-aligned with the validated batch.
type BatchReport struct {
	Total       int
	Valid       int
	Invalid     int
	AvgScore    float64
	Scores      []float64
	Results     []RecordResult
	IssueCounts map[string]int
}

// ValidRate returns the fraction of records that passed, 0 for an empty
// batch.
func (r BatchReport) ValidRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Valid) / float64(r.Total)
}

// Report summarizes a slice of verdicts.
func Report(verdicts []domain.QualityVerdict) BatchReport {
	rep := BatchReport{
		Scores:      make([]float64, 0, len(verdicts)),
		Results:     make([]RecordResult, 0, len(verdicts)),
		IssueCounts: make(map[string]int),
	}
	sum := 0.0
	for i, v := range verdicts {
		rep.Total++
		sum += v.Score
		rep.Scores = append(rep.Scores, v.Score)
		rep.Results = append(rep.Results, RecordResult{Index: i, Verdict: v})
		if v.IsValid {
			rep.Valid++
		} else {
			rep.Invalid++
		}
		for _, issue := range v.Issues {
			rep.IssueCounts[issue]++
		}
	}
	if rep.Total > 0 {
		rep.AvgScore = sum / float64(rep.Total)
	}
	return rep
}

// ShortIssue trims the field suffix from a namespaced issue code, e.g.
// "missing_required_field:author_id" -> "missing_required_field".
func ShortIssue(issue string) string {
	if i := strings.IndexByte(issue, ':'); i >= 0 {
		return issue[:i]
	}
	return issue
}
