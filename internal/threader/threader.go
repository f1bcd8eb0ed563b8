// Package threader groups normalized records into conversation threads.
//
// Threading runs in two passes: an explicit reply-chain pass that follows
// in_reply_to references, then a heuristic merge pass that joins
// conversations a customer split across multiple root messages. Positions
// are compacted to a contiguous 0..n-1 range per conversation afterwards.
package threader

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/riverline/support-ingest/internal/domain"
)

const (
	mergeWindow          = 24 * time.Hour
	mergeSimilarityMin   = 0.30
	conversationIDFormat = "conv_%08d"
)

// brandAuthorHints mark an author handle as a brand/support account.
var brandAuthorHints = []string{"support", "help", "service", "care", "assist", "team"}

// brandPhrases mark message text as written by a support agent even when the
// handle gives nothing away.
var brandPhrases = []string{
	"thank you for contacting",
	"we apologize",
	"please dm us",
	"sorry for the inconvenience",
	"we can help",
	"please reach out",
	"our team will",
	"thanks for reaching out",
}

// similarityStopwords are excluded before comparing root-message tokens.
var similarityStopwords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "with": {}, "by": {},
}

var tokenRE = regexp.MustCompile(`\w+`)

// Result is the threading outcome for one batch. Records is a copy of the
// input in chronological order; Threads is index-aligned with it.
type Result struct {
	Records   []domain.NormalizedRecord
	Threads   []domain.ThreadInfo
	Summaries map[string]domain.ConversationSummary
}

// Threader assigns conversation IDs. IDs are unique for the lifetime of one
// Threader, so a pipeline run shares a single instance across batches.
type Threader struct {
	nextConv int
}

func New() *Threader {
	return &Threader{}
}

func (t *Threader) newConversationID() string {
	t.nextConv++
	return fmt.Sprintf(conversationIDFormat, t.nextConv)
}

// Thread groups records into conversations and classifies each message.
func (t *Threader) Thread(records []domain.NormalizedRecord) Result {
	n := len(records)
	sorted := make([]domain.NormalizedRecord, n)
	copy(sorted, records)

	// Chronological order; unparseable timestamps sort as the zero time and
	// keep their input order relative to each other.
	sort.SliceStable(sorted, func(i, j int) bool {
		return sortKey(sorted[i]).Before(sortKey(sorted[j]))
	})

	convOf := make([]string, n)
	indexByID := make(map[string]int, n)
	for i, rec := range sorted {
		if rec.ExternalID != "" {
			indexByID[rec.ExternalID] = i
		}
	}

	// Pass 1: follow explicit reply chains. A reply whose parent is not in
	// the batch roots its own conversation.
	for i, rec := range sorted {
		if rec.InReplyTo != "" {
			if p, ok := indexByID[rec.InReplyTo]; ok && convOf[p] != "" {
				convOf[i] = convOf[p]
				continue
			}
		}
		convOf[i] = t.newConversationID()
	}

	// Pass 2: merge split conversations. Any member of one conversation that
	// lands near a same-author message in another, with enough shared
	// vocabulary, joins the two.
	t.mergeSplitConversations(sorted, convOf)

	members := make(map[string][]int, n)
	for i := range sorted {
		members[convOf[i]] = append(members[convOf[i]], i)
	}

	threads := make([]domain.ThreadInfo, n)
	summaries := make(map[string]domain.ConversationSummary, len(members))
	for convID, idxs := range members {
		// idxs is already chronological; compact positions to 0..n-1.
		summary := domain.ConversationSummary{ConversationID: convID}
		participants := make(map[string]struct{})
		for pos, i := range idxs {
			rec := sorted[i]
			brand := IsBrandMessage(rec.AuthorID, rec.Text)

			threads[i] = domain.ThreadInfo{
				ConversationID:    convID,
				ThreadPosition:    pos,
				IsCustomerMessage: !brand,
				ConversationType:  classify(brand, pos),
			}

			summary.TotalMessages++
			if brand {
				summary.BrandMessages++
			} else {
				summary.CustomerMessages++
			}
			if rec.AuthorID != "" {
				participants[rec.AuthorID] = struct{}{}
			}
			if ts := rec.CreatedAtParsed; ts != nil {
				if summary.StartTime == nil || ts.Before(*summary.StartTime) {
					summary.StartTime = ts
				}
				if summary.EndTime == nil || ts.After(*summary.EndTime) {
					summary.EndTime = ts
				}
			}
		}
		summary.Participants = len(participants)
		if summary.StartTime != nil && summary.EndTime != nil {
			summary.DurationHours = summary.EndTime.Sub(*summary.StartTime).Hours()
		}
		summaries[convID] = summary
	}

	return Result{Records: sorted, Threads: threads, Summaries: summaries}
}

// mergeSplitConversations rewrites convOf in place. Every member of every
// conversation is a merge candidate, so a customer whose only presence in a
// brand-rooted thread is a reply still pulls their later root back in.
// Candidates are bucketed by author, which keeps the pairwise comparison off
// the full batch.
func (t *Threader) mergeSplitConversations(sorted []domain.NormalizedRecord, convOf []string) {
	byAuthor := make(map[string][]int)
	for i, rec := range sorted {
		if rec.AuthorID == "" || rec.CreatedAtParsed == nil {
			continue
		}
		byAuthor[rec.AuthorID] = append(byAuthor[rec.AuthorID], i)
	}

	rename := make(map[string]string)
	for _, idxs := range byAuthor {
		if len(idxs) < 2 {
			continue
		}
		// idxs is chronological, so the first member of a pair is the earlier
		// one and the later conversation folds into the earlier.
		for i := 0; i < len(idxs); i++ {
			for j := i + 1; j < len(idxs); j++ {
				ca := resolve(rename, convOf[idxs[i]])
				cb := resolve(rename, convOf[idxs[j]])
				if ca == cb {
					continue
				}
				a, b := sorted[idxs[i]], sorted[idxs[j]]
				if b.CreatedAtParsed.Sub(*a.CreatedAtParsed) > mergeWindow {
					continue
				}
				if TextSimilarity(a.Text, b.Text) > mergeSimilarityMin {
					rename[cb] = ca
				}
			}
		}
	}
	if len(rename) == 0 {
		return
	}
	for i := range convOf {
		convOf[i] = resolve(rename, convOf[i])
	}
}

func resolve(rename map[string]string, conv string) string {
	for {
		next, ok := rename[conv]
		if !ok {
			return conv
		}
		conv = next
	}
}

func classify(brand bool, position int) domain.ConversationType {
	switch {
	case brand && position == 0:
		return domain.ConversationBrandInitiated
	case brand:
		return domain.ConversationBrandResponse
	case position == 0:
		return domain.ConversationCustomerInquiry
	default:
		return domain.ConversationCustomerFollowup
	}
}

// IsBrandMessage reports whether the author handle or the message text looks
// like it came from a support account.
func IsBrandMessage(authorID, text string) bool {
	author := strings.ToLower(authorID)
	for _, hint := range brandAuthorHints {
		if strings.Contains(author, hint) {
			return true
		}
	}
	lower := strings.ToLower(text)
	for _, phrase := range brandPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// TextSimilarity is token overlap over the smaller token set, stopwords
// removed. Returns 0 when either side has no tokens left.
func TextSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}
	overlap := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(ta))
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenRE.FindAllString(strings.ToLower(text), -1) {
		if _, stop := similarityStopwords[tok]; stop {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

func sortKey(rec domain.NormalizedRecord) time.Time {
	if rec.CreatedAtParsed != nil {
		return *rec.CreatedAtParsed
	}
	return time.Time{}
}
