package threader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverline/support-ingest/internal/domain"
)

func rec(id, author, text string, ts time.Time, replyTo string) domain.NormalizedRecord {
	t := ts
	return domain.NormalizedRecord{
		ExternalID:      id,
		AuthorID:        author,
		Text:            text,
		CreatedAt:       ts.Format(time.RFC3339),
		CreatedAtParsed: &t,
		InReplyTo:       replyTo,
	}
}

func base() time.Time {
	return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
}

func TestThreadReplyChain(t *testing.T) {
	t0 := base()
	records := []domain.NormalizedRecord{
		rec("1", "jdoe", "my order never arrived, please check", t0, ""),
		rec("2", "acme_support", "thanks for reaching out, checking now", t0.Add(10*time.Minute), "1"),
		rec("3", "jdoe", "any update on the order yet", t0.Add(30*time.Minute), "2"),
	}

	res := New().Thread(records)
	require.Len(t, res.Threads, 3)

	conv := res.Threads[0].ConversationID
	assert.Equal(t, "conv_00000001", conv)
	for i, ti := range res.Threads {
		assert.Equal(t, conv, ti.ConversationID)
		assert.Equal(t, i, ti.ThreadPosition)
	}

	assert.Equal(t, domain.ConversationCustomerInquiry, res.Threads[0].ConversationType)
	assert.Equal(t, domain.ConversationBrandResponse, res.Threads[1].ConversationType)
	assert.Equal(t, domain.ConversationCustomerFollowup, res.Threads[2].ConversationType)
	assert.True(t, res.Threads[0].IsCustomerMessage)
	assert.False(t, res.Threads[1].IsCustomerMessage)
}

func TestThreadOrphanReplyRootsNewConversation(t *testing.T) {
	// The parent is not in the batch, so the reply becomes a root. A brand
	// author at position zero classifies as brand-initiated.
	records := []domain.NormalizedRecord{
		rec("9", "acme_help", "we apologize, your replacement ships today", base(), "not-present"),
	}

	res := New().Thread(records)
	require.Len(t, res.Threads, 1)
	assert.Equal(t, 0, res.Threads[0].ThreadPosition)
	assert.Equal(t, domain.ConversationBrandInitiated, res.Threads[0].ConversationType)
	assert.False(t, res.Threads[0].IsCustomerMessage)
}

func TestThreadChronologicalOrder(t *testing.T) {
	t0 := base()
	records := []domain.NormalizedRecord{
		rec("2", "acme_support", "thank you for contacting us", t0.Add(time.Hour), "1"),
		rec("1", "jdoe", "where is my refund for order 12", t0, ""),
	}

	res := New().Thread(records)
	assert.Equal(t, "1", res.Records[0].ExternalID)
	assert.Equal(t, "2", res.Records[1].ExternalID)
	assert.Equal(t, 0, res.Threads[0].ThreadPosition)
	assert.Equal(t, 1, res.Threads[1].ThreadPosition)
}

func TestThreadUnparseableTimestampsSortFirst(t *testing.T) {
	t0 := base()
	noTS := domain.NormalizedRecord{ExternalID: "7", AuthorID: "alice", Text: "broken date on this one", CreatedAt: "junk"}
	records := []domain.NormalizedRecord{
		rec("1", "bob", "ordinary message with a date", t0, ""),
		noTS,
	}

	res := New().Thread(records)
	assert.Equal(t, "7", res.Records[0].ExternalID)
	assert.Equal(t, "1", res.Records[1].ExternalID)
}

func TestThreadMergesSplitConversations(t *testing.T) {
	t0 := base()
	records := []domain.NormalizedRecord{
		rec("1", "jdoe", "my laptop screen is flickering badly after update", t0, ""),
		rec("2", "jdoe", "laptop screen still flickering after the update, any fix", t0.Add(2*time.Hour), ""),
	}

	res := New().Thread(records)
	require.Len(t, res.Threads, 2)
	assert.Equal(t, res.Threads[0].ConversationID, res.Threads[1].ConversationID)

	// Positions compact to 0..n-1 after the merge.
	assert.Equal(t, 0, res.Threads[0].ThreadPosition)
	assert.Equal(t, 1, res.Threads[1].ThreadPosition)
	assert.Equal(t, domain.ConversationCustomerFollowup, res.Threads[1].ConversationType)
}

func TestThreadMergesFollowupRootIntoBrandThread(t *testing.T) {
	// The customer's only presence in the first thread is a reply, so the
	// merge scan has to consider members, not just conversation roots.
	t0 := base()
	records := []domain.NormalizedRecord{
		rec("1", "acme_support", "thanks for reaching out, how can we help", t0, ""),
		rec("2", "jdoe", "@acme_support my laptop screen is flickering badly", t0.Add(10*time.Minute), "1"),
		rec("3", "jdoe", "laptop screen still flickering badly after restart", t0.Add(2*time.Hour), ""),
	}

	res := New().Thread(records)
	require.Len(t, res.Threads, 3)

	conv := res.Threads[0].ConversationID
	assert.Equal(t, conv, res.Threads[1].ConversationID)
	assert.Equal(t, conv, res.Threads[2].ConversationID)
	for i, ti := range res.Threads {
		assert.Equal(t, i, ti.ThreadPosition)
	}
	assert.Equal(t, 3, res.Summaries[conv].TotalMessages)
}

func TestThreadNoMergeAcrossWindow(t *testing.T) {
	t0 := base()
	records := []domain.NormalizedRecord{
		rec("1", "jdoe", "my laptop screen is flickering badly", t0, ""),
		rec("2", "jdoe", "laptop screen flickering badly again", t0.Add(48*time.Hour), ""),
	}

	res := New().Thread(records)
	assert.NotEqual(t, res.Threads[0].ConversationID, res.Threads[1].ConversationID)
}

func TestThreadNoMergeDissimilarText(t *testing.T) {
	t0 := base()
	records := []domain.NormalizedRecord{
		rec("1", "jdoe", "my laptop screen is flickering", t0, ""),
		rec("2", "jdoe", "billing charged me twice this month", t0.Add(time.Hour), ""),
	}

	res := New().Thread(records)
	assert.NotEqual(t, res.Threads[0].ConversationID, res.Threads[1].ConversationID)
}

func TestThreadSummaries(t *testing.T) {
	t0 := base()
	records := []domain.NormalizedRecord{
		rec("1", "jdoe", "package arrived damaged, what now", t0, ""),
		rec("2", "acme_care", "sorry for the inconvenience, we can help", t0.Add(time.Hour), "1"),
		rec("3", "jdoe", "ok sending photos of the damaged package", t0.Add(3*time.Hour), "2"),
	}

	res := New().Thread(records)
	conv := res.Threads[0].ConversationID
	summary, ok := res.Summaries[conv]
	require.True(t, ok)

	assert.Equal(t, 3, summary.TotalMessages)
	assert.Equal(t, 2, summary.CustomerMessages)
	assert.Equal(t, 1, summary.BrandMessages)
	assert.Equal(t, 2, summary.Participants)
	assert.InDelta(t, 3.0, summary.DurationHours, 1e-9)
	require.NotNil(t, summary.StartTime)
	require.NotNil(t, summary.EndTime)
	assert.True(t, summary.StartTime.Equal(t0))
}

func TestThreadIDsUniqueAcrossBatches(t *testing.T) {
	th := New()
	first := th.Thread([]domain.NormalizedRecord{rec("1", "a1", "first batch message here", base(), "")})
	second := th.Thread([]domain.NormalizedRecord{rec("2", "a2", "second batch message here", base(), "")})

	assert.NotEqual(t, first.Threads[0].ConversationID, second.Threads[0].ConversationID)
}

func TestIsBrandMessage(t *testing.T) {
	assert.True(t, IsBrandMessage("AcmeSupport", "anything"))
	assert.True(t, IsBrandMessage("acme_care", ""))
	assert.True(t, IsBrandMessage("randomuser", "Thank you for contacting us today"))
	assert.False(t, IsBrandMessage("jdoe", "my order is late"))
}

func TestTextSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, TextSimilarity("laptop screen broken", "laptop screen broken"))
	assert.Equal(t, 0.0, TextSimilarity("laptop screen", "billing invoice"))
	assert.Equal(t, 0.0, TextSimilarity("", "anything"))

	// Stopwords never count toward overlap.
	assert.Equal(t, 0.0, TextSimilarity("the and or", "the with by"))
}
