package domain

import "time"

// ConversationType classifies the role of a message within its thread.
type ConversationType string

const (
	ConversationCustomerInquiry  ConversationType = "customer_inquiry"
	ConversationCustomerFollowup ConversationType = "customer_followup"
	ConversationBrandInitiated   ConversationType = "brand_initiated"
	ConversationBrandResponse    ConversationType = "brand_response"
	ConversationUnknown          ConversationType = "unknown"
)

// ThreadInfo is the threading assignment for one record: which conversation
// it belongs to, where it sits, and how it was classified.
type ThreadInfo struct {
	ConversationID    string           `json:"conversation_id"`
	ThreadPosition    int              `json:"thread_position"`
	IsCustomerMessage bool             `json:"is_customer_message"`
	ConversationType  ConversationType `json:"conversation_type"`
}

// ConversationSummary aggregates one conversation thread.
type ConversationSummary struct {
	ConversationID   string     `json:"conversation_id"`
	TotalMessages    int        `json:"total_messages"`
	CustomerMessages int        `json:"customer_messages"`
	BrandMessages    int        `json:"brand_messages"`
	Participants     int        `json:"unique_participants"`
	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	DurationHours    float64    `json:"duration_hours"`
}
