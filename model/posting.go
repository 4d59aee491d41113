package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// PaymentEvent is a confirmed payment by an agent. BaseAmount is in minor units.
type PaymentEvent struct {
	EventID    string    `json:"event_id"`
	AgentID    string    `json:"agent_id"`
	PlanID     string    `json:"plan_id"`
	Frequency  string    `json:"frequency"`
	BaseAmount int64     `json:"base_amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e PaymentEvent) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.EventID, validation.Required),
		validation.Field(&e.AgentID, validation.Required),
		validation.Field(&e.PlanID, validation.Required),
		validation.Field(&e.Frequency, validation.Required),
		validation.Field(&e.BaseAmount, validation.Required, validation.Min(int64(1))),
	)
}

// ProcessedEvent is the journal row written once per distributed payment event.
type ProcessedEvent struct {
	PaymentEvent
	TotalAmount  int64     `json:"total_amount"`
	PostingCount int       `json:"posting_count"`
	ProcessedAt  time.Time `json:"processed_at"`
}

type PostingStatus string

const (
	PostingCalculated PostingStatus = "calculated"
	PostingPending    PostingStatus = "pending"
	PostingPaid       PostingStatus = "paid"
	PostingReversed   PostingStatus = "reversed"
)

var postingTransitions = map[PostingStatus][]PostingStatus{
	PostingCalculated: {PostingPending, PostingPaid, PostingReversed},
	PostingPending:    {PostingPaid, PostingReversed},
	PostingPaid:       {PostingReversed},
}

// CanTransitionTo reports whether a posting may move from s to next.
func (s PostingStatus) CanTransitionTo(next PostingStatus) bool {
	for _, allowed := range postingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CommissionPosting is the commission owed to one agent at one tier of one event.
// (EventID, AgentID, Tier) is unique.
type CommissionPosting struct {
	PostingID      string        `json:"posting_id"`
	EventID        string        `json:"event_id"`
	AgentID        string        `json:"agent_id"`
	SourceAgentID  string        `json:"source_agent_id"`
	RuleID         string        `json:"rule_id"`
	Tier           int           `json:"tier"`
	BaseAmount     int64         `json:"base_amount"`
	Amount         int64         `json:"amount"`
	Status         PostingStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	ReversedAt     *time.Time    `json:"reversed_at,omitempty"`
	ReversalReason string        `json:"reversal_reason,omitempty"`
}

type SkipReason string

const (
	SkipInactiveAgent SkipReason = "inactive_agent"
	SkipNoRule        SkipReason = "no_rule"
	SkipBelowMinimum  SkipReason = "below_minimum"
	SkipZeroAmount    SkipReason = "zero_amount"
)

// SkippedTier records a tier that produced no posting.
type SkippedTier struct {
	Tier    int        `json:"tier"`
	AgentID string     `json:"agent_id"`
	Reason  SkipReason `json:"reason"`
}

// DistributionResult is what a payment event paid out.
// Replayed is set when the event had already been distributed.
type DistributionResult struct {
	EventID       string              `json:"event_id"`
	Postings      []CommissionPosting `json:"postings"`
	TotalAmount   int64               `json:"total_amount"`
	Skipped       []SkippedTier       `json:"skipped,omitempty"`
	Replayed      bool                `json:"replayed"`
	CycleDetected bool                `json:"cycle_detected,omitempty"`
}
