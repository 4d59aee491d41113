package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type AgentStatus string

const (
	AgentActive    AgentStatus = "active"
	AgentInactive  AgentStatus = "inactive"
	AgentSuspended AgentStatus = "suspended"
)

// Agent is a network participant. ReferrerID points at the agent that referred
// it; nil marks a root of the referral forest.
type Agent struct {
	AgentID    string                 `json:"agent_id"`
	ReferrerID *string                `json:"referrer_id,omitempty"`
	Status     AgentStatus            `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
	MetaData   map[string]interface{} `json:"meta_data,omitempty"`
}

func (a *Agent) IsActive() bool {
	return a.Status == AgentActive
}

func (a *Agent) HasReferrer() bool {
	return a.ReferrerID != nil && *a.ReferrerID != ""
}

// Referrer returns the referrer id or the empty string for a root agent.
func (a *Agent) Referrer() string {
	if !a.HasReferrer() {
		return ""
	}
	return *a.ReferrerID
}

func (a Agent) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.AgentID, validation.Required),
		validation.Field(&a.Status, validation.Required, validation.In(AgentActive, AgentInactive, AgentSuspended)),
		validation.Field(&a.ReferrerID, validation.NilOrNotEmpty, validation.NotIn(a.AgentID).Error("an agent cannot refer itself")),
	)
}

// Upline is the ancestor chain of an agent, nearest first.
type Upline struct {
	AgentID   string  `json:"agent_id"`
	Ancestors []Agent `json:"ancestors"`

	// CycleDetected is set when the walk met an id it had already visited.
	CycleDetected bool `json:"cycle_detected"`
	// Truncated is set when maxDepth was reached while the chain continued.
	Truncated bool `json:"truncated"`
	// MissingReferrer holds a referrer id with no agent record, if the walk ended on one.
	MissingReferrer string `json:"missing_referrer,omitempty"`
}

// IDs returns the ancestor ids in tier order.
func (u Upline) IDs() []string {
	ids := make([]string, 0, len(u.Ancestors))
	for _, a := range u.Ancestors {
		ids = append(ids, a.AgentID)
	}
	return ids
}

// Depth is the number of ancestors resolved.
func (u Upline) Depth() int {
	return len(u.Ancestors)
}
