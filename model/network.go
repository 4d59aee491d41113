package model

import "time"

// NetworkLevel is the derived position of an agent in its referral tree.
// The root is level 1. Rows are rebuilt from agents and ledger entries and
// are never used for money decisions.
type NetworkLevel struct {
	AgentID          string    `json:"agent_id"`
	RootAgentID      string    `json:"root_agent_id"`
	Level            int       `json:"level"`
	Path             []string  `json:"path"`
	DirectDownline   int       `json:"direct_downline"`
	TotalDownline    int       `json:"total_downline"`
	CommissionEarned int64     `json:"commission_earned"`
	Stale            bool      `json:"stale"`
	RebuiltAt        time.Time `json:"rebuilt_at"`
}

// RebuildResult summarises one subtree rebuild.
type RebuildResult struct {
	RootAgentID   string `json:"root_agent_id"`
	AgentsIndexed int    `json:"agents_indexed"`
	MaxLevel      int    `json:"max_level"`
	CycleDetected bool   `json:"cycle_detected"`
	Truncated     bool   `json:"truncated"`
}
