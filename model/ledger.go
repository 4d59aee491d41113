package model

import "time"

const (
	SourceCommissionPosting  = "commission_posting"
	SourceCommissionReversal = "commission_reversal"
	SourceWithdrawal         = "withdrawal"
)

// LedgerEntry is an immutable signed movement on a wallet. Credits are positive.
// (SourceKind, SourceRef, WalletOwnerID) is unique.
type LedgerEntry struct {
	EntryID       string    `json:"entry_id"`
	WalletOwnerID string    `json:"wallet_owner_id"`
	Amount        int64     `json:"amount"`
	SourceKind    string    `json:"source_kind"`
	SourceRef     string    `json:"source_ref"`
	Description   string    `json:"description,omitempty"`
	PostedAt      time.Time `json:"posted_at"`
}

// Wallet caches the running balance of an agent's ledger entries.
type Wallet struct {
	OwnerID          string     `json:"owner_id"`
	Balance          int64      `json:"balance"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastReconciledAt *time.Time `json:"last_reconciled_at,omitempty"`
}

// ReconcileResult compares a wallet's cached balance to its entry sum.
type ReconcileResult struct {
	OwnerID         string `json:"owner_id"`
	CachedBalance   int64  `json:"cached_balance"`
	ComputedBalance int64  `json:"computed_balance"`
	Drift           int64  `json:"drift"`
	Corrected       bool   `json:"corrected"`
}

// Notification is the payload pushed to the notification sink.
type Notification struct {
	Event             string    `json:"event"`
	AgentID           string    `json:"agent_id"`
	Amount            int64     `json:"amount"`
	SourceDescription string    `json:"source_description"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// AuditSummary totals one pass of the wallet auditor.
type AuditSummary struct {
	WalletsChecked int               `json:"wallets_checked"`
	Drifted        []ReconcileResult `json:"drifted,omitempty"`
	Failed         int               `json:"failed"`
}
