/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"
	"time"

	"github.com/blnkfinance/commissions/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	agent          // Interface for agent and referral graph operations
	commissionRule // Interface for commission rule operations
	posting        // Interface for reading postings and processed events
	wallet         // Interface for reading wallets and ledger entries
	network        // Interface for the network level index
	unitOfWork     // Interface for running serializable transactions
}

// AgentReader is the read side of the referral graph.
type AgentReader interface {
	GetAgentByID(ctx context.Context, id string) (*model.Agent, error)                           // Retrieves an agent, NOT_FOUND when absent
	GetAgentsByIDs(ctx context.Context, ids []string) (map[string]*model.Agent, error)           // Retrieves many agents, absent ids are omitted
	GetDirectReferrals(ctx context.Context, referrerIDs []string) (map[string][]model.Agent, error) // Retrieves children grouped by referrer
}

type agent interface {
	AgentReader
	CreateAgent(ctx context.Context, agent model.Agent) (model.Agent, error)                    // Registers a new agent
	UpdateAgentStatus(ctx context.Context, id string, status model.AgentStatus) error          // Changes an agent's status
	UpdateAgentReferrer(ctx context.Context, id string, referrerID *string) error              // Reassigns an agent's referrer
	GetRootAgents(ctx context.Context, limit, offset int) ([]model.Agent, error)              // Retrieves agents without a resolvable referrer
}

// RuleReader is the lookup side of commission rules.
type RuleReader interface {
	GetActiveRule(ctx context.Context, planID, frequency string, tier int) (*model.CommissionRule, error) // Retrieves the active rule for a key, nil when none
}

type commissionRule interface {
	RuleReader
	UpsertRule(ctx context.Context, rule model.CommissionRule) (model.CommissionRule, error) // Creates or replaces a rule
	GetRuleByID(ctx context.Context, id string) (*model.CommissionRule, error)              // Retrieves a rule by ID
	DeactivateRule(ctx context.Context, id string) error                                    // Turns a rule off
	ListRules(ctx context.Context, planID string) ([]model.CommissionRule, error)          // Retrieves every rule of a plan
}

type posting interface {
	GetProcessedEvent(ctx context.Context, eventID string) (*model.ProcessedEvent, error)                          // Retrieves a journal row, nil when the event is new
	GetPostingsByEvent(ctx context.Context, eventID string) ([]model.CommissionPosting, error)                     // Retrieves the postings of one event in tier order
	GetPostingByID(ctx context.Context, id string) (*model.CommissionPosting, error)                              // Retrieves a posting by ID
	GetPostingsByAgent(ctx context.Context, agentID string, limit, offset int) ([]model.CommissionPosting, error) // Retrieves an agent's postings, newest first
}

type wallet interface {
	GetWallet(ctx context.Context, ownerID string) (*model.Wallet, error)                                   // Retrieves a wallet, NOT_FOUND when absent
	ListWallets(ctx context.Context, limit, offset int) ([]model.Wallet, error)                            // Retrieves wallets in owner order
	GetLedgerEntries(ctx context.Context, ownerID string, limit, offset int) ([]model.LedgerEntry, error)  // Retrieves a wallet's entries, newest first
	GetLedgerEntryBySource(ctx context.Context, sourceKind, sourceRef, ownerID string) (*model.LedgerEntry, error) // Retrieves the entry for an idempotency key, nil when none
}

type network interface {
	SumCommissionEarned(ctx context.Context, ownerIDs []string) (map[string]int64, error)       // Sums commission credits per owner
	ReplaceNetworkLevels(ctx context.Context, rootID string, levels []model.NetworkLevel) error // Swaps in a fresh index for one root
	GetNetworkLevel(ctx context.Context, agentID string) (*model.NetworkLevel, error)           // Retrieves an agent's index row
	MarkNetworkStale(ctx context.Context, rootIDs []string) error                               // Flags the rows of the given roots stale
	GetStaleRoots(ctx context.Context, limit int) ([]string, error)                             // Retrieves roots whose index is stale
}

type unitOfWork interface {
	// WithTransaction runs fn in one serializable transaction. fn's error rolls it back.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx holds the writes that must commit together.
type Tx interface {
	RecordProcessedEvent(ctx context.Context, event model.ProcessedEvent) (bool, error)           // Inserts the journal row, false when it already exists
	FinalizeProcessedEvent(ctx context.Context, eventID string, total int64, count int) error   // Stores the event's totals
	CreatePosting(ctx context.Context, posting model.CommissionPosting) (model.CommissionPosting, error) // Inserts a posting, CONFLICT on a duplicate key
	GetPostingForUpdate(ctx context.Context, id string) (*model.CommissionPosting, error)      // Reads and row-locks a posting
	UpdatePostingStatus(ctx context.Context, id string, status model.PostingStatus, at time.Time, reason string) error // Moves a posting to a new status
	InsertLedgerEntry(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, bool, error) // Appends an entry, returns the existing one and false on a duplicate key
	LockWallet(ctx context.Context, ownerID string) (*model.Wallet, error)                    // Creates the wallet if needed and row-locks it
	IncrementWalletBalance(ctx context.Context, ownerID string, delta int64) (int64, error)   // Atomically adds delta, returns the new balance
	SetWalletBalance(ctx context.Context, ownerID string, balance int64, reconciledAt time.Time) error // Overwrites the cached balance after a reconcile
	SumLedgerEntries(ctx context.Context, ownerID string) (int64, error)                      // Sums a wallet's entries
}
