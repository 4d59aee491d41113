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
package mocks

import (
	"context"
	"time"

	"github.com/blnkfinance/commissions/database"
	"github.com/blnkfinance/commissions/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
	// Tx is handed to the callback of WithTransaction.
	Tx *MockTx
}

var _ database.IDataSource = (*MockDataSource)(nil)

// Agent methods

func (m *MockDataSource) CreateAgent(ctx context.Context, agent model.Agent) (model.Agent, error) {
	args := m.Called(ctx, agent)
	return args.Get(0).(model.Agent), args.Error(1)
}

func (m *MockDataSource) GetAgentByID(ctx context.Context, id string) (*model.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Agent), args.Error(1)
}

func (m *MockDataSource) GetAgentsByIDs(ctx context.Context, ids []string) (map[string]*model.Agent, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]*model.Agent), args.Error(1)
}

func (m *MockDataSource) GetDirectReferrals(ctx context.Context, referrerIDs []string) (map[string][]model.Agent, error) {
	args := m.Called(ctx, referrerIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]model.Agent), args.Error(1)
}

func (m *MockDataSource) UpdateAgentStatus(ctx context.Context, id string, status model.AgentStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockDataSource) UpdateAgentReferrer(ctx context.Context, id string, referrerID *string) error {
	args := m.Called(ctx, id, referrerID)
	return args.Error(0)
}

func (m *MockDataSource) GetRootAgents(ctx context.Context, limit, offset int) ([]model.Agent, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Agent), args.Error(1)
}

// Rule methods

func (m *MockDataSource) GetActiveRule(ctx context.Context, planID, frequency string, tier int) (*model.CommissionRule, error) {
	args := m.Called(ctx, planID, frequency, tier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CommissionRule), args.Error(1)
}

func (m *MockDataSource) UpsertRule(ctx context.Context, rule model.CommissionRule) (model.CommissionRule, error) {
	args := m.Called(ctx, rule)
	return args.Get(0).(model.CommissionRule), args.Error(1)
}

func (m *MockDataSource) GetRuleByID(ctx context.Context, id string) (*model.CommissionRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CommissionRule), args.Error(1)
}

func (m *MockDataSource) DeactivateRule(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) ListRules(ctx context.Context, planID string) ([]model.CommissionRule, error) {
	args := m.Called(ctx, planID)
	return args.Get(0).([]model.CommissionRule), args.Error(1)
}

// Posting methods

func (m *MockDataSource) GetProcessedEvent(ctx context.Context, eventID string) (*model.ProcessedEvent, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProcessedEvent), args.Error(1)
}

func (m *MockDataSource) GetPostingsByEvent(ctx context.Context, eventID string) ([]model.CommissionPosting, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).([]model.CommissionPosting), args.Error(1)
}

func (m *MockDataSource) GetPostingByID(ctx context.Context, id string) (*model.CommissionPosting, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CommissionPosting), args.Error(1)
}

func (m *MockDataSource) GetPostingsByAgent(ctx context.Context, agentID string, limit, offset int) ([]model.CommissionPosting, error) {
	args := m.Called(ctx, agentID, limit, offset)
	return args.Get(0).([]model.CommissionPosting), args.Error(1)
}

// Wallet methods

func (m *MockDataSource) GetWallet(ctx context.Context, ownerID string) (*model.Wallet, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Wallet), args.Error(1)
}

func (m *MockDataSource) ListWallets(ctx context.Context, limit, offset int) ([]model.Wallet, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Wallet), args.Error(1)
}

func (m *MockDataSource) GetLedgerEntries(ctx context.Context, ownerID string, limit, offset int) ([]model.LedgerEntry, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	return args.Get(0).([]model.LedgerEntry), args.Error(1)
}

func (m *MockDataSource) GetLedgerEntryBySource(ctx context.Context, sourceKind, sourceRef, ownerID string) (*model.LedgerEntry, error) {
	args := m.Called(ctx, sourceKind, sourceRef, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerEntry), args.Error(1)
}

// Network methods

func (m *MockDataSource) SumCommissionEarned(ctx context.Context, ownerIDs []string) (map[string]int64, error) {
	args := m.Called(ctx, ownerIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MockDataSource) ReplaceNetworkLevels(ctx context.Context, rootID string, levels []model.NetworkLevel) error {
	args := m.Called(ctx, rootID, levels)
	return args.Error(0)
}

func (m *MockDataSource) GetNetworkLevel(ctx context.Context, agentID string) (*model.NetworkLevel, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.NetworkLevel), args.Error(1)
}

func (m *MockDataSource) MarkNetworkStale(ctx context.Context, rootIDs []string) error {
	args := m.Called(ctx, rootIDs)
	return args.Error(0)
}

func (m *MockDataSource) GetStaleRoots(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]string), args.Error(1)
}

// WithTransaction records the call, then runs fn against m.Tx unless the
// expectation returns an error of its own.
func (m *MockDataSource) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx database.Tx) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(ctx, m.Tx)
}

// MockTx is a mock implementation of the Tx interface
type MockTx struct {
	mock.Mock
}

var _ database.Tx = (*MockTx)(nil)

func (m *MockTx) RecordProcessedEvent(ctx context.Context, event model.ProcessedEvent) (bool, error) {
	args := m.Called(ctx, event)
	return args.Bool(0), args.Error(1)
}

func (m *MockTx) FinalizeProcessedEvent(ctx context.Context, eventID string, total int64, count int) error {
	args := m.Called(ctx, eventID, total, count)
	return args.Error(0)
}

func (m *MockTx) CreatePosting(ctx context.Context, posting model.CommissionPosting) (model.CommissionPosting, error) {
	args := m.Called(ctx, posting)
	return args.Get(0).(model.CommissionPosting), args.Error(1)
}

func (m *MockTx) GetPostingForUpdate(ctx context.Context, id string) (*model.CommissionPosting, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CommissionPosting), args.Error(1)
}

func (m *MockTx) UpdatePostingStatus(ctx context.Context, id string, status model.PostingStatus, at time.Time, reason string) error {
	args := m.Called(ctx, id, status, at, reason)
	return args.Error(0)
}

func (m *MockTx) InsertLedgerEntry(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, bool, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(model.LedgerEntry), args.Bool(1), args.Error(2)
}

func (m *MockTx) LockWallet(ctx context.Context, ownerID string) (*model.Wallet, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Wallet), args.Error(1)
}

func (m *MockTx) IncrementWalletBalance(ctx context.Context, ownerID string, delta int64) (int64, error) {
	args := m.Called(ctx, ownerID, delta)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTx) SetWalletBalance(ctx context.Context, ownerID string, balance int64, reconciledAt time.Time) error {
	args := m.Called(ctx, ownerID, balance, reconciledAt)
	return args.Error(0)
}

func (m *MockTx) SumLedgerEntries(ctx context.Context, ownerID string) (int64, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(int64), args.Error(1)
}
