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
	"sort"
	"sync"
	"time"

	"github.com/blnkfinance/commissions/database"
	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/model"
)

// MemoryDataSource is an in-memory IDataSource. Transactions are serialized and
// work on a staged copy of the money tables, so a failing transaction leaves no
// trace. FailOn injects errors into named operations.
type MemoryDataSource struct {
	txMu sync.Mutex
	mu   sync.Mutex

	agents map[string]model.Agent
	rules  map[string]model.CommissionRule
	levels map[string]model.NetworkLevel
	money  *ledgerState

	failures map[string]*injectedFailure
	calls    map[string]int
}

type injectedFailure struct {
	err       error
	remaining int
}

type ledgerState struct {
	events   map[string]model.ProcessedEvent
	postings map[string]model.CommissionPosting
	wallets  map[string]model.Wallet
	entries  []model.LedgerEntry
}

func (s *ledgerState) clone() *ledgerState {
	c := &ledgerState{
		events:   make(map[string]model.ProcessedEvent, len(s.events)),
		postings: make(map[string]model.CommissionPosting, len(s.postings)),
		wallets:  make(map[string]model.Wallet, len(s.wallets)),
		entries:  make([]model.LedgerEntry, len(s.entries)),
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.postings {
		c.postings[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	copy(c.entries, s.entries)
	return c
}

func NewMemoryDataSource() *MemoryDataSource {
	return &MemoryDataSource{
		agents: make(map[string]model.Agent),
		rules:  make(map[string]model.CommissionRule),
		levels: make(map[string]model.NetworkLevel),
		money: &ledgerState{
			events:   make(map[string]model.ProcessedEvent),
			postings: make(map[string]model.CommissionPosting),
			wallets:  make(map[string]model.Wallet),
		},
		failures: make(map[string]*injectedFailure),
		calls:    make(map[string]int),
	}
}

var _ database.IDataSource = (*MemoryDataSource)(nil)

// FailOn makes the next times calls of op return err. times <= 0 fails every call.
// op is a method name, or "Commit" for the end of WithTransaction.
func (m *MemoryDataSource) FailOn(op string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = &injectedFailure{err: err, remaining: times}
}

// Calls reports how many times op was invoked.
func (m *MemoryDataSource) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// ForceWalletBalance overwrites a cached balance without writing an entry.
func (m *MemoryDataSource) ForceWalletBalance(ownerID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.money.wallets[ownerID]
	w.OwnerID = ownerID
	w.Balance = balance
	m.money.wallets[ownerID] = w
}

// check must be called with mu held.
func (m *MemoryDataSource) check(op string) error {
	m.calls[op]++
	f, ok := m.failures[op]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(m.failures, op)
		}
	}
	return f.err
}

func copyAgent(a model.Agent) model.Agent {
	if a.ReferrerID != nil {
		ref := *a.ReferrerID
		a.ReferrerID = &ref
	}
	return a
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func (m *MemoryDataSource) CreateAgent(_ context.Context, agent model.Agent) (model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("CreateAgent"); err != nil {
		return model.Agent{}, err
	}
	if _, exists := m.agents[agent.AgentID]; exists {
		return model.Agent{}, apierror.NewAPIError(apierror.ErrConflict, "Agent already exists", nil)
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now()
	}
	m.agents[agent.AgentID] = copyAgent(agent)
	return agent, nil
}

func (m *MemoryDataSource) GetAgentByID(_ context.Context, id string) (*model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetAgentByID"); err != nil {
		return nil, err
	}
	a, ok := m.agents[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Agent not found", nil)
	}
	a = copyAgent(a)
	return &a, nil
}

func (m *MemoryDataSource) GetAgentsByIDs(_ context.Context, ids []string) (map[string]*model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetAgentsByIDs"); err != nil {
		return nil, err
	}
	out := make(map[string]*model.Agent, len(ids))
	for _, id := range ids {
		if a, ok := m.agents[id]; ok {
			a = copyAgent(a)
			out[id] = &a
		}
	}
	return out, nil
}

func (m *MemoryDataSource) GetDirectReferrals(_ context.Context, referrerIDs []string) (map[string][]model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetDirectReferrals"); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(referrerIDs))
	for _, id := range referrerIDs {
		wanted[id] = true
	}
	out := make(map[string][]model.Agent)
	for _, a := range m.agents {
		if a.HasReferrer() && wanted[*a.ReferrerID] {
			out[*a.ReferrerID] = append(out[*a.ReferrerID], copyAgent(a))
		}
	}
	for ref := range out {
		children := out[ref]
		sort.Slice(children, func(i, j int) bool { return children[i].AgentID < children[j].AgentID })
	}
	return out, nil
}

func (m *MemoryDataSource) UpdateAgentStatus(_ context.Context, id string, status model.AgentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("UpdateAgentStatus"); err != nil {
		return err
	}
	a, ok := m.agents[id]
	if !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, "Agent not found", nil)
	}
	a.Status = status
	m.agents[id] = a
	return nil
}

func (m *MemoryDataSource) UpdateAgentReferrer(_ context.Context, id string, referrerID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("UpdateAgentReferrer"); err != nil {
		return err
	}
	a, ok := m.agents[id]
	if !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, "Agent not found", nil)
	}
	a.ReferrerID = referrerID
	m.agents[id] = copyAgent(a)
	return nil
}

func (m *MemoryDataSource) GetRootAgents(_ context.Context, limit, offset int) ([]model.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetRootAgents"); err != nil {
		return nil, err
	}
	roots := []model.Agent{}
	for _, a := range m.agents {
		if !a.HasReferrer() {
			roots = append(roots, copyAgent(a))
			continue
		}
		if _, ok := m.agents[*a.ReferrerID]; !ok {
			roots = append(roots, copyAgent(a))
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].AgentID < roots[j].AgentID })
	return page(roots, limit, offset), nil
}

func (m *MemoryDataSource) GetActiveRule(_ context.Context, planID, frequency string, tier int) (*model.CommissionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetActiveRule"); err != nil {
		return nil, err
	}
	for _, r := range m.rules {
		if r.Active && r.PlanID == planID && r.Frequency == frequency && r.Tier == tier {
			rule := r
			return &rule, nil
		}
	}
	return nil, nil
}

func (m *MemoryDataSource) UpsertRule(_ context.Context, rule model.CommissionRule) (model.CommissionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("UpsertRule"); err != nil {
		return model.CommissionRule{}, err
	}
	if rule.Active {
		for id, r := range m.rules {
			if id != rule.RuleID && r.Active && r.Key() == rule.Key() {
				r.Active = false
				r.UpdatedAt = rule.UpdatedAt
				m.rules[id] = r
			}
		}
	}
	if existing, ok := m.rules[rule.RuleID]; ok {
		rule.CreatedAt = existing.CreatedAt
	}
	m.rules[rule.RuleID] = rule
	return rule, nil
}

func (m *MemoryDataSource) GetRuleByID(_ context.Context, id string) (*model.CommissionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetRuleByID"); err != nil {
		return nil, err
	}
	r, ok := m.rules[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Rule not found", nil)
	}
	return &r, nil
}

func (m *MemoryDataSource) DeactivateRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("DeactivateRule"); err != nil {
		return err
	}
	r, ok := m.rules[id]
	if !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, "Rule not found", nil)
	}
	r.Active = false
	r.UpdatedAt = time.Now()
	m.rules[id] = r
	return nil
}

func (m *MemoryDataSource) ListRules(_ context.Context, planID string) ([]model.CommissionRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListRules"); err != nil {
		return nil, err
	}
	rules := []model.CommissionRule{}
	for _, r := range m.rules {
		if r.PlanID == planID {
			rules = append(rules, r)
		}
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Frequency != rules[j].Frequency {
			return rules[i].Frequency < rules[j].Frequency
		}
		if rules[i].Tier != rules[j].Tier {
			return rules[i].Tier < rules[j].Tier
		}
		if rules[i].Active != rules[j].Active {
			return rules[i].Active
		}
		return rules[i].UpdatedAt.After(rules[j].UpdatedAt)
	})
	return rules, nil
}

func (m *MemoryDataSource) GetProcessedEvent(_ context.Context, eventID string) (*model.ProcessedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetProcessedEvent"); err != nil {
		return nil, err
	}
	e, ok := m.money.events[eventID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func filterPostings(postings map[string]model.CommissionPosting, keep func(model.CommissionPosting) bool) []model.CommissionPosting {
	out := []model.CommissionPosting{}
	for _, p := range postings {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (m *MemoryDataSource) GetPostingsByEvent(_ context.Context, eventID string) ([]model.CommissionPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetPostingsByEvent"); err != nil {
		return nil, err
	}
	out := filterPostings(m.money.postings, func(p model.CommissionPosting) bool { return p.EventID == eventID })
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out, nil
}

func (m *MemoryDataSource) GetPostingByID(_ context.Context, id string) (*model.CommissionPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetPostingByID"); err != nil {
		return nil, err
	}
	p, ok := m.money.postings[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Posting not found", nil)
	}
	return &p, nil
}

func (m *MemoryDataSource) GetPostingsByAgent(_ context.Context, agentID string, limit, offset int) ([]model.CommissionPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetPostingsByAgent"); err != nil {
		return nil, err
	}
	out := filterPostings(m.money.postings, func(p model.CommissionPosting) bool { return p.AgentID == agentID })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].PostingID < out[j].PostingID
	})
	return page(out, limit, offset), nil
}

func (m *MemoryDataSource) GetWallet(_ context.Context, ownerID string) (*model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetWallet"); err != nil {
		return nil, err
	}
	w, ok := m.money.wallets[ownerID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Wallet not found", nil)
	}
	return &w, nil
}

func (m *MemoryDataSource) ListWallets(_ context.Context, limit, offset int) ([]model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListWallets"); err != nil {
		return nil, err
	}
	wallets := make([]model.Wallet, 0, len(m.money.wallets))
	for _, w := range m.money.wallets {
		wallets = append(wallets, w)
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].OwnerID < wallets[j].OwnerID })
	return page(wallets, limit, offset), nil
}

func (m *MemoryDataSource) GetLedgerEntries(_ context.Context, ownerID string, limit, offset int) ([]model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetLedgerEntries"); err != nil {
		return nil, err
	}
	entries := []model.LedgerEntry{}
	for i := len(m.money.entries) - 1; i >= 0; i-- {
		if m.money.entries[i].WalletOwnerID == ownerID {
			entries = append(entries, m.money.entries[i])
		}
	}
	return page(entries, limit, offset), nil
}

func findEntry(entries []model.LedgerEntry, kind, ref, owner string) *model.LedgerEntry {
	for i := range entries {
		e := entries[i]
		if e.SourceKind == kind && e.SourceRef == ref && e.WalletOwnerID == owner {
			return &e
		}
	}
	return nil
}

func (m *MemoryDataSource) GetLedgerEntryBySource(_ context.Context, sourceKind, sourceRef, ownerID string) (*model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetLedgerEntryBySource"); err != nil {
		return nil, err
	}
	return findEntry(m.money.entries, sourceKind, sourceRef, ownerID), nil
}

func (m *MemoryDataSource) SumCommissionEarned(_ context.Context, ownerIDs []string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("SumCommissionEarned"); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		wanted[id] = true
	}
	totals := make(map[string]int64)
	for _, e := range m.money.entries {
		if !wanted[e.WalletOwnerID] {
			continue
		}
		if e.SourceKind == model.SourceCommissionPosting || e.SourceKind == model.SourceCommissionReversal {
			totals[e.WalletOwnerID] += e.Amount
		}
	}
	return totals, nil
}

func (m *MemoryDataSource) ReplaceNetworkLevels(_ context.Context, rootID string, levels []model.NetworkLevel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ReplaceNetworkLevels"); err != nil {
		return err
	}
	for id, l := range m.levels {
		if l.RootAgentID == rootID {
			delete(m.levels, id)
		}
	}
	for _, l := range levels {
		l.Path = append([]string(nil), l.Path...)
		l.Stale = false
		m.levels[l.AgentID] = l
	}
	return nil
}

func (m *MemoryDataSource) GetNetworkLevel(_ context.Context, agentID string) (*model.NetworkLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetNetworkLevel"); err != nil {
		return nil, err
	}
	l, ok := m.levels[agentID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Network level not found", nil)
	}
	l.Path = append([]string(nil), l.Path...)
	return &l, nil
}

func (m *MemoryDataSource) MarkNetworkStale(_ context.Context, rootIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("MarkNetworkStale"); err != nil {
		return err
	}
	wanted := make(map[string]bool, len(rootIDs))
	for _, id := range rootIDs {
		wanted[id] = true
	}
	for id, l := range m.levels {
		if wanted[l.RootAgentID] {
			l.Stale = true
			m.levels[id] = l
		}
	}
	return nil
}

func (m *MemoryDataSource) GetStaleRoots(_ context.Context, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("GetStaleRoots"); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	roots := []string{}
	for _, l := range m.levels {
		if l.Stale && !seen[l.RootAgentID] {
			seen[l.RootAgentID] = true
			roots = append(roots, l.RootAgentID)
		}
	}
	sort.Strings(roots)
	return page(roots, limit, 0), nil
}

// WithTransaction runs fn against a staged copy of the money tables and swaps
// it in when fn and the injected "Commit" check both succeed.
func (m *MemoryDataSource) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx database.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	staged := m.money.clone()
	m.mu.Unlock()

	if err := fn(ctx, &memoryTx{ds: m, state: staged}); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("Commit"); err != nil {
		return err
	}
	m.money = staged
	return nil
}

type memoryTx struct {
	ds    *MemoryDataSource
	state *ledgerState
}

func (t *memoryTx) fail(op string) error {
	t.ds.mu.Lock()
	defer t.ds.mu.Unlock()
	return t.ds.check(op)
}

func (t *memoryTx) RecordProcessedEvent(_ context.Context, event model.ProcessedEvent) (bool, error) {
	if err := t.fail("RecordProcessedEvent"); err != nil {
		return false, err
	}
	if _, exists := t.state.events[event.EventID]; exists {
		return false, nil
	}
	event.TotalAmount = 0
	event.PostingCount = 0
	t.state.events[event.EventID] = event
	return true, nil
}

func (t *memoryTx) FinalizeProcessedEvent(_ context.Context, eventID string, total int64, count int) error {
	if err := t.fail("FinalizeProcessedEvent"); err != nil {
		return err
	}
	e, ok := t.state.events[eventID]
	if !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, "Payment event not found", nil)
	}
	e.TotalAmount = total
	e.PostingCount = count
	t.state.events[eventID] = e
	return nil
}

func (t *memoryTx) CreatePosting(_ context.Context, p model.CommissionPosting) (model.CommissionPosting, error) {
	if err := t.fail("CreatePosting"); err != nil {
		return model.CommissionPosting{}, err
	}
	if _, ok := t.state.events[p.EventID]; !ok {
		return model.CommissionPosting{}, apierror.NewAPIError(apierror.ErrBadRequest, "Referenced record does not exist", nil)
	}
	for _, existing := range t.state.postings {
		if existing.EventID == p.EventID && existing.AgentID == p.AgentID && existing.Tier == p.Tier {
			return model.CommissionPosting{}, apierror.NewAPIError(apierror.ErrConflict, "Posting already exists for this event, agent and tier", nil)
		}
	}
	p.UpdatedAt = p.CreatedAt
	t.state.postings[p.PostingID] = p
	return p, nil
}

func (t *memoryTx) GetPostingForUpdate(_ context.Context, id string) (*model.CommissionPosting, error) {
	if err := t.fail("GetPostingForUpdate"); err != nil {
		return nil, err
	}
	p, ok := t.state.postings[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "Posting not found", nil)
	}
	return &p, nil
}

func (t *memoryTx) UpdatePostingStatus(_ context.Context, id string, status model.PostingStatus, at time.Time, reason string) error {
	if err := t.fail("UpdatePostingStatus"); err != nil {
		return err
	}
	p, ok := t.state.postings[id]
	if !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, "Posting not found", nil)
	}
	p.Status = status
	p.UpdatedAt = at
	switch status {
	case model.PostingPaid:
		paid := at
		p.PaidAt = &paid
	case model.PostingReversed:
		reversed := at
		p.ReversedAt = &reversed
		p.ReversalReason = reason
	}
	t.state.postings[id] = p
	return nil
}

func (t *memoryTx) InsertLedgerEntry(_ context.Context, entry model.LedgerEntry) (model.LedgerEntry, bool, error) {
	if err := t.fail("InsertLedgerEntry"); err != nil {
		return model.LedgerEntry{}, false, err
	}
	if existing := findEntry(t.state.entries, entry.SourceKind, entry.SourceRef, entry.WalletOwnerID); existing != nil {
		return *existing, false, nil
	}
	if _, ok := t.state.wallets[entry.WalletOwnerID]; !ok {
		return model.LedgerEntry{}, false, apierror.NewAPIError(apierror.ErrBadRequest, "Referenced record does not exist", nil)
	}
	t.state.entries = append(t.state.entries, entry)
	return entry, true, nil
}

func (t *memoryTx) LockWallet(_ context.Context, ownerID string) (*model.Wallet, error) {
	if err := t.fail("LockWallet"); err != nil {
		return nil, err
	}
	w, ok := t.state.wallets[ownerID]
	if !ok {
		now := time.Now()
		w = model.Wallet{OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
		t.state.wallets[ownerID] = w
	}
	return &w, nil
}

func (t *memoryTx) IncrementWalletBalance(_ context.Context, ownerID string, delta int64) (int64, error) {
	if err := t.fail("IncrementWalletBalance"); err != nil {
		return 0, err
	}
	w, ok := t.state.wallets[ownerID]
	if !ok {
		return 0, apierror.NewAPIError(apierror.ErrNotFound, "Wallet not found", nil)
	}
	if w.Balance+delta < 0 {
		return 0, apierror.NewAPIError(apierror.ErrInvalidInput, "Value violates a table constraint", nil)
	}
	w.Balance += delta
	w.UpdatedAt = time.Now()
	t.state.wallets[ownerID] = w
	return w.Balance, nil
}

func (t *memoryTx) SetWalletBalance(_ context.Context, ownerID string, balance int64, reconciledAt time.Time) error {
	if err := t.fail("SetWalletBalance"); err != nil {
		return err
	}
	w, ok := t.state.wallets[ownerID]
	if !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, "Wallet not found", nil)
	}
	w.Balance = balance
	at := reconciledAt
	w.LastReconciledAt = &at
	t.state.wallets[ownerID] = w
	return nil
}

func (t *memoryTx) SumLedgerEntries(_ context.Context, ownerID string) (int64, error) {
	if err := t.fail("SumLedgerEntries"); err != nil {
		return 0, err
	}
	var total int64
	for _, e := range t.state.entries {
		if e.WalletOwnerID == ownerID {
			total += e.Amount
		}
	}
	return total, nil
}
