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

package commissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/blnkfinance/commissions/model"
	"go.opentelemetry.io/otel/attribute"
)

const (
	rootPageSize     = 100
	earningChunkSize = 500
)

// RebuildNetwork re-derives the level index of the tree under rootAgentID.
// The root is level 1 and its direct referrals are level 2. The walk reads
// agents and ledger entries without locks and writes only index rows, so it
// never blocks a distribution.
//
// An agent that is no longer a root, because it was moved under a referrer,
// has its old rows cleared instead.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - rootAgentID string: The root of the tree to index.
//
// Returns:
// - model.RebuildResult: How many agents were indexed and how deep the tree is.
// - error: NOT_FOUND for an unknown root, or a store error.
func (e *Engine) RebuildNetwork(ctx context.Context, rootAgentID string) (model.RebuildResult, error) {
	ctx, span := tracer.Start(ctx, "RebuildNetwork")
	defer span.End()
	span.SetAttributes(attribute.String("root.id", rootAgentID))

	result := model.RebuildResult{RootAgentID: rootAgentID}
	root, err := e.datasource.GetAgentByID(ctx, rootAgentID)
	if err != nil {
		return result, err
	}

	if root.HasReferrer() {
		actual, err := e.rootOf(ctx, rootAgentID)
		if err != nil {
			return result, err
		}
		if actual != rootAgentID {
			e.logger.WithField("agent", rootAgentID).WithField("root", actual).Info("agent is no longer a root, clearing its network index")
			return result, e.datasource.ReplaceNetworkLevels(ctx, rootAgentID, nil)
		}
	}

	now := e.now()
	maxDepth := e.maxIndexDepth()
	levels := map[string]*model.NetworkLevel{
		root.AgentID: {AgentID: root.AgentID, RootAgentID: root.AgentID, Level: 1, Path: []string{root.AgentID}, RebuiltAt: now},
	}
	parentOf := map[string]string{}
	order := []string{root.AgentID}
	frontier := []string{root.AgentID}

	for depth := 1; len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		children, err := e.datasource.GetDirectReferrals(ctx, frontier)
		if err != nil {
			span.RecordError(err)
			return result, err
		}

		next := []string{}
		for _, parentID := range frontier {
			parent := levels[parentID]
			for _, child := range children[parentID] {
				if _, seen := levels[child.AgentID]; seen {
					result.CycleDetected = true
					continue
				}
				if depth >= maxDepth {
					result.Truncated = true
					continue
				}
				path := make([]string, len(parent.Path), len(parent.Path)+1)
				copy(path, parent.Path)
				levels[child.AgentID] = &model.NetworkLevel{
					AgentID:     child.AgentID,
					RootAgentID: root.AgentID,
					Level:       depth + 1,
					Path:        append(path, child.AgentID),
					RebuiltAt:   now,
				}
				parent.DirectDownline++
				parentOf[child.AgentID] = parentID
				order = append(order, child.AgentID)
				next = append(next, child.AgentID)
			}
		}
		frontier = next
	}

	if result.CycleDetected {
		e.reportCycle(rootAgentID, nil, "")
	}

	// breadth-first order reversed visits every child before its parent
	for i := len(order) - 1; i > 0; i-- {
		id := order[i]
		levels[parentOf[id]].TotalDownline += 1 + levels[id].TotalDownline
	}

	for start := 0; start < len(order); start += earningChunkSize {
		end := start + earningChunkSize
		if end > len(order) {
			end = len(order)
		}
		earned, err := e.datasource.SumCommissionEarned(ctx, order[start:end])
		if err != nil {
			span.RecordError(err)
			return result, err
		}
		for id, amount := range earned {
			if level, ok := levels[id]; ok {
				level.CommissionEarned = amount
			}
		}
	}

	rows := make([]model.NetworkLevel, 0, len(order))
	for _, id := range order {
		level := levels[id]
		if level.Level > result.MaxLevel {
			result.MaxLevel = level.Level
		}
		rows = append(rows, *level)
	}
	if err := e.datasource.ReplaceNetworkLevels(ctx, root.AgentID, rows); err != nil {
		span.RecordError(err)
		return result, err
	}

	result.AgentsIndexed = len(rows)
	span.SetAttributes(attribute.Int("agents.indexed", result.AgentsIndexed), attribute.Int("level.max", result.MaxLevel))
	e.logger.Infof("rebuilt network of %s: %d agents, %d levels", rootAgentID, result.AgentsIndexed, result.MaxLevel)
	return result, nil
}

// RebuildAllNetworks rebuilds the index of every root. A failed root does not
// stop the pass; all failures are returned together.
func (e *Engine) RebuildAllNetworks(ctx context.Context) ([]model.RebuildResult, error) {
	ctx, span := tracer.Start(ctx, "RebuildAllNetworks")
	defer span.End()

	results := []model.RebuildResult{}
	var errs []error
	for offset := 0; ; offset += rootPageSize {
		roots, err := e.datasource.GetRootAgents(ctx, rootPageSize, offset)
		if err != nil {
			return results, err
		}
		for _, root := range roots {
			result, err := e.RebuildNetwork(ctx, root.AgentID)
			if err != nil {
				errs = append(errs, fmt.Errorf("root %s: %w", root.AgentID, err))
				continue
			}
			results = append(results, result)
		}
		if len(roots) < rootPageSize {
			break
		}
	}
	return results, errors.Join(errs...)
}

// RebuildStaleNetworks rebuilds up to limit roots whose index rows are marked stale.
func (e *Engine) RebuildStaleNetworks(ctx context.Context, limit int) ([]model.RebuildResult, error) {
	roots, err := e.datasource.GetStaleRoots(ctx, limit)
	if err != nil {
		return nil, err
	}
	results := make([]model.RebuildResult, 0, len(roots))
	var errs []error
	for _, root := range roots {
		result, err := e.RebuildNetwork(ctx, root)
		if err != nil {
			errs = append(errs, fmt.Errorf("root %s: %w", root, err))
			continue
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}

// GetNetworkLevel returns the index row of an agent. The row is derived data
// and may be stale.
func (e *Engine) GetNetworkLevel(ctx context.Context, agentID string) (*model.NetworkLevel, error) {
	return e.datasource.GetNetworkLevel(ctx, agentID)
}
