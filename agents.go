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
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/model"
)

// RegisterAgent stores a new agent. The referrer is kept as given: a referrer
// without a record ends the chain when uplines are resolved. Self-referral
// is rejected. The network of the agent's root is marked stale.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - agent model.Agent: The agent to register. Empty AgentID and Status get defaults.
//
// Returns:
// - model.Agent: The stored agent.
// - error: INVALID_INPUT for a malformed agent, CONFLICT for a duplicate ID.
func (e *Engine) RegisterAgent(ctx context.Context, agent model.Agent) (model.Agent, error) {
	ctx, span := tracer.Start(ctx, "RegisterAgent")
	defer span.End()

	if agent.AgentID == "" {
		agent.AgentID = model.GenerateUUIDWithSuffix("agt")
	}
	if agent.Status == "" {
		agent.Status = model.AgentActive
	}
	if agent.ReferrerID != nil && *agent.ReferrerID == "" {
		agent.ReferrerID = nil
	}
	if err := agent.Validate(); err != nil {
		return model.Agent{}, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = e.now()
	}

	created, err := e.datasource.CreateAgent(ctx, agent)
	if err != nil {
		span.RecordError(err)
		return model.Agent{}, err
	}

	if created.HasReferrer() {
		e.markStale(ctx, created.AgentID)
	}
	return created, nil
}

// GetAgent retrieves an agent by ID.
func (e *Engine) GetAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	return e.datasource.GetAgentByID(ctx, agentID)
}

// UpdateAgentStatus changes an agent's status. Only active agents earn commission.
func (e *Engine) UpdateAgentStatus(ctx context.Context, agentID string, status model.AgentStatus) error {
	err := validation.Validate(status, validation.Required, validation.In(model.AgentActive, model.AgentInactive, model.AgentSuspended))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("status: %v", err), nil)
	}
	return e.datasource.UpdateAgentStatus(ctx, agentID, status)
}

// ReassignReferrer moves an agent, with its whole downline, under a new referrer.
// A nil newReferrerID makes the agent a root. The move is refused when the new
// referrer is the agent itself or sits in the agent's downline. The old and new
// networks are marked stale and rebuilt, in the background when a queue is set.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - agentID string: The agent to move.
// - newReferrerID *string: The new referrer, or nil.
//
// Returns:
// - error: BAD_REQUEST when the move would create a cycle, NOT_FOUND for unknown agents.
func (e *Engine) ReassignReferrer(ctx context.Context, agentID string, newReferrerID *string) error {
	ctx, span := tracer.Start(ctx, "ReassignReferrer")
	defer span.End()

	if newReferrerID != nil && *newReferrerID == "" {
		newReferrerID = nil
	}
	if newReferrerID != nil && *newReferrerID == agentID {
		return apierror.NewAPIError(apierror.ErrBadRequest, "an agent cannot refer itself", nil)
	}

	ids := []string{agentID}
	if newReferrerID != nil {
		ids = append(ids, *newReferrerID)
	}
	found, err := e.datasource.GetAgentsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if found[id] == nil {
			return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("agent with ID '%s' not found", id), nil)
		}
	}
	agent := found[agentID]

	if newReferrerID != nil {
		inDownline, err := e.isAncestor(ctx, agentID, *newReferrerID)
		if err != nil {
			return err
		}
		if inDownline {
			return apierror.NewAPIError(apierror.ErrBadRequest,
				fmt.Sprintf("agent %s is in the downline of %s", *newReferrerID, agentID), nil)
		}
	}

	oldRoot, err := e.rootOf(ctx, agentID)
	if err != nil {
		return err
	}

	if err := e.datasource.UpdateAgentReferrer(ctx, agentID, newReferrerID); err != nil {
		span.RecordError(err)
		return err
	}
	e.logger.WithField("agent", agentID).
		WithField("from", agent.Referrer()).
		Infof("referrer reassigned")

	newRoot, err := e.rootOf(ctx, agentID)
	if err != nil {
		return err
	}

	roots := []string{}
	for _, root := range []string{oldRoot, newRoot} {
		if root != "" && (len(roots) == 0 || roots[0] != root) {
			roots = append(roots, root)
		}
	}
	if err := e.datasource.MarkNetworkStale(ctx, roots); err != nil {
		return err
	}
	return e.scheduleRebuilds(ctx, roots)
}

// isAncestor reports whether candidate appears on the referrer chain above
// agentID, within the index depth.
func (e *Engine) isAncestor(ctx context.Context, candidate, agentID string) (bool, error) {
	upline, err := e.ResolveUpline(ctx, agentID, e.maxIndexDepth())
	if err != nil {
		return false, err
	}
	for _, id := range upline.IDs() {
		if id == candidate {
			return true, nil
		}
	}
	return false, nil
}

// markStale flags the network that contains agentID. Failures only delay the
// next rebuild and are logged.
func (e *Engine) markStale(ctx context.Context, agentID string) {
	root, err := e.rootOf(ctx, agentID)
	if err != nil {
		e.logger.Errorf("failed to find root of %s: %v", agentID, err)
		return
	}
	if root == "" {
		return
	}
	if err := e.datasource.MarkNetworkStale(ctx, []string{root}); err != nil {
		e.logger.Errorf("failed to mark network %s stale: %v", root, err)
	}
}

// scheduleRebuilds queues a rebuild per root, or runs them inline without a queue.
func (e *Engine) scheduleRebuilds(ctx context.Context, roots []string) error {
	for _, root := range roots {
		if e.queue != nil {
			if err := e.queue.EnqueueNetworkRebuild(ctx, root); err != nil {
				return err
			}
			continue
		}
		if _, err := e.RebuildNetwork(ctx, root); err != nil {
			return err
		}
	}
	return nil
}
