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
	"strings"

	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/internal/notification"
	"github.com/blnkfinance/commissions/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ResolveUpline walks referrer pointers from agentID and returns up to maxDepth
// ancestors, nearest first. A maxDepth of zero or less collects no ancestors;
// callers that want the configured tier depth pass it explicitly.
//
// The walk stops at a root, at a referrer with no agent record, at maxDepth, or
// when it meets an id it has already visited. A cycle is reported as an alert and
// the chain gathered so far is returned without error.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - agentID string: The agent whose upline is resolved.
// - maxDepth int: The maximum number of ancestors to collect.
//
// Returns:
// - model.Upline: The ancestor chain with cycle and truncation flags.
// - error: NOT_FOUND if agentID itself has no record, or a store error.
func (e *Engine) ResolveUpline(ctx context.Context, agentID string, maxDepth int) (model.Upline, error) {
	ctx, span := tracer.Start(ctx, "ResolveUpline")
	defer span.End()

	if maxDepth < 0 {
		maxDepth = 0
	}

	upline := model.Upline{AgentID: agentID, Ancestors: []model.Agent{}}
	source, err := e.datasource.GetAgentByID(ctx, agentID)
	if err != nil {
		span.RecordError(err)
		return upline, err
	}

	visited := map[string]bool{agentID: true}
	next := source.Referrer()
	for next != "" && len(upline.Ancestors) < maxDepth {
		if visited[next] {
			upline.CycleDetected = true
			break
		}
		visited[next] = true

		ancestor, err := e.datasource.GetAgentByID(ctx, next)
		if err != nil {
			if apierror.IsCode(err, apierror.ErrNotFound) {
				upline.MissingReferrer = next
				break
			}
			span.RecordError(err)
			return upline, err
		}
		upline.Ancestors = append(upline.Ancestors, *ancestor)
		next = ancestor.Referrer()
	}

	if !upline.CycleDetected && upline.MissingReferrer == "" && next != "" && len(upline.Ancestors) == maxDepth {
		upline.Truncated = true
	}

	if upline.CycleDetected {
		e.reportCycle(agentID, upline.IDs(), next)
	}

	span.SetAttributes(
		attribute.String("agent.id", agentID),
		attribute.Int("upline.depth", upline.Depth()),
		attribute.Bool("upline.cycle", upline.CycleDetected),
	)
	return upline, nil
}

func (e *Engine) reportCycle(agentID string, chain []string, repeated string) {
	fields := map[string]interface{}{
		"agent":    agentID,
		"chain":    strings.Join(chain, " -> "),
		"repeated": repeated,
	}
	e.logger.WithFields(logrus.Fields(fields)).Warn("referral cycle detected, upline truncated")
	notification.NotifyAlert(notification.Alert{
		Kind:    notification.AlertReferralCycle,
		Message: fmt.Sprintf("Referral cycle detected above agent %s", agentID),
		Fields:  fields,
		At:      e.now(),
	})
}

// rootOf follows referrers from agentID to its root within the index depth.
// It returns the empty string when the walk hits a cycle or the depth bound.
func (e *Engine) rootOf(ctx context.Context, agentID string) (string, error) {
	ctx, span := tracer.Start(ctx, "rootOf", trace.WithAttributes(attribute.String("agent.id", agentID)))
	defer span.End()

	agent, err := e.datasource.GetAgentByID(ctx, agentID)
	if err != nil {
		return "", err
	}

	visited := map[string]bool{agentID: true}
	for depth := 1; depth <= e.maxIndexDepth(); depth++ {
		if !agent.HasReferrer() {
			return agent.AgentID, nil
		}
		ref := agent.Referrer()
		if visited[ref] {
			return "", nil
		}
		parent, err := e.datasource.GetAgentByID(ctx, ref)
		if err != nil {
			if apierror.IsCode(err, apierror.ErrNotFound) {
				return agent.AgentID, nil
			}
			return "", err
		}
		visited[ref] = true
		agent = parent
	}
	return "", nil
}
