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

	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/model"
)

// UpsertRule validates and stores a commission rule. Saving an active rule
// deactivates any other active rule on the same (plan, frequency, tier) key.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - rule model.CommissionRule: The rule to save. An empty RuleID gets a generated one.
//
// Returns:
// - model.CommissionRule: The saved rule.
// - error: INVALID_INPUT for a malformed rule, or a store error.
func (e *Engine) UpsertRule(ctx context.Context, rule model.CommissionRule) (model.CommissionRule, error) {
	ctx, span := tracer.Start(ctx, "UpsertRule")
	defer span.End()

	if err := rule.Validate(); err != nil {
		return model.CommissionRule{}, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	if rule.RuleID == "" {
		rule.RuleID = model.GenerateUUIDWithSuffix("rul")
	}
	now := e.now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	var previous *model.CommissionRule
	if existing, err := e.datasource.GetRuleByID(ctx, rule.RuleID); err == nil {
		previous = existing
	} else if !apierror.IsCode(err, apierror.ErrNotFound) {
		return model.CommissionRule{}, err
	}

	saved, err := e.datasource.UpsertRule(ctx, rule)
	if err != nil {
		span.RecordError(err)
		return model.CommissionRule{}, err
	}

	e.invalidateRule(ctx, saved.PlanID, saved.Frequency, saved.Tier)
	if previous != nil && previous.Key() != saved.Key() {
		e.invalidateRule(ctx, previous.PlanID, previous.Frequency, previous.Tier)
	}
	return saved, nil
}

// DeactivateRule switches a rule off. Tiers keyed to it pay nothing until
// another rule is activated.
func (e *Engine) DeactivateRule(ctx context.Context, ruleID string) error {
	rule, err := e.datasource.GetRuleByID(ctx, ruleID)
	if err != nil {
		return err
	}
	if err := e.datasource.DeactivateRule(ctx, ruleID); err != nil {
		return err
	}
	e.invalidateRule(ctx, rule.PlanID, rule.Frequency, rule.Tier)
	return nil
}

// GetRule retrieves a rule by ID.
func (e *Engine) GetRule(ctx context.Context, ruleID string) (*model.CommissionRule, error) {
	return e.datasource.GetRuleByID(ctx, ruleID)
}

// ListRules returns every rule of a plan, active ones first within a key.
func (e *Engine) ListRules(ctx context.Context, planID string) ([]model.CommissionRule, error) {
	return e.datasource.ListRules(ctx, planID)
}
