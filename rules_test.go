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
	"strings"
	"testing"

	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertRuleDefaults(t *testing.T) {
	te := newTestEngine(t, nil)

	rule := te.percentRule(t, "gold", "monthly", 1, "10", 0, 0)
	assert.True(t, strings.HasPrefix(rule.RuleID, "rul_"))
	assert.Equal(t, fixedNow, rule.CreatedAt)
	assert.Equal(t, fixedNow, rule.UpdatedAt)
}

func TestUpsertRuleValidation(t *testing.T) {
	te := newTestEngine(t, nil)

	tests := []struct {
		name string
		rule model.CommissionRule
	}{
		{name: "missing plan", rule: model.CommissionRule{Frequency: "monthly", Tier: 1, Kind: model.KindFixed, Value: decimal.NewFromInt(100)}},
		{name: "tier zero", rule: model.CommissionRule{PlanID: "gold", Frequency: "monthly", Tier: 0, Kind: model.KindFixed, Value: decimal.NewFromInt(100)}},
		{name: "unknown kind", rule: model.CommissionRule{PlanID: "gold", Frequency: "monthly", Tier: 1, Kind: "tiered", Value: decimal.NewFromInt(100)}},
		{name: "zero value", rule: model.CommissionRule{PlanID: "gold", Frequency: "monthly", Tier: 1, Kind: model.KindPercentage, Value: decimal.Zero}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := te.UpsertRule(context.Background(), tt.rule)
			assert.True(t, apierror.IsCode(err, apierror.ErrInvalidInput), "got %v", err)
		})
	}
}

func TestUpsertRuleReplacesActiveRuleOnKey(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	first := te.percentRule(t, "gold", "monthly", 1, "10", 0, 0)
	second := te.percentRule(t, "gold", "monthly", 1, "15", 0, 0)

	active, err := te.MatchRule(ctx, "gold", "monthly", 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.RuleID, active.RuleID)

	old, err := te.GetRule(ctx, first.RuleID)
	require.NoError(t, err)
	assert.False(t, old.Active)

	rules, err := te.ListRules(ctx, "gold")
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestDeactivateRule(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	rule := te.percentRule(t, "gold", "monthly", 1, "10", 0, 0)

	require.NoError(t, te.DeactivateRule(ctx, rule.RuleID))

	active, err := te.MatchRule(ctx, "gold", "monthly", 1)
	require.NoError(t, err)
	assert.Nil(t, active)

	err = te.DeactivateRule(ctx, "rul_missing")
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}
