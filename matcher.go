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
	"time"

	"github.com/blnkfinance/commissions/config"
	"github.com/blnkfinance/commissions/model"
)

// cachedRule is what the rule cache stores. Cached distinguishes a stored
// "no rule" from a cache miss, which leaves the struct zeroed.
type cachedRule struct {
	Cached bool                  `json:"cached"`
	Rule   *model.CommissionRule `json:"rule,omitempty"`
}

func ruleCacheKey(planID, frequency string, tier int) string {
	return "rule:" + model.RuleKey(planID, frequency, tier)
}

func (e *Engine) ruleTTL() time.Duration {
	ttl := e.config.Cache.RuleTTLSec
	if ttl <= 0 {
		ttl = config.DEFAULT_RULE_TTL_SEC
	}
	return time.Duration(ttl) * time.Second
}

// MatchRule returns the active rule for (planID, frequency, tier), or nil when
// no rule applies. The lookup is exact: there is no fallback between tiers or
// frequencies. Cache failures fall through to the datasource.
func (e *Engine) MatchRule(ctx context.Context, planID, frequency string, tier int) (*model.CommissionRule, error) {
	ctx, span := tracer.Start(ctx, "MatchRule")
	defer span.End()

	key := ruleCacheKey(planID, frequency, tier)
	if e.ruleCache != nil {
		var hit cachedRule
		if err := e.ruleCache.Get(ctx, key, &hit); err != nil {
			e.logger.Errorf("rule cache read failed for %s: %v", key, err)
		} else if hit.Cached {
			return hit.Rule, nil
		}
	}

	rule, err := e.datasource.GetActiveRule(ctx, planID, frequency, tier)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if e.ruleCache != nil {
		if err := e.ruleCache.Set(ctx, key, cachedRule{Cached: true, Rule: rule}, e.ruleTTL()); err != nil {
			e.logger.Errorf("rule cache write failed for %s: %v", key, err)
		}
	}
	return rule, nil
}

// ruleTable holds the rules of one distribution keyed by model.RuleKey.
// A nil value records a key with no active rule.
type ruleTable map[string]*model.CommissionRule

func (t ruleTable) lookup(e *Engine, ctx context.Context, planID, frequency string, tier int) (*model.CommissionRule, error) {
	key := model.RuleKey(planID, frequency, tier)
	if rule, ok := t[key]; ok {
		return rule, nil
	}
	rule, err := e.MatchRule(ctx, planID, frequency, tier)
	if err != nil {
		return nil, err
	}
	t[key] = rule
	return rule, nil
}

func (e *Engine) invalidateRule(ctx context.Context, planID, frequency string, tier int) {
	if e.ruleCache == nil {
		return
	}
	key := ruleCacheKey(planID, frequency, tier)
	if err := e.ruleCache.Delete(ctx, key); err != nil {
		e.logger.Errorf("rule cache invalidation failed for %s: %v", key, err)
	}
}
