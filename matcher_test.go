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
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/internal/cache"
	"github.com/blnkfinance/commissions/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCachedEngine(t *testing.T) (*testEngine, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return newTestEngine(t, nil, WithRuleCache(cache.NewRedisCache(client))), mr
}

func TestMatchRuleExactKey(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.percentRule(t, "gold", "monthly", 1, "10", 0, 0)

	rule, err := te.MatchRule(ctx, "gold", "monthly", 1)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, model.KindPercentage, rule.Kind)

	for _, miss := range []struct {
		plan, frequency string
		tier            int
	}{
		{"gold", "monthly", 2},
		{"gold", "yearly", 1},
		{"silver", "monthly", 1},
	} {
		rule, err := te.MatchRule(ctx, miss.plan, miss.frequency, miss.tier)
		require.NoError(t, err)
		assert.Nil(t, rule, "%s/%s/%d must not fall back", miss.plan, miss.frequency, miss.tier)
	}
}

func TestMatchRuleReadThroughCache(t *testing.T) {
	te, mr := newCachedEngine(t)
	ctx := context.Background()
	te.percentRule(t, "gold", "monthly", 1, "10", 0, 0)

	first, err := te.MatchRule(ctx, "gold", "monthly", 1)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, mr.Exists(ruleCacheKey("gold", "monthly", 1)))

	calls := te.ds.Calls("GetActiveRule")
	second, err := te.MatchRule(ctx, "gold", "monthly", 1)
	require.NoError(t, err)
	assert.Equal(t, calls, te.ds.Calls("GetActiveRule"), "second lookup should be served from cache")
	assert.Equal(t, first.RuleID, second.RuleID)
	assert.True(t, first.Value.Equal(second.Value))
}

func TestMatchRuleCacheKeepsIdsWithColonsApart(t *testing.T) {
	te, _ := newCachedEngine(t)
	ctx := context.Background()
	te.percentRule(t, "a:b", "c", 1, "10", 0, 0)

	rule, err := te.MatchRule(ctx, "a:b", "c", 1)
	require.NoError(t, err)
	require.NotNil(t, rule)

	rule, err = te.MatchRule(ctx, "a", "b:c", 1)
	require.NoError(t, err)
	assert.Nil(t, rule)

	rule, err = te.MatchRule(ctx, "a:b", "c", 1)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "a:b", rule.PlanID)
}

func TestMatchRuleCachesMissingRule(t *testing.T) {
	te, _ := newCachedEngine(t)
	ctx := context.Background()

	rule, err := te.MatchRule(ctx, "gold", "monthly", 3)
	require.NoError(t, err)
	assert.Nil(t, rule)

	calls := te.ds.Calls("GetActiveRule")
	rule, err = te.MatchRule(ctx, "gold", "monthly", 3)
	require.NoError(t, err)
	assert.Nil(t, rule)
	assert.Equal(t, calls, te.ds.Calls("GetActiveRule"))
}

func TestUpsertRuleInvalidatesCache(t *testing.T) {
	te, _ := newCachedEngine(t)
	ctx := context.Background()

	rule, err := te.MatchRule(ctx, "gold", "monthly", 1)
	require.NoError(t, err)
	assert.Nil(t, rule)

	te.percentRule(t, "gold", "monthly", 1, "12.5", 0, 0)

	rule, err = te.MatchRule(ctx, "gold", "monthly", 1)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, "12.5", rule.Value.String())
}

func TestMatchRuleStoreError(t *testing.T) {
	te := newTestEngine(t, nil)
	te.ds.FailOn("GetActiveRule", apierror.NewAPIError(apierror.ErrInternalServer, "connection refused", nil), 1)

	_, err := te.MatchRule(context.Background(), "gold", "monthly", 1)
	assert.True(t, apierror.IsCode(err, apierror.ErrInternalServer))
}

func TestRuleTableLooksUpEachKeyOnce(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.percentRule(t, "gold", "monthly", 1, "10", 0, 0)

	table := ruleTable{}
	for i := 0; i < 3; i++ {
		_, err := table.lookup(te.Engine, ctx, "gold", "monthly", 1)
		require.NoError(t, err)
		_, err = table.lookup(te.Engine, ctx, "gold", "monthly", 2)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, te.ds.Calls("GetActiveRule"))
}
