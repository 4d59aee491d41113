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
	"testing"

	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"
)

// tree builds
//
//	r
//	├── a
//	│   ├── c
//	│   └── d
//	│       └── f
//	└── b
//	    └── e
func (te *testEngine) tree(t *testing.T) {
	t.Helper()
	te.agent(t, "r", "", model.AgentActive)
	te.agent(t, "a", "r", model.AgentActive)
	te.agent(t, "b", "r", model.AgentActive)
	te.agent(t, "c", "a", model.AgentActive)
	te.agent(t, "d", "a", model.AgentSuspended)
	te.agent(t, "e", "b", model.AgentActive)
	te.agent(t, "f", "d", model.AgentActive)
}

func (te *testEngine) level(t *testing.T, id string) *model.NetworkLevel {
	t.Helper()
	level, err := te.GetNetworkLevel(context.Background(), id)
	require.NoError(t, err)
	return level
}

func TestRebuildNetwork(t *testing.T) {
	te := newTestEngine(t, nil)
	te.tree(t)

	result, err := te.RebuildNetwork(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, "r", result.RootAgentID)
	assert.Equal(t, 7, result.AgentsIndexed)
	assert.Equal(t, 4, result.MaxLevel)
	assert.False(t, result.CycleDetected)
	assert.False(t, result.Truncated)

	tests := []struct {
		agent  string
		level  int
		path   []string
		direct int
		total  int
	}{
		{agent: "r", level: 1, path: []string{"r"}, direct: 2, total: 6},
		{agent: "a", level: 2, path: []string{"r", "a"}, direct: 2, total: 3},
		{agent: "b", level: 2, path: []string{"r", "b"}, direct: 1, total: 1},
		{agent: "c", level: 3, path: []string{"r", "a", "c"}, direct: 0, total: 0},
		{agent: "d", level: 3, path: []string{"r", "a", "d"}, direct: 1, total: 1},
		{agent: "f", level: 4, path: []string{"r", "a", "d", "f"}, direct: 0, total: 0},
	}
	for _, tt := range tests {
		t.Run(tt.agent, func(t *testing.T) {
			level := te.level(t, tt.agent)
			assert.Equal(t, "r", level.RootAgentID)
			assert.Equal(t, tt.level, level.Level)
			assert.Equal(t, tt.path, level.Path)
			assert.Equal(t, tt.direct, level.DirectDownline)
			assert.Equal(t, tt.total, level.TotalDownline)
			assert.Equal(t, fixedNow, level.RebuiltAt)
			assert.False(t, level.Stale)
		})
	}
}

func TestRebuildNetworkSumsCommissionEarned(t *testing.T) {
	te := newTestEngine(t, nil)
	te.tree(t)
	ctx := context.Background()

	_, err := te.Post(ctx, "a", 1_200, model.SourceCommissionPosting, "pst_1")
	require.NoError(t, err)
	_, err = te.Post(ctx, "a", 300, model.SourceCommissionPosting, "pst_2")
	require.NoError(t, err)
	_, err = te.Post(ctx, "a", -300, model.SourceCommissionReversal, "pst_2")
	require.NoError(t, err)
	// withdrawals spend earnings, they do not reduce them
	_, err = te.Debit(ctx, "a", 500, "wd_1")
	require.NoError(t, err)
	_, err = te.Post(ctx, "e", 90, model.SourceCommissionPosting, "pst_3")
	require.NoError(t, err)

	_, err = te.RebuildNetwork(ctx, "r")
	require.NoError(t, err)

	assert.Equal(t, int64(1_200), te.level(t, "a").CommissionEarned)
	assert.Equal(t, int64(90), te.level(t, "e").CommissionEarned)
	assert.Equal(t, int64(0), te.level(t, "r").CommissionEarned)
}

func TestRebuildNetworkTruncatesDeepTrees(t *testing.T) {
	conf := testConfig()
	conf.Network.MaxIndexDepth = 3
	te := newTestEngine(t, conf)
	te.chain(t, 5)

	result, err := te.RebuildNetwork(context.Background(), "a0")
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Equal(t, 3, result.MaxLevel)
	assert.Equal(t, 3, result.AgentsIndexed)

	assert.Equal(t, 2, te.level(t, "a0").TotalDownline)
	_, err = te.GetNetworkLevel(context.Background(), "a3")
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}

func TestRebuildNetworkIndexesOrphansAsRoots(t *testing.T) {
	te := newTestEngine(t, nil)
	te.agent(t, "orphan", "deleted", model.AgentActive)
	te.agent(t, "kid", "orphan", model.AgentActive)

	result, err := te.RebuildNetwork(context.Background(), "orphan")
	require.NoError(t, err)
	assert.Equal(t, 2, result.AgentsIndexed)
	assert.Equal(t, []string{"orphan", "kid"}, te.level(t, "kid").Path)
}

func TestRebuildNetworkClearsMovedRoot(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.agent(t, "r1", "", model.AgentActive)
	te.agent(t, "k", "r1", model.AgentActive)
	te.agent(t, "r2", "", model.AgentActive)
	_, err := te.RebuildNetwork(ctx, "r1")
	require.NoError(t, err)

	require.NoError(t, te.ds.UpdateAgentReferrer(ctx, "r1", ptr.String("r2")))
	result, err := te.RebuildNetwork(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.AgentsIndexed)

	_, err = te.GetNetworkLevel(ctx, "k")
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}

func TestRebuildNetworkErrors(t *testing.T) {
	te := newTestEngine(t, nil)
	te.tree(t)
	ctx := context.Background()

	_, err := te.RebuildNetwork(ctx, "ghost")
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))

	te.ds.FailOn("ReplaceNetworkLevels", errors.New("disk full"), 1)
	_, err = te.RebuildNetwork(ctx, "r")
	assert.EqualError(t, err, "disk full")

	te.ds.FailOn("GetDirectReferrals", errors.New("timeout"), 1)
	_, err = te.RebuildNetwork(ctx, "r")
	assert.EqualError(t, err, "timeout")

	_, err = te.GetNetworkLevel(ctx, "r")
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound), "a failed rebuild writes nothing")
}

func TestRebuildAllNetworks(t *testing.T) {
	te := newTestEngine(t, nil)
	te.tree(t)
	te.agent(t, "solo", "", model.AgentActive)

	results, err := te.RebuildAllNetworks(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	indexed := map[string]int{}
	for _, r := range results {
		indexed[r.RootAgentID] = r.AgentsIndexed
	}
	assert.Equal(t, map[string]int{"r": 7, "solo": 1}, indexed)
}

func TestRebuildAllNetworksJoinsFailures(t *testing.T) {
	te := newTestEngine(t, nil)
	te.agent(t, "r1", "", model.AgentActive)
	te.agent(t, "r2", "", model.AgentActive)
	te.ds.FailOn("ReplaceNetworkLevels", errors.New("disk full"), 1)

	results, err := te.RebuildAllNetworks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, results, 1)
}

func TestRebuildStaleNetworks(t *testing.T) {
	te := newTestEngine(t, nil)
	te.tree(t)
	ctx := context.Background()
	_, err := te.RebuildNetwork(ctx, "r")
	require.NoError(t, err)

	te.agent(t, "g", "c", model.AgentActive)
	require.NoError(t, te.ds.MarkNetworkStale(ctx, []string{"r"}))

	results, err := te.RebuildStaleNetworks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 8, results[0].AgentsIndexed)

	assert.Equal(t, 4, te.level(t, "g").Level)
	assert.False(t, te.level(t, "r").Stale)

	results, err = te.RebuildStaleNetworks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}
