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
	"time"

	"github.com/blnkfinance/commissions/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletAuditorRunOnce(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	te.agent(t, "r", "", model.AgentActive)
	te.agent(t, "k", "r", model.AgentActive)
	_, err := te.RebuildNetwork(ctx, "r")
	require.NoError(t, err)
	require.NoError(t, te.ds.MarkNetworkStale(ctx, []string{"r"}))

	for _, owner := range []string{"w1", "w2", "w3"} {
		_, err := te.Post(ctx, owner, 250, model.SourceCommissionPosting, "pst_"+owner)
		require.NoError(t, err)
	}
	te.ds.ForceWalletBalance("w2", 0)

	auditor := NewWalletAuditor(te.Engine)
	summary := auditor.RunOnce(ctx)

	assert.Equal(t, 3, summary.WalletsChecked)
	require.Len(t, summary.Drifted, 1)
	assert.Equal(t, int64(-250), summary.Drifted[0].Drift)
	assert.Equal(t, int64(250), te.balance(t, "w2"))
	assert.False(t, te.level(t, "r").Stale)

	last, passes := auditor.LastSummary()
	assert.Equal(t, 1, passes)
	assert.Equal(t, summary, last)

	var warned bool
	for _, entry := range te.logs.AllEntries() {
		if entry.Level == logrus.WarnLevel && strings.Contains(entry.Message, "1 drifted") {
			warned = true
		}
	}
	assert.True(t, warned, "the pass summary goes to the engine logger")
}

func TestWalletAuditorStopLogsThroughEngine(t *testing.T) {
	te := newTestEngine(t, nil)
	auditor := NewWalletAuditor(te.Engine).WithPollInterval(time.Hour)
	auditor.Start(context.Background())
	auditor.Stop()

	entry := te.logs.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Wallet auditor stopped", entry.Message)
}

func TestWalletAuditorStartStop(t *testing.T) {
	te := newTestEngine(t, nil)
	_, err := te.Post(context.Background(), "w1", 100, model.SourceCommissionPosting, "pst_1")
	require.NoError(t, err)

	auditor := NewWalletAuditor(te.Engine).WithPollInterval(10 * time.Millisecond).WithBatchSize(10)
	auditor.Start(context.Background())
	auditor.Start(context.Background())
	assert.True(t, auditor.IsRunning())

	assert.Eventually(t, func() bool {
		_, passes := auditor.LastSummary()
		return passes >= 2
	}, 2*time.Second, 10*time.Millisecond)

	auditor.Stop()
	auditor.Stop()
	assert.False(t, auditor.IsRunning())

	_, passes := auditor.LastSummary()
	time.Sleep(30 * time.Millisecond)
	_, after := auditor.LastSummary()
	assert.Equal(t, passes, after, "no pass runs after Stop")
}

func TestWalletAuditorStopsWithContext(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	auditor := NewWalletAuditor(te.Engine).WithPollInterval(time.Hour)
	auditor.Start(ctx)
	cancel()
	auditor.wg.Wait()

	_, passes := auditor.LastSummary()
	assert.Equal(t, 0, passes)
}
