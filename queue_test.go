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
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/model"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnqueuer records tasks and can reject ids it has already seen, like asynq does.
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	opts  [][]asynq.Option
	seen  map[string]bool
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	for _, opt := range opts {
		if opt.Type() == asynq.TaskIDOpt {
			id := opt.Value().(string)
			if f.seen[id] {
				return nil, asynq.ErrTaskIDConflict
			}
			f.seen[id] = true
		}
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func (f *fakeEnqueuer) taskIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []string{}
	for _, opts := range f.opts {
		for _, opt := range opts {
			if opt.Type() == asynq.TaskIDOpt {
				ids = append(ids, opt.Value().(string))
			}
		}
	}
	return ids
}

func TestEnqueuePaymentEventCollapsesDuplicates(t *testing.T) {
	client := &fakeEnqueuer{}
	q := NewQueueWithClient(client, testConfig())
	ctx := context.Background()

	event := paymentEvent("evt_1", "c", 10000)
	require.NoError(t, q.EnqueuePaymentEvent(ctx, event))
	require.NoError(t, q.EnqueuePaymentEvent(ctx, event))

	require.Len(t, client.tasks, 1)
	assert.Equal(t, "payment_events", client.tasks[0].Type())
	assert.Equal(t, []string{"evt_1"}, client.taskIDs())

	var queued model.PaymentEvent
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &queued))
	assert.Equal(t, event.BaseAmount, queued.BaseAmount)
}

func TestEnqueuePaymentEventRejectsInvalidEvent(t *testing.T) {
	client := &fakeEnqueuer{}
	q := NewQueueWithClient(client, testConfig())

	err := q.EnqueuePaymentEvent(context.Background(), model.PaymentEvent{EventID: "evt_1"})
	assert.True(t, apierror.IsCode(err, apierror.ErrInvalidInput))
	assert.Empty(t, client.tasks)
}

func TestEnqueueReturnsClientErrors(t *testing.T) {
	client := &fakeEnqueuer{err: errors.New("redis down")}
	q := NewQueueWithClient(client, testConfig())

	err := q.EnqueueNetworkRebuild(context.Background(), "root")
	assert.EqualError(t, err, "redis down")
}

func TestEnqueueWebhookSkippedWithoutURL(t *testing.T) {
	client := &fakeEnqueuer{}
	q := NewQueueWithClient(client, testConfig())

	require.NoError(t, q.EnqueueWebhook(context.Background(), NewWebhook{Event: EventCommissionEarned}))
	assert.Empty(t, client.tasks)
}

func TestNewQueueEnqueuesToRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	conf := testConfig()
	conf.Redis.Dns = mr.Addr()
	q, err := NewQueue(conf)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.EnqueuePaymentEvent(context.Background(), paymentEvent("evt_redis", "c", 500)))
	require.NoError(t, q.EnqueuePaymentEvent(context.Background(), paymentEvent("evt_redis", "c", 500)))

	info, err := q.Inspector.GetTaskInfo("payment_events", "evt_redis")
	require.NoError(t, err)
	assert.Equal(t, "payment_events", info.Type)
	assert.NotEmpty(t, mr.Keys())
}

func newRedisQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	conf := testConfig()
	conf.Redis.Dns = mr.Addr()
	q, err := NewQueue(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEnqueuePaymentEventRequeuesArchivedTask(t *testing.T) {
	q := newRedisQueue(t)
	ctx := context.Background()
	event := paymentEvent("evt_arch", "c", 500)

	require.NoError(t, q.EnqueuePaymentEvent(ctx, event))
	require.NoError(t, q.Inspector.ArchiveTask("payment_events", "evt_arch"))

	info, err := q.Inspector.GetTaskInfo("payment_events", "evt_arch")
	require.NoError(t, err)
	require.Equal(t, asynq.TaskStateArchived, info.State)

	require.NoError(t, q.EnqueuePaymentEvent(ctx, event))

	info, err = q.Inspector.GetTaskInfo("payment_events", "evt_arch")
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStatePending, info.State)

	var queued model.PaymentEvent
	require.NoError(t, json.Unmarshal(info.Payload, &queued))
	assert.Equal(t, event.BaseAmount, queued.BaseAmount)
}

func TestEnqueuePaymentEventKeepsPendingTask(t *testing.T) {
	q := newRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.EnqueuePaymentEvent(ctx, paymentEvent("evt_dup", "c", 500)))
	require.NoError(t, q.EnqueuePaymentEvent(ctx, paymentEvent("evt_dup", "c", 500)))

	info, err := q.Inspector.GetTaskInfo("payment_events", "evt_dup")
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStatePending, info.State)

	pending, err := q.Inspector.ListPendingTasks("payment_events")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestNewQueueRejectsBadURL(t *testing.T) {
	conf := testConfig()
	conf.Redis.Dns = ""
	_, err := NewQueue(conf)
	assert.Error(t, err)
}

func TestHandlePaymentEventTask(t *testing.T) {
	te := newTestEngine(t, nil)
	te.agent(t, "a", "", model.AgentActive)
	te.agent(t, "c", "a", model.AgentActive)
	te.percentRule(t, "gold", "monthly", 1, "10", 0, 0)

	payload, err := json.Marshal(paymentEvent("evt_task", "c", 10000))
	require.NoError(t, err)
	task := asynq.NewTask("payment_events", payload)

	require.NoError(t, te.HandlePaymentEventTask(context.Background(), task))
	// redelivery replays the stored result
	require.NoError(t, te.HandlePaymentEventTask(context.Background(), task))

	balance, err := te.GetBalance(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestHandlePaymentEventTaskSkipsRetryForPermanentErrors(t *testing.T) {
	te := newTestEngine(t, nil)

	err := te.HandlePaymentEventTask(context.Background(), asynq.NewTask("payment_events", []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	payload, err := json.Marshal(paymentEvent("evt_unknown", "nobody", 10000))
	require.NoError(t, err)
	err = te.HandlePaymentEventTask(context.Background(), asynq.NewTask("payment_events", payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePaymentEventTaskRetriesStoreFailures(t *testing.T) {
	te := newTestEngine(t, nil)
	te.agent(t, "a", "", model.AgentActive)
	te.agent(t, "c", "a", model.AgentActive)
	te.ds.FailOn("GetProcessedEvent", apierror.NewAPIError(apierror.ErrInternalServer, "connection refused", nil), 1)

	payload, err := json.Marshal(paymentEvent("evt_down", "c", 10000))
	require.NoError(t, err)
	err = te.HandlePaymentEventTask(context.Background(), asynq.NewTask("payment_events", payload))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleNetworkRebuildTask(t *testing.T) {
	te := newTestEngine(t, nil)
	te.agent(t, "root", "", model.AgentActive)
	te.agent(t, "kid", "root", model.AgentActive)

	payload, err := json.Marshal(NetworkRebuildPayload{RootAgentID: "root"})
	require.NoError(t, err)
	require.NoError(t, te.HandleNetworkRebuildTask(context.Background(), asynq.NewTask("network_rebuild", payload)))

	level, err := te.GetNetworkLevel(context.Background(), "kid")
	require.NoError(t, err)
	assert.Equal(t, 2, level.Level)

	payload, err = json.Marshal(NetworkRebuildPayload{RootAgentID: "ghost"})
	require.NoError(t, err)
	err = te.HandleNetworkRebuildTask(context.Background(), asynq.NewTask("network_rebuild", payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
