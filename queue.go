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
	"fmt"
	"log"

	"github.com/blnkfinance/commissions/config"
	"github.com/blnkfinance/commissions/internal/apierror"
	redis_db "github.com/blnkfinance/commissions/internal/redis-db"
	"github.com/blnkfinance/commissions/model"
	"github.com/hibiken/asynq"
)

// Enqueuer is the part of *asynq.Client the queue uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Queue represents a queue for handling various tasks.
type Queue struct {
	Client    Enqueuer
	Inspector *asynq.Inspector
	conf      *config.Configuration
}

// NetworkRebuildPayload is the body of a network rebuild task.
type NetworkRebuildPayload struct {
	RootAgentID string `json:"root_agent_id"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
// - error: An error if the Redis URL cannot be parsed.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := RedisConnOpt(conf)
	if err != nil {
		return nil, err
	}
	return &Queue{
		Client:    asynq.NewClient(opt),
		Inspector: asynq.NewInspector(opt),
		conf:      conf,
	}, nil
}

// NewQueueWithClient builds a Queue over an existing client.
func NewQueueWithClient(client Enqueuer, conf *config.Configuration) *Queue {
	return &Queue{Client: client, conf: conf}
}

// RedisConnOpt converts the configured Redis nodes into asynq options.
func RedisConnOpt(conf *config.Configuration) (asynq.RedisConnOpt, error) {
	opt, err := redis_db.ConnOpt(conf.Redis)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %w", err)
	}
	return opt, nil
}

// Close releases the queue's Redis connections.
func (q *Queue) Close() error {
	if q.Inspector != nil {
		if err := q.Inspector.Close(); err != nil {
			return err
		}
	}
	return q.Client.Close()
}

func (q *Queue) enqueue(ctx context.Context, queue string, payload interface{}, opts ...asynq.Option) error {
	IPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	opts = append([]asynq.Option{asynq.Queue(queue), asynq.MaxRetry(q.conf.Queue.MaxRetry)}, opts...)
	task := asynq.NewTask(queue, IPayload)
	info, err := q.Client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return q.resolveConflict(ctx, queue, taskID(opts), task, opts)
		}
		log.Println(err, info)
		return err
	}
	return nil
}

func taskID(opts []asynq.Option) string {
	for _, opt := range opts {
		if opt.Type() == asynq.TaskIDOpt {
			if id, ok := opt.Value().(string); ok {
				return id
			}
		}
	}
	return ""
}

// resolveConflict handles a task id that is already taken. A task that is
// still waiting or running absorbs the duplicate. An archived task has given
// up, so it is put back on the queue instead of being dropped.
func (q *Queue) resolveConflict(ctx context.Context, queue, id string, task *asynq.Task, opts []asynq.Option) error {
	if q.Inspector == nil || id == "" {
		return nil
	}

	info, err := q.Inspector.GetTaskInfo(queue, id)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		// the earlier task finished between the enqueue and the lookup
		_, err = q.Client.EnqueueContext(ctx, task, opts...)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("inspecting task %s: %w", id, err)
	}

	switch info.State {
	case asynq.TaskStateArchived:
		if err := q.Inspector.RunTask(queue, id); err != nil {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("task %s is archived and could not be requeued", id), err)
		}
		log.Printf(" [*] Requeued archived task: %s", id)
		return nil
	default:
		return nil
	}
}

// EnqueuePaymentEvent queues a payment event for distribution. The event id is
// the task id, so a redelivered event collapses into the task already queued.
// An event whose earlier task was archived is requeued.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - event model.PaymentEvent: The confirmed payment.
//
// Returns:
// - error: INVALID_INPUT for a malformed event, or an error if the task could not be enqueued.
func (q *Queue) EnqueuePaymentEvent(ctx context.Context, event model.PaymentEvent) error {
	ctx, span := tracer.Start(ctx, "Adding Payment Event To Redis Queue")
	defer span.End()

	if err := event.Validate(); err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	if err := q.enqueue(ctx, q.conf.Queue.PaymentEventQueue, event, asynq.TaskID(event.EventID)); err != nil {
		span.RecordError(err)
		return err
	}
	log.Printf(" [*] Successfully enqueued payment event: %+v", event.EventID)
	return nil
}

// EnqueueWebhook queues a webhook notification for delivery.
func (q *Queue) EnqueueWebhook(ctx context.Context, hook NewWebhook) error {
	if q.conf.Notification.Webhook.Url == "" {
		return nil
	}
	return q.enqueue(ctx, q.conf.Queue.WebhookQueue, hook)
}

// EnqueueNetworkRebuild queues a rebuild of one root's network index. While a
// rebuild of the root is still queued, further requests are dropped.
func (q *Queue) EnqueueNetworkRebuild(ctx context.Context, rootAgentID string) error {
	err := q.enqueue(ctx, q.conf.Queue.NetworkQueue, NetworkRebuildPayload{RootAgentID: rootAgentID},
		asynq.TaskID("rebuild:"+rootAgentID))
	if err != nil {
		return err
	}
	log.Printf(" [*] Successfully enqueued network rebuild: %+v", rootAgentID)
	return nil
}

// permanent reports whether retrying err can never succeed.
func permanent(err error) bool {
	return apierror.IsCode(err, apierror.ErrInvalidInput) ||
		apierror.IsCode(err, apierror.ErrBadRequest) ||
		apierror.IsCode(err, apierror.ErrNotFound)
}

// HandlePaymentEventTask distributes a queued payment event. Redelivery is
// safe: a distributed event replays its stored result.
func (e *Engine) HandlePaymentEventTask(ctx context.Context, task *asynq.Task) error {
	var event model.PaymentEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	result, err := e.Distribute(ctx, event)
	if err != nil {
		if permanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	e.logger.Infof("distributed payment event %s: %d postings, total %d, replayed %t",
		result.EventID, len(result.Postings), result.TotalAmount, result.Replayed)
	return nil
}

// HandleNetworkRebuildTask rebuilds the network index of a queued root.
func (e *Engine) HandleNetworkRebuildTask(ctx context.Context, task *asynq.Task) error {
	var payload NetworkRebuildPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if _, err := e.RebuildNetwork(ctx, payload.RootAgentID); err != nil {
		if permanent(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}
