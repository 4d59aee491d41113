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
	"fmt"

	"github.com/blnkfinance/commissions/internal/request"
	"github.com/blnkfinance/commissions/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	EventCommissionEarned   = "commission.earned"
	EventCommissionReversed = "commission.reversed"
	EventWalletDebited      = "wallet.debited"
)

// NotificationSink receives a notification after the money it describes has
// committed. A sink must not block; delivery failures never undo a posting.
type NotificationSink interface {
	Notify(ctx context.Context, n model.Notification) error
}

// SinkFunc adapts a function to a NotificationSink.
type SinkFunc func(ctx context.Context, n model.Notification) error

func (f SinkFunc) Notify(ctx context.Context, n model.Notification) error {
	return f(ctx, n)
}

// logSink is the default sink. It only logs.
type logSink struct {
	logger logrus.FieldLogger
}

func (s logSink) Notify(_ context.Context, n model.Notification) error {
	s.logger.WithFields(logrus.Fields{
		"event":  n.Event,
		"agent":  n.AgentID,
		"amount": n.Amount,
	}).Info(n.SourceDescription)
	return nil
}

// NewWebhook represents the structure of a webhook notification.
// It includes an event type and associated payload data.
type NewWebhook struct {
	Event   string      `json:"event"` // The event type that triggered the webhook.
	Payload interface{} `json:"data"`  // The data associated with the event.
}

// WebhookSink hands notifications to the webhook queue. Delivery happens in
// the workers through ProcessWebhook.
type WebhookSink struct {
	queue *Queue
}

func NewWebhookSink(q *Queue) *WebhookSink {
	return &WebhookSink{queue: q}
}

func (s *WebhookSink) Notify(ctx context.Context, n model.Notification) error {
	return s.queue.EnqueueWebhook(ctx, NewWebhook{Event: n.Event, Payload: n})
}

func (e *Engine) notify(ctx context.Context, n model.Notification) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Notify(ctx, n); err != nil {
		e.logger.WithField("event", n.Event).WithField("agent", n.AgentID).Errorf("notification not sent: %v", err)
	}
}

func (e *Engine) notifyEarned(ctx context.Context, p model.CommissionPosting) {
	e.notify(ctx, model.Notification{
		Event:             EventCommissionEarned,
		AgentID:           p.AgentID,
		Amount:            p.Amount,
		SourceDescription: fmt.Sprintf("Tier %d commission on payment %s by %s", p.Tier, p.EventID, p.SourceAgentID),
		OccurredAt:        e.now(),
	})
}

// ProcessWebhook processes a webhook notification task from the queue.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - task *asynq.Task: The task containing the webhook notification data.
//
// Returns:
// - error: An error if the webhook delivery fails. Malformed payloads are not retried.
func (e *Engine) ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	hook := e.config.Notification.Webhook
	if hook.Url == "" {
		return nil
	}
	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		e.logger.Errorf("Error unmarshaling webhook payload: %v", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logger := e.logger.WithField("event", payload.Event)
	logger.Info("Processing webhook")

	if _, err := request.PostJSON(ctx, hook.Url, hook.Headers, payload, nil); err != nil {
		logger.Errorf("webhook not delivered: %v", err)
		return err
	}
	return nil
}
