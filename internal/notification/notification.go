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

package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blnkfinance/commissions/config"
	"github.com/blnkfinance/commissions/internal/request"
	"github.com/sirupsen/logrus"
)

// Alert is a data-integrity finding that needs an operator.
type Alert struct {
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	At      time.Time              `json:"at"`
}

const (
	AlertLedgerDrift   = "ledger_drift"
	AlertReferralCycle = "referral_cycle"
	AlertPayoutFailure = "payout_failure"
)

// WebhookSender forwards an alert to the configured webhook pipeline.
type WebhookSender func(event string, payload interface{}) error

var (
	webhookSender WebhookSender
	senderMu      sync.RWMutex
)

// RegisterWebhookSender installs the function used to forward alerts as webhooks.
// The queue registers itself here so this package does not import it.
func RegisterWebhookSender(sender WebhookSender) {
	senderMu.Lock()
	defer senderMu.Unlock()
	webhookSender = sender
}

func currentSender() WebhookSender {
	senderMu.RLock()
	defer senderMu.RUnlock()
	return webhookSender
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func buildSlackMessage(projectName string, alert Alert) slackMessage {
	fields := []slackText{
		{Type: "mrkdwn", Text: fmt.Sprintf("*Alert:*\n%s", alert.Kind)},
		{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%s", alert.At.Format(time.RFC822))},
	}

	keys := make([]string, 0, len(alert.Fields))
	for k := range alert.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:*\n%v", k, alert.Fields[k])})
	}

	return slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("Alert from %s 🐞", projectName), Emoji: true}},
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: alert.Message}},
		{Type: "section", Fields: fields},
	}}
}

// SlackNotification posts an alert to the Slack webhook.
func SlackNotification(ctx context.Context, conf *config.Configuration, alert Alert) error {
	msg := buildSlackMessage(conf.ProjectName, alert)
	_, err := request.PostJSON(ctx, conf.Notification.Slack.WebhookUrl, nil, msg, nil)
	return err
}

// NotifyAlert logs the alert and, without blocking the caller, forwards it to
// Slack and the webhook sender when those are configured.
func NotifyAlert(alert Alert) {
	if alert.At.IsZero() {
		alert.At = time.Now()
	}

	logrus.WithFields(logrus.Fields(alert.Fields)).WithField("alert", alert.Kind).Warn(alert.Message)

	go deliver(alert)
}

func deliver(alert Alert) {
	conf, err := config.Fetch()
	if err != nil {
		logrus.Error(err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if conf.Notification.Slack.WebhookUrl != "" {
		if err := SlackNotification(ctx, conf, alert); err != nil {
			logrus.Errorf("failed to send slack alert: %v", err)
		}
	}

	if sender := currentSender(); sender != nil {
		if err := sender("integrity."+alert.Kind, alert); err != nil {
			logrus.Errorf("failed to forward alert webhook: %v", err)
		}
	}
}

// NotifyError reports an unexpected system error as an alert.
func NotifyError(systemError error) {
	if systemError == nil {
		return
	}
	NotifyAlert(Alert{Kind: "system_error", Message: systemError.Error()})
}
