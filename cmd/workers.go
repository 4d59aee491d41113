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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/commissions"
	"github.com/blnkfinance/commissions/config"
	"github.com/blnkfinance/commissions/internal/notification"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// processPaymentEvent distributes a payment event received from the Redis queue.
func (app *engineInstance) processPaymentEvent(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("commissions.payments.worker").Start(ctx, "Process Payment Event From Redis Queue")
	defer span.End()

	err := app.engine.HandlePaymentEventTask(ctx, t)
	if err != nil {
		span.RecordError(err)
		retryCount, _ := asynq.GetRetryCount(ctx)
		logrus.Infof("Payment event pushed back for retry %d due to error: %v", retryCount, err)
	}
	return err
}

// processNetworkRebuild rebuilds the network index named by a queued task.
func (app *engineInstance) processNetworkRebuild(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("commissions.network.worker").Start(ctx, "Rebuild Network From Redis Queue")
	defer span.End()

	if err := app.engine.HandleNetworkRebuildTask(ctx, t); err != nil {
		span.RecordError(err)
		return err
	}
	log.Println(" [*] Network rebuilt")
	return nil
}

func initializeQueues(cfg *config.Configuration) map[string]int {
	return map[string]int{
		cfg.Queue.PaymentEventQueue: 3,
		cfg.Queue.WebhookQueue:      2,
		cfg.Queue.NetworkQueue:      1,
	}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	opt, err := commissions.RedisConnOpt(conf)
	if err != nil {
		return nil, err
	}

	concurrency := conf.Queue.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
	}), nil
}

func initializeTaskHandlers(app *engineInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(app.cnf.Queue.PaymentEventQueue, app.processPaymentEvent)
	mux.HandleFunc(app.cnf.Queue.WebhookQueue, app.engine.ProcessWebhook)
	mux.HandleFunc(app.cnf.Queue.NetworkQueue, app.processNetworkRebuild)
}

func startMonitoring(conf *config.Configuration) {
	opt, err := commissions.RedisConnOpt(conf)
	if err != nil {
		log.Printf("asynqmon disabled: %v", err)
		return
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: opt,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			log.Fatalf("could not start asynqmon server: %v", err)
		}
	}()
}

// workerCommands defines the "workers" command. The workers consume payment
// events, deliver webhooks, rebuild network indexes and run the wallet audit.
func workerCommands(app *engineInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start commission workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			if app.queue == nil {
				log.Fatal("workers need redis: set redis.dns in the configuration")
			}

			shutdown, err := initializeObservability(ctx, app.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			notification.RegisterWebhookSender(func(event string, payload interface{}) error {
				return app.queue.EnqueueWebhook(context.Background(), commissions.NewWebhook{Event: event, Payload: payload})
			})

			srv, err := initializeWorkerServer(app.cnf, initializeQueues(app.cnf))
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(app, mux)

			startMonitoring(app.cnf)

			auditor := commissions.NewWalletAuditor(app.engine)
			auditor.Start(ctx)
			defer auditor.Stop()

			// Run blocks until the process receives a termination signal.
			if err := srv.Run(mux); err != nil {
				log.Printf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
