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
	"os"

	"github.com/blnkfinance/commissions"
	"github.com/blnkfinance/commissions/config"
	"github.com/blnkfinance/commissions/database"
	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/internal/cache"
	"github.com/blnkfinance/commissions/internal/notification"
	redis_db "github.com/blnkfinance/commissions/internal/redis-db"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CLI represents the command-line application, encapsulating the root Cobra command.
type CLI struct {
	cmd *cobra.Command
}

// engineInstance holds the engine and the configuration it was built from.
type engineInstance struct {
	engine *commissions.Engine
	queue  *commissions.Queue
	cnf    *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the engine before any command runs.
func preRun(app *engineInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		engine, queue, err := setupEngine(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.engine = engine
		app.queue = queue
		app.cnf = cnf
		return nil
	}
}

// setupEngine connects the datasource and, when Redis is configured, the
// event lock, the rule cache, the queue and the webhook sink.
func setupEngine(cfg *config.Configuration) (*commissions.Engine, *commissions.Queue, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting datasource: %v", err)
	}

	opts := []commissions.Option{commissions.WithConfig(cfg)}
	var queue *commissions.Queue
	if cfg.Redis.Dns != "" {
		client, err := redis_db.Connect(context.Background(), cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to redis: %v", err)
		}
		queue, err = commissions.NewQueue(cfg)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts,
			commissions.WithRedis(client.Client()),
			commissions.WithRuleCache(cache.NewRedisCache(client.Client())),
			commissions.WithQueue(queue),
		)
		if cfg.Notification.Webhook.Url != "" {
			opts = append(opts, commissions.WithSink(commissions.NewWebhookSink(queue)))
		}
	} else {
		logrus.Warn("redis is not configured: running without event locks, rule cache or queues")
	}

	engine, err := commissions.NewEngine(db, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating engine: %v", err)
	}
	return engine, queue, nil
}

// NewCLI creates the command-line interface with its subcommands.
func NewCLI() *CLI {
	var configFile string
	app := &engineInstance{}

	var rootCmd = &cobra.Command{
		Use:           "commissions",
		Short:         "Multi-level commission and network engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run:           func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./commissions.json", "Configuration file for the commission engine")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(agentCommands(app))
	rootCmd.AddCommand(ruleCommands(app))
	rootCmd.AddCommand(distributeCommands(app))
	rootCmd.AddCommand(walletCommands(app))
	rootCmd.AddCommand(networkCommands(app))
	rootCmd.AddCommand(configCommands())

	return &CLI{cmd: rootCmd}
}

// executeCLI runs the root command. A failed command exits with a status
// derived from its error code.
func (c CLI) executeCLI() {
	if err := c.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apierror.MapErrorToExitCode(err))
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
