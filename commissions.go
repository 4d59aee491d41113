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
	"embed"
	"time"

	"github.com/blnkfinance/commissions/config"
	"github.com/blnkfinance/commissions/database"
	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/internal/cache"
	"github.com/blnkfinance/commissions/model"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("commissions")

// Engine is the commission and network-level engine. It resolves uplines,
// matches rules, distributes commissions into the wallet ledger and keeps the
// network index.
type Engine struct {
	datasource database.IDataSource
	config     *config.Configuration
	logger     logrus.FieldLogger
	now        func() time.Time
	redis      redis.UniversalClient
	ruleCache  cache.Cache
	queue      *Queue
	sink       NotificationSink
	retryWait  time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the standard logrus logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRedis enables the per-event distribution lock.
func WithRedis(client redis.UniversalClient) Option {
	return func(e *Engine) { e.redis = client }
}

// WithRuleCache puts a read-through cache in front of rule lookups.
func WithRuleCache(c cache.Cache) Option {
	return func(e *Engine) { e.ruleCache = c }
}

// WithQueue routes network rebuilds through the background queue.
func WithQueue(q *Queue) Option {
	return func(e *Engine) { e.queue = q }
}

// WithSink sets where earning and debit notifications go.
func WithSink(sink NotificationSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithConfig uses conf instead of the stored configuration.
func WithConfig(conf *config.Configuration) Option {
	return func(e *Engine) { e.config = conf }
}

// NewEngine initializes an Engine over the provided datasource.
// The configuration is fetched from the config store unless WithConfig is given.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
// - opts ...Option: Optional collaborators (logger, clock, redis, cache, queue, sink).
//
// Returns:
// - *Engine: A pointer to the newly created Engine instance.
// - error: An error if the configuration could not be loaded.
func NewEngine(db database.IDataSource, opts ...Option) (*Engine, error) {
	e := &Engine{
		datasource: db,
		logger:     logrus.StandardLogger(),
		now:        time.Now,
		retryWait:  20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = logSink{logger: e.logger}
	}

	if e.config == nil {
		conf, err := config.Fetch()
		if err != nil {
			return nil, err
		}
		e.config = conf
	}
	return e, nil
}

// Config returns the configuration the engine runs with.
func (e *Engine) Config() *config.Configuration {
	return e.config
}

func (e *Engine) roundingMode() model.RoundingMode {
	return model.RoundingMode(e.config.Commission.RoundingMode)
}

func (e *Engine) maxTierDepth() int {
	if e.config.Commission.MaxTierDepth <= 0 {
		return config.DEFAULT_MAX_TIER_DEPTH
	}
	return e.config.Commission.MaxTierDepth
}

func (e *Engine) maxIndexDepth() int {
	if e.config.Network.MaxIndexDepth <= 0 {
		return config.DEFAULT_MAX_INDEX_DEPTH
	}
	return e.config.Network.MaxIndexDepth
}

// retryTx reruns op while it fails with a retryable store error, up to
// Commission.MaxTxRetries extra attempts. Other errors are returned at once.
func (e *Engine) retryTx(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.retryWait
	policy.MaxInterval = 20 * e.retryWait

	retries := e.config.Commission.MaxTxRetries
	if retries < 0 {
		retries = 0
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if apierror.IsCode(err, apierror.ErrRetryable) || apierror.IsCode(err, apierror.ErrConflict) {
			e.logger.WithField("attempt", attempt).Warnf("transaction aborted, retrying: %v", err)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx))
}
