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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_MAX_TIER_DEPTH   = 5
	DEFAULT_MAX_INDEX_DEPTH  = 64
	DEFAULT_ROUNDING_MODE    = "half_up"
	DEFAULT_MAX_TX_RETRIES   = 3
	DEFAULT_LOCK_TIMEOUT_SEC = 30
	DEFAULT_AUDIT_INTERVAL   = 3600
	DEFAULT_AUDIT_BATCH_SIZE = 500
	DEFAULT_RULE_TTL_SEC     = 300
	DEFAULT_MONITORING_PORT  = "5004"
)

var supportedRoundingModes = map[string]bool{
	"half_up":   true,
	"half_even": true,
	"down":      true,
	"up":        true,
}

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"COMMISSIONS_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"COMMISSIONS_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"COMMISSIONS_REDIS_SKIP_TLS_VERIFY"`
}

// CommissionConfig holds the knobs the distribution engine reads on every event.
type CommissionConfig struct {
	MaxTierDepth   int    `json:"max_tier_depth" envconfig:"COMMISSIONS_MAX_TIER_DEPTH"`
	RoundingMode   string `json:"rounding_mode" envconfig:"COMMISSIONS_ROUNDING_MODE"`
	DeferPayout    bool   `json:"defer_payout" envconfig:"COMMISSIONS_DEFER_PAYOUT"`
	MaxTxRetries   int    `json:"max_tx_retries" envconfig:"COMMISSIONS_MAX_TX_RETRIES"`
	LockTimeoutSec int    `json:"lock_timeout_sec" envconfig:"COMMISSIONS_LOCK_TIMEOUT_SEC"`
}

type NetworkConfig struct {
	MaxIndexDepth int `json:"max_index_depth" envconfig:"COMMISSIONS_NETWORK_MAX_INDEX_DEPTH"`
}

type AuditConfig struct {
	Enabled     bool `json:"enabled" envconfig:"COMMISSIONS_AUDIT_ENABLED"`
	IntervalSec int  `json:"interval_sec" envconfig:"COMMISSIONS_AUDIT_INTERVAL_SEC"`
	BatchSize   int  `json:"batch_size" envconfig:"COMMISSIONS_AUDIT_BATCH_SIZE"`
}

type CacheConfig struct {
	RuleTTLSec int `json:"rule_ttl_sec" envconfig:"COMMISSIONS_CACHE_RULE_TTL_SEC"`
}

type QueueConfig struct {
	PaymentEventQueue string `json:"payment_event_queue" envconfig:"COMMISSIONS_QUEUE_PAYMENT_EVENT"`
	WebhookQueue      string `json:"webhook_queue" envconfig:"COMMISSIONS_QUEUE_WEBHOOK"`
	NetworkQueue      string `json:"network_queue" envconfig:"COMMISSIONS_QUEUE_NETWORK"`
	Concurrency       int    `json:"concurrency" envconfig:"COMMISSIONS_QUEUE_CONCURRENCY"`
	MaxRetry          int    `json:"max_retry" envconfig:"COMMISSIONS_QUEUE_MAX_RETRY"`
	MonitoringPort    string `json:"monitoring_port" envconfig:"COMMISSIONS_QUEUE_MONITORING_PORT"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"COMMISSIONS_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url" envconfig:"COMMISSIONS_WEBHOOK_URL"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"COMMISSIONS_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"COMMISSIONS_ENABLE_TELEMETRY"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Commission      CommissionConfig `json:"commission"`
	Network         NetworkConfig    `json:"network"`
	Audit           AuditConfig      `json:"audit"`
	Cache           CacheConfig      `json:"cache"`
	Queue           QueueConfig      `json:"queue"`
	Notification    Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("commissions", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called commissions.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Commission Engine"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Commission.RoundingMode = strings.ToLower(strings.TrimSpace(cnf.Commission.RoundingMode))

	if cnf.Commission.MaxTierDepth <= 0 {
		cnf.Commission.MaxTierDepth = DEFAULT_MAX_TIER_DEPTH
	}
	if cnf.Commission.RoundingMode == "" {
		cnf.Commission.RoundingMode = DEFAULT_ROUNDING_MODE
	}
	if !supportedRoundingModes[cnf.Commission.RoundingMode] {
		return fmt.Errorf("unsupported rounding mode %q", cnf.Commission.RoundingMode)
	}
	if cnf.Commission.MaxTxRetries <= 0 {
		cnf.Commission.MaxTxRetries = DEFAULT_MAX_TX_RETRIES
	}
	if cnf.Commission.LockTimeoutSec <= 0 {
		cnf.Commission.LockTimeoutSec = DEFAULT_LOCK_TIMEOUT_SEC
	}

	// the index walk must reach at least as deep as commissions do
	if cnf.Network.MaxIndexDepth < cnf.Commission.MaxTierDepth+1 {
		if cnf.Network.MaxIndexDepth > 0 {
			log.Printf("Warning: network max index depth %d is below tier depth. Using default %d", cnf.Network.MaxIndexDepth, DEFAULT_MAX_INDEX_DEPTH)
		}
		cnf.Network.MaxIndexDepth = DEFAULT_MAX_INDEX_DEPTH
	}

	if cnf.Audit.IntervalSec <= 0 {
		cnf.Audit.IntervalSec = DEFAULT_AUDIT_INTERVAL
	}
	if cnf.Audit.BatchSize <= 0 {
		cnf.Audit.BatchSize = DEFAULT_AUDIT_BATCH_SIZE
	}
	if cnf.Cache.RuleTTLSec <= 0 {
		cnf.Cache.RuleTTLSec = DEFAULT_RULE_TTL_SEC
	}

	if cnf.Queue.PaymentEventQueue == "" {
		cnf.Queue.PaymentEventQueue = "payment_events"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "webhook_queue"
	}
	if cnf.Queue.NetworkQueue == "" {
		cnf.Queue.NetworkQueue = "network_rebuild"
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 10
	}
	if cnf.Queue.MaxRetry <= 0 {
		cnf.Queue.MaxRetry = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
