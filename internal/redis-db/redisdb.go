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

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/blnkfinance/commissions/config"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 500 * time.Millisecond

// Redis holds the client shared by the event lock and the rule cache.
type Redis struct {
	nodes  nodes
	client redis.UniversalClient
}

// nodes is the parsed form of redis.dns.
type nodes struct {
	addrs     []string
	password  string
	db        int
	tlsConfig *tls.Config
}

func (n nodes) cluster() bool { return len(n.addrs) > 1 }

// Addresses splits a comma separated redis.dns value into node addresses.
func Addresses(dns string) []string {
	var out []string
	for _, part := range strings.Split(dns, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseRedisURL accepts either a bare host:port or a redis:// / rediss:// URL.
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if !strings.Contains(rawURL, "//") {
		return &redis.Options{Addr: rawURL}, nil
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return opts, nil
}

// parseNodes reads every address in cfg. The first password found applies to
// the whole cluster.
func parseNodes(cfg config.RedisConfig) (nodes, error) {
	addresses := Addresses(cfg.Dns)
	if len(addresses) == 0 {
		return nodes{}, errors.New("redis.dns is empty")
	}

	var n nodes
	for _, address := range addresses {
		opts, err := ParseRedisURL(address, cfg.SkipTLSVerify)
		if err != nil {
			return nodes{}, err
		}
		n.addrs = append(n.addrs, opts.Addr)
		if n.password == "" {
			n.password = opts.Password
		}
		if n.tlsConfig == nil {
			n.tlsConfig = opts.TLSConfig
		}
		if len(n.addrs) == 1 {
			n.db = opts.DB
		}
	}
	return n, nil
}

// ConnOpt returns the asynq connection option for the configured nodes:
// a standalone client for one address, a cluster client for several.
func ConnOpt(cfg config.RedisConfig) (asynq.RedisConnOpt, error) {
	n, err := parseNodes(cfg)
	if err != nil {
		return nil, err
	}
	if n.cluster() {
		return asynq.RedisClusterClientOpt{Addrs: n.addrs, Password: n.password, TLSConfig: n.tlsConfig}, nil
	}
	return asynq.RedisClientOpt{Addr: n.addrs[0], Password: n.password, DB: n.db, TLSConfig: n.tlsConfig}, nil
}

// Connect builds the client for cfg and pings it.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	n, err := parseNodes(cfg)
	if err != nil {
		return nil, err
	}

	var client redis.UniversalClient
	if n.cluster() {
		client = redis.NewClusterClient(&redis.ClusterOptions{Addrs: n.addrs, Password: n.password, TLSConfig: n.tlsConfig})
	} else {
		client = redis.NewClient(&redis.Options{Addr: n.addrs[0], Password: n.password, DB: n.db, TLSConfig: n.tlsConfig})
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{nodes: n, client: client}, nil
}

// Client returns the underlying universal client.
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
