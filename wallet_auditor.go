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
	"sync"
	"time"

	"github.com/blnkfinance/commissions/model"
)

// WalletAuditor periodically reconciles every wallet against its ledger and
// rebuilds network indexes that were marked stale.
type WalletAuditor struct {
	engine       *Engine
	batchSize    int
	pollInterval time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	running      bool
	mu           sync.Mutex
	last         model.AuditSummary
	passes       int
}

// NewWalletAuditor creates an auditor with the engine's audit settings.
//
// Parameters:
// - engine *Engine: The engine whose wallets are audited.
//
// Returns:
// - *WalletAuditor: The configured auditor.
func NewWalletAuditor(engine *Engine) *WalletAuditor {
	conf := engine.Config()
	interval := time.Duration(conf.Audit.IntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	return &WalletAuditor{
		engine:       engine,
		batchSize:    conf.Audit.BatchSize,
		pollInterval: interval,
		stopCh:       make(chan struct{}),
	}
}

// WithBatchSize sets how many wallets are read per page.
func (a *WalletAuditor) WithBatchSize(size int) *WalletAuditor {
	a.batchSize = size
	return a
}

// WithPollInterval sets the interval between audit passes.
func (a *WalletAuditor) WithPollInterval(interval time.Duration) *WalletAuditor {
	a.pollInterval = interval
	return a
}

// Start begins auditing in the background.
//
// Parameters:
// - ctx context.Context: The context for the operation. When cancelled, auditing stops.
func (a *WalletAuditor) Start(ctx context.Context) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.mu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(ctx)
	}()
}

// Stop signals the auditor to stop and waits for the current pass to finish.
func (a *WalletAuditor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.stopCh)
	a.mu.Unlock()

	a.wg.Wait()
	a.engine.logger.Info("Wallet auditor stopped")
}

// IsRunning returns whether the auditor is currently running.
func (a *WalletAuditor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// LastSummary returns the result of the latest pass and how many passes ran.
func (a *WalletAuditor) LastSummary() (model.AuditSummary, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.passes
}

func (a *WalletAuditor) run(ctx context.Context) {
	logger := a.engine.logger
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Wallet auditor context cancelled")
			return
		case <-a.stopCh:
			logger.Info("Wallet auditor stop signal received")
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single audit pass.
func (a *WalletAuditor) RunOnce(ctx context.Context) model.AuditSummary {
	logger := a.engine.logger
	summary, err := a.engine.ReconcileAll(ctx, a.batchSize)
	if err != nil {
		logger.Errorf("wallet audit stopped early: %v", err)
	}
	if len(summary.Drifted) > 0 || summary.Failed > 0 {
		logger.Warnf("Wallet audit checked %d wallets: %d drifted, %d failed", summary.WalletsChecked, len(summary.Drifted), summary.Failed)
	} else {
		logger.Infof("Wallet audit checked %d wallets, no drift", summary.WalletsChecked)
	}

	rebuilt, err := a.engine.RebuildStaleNetworks(ctx, a.batchSize)
	if err != nil {
		logger.Errorf("failed to rebuild stale networks: %v", err)
	}
	if len(rebuilt) > 0 {
		logger.Infof("Rebuilt %d stale networks", len(rebuilt))
	}

	a.mu.Lock()
	a.last = summary
	a.passes++
	a.mu.Unlock()
	return summary
}
