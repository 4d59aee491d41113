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
	"fmt"

	"github.com/blnkfinance/commissions/database"
	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/internal/notification"
	"github.com/blnkfinance/commissions/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ErrInsufficientFunds is returned when a debit would drive a wallet below zero.
var ErrInsufficientFunds = apierror.NewAPIError(apierror.ErrInsufficientFunds, "insufficient funds", nil)

// Post appends a signed entry to a wallet and moves its balance by the same
// amount in one transaction. A repeat of (sourceKind, sourceRef, owner) returns
// the stored entry and leaves the balance untouched.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - ownerID string: The wallet owner.
// - amount int64: The signed amount in minor units. Credits are positive.
// - sourceKind string: What produced the entry.
// - sourceRef string: The id of the producing record within sourceKind.
//
// Returns:
// - model.LedgerEntry: The stored entry.
// - error: INVALID_INPUT for a zero amount, INSUFFICIENT_FUNDS for an overdraft.
func (e *Engine) Post(ctx context.Context, ownerID string, amount int64, sourceKind, sourceRef string) (model.LedgerEntry, error) {
	ctx, span := tracer.Start(ctx, "Post")
	defer span.End()
	span.SetAttributes(attribute.String("wallet.owner", ownerID), attribute.Int64("amount", amount))

	if amount == 0 {
		return model.LedgerEntry{}, apierror.NewAPIError(apierror.ErrInvalidInput, "amount must not be zero", nil)
	}
	if ownerID == "" || sourceKind == "" || sourceRef == "" {
		return model.LedgerEntry{}, apierror.NewAPIError(apierror.ErrInvalidInput, "owner, source kind and source ref are required", nil)
	}

	var stored model.LedgerEntry
	err := e.retryTx(ctx, func() error {
		return e.datasource.WithTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
			entry, _, err := e.postInTx(ctx, tx, model.LedgerEntry{
				EntryID:       model.GenerateUUIDWithSuffix("ent"),
				WalletOwnerID: ownerID,
				Amount:        amount,
				SourceKind:    sourceKind,
				SourceRef:     sourceRef,
				PostedAt:      e.now(),
			})
			stored = entry
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		return model.LedgerEntry{}, err
	}
	return stored, nil
}

// postInTx locks the wallet, refuses overdrafts and appends the entry. The
// balance moves only when the entry is new.
func (e *Engine) postInTx(ctx context.Context, tx database.Tx, entry model.LedgerEntry) (model.LedgerEntry, bool, error) {
	wallet, err := tx.LockWallet(ctx, entry.WalletOwnerID)
	if err != nil {
		return model.LedgerEntry{}, false, err
	}

	stored, inserted, err := tx.InsertLedgerEntry(ctx, entry)
	if err != nil {
		return model.LedgerEntry{}, false, err
	}
	if !inserted {
		return stored, false, nil
	}

	if entry.Amount < 0 && wallet.Balance+entry.Amount < 0 {
		return model.LedgerEntry{}, false, ErrInsufficientFunds
	}
	if _, err := tx.IncrementWalletBalance(ctx, entry.WalletOwnerID, entry.Amount); err != nil {
		return model.LedgerEntry{}, false, err
	}
	return stored, true, nil
}

// Debit withdraws amount from a wallet. The reference makes the withdrawal
// idempotent: a repeat returns the original entry even if the balance has
// since dropped.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - ownerID string: The wallet owner.
// - amount int64: The positive amount to withdraw.
// - reference string: The caller's withdrawal id.
//
// Returns:
// - model.LedgerEntry: The debit entry, with a negative amount.
// - error: INSUFFICIENT_FUNDS when the balance is below amount. No entry is written.
func (e *Engine) Debit(ctx context.Context, ownerID string, amount int64, reference string) (model.LedgerEntry, error) {
	ctx, span := tracer.Start(ctx, "Debit")
	defer span.End()

	if amount <= 0 {
		return model.LedgerEntry{}, apierror.NewAPIError(apierror.ErrInvalidInput, "debit amount must be positive", nil)
	}
	if reference == "" {
		return model.LedgerEntry{}, apierror.NewAPIError(apierror.ErrInvalidInput, "debit reference is required", nil)
	}

	existing, err := e.datasource.GetLedgerEntryBySource(ctx, model.SourceWithdrawal, reference, ownerID)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	var stored model.LedgerEntry
	inserted := false
	err = e.retryTx(ctx, func() error {
		return e.datasource.WithTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
			entry, ok, err := e.postInTx(ctx, tx, model.LedgerEntry{
				EntryID:       model.GenerateUUIDWithSuffix("ent"),
				WalletOwnerID: ownerID,
				Amount:        -amount,
				SourceKind:    model.SourceWithdrawal,
				SourceRef:     reference,
				Description:   fmt.Sprintf("Withdrawal %s", reference),
				PostedAt:      e.now(),
			})
			stored, inserted = entry, ok
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		return model.LedgerEntry{}, err
	}

	if inserted {
		e.notify(ctx, model.Notification{
			Event:             EventWalletDebited,
			AgentID:           ownerID,
			Amount:            stored.Amount,
			SourceDescription: stored.Description,
			OccurredAt:        stored.PostedAt,
		})
	}
	return stored, nil
}

// GetBalance returns the cached balance of a wallet. An agent that was never
// credited has a balance of zero.
func (e *Engine) GetBalance(ctx context.Context, ownerID string) (int64, error) {
	wallet, err := e.datasource.GetWallet(ctx, ownerID)
	if err != nil {
		if apierror.IsCode(err, apierror.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return wallet.Balance, nil
}

// GetWallet retrieves a wallet by its owner.
func (e *Engine) GetWallet(ctx context.Context, ownerID string) (*model.Wallet, error) {
	return e.datasource.GetWallet(ctx, ownerID)
}

// GetLedgerEntries returns a wallet's entries, newest first.
func (e *Engine) GetLedgerEntries(ctx context.Context, ownerID string, limit, offset int) ([]model.LedgerEntry, error) {
	return e.datasource.GetLedgerEntries(ctx, ownerID, limit, offset)
}

// Reconcile recomputes a wallet's balance from its entries. A cached balance
// that disagrees is overwritten with the computed one and raised as an alert.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - ownerID string: The wallet owner.
//
// Returns:
// - model.ReconcileResult: The cached and computed balances and the drift between them.
// - error: A store error. Drift itself is not an error.
func (e *Engine) Reconcile(ctx context.Context, ownerID string) (model.ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "Reconcile")
	defer span.End()

	result := model.ReconcileResult{OwnerID: ownerID}
	err := e.retryTx(ctx, func() error {
		result = model.ReconcileResult{OwnerID: ownerID}
		return e.datasource.WithTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
			wallet, err := tx.LockWallet(ctx, ownerID)
			if err != nil {
				return err
			}
			computed, err := tx.SumLedgerEntries(ctx, ownerID)
			if err != nil {
				return err
			}

			result.CachedBalance = wallet.Balance
			result.ComputedBalance = computed
			result.Drift = wallet.Balance - computed
			result.Corrected = result.Drift != 0
			return tx.SetWalletBalance(ctx, ownerID, computed, e.now())
		})
	})
	if err != nil {
		span.RecordError(err)
		return result, err
	}

	if result.Drift != 0 {
		e.reportDrift(result)
	}
	span.SetAttributes(attribute.Int64("drift", result.Drift))
	return result, nil
}

func (e *Engine) reportDrift(result model.ReconcileResult) {
	fields := map[string]interface{}{
		"wallet":   result.OwnerID,
		"cached":   result.CachedBalance,
		"computed": result.ComputedBalance,
		"drift":    result.Drift,
	}
	e.logger.WithFields(logrus.Fields(fields)).Error("wallet balance drifted from its ledger, corrected")
	notification.NotifyAlert(notification.Alert{
		Kind:    notification.AlertLedgerDrift,
		Message: fmt.Sprintf("Wallet %s drifted by %d", result.OwnerID, result.Drift),
		Fields:  fields,
		At:      e.now(),
	})
}

// ReconcileAll reconciles every wallet in pages of batchSize. A wallet that
// fails is counted and logged; the pass continues with the next one.
func (e *Engine) ReconcileAll(ctx context.Context, batchSize int) (model.AuditSummary, error) {
	ctx, span := tracer.Start(ctx, "ReconcileAll")
	defer span.End()

	if batchSize <= 0 {
		batchSize = e.config.Audit.BatchSize
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	summary := model.AuditSummary{}
	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		wallets, err := e.datasource.ListWallets(ctx, batchSize, offset)
		if err != nil {
			span.RecordError(err)
			return summary, err
		}

		for _, w := range wallets {
			summary.WalletsChecked++
			result, err := e.Reconcile(ctx, w.OwnerID)
			if err != nil {
				summary.Failed++
				e.logger.Errorf("failed to reconcile wallet %s: %v", w.OwnerID, err)
				continue
			}
			if result.Corrected {
				summary.Drifted = append(summary.Drifted, result)
			}
		}

		if len(wallets) < batchSize {
			break
		}
	}

	span.SetAttributes(attribute.Int("wallets.checked", summary.WalletsChecked), attribute.Int("wallets.drifted", len(summary.Drifted)))
	return summary, nil
}
