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

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/model"
)

// WithTransaction runs fn inside a serializable transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
func (d Datasource) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return mapPQError(err, "Transaction conflict", "Failed to begin transaction")
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(sqlTx)

	if err := fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapPQError(err, "Transaction conflict", "Failed to commit transaction")
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) RecordProcessedEvent(ctx context.Context, event model.ProcessedEvent) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO commissions.payment_events
			(event_id, agent_id, plan_id, frequency, base_amount, occurred_at, total_amount, posting_count, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)
		ON CONFLICT (event_id) DO NOTHING
	`, event.EventID, event.AgentID, event.PlanID, event.Frequency, event.BaseAmount, event.OccurredAt, event.ProcessedAt)
	if err != nil {
		return false, mapPQError(err, "Payment event already recorded", "Failed to record payment event")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	return affected == 1, nil
}

func (t *pgTx) FinalizeProcessedEvent(ctx context.Context, eventID string, total int64, count int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE commissions.payment_events SET total_amount = $2, posting_count = $3 WHERE event_id = $1
	`, eventID, total, count)
	if err != nil {
		return mapPQError(err, "Payment event conflict", "Failed to finalize payment event")
	}
	return requireAffected(result, "Payment event not found")
}

func (t *pgTx) CreatePosting(ctx context.Context, p model.CommissionPosting) (model.CommissionPosting, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO commissions.commission_postings
			(posting_id, event_id, agent_id, source_agent_id, rule_id, tier, base_amount, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, p.PostingID, p.EventID, p.AgentID, p.SourceAgentID, p.RuleID, p.Tier, p.BaseAmount, p.Amount, p.Status, p.CreatedAt)
	if err != nil {
		return model.CommissionPosting{}, mapPQError(err, "Posting already exists for this event, agent and tier", "Failed to create posting")
	}
	p.UpdatedAt = p.CreatedAt
	return p, nil
}

func (t *pgTx) GetPostingForUpdate(ctx context.Context, id string) (*model.CommissionPosting, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+postingColumns+`
		FROM commissions.commission_postings
		WHERE posting_id = $1
		FOR UPDATE
	`, id)

	p, err := scanPosting(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Posting not found", nil)
		}
		return nil, mapPQError(err, "Posting conflict", "Failed to lock posting")
	}
	return p, nil
}

func (t *pgTx) UpdatePostingStatus(ctx context.Context, id string, status model.PostingStatus, at time.Time, reason string) error {
	query := `UPDATE commissions.commission_postings SET status = $2, updated_at = $3 WHERE posting_id = $1`
	args := []interface{}{id, status, at}
	switch status {
	case model.PostingPaid:
		query = `UPDATE commissions.commission_postings SET status = $2, updated_at = $3, paid_at = $3 WHERE posting_id = $1`
	case model.PostingReversed:
		query = `UPDATE commissions.commission_postings SET status = $2, updated_at = $3, reversed_at = $3, reversal_reason = $4 WHERE posting_id = $1`
		args = append(args, reason)
	}

	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return mapPQError(err, "Posting conflict", "Failed to update posting status")
	}
	return requireAffected(result, "Posting not found")
}

// InsertLedgerEntry appends an entry. When the idempotency key is taken it returns
// the stored entry and false instead.
func (t *pgTx) InsertLedgerEntry(ctx context.Context, entry model.LedgerEntry) (model.LedgerEntry, bool, error) {
	row := t.tx.QueryRowContext(ctx, `
		INSERT INTO commissions.ledger_entries
			(entry_id, wallet_owner_id, amount, source_kind, source_ref, description, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_kind, source_ref, wallet_owner_id) DO NOTHING
		RETURNING entry_id
	`, entry.EntryID, entry.WalletOwnerID, entry.Amount, entry.SourceKind, entry.SourceRef, entry.Description, entry.PostedAt)

	var id string
	err := row.Scan(&id)
	if err == nil {
		return entry, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.LedgerEntry{}, false, mapPQError(err, "Ledger entry already exists", "Failed to insert ledger entry")
	}

	existing, err := scanEntry(t.tx.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM commissions.ledger_entries
		WHERE source_kind = $1 AND source_ref = $2 AND wallet_owner_id = $3
	`, entry.SourceKind, entry.SourceRef, entry.WalletOwnerID))
	if err != nil {
		return model.LedgerEntry{}, false, mapPQError(err, "Ledger entry conflict", "Failed to read existing ledger entry")
	}
	return *existing, false, nil
}

// LockWallet creates the wallet on first use and takes a row lock on it.
func (t *pgTx) LockWallet(ctx context.Context, ownerID string) (*model.Wallet, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO commissions.wallets (owner_id, balance) VALUES ($1, 0)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID)
	if err != nil {
		return nil, mapPQError(err, "Wallet conflict", "Failed to create wallet")
	}

	row := t.tx.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM commissions.wallets WHERE owner_id = $1 FOR UPDATE`, ownerID)
	w, err := scanWallet(row)
	if err != nil {
		return nil, mapPQError(err, "Wallet conflict", "Failed to lock wallet")
	}
	return w, nil
}

// IncrementWalletBalance adds delta in place so concurrent writers never lose an update.
func (t *pgTx) IncrementWalletBalance(ctx context.Context, ownerID string, delta int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE commissions.wallets
		SET balance = balance + $2, updated_at = NOW()
		WHERE owner_id = $1
		RETURNING balance
	`, ownerID, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apierror.NewAPIError(apierror.ErrNotFound, "Wallet not found", nil)
		}
		return 0, mapPQError(err, "Wallet conflict", "Failed to update wallet balance")
	}
	return balance, nil
}

func (t *pgTx) SetWalletBalance(ctx context.Context, ownerID string, balance int64, reconciledAt time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE commissions.wallets
		SET balance = $2, updated_at = NOW(), last_reconciled_at = $3
		WHERE owner_id = $1
	`, ownerID, balance, reconciledAt)
	if err != nil {
		return mapPQError(err, "Wallet conflict", "Failed to set wallet balance")
	}
	return requireAffected(result, "Wallet not found")
}

func (t *pgTx) SumLedgerEntries(ctx context.Context, ownerID string) (int64, error) {
	var total int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM commissions.ledger_entries WHERE wallet_owner_id = $1
	`, ownerID).Scan(&total)
	if err != nil {
		return 0, mapPQError(err, "Ledger conflict", "Failed to sum ledger entries")
	}
	return total, nil
}
