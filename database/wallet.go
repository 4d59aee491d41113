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

	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/model"
)

const walletColumns = `owner_id, balance, created_at, updated_at, last_reconciled_at`

const entryColumns = `entry_id, wallet_owner_id, amount, source_kind, source_ref, description, posted_at`

func scanWallet(row rowScanner) (*model.Wallet, error) {
	w := model.Wallet{}
	var reconciledAt sql.NullTime
	if err := row.Scan(&w.OwnerID, &w.Balance, &w.CreatedAt, &w.UpdatedAt, &reconciledAt); err != nil {
		return nil, err
	}
	if reconciledAt.Valid {
		t := reconciledAt.Time
		w.LastReconciledAt = &t
	}
	return &w, nil
}

func scanEntry(row rowScanner) (*model.LedgerEntry, error) {
	e := model.LedgerEntry{}
	var description sql.NullString
	if err := row.Scan(&e.EntryID, &e.WalletOwnerID, &e.Amount, &e.SourceKind, &e.SourceRef, &description, &e.PostedAt); err != nil {
		return nil, err
	}
	e.Description = description.String
	return &e, nil
}

// GetWallet retrieves a wallet by owner.
func (d Datasource) GetWallet(ctx context.Context, ownerID string) (*model.Wallet, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+walletColumns+` FROM commissions.wallets WHERE owner_id = $1`, ownerID)

	w, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Wallet not found", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve wallet", err)
	}
	return w, nil
}

// ListWallets pages through wallets in owner order.
func (d Datasource) ListWallets(ctx context.Context, limit, offset int) ([]model.Wallet, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+walletColumns+`
		FROM commissions.wallets
		ORDER BY owner_id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve wallets", err)
	}
	defer rows.Close()

	wallets := []model.Wallet{}
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan wallet data", err)
		}
		wallets = append(wallets, *w)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over wallets", err)
	}
	return wallets, nil
}

// GetLedgerEntries returns a wallet's entries, newest first.
func (d Datasource) GetLedgerEntries(ctx context.Context, ownerID string, limit, offset int) ([]model.LedgerEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM commissions.ledger_entries
		WHERE wallet_owner_id = $1
		ORDER BY posted_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger entries", err)
	}
	defer rows.Close()

	entries := []model.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger entry", err)
		}
		entries = append(entries, *e)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over ledger entries", err)
	}
	return entries, nil
}

// GetLedgerEntryBySource returns the entry stored under an idempotency key, or nil.
func (d Datasource) GetLedgerEntryBySource(ctx context.Context, sourceKind, sourceRef, ownerID string) (*model.LedgerEntry, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM commissions.ledger_entries
		WHERE source_kind = $1 AND source_ref = $2 AND wallet_owner_id = $3
	`, sourceKind, sourceRef, ownerID)

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger entry", err)
	}
	return e, nil
}
