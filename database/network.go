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
	"github.com/lib/pq"
)

// SumCommissionEarned sums commission credits and reversals per owner.
// Owners with no entries are absent from the result.
func (d Datasource) SumCommissionEarned(ctx context.Context, ownerIDs []string) (map[string]int64, error) {
	totals := make(map[string]int64, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return totals, nil
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT wallet_owner_id, COALESCE(SUM(amount), 0)
		FROM commissions.ledger_entries
		WHERE wallet_owner_id = ANY($1) AND source_kind = ANY($2)
		GROUP BY wallet_owner_id
	`, pq.Array(ownerIDs), pq.Array([]string{model.SourceCommissionPosting, model.SourceCommissionReversal}))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sum commission earned", err)
	}
	defer rows.Close()

	for rows.Next() {
		var owner string
		var total int64
		if err := rows.Scan(&owner, &total); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan commission totals", err)
		}
		totals[owner] = total
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over commission totals", err)
	}
	return totals, nil
}

// ReplaceNetworkLevels swaps the index rows of one root for levels.
// Rows of agents that moved in from another root are replaced as well.
// The transaction runs at the default isolation level and touches only network_levels.
func (d Datasource) ReplaceNetworkLevels(ctx context.Context, rootID string, levels []model.NetworkLevel) error {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	agentIDs := make([]string, 0, len(levels))
	for _, l := range levels {
		agentIDs = append(agentIDs, l.AgentID)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM commissions.network_levels WHERE root_agent_id = $1 OR agent_id = ANY($2)
	`, rootID, pq.Array(agentIDs))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to clear network levels", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO commissions.network_levels
			(agent_id, root_agent_id, level, path, direct_downline, total_downline, commission_earned, stale, rebuilt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
	`)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to prepare network level insert", err)
	}
	defer stmt.Close()

	for _, l := range levels {
		_, err = stmt.ExecContext(ctx, l.AgentID, l.RootAgentID, l.Level, pq.Array(l.Path),
			l.DirectDownline, l.TotalDownline, l.CommissionEarned, l.RebuiltAt)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to insert network level", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

// GetNetworkLevel retrieves an agent's index row.
func (d Datasource) GetNetworkLevel(ctx context.Context, agentID string) (*model.NetworkLevel, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT agent_id, root_agent_id, level, path, direct_downline, total_downline, commission_earned, stale, rebuilt_at
		FROM commissions.network_levels
		WHERE agent_id = $1
	`, agentID)

	l := model.NetworkLevel{}
	err := row.Scan(&l.AgentID, &l.RootAgentID, &l.Level, pq.Array(&l.Path), &l.DirectDownline,
		&l.TotalDownline, &l.CommissionEarned, &l.Stale, &l.RebuiltAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Network level not found", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve network level", err)
	}
	return &l, nil
}

// MarkNetworkStale flags every row under the given roots as stale.
func (d Datasource) MarkNetworkStale(ctx context.Context, rootIDs []string) error {
	if len(rootIDs) == 0 {
		return nil
	}
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE commissions.network_levels SET stale = TRUE WHERE root_agent_id = ANY($1)
	`, pq.Array(rootIDs))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark network stale", err)
	}
	return nil
}

// GetStaleRoots lists roots that have at least one stale row.
func (d Datasource) GetStaleRoots(ctx context.Context, limit int) ([]string, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT DISTINCT root_agent_id
		FROM commissions.network_levels
		WHERE stale
		ORDER BY root_agent_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stale roots", err)
	}
	defer rows.Close()

	roots := []string{}
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan stale root", err)
		}
		roots = append(roots, root)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over stale roots", err)
	}
	return roots, nil
}
