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
	"encoding/json"
	"errors"

	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/blnkfinance/commissions/model"
	"github.com/lib/pq"
)

const agentColumns = `agent_id, referrer_id, status, created_at, meta_data`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgent(row rowScanner) (*model.Agent, error) {
	agent := model.Agent{}
	var referrerID sql.NullString
	var metaDataJSON []byte

	if err := row.Scan(&agent.AgentID, &referrerID, &agent.Status, &agent.CreatedAt, &metaDataJSON); err != nil {
		return nil, err
	}
	if referrerID.Valid {
		ref := referrerID.String
		agent.ReferrerID = &ref
	}
	if len(metaDataJSON) > 0 {
		if err := json.Unmarshal(metaDataJSON, &agent.MetaData); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}
	return &agent, nil
}

// CreateAgent inserts a new agent.
func (d Datasource) CreateAgent(ctx context.Context, agent model.Agent) (model.Agent, error) {
	metaDataJSON, err := json.Marshal(agent.MetaData)
	if err != nil {
		return model.Agent{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	row := d.Conn.QueryRowContext(ctx, `
		INSERT INTO commissions.agents (agent_id, referrer_id, status, created_at, meta_data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, agent.AgentID, agent.ReferrerID, agent.Status, agent.CreatedAt, metaDataJSON)

	if err := row.Scan(&agent.CreatedAt); err != nil {
		return model.Agent{}, mapPQError(err, "Agent with this ID already exists", "Failed to create agent")
	}
	return agent, nil
}

// GetAgentByID retrieves a single agent.
func (d Datasource) GetAgentByID(ctx context.Context, id string) (*model.Agent, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM commissions.agents WHERE agent_id = $1`, id)

	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Agent not found", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve agent", err)
	}
	return agent, nil
}

// GetAgentsByIDs retrieves several agents in one round trip.
func (d Datasource) GetAgentsByIDs(ctx context.Context, ids []string) (map[string]*model.Agent, error) {
	agents := make(map[string]*model.Agent, len(ids))
	if len(ids) == 0 {
		return agents, nil
	}

	rows, err := d.Conn.QueryContext(ctx, `SELECT `+agentColumns+` FROM commissions.agents WHERE agent_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve agents", err)
	}
	defer rows.Close()

	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan agent data", err)
		}
		agents[agent.AgentID] = agent
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over agents", err)
	}
	return agents, nil
}

// GetDirectReferrals returns the children of each referrer, ordered by agent id.
func (d Datasource) GetDirectReferrals(ctx context.Context, referrerIDs []string) (map[string][]model.Agent, error) {
	children := make(map[string][]model.Agent, len(referrerIDs))
	if len(referrerIDs) == 0 {
		return children, nil
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+agentColumns+`
		FROM commissions.agents
		WHERE referrer_id = ANY($1)
		ORDER BY referrer_id, agent_id
	`, pq.Array(referrerIDs))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve referrals", err)
	}
	defer rows.Close()

	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan agent data", err)
		}
		parent := agent.Referrer()
		children[parent] = append(children[parent], *agent)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over referrals", err)
	}
	return children, nil
}

// UpdateAgentStatus changes an agent's status.
func (d Datasource) UpdateAgentStatus(ctx context.Context, id string, status model.AgentStatus) error {
	result, err := d.Conn.ExecContext(ctx, `UPDATE commissions.agents SET status = $2 WHERE agent_id = $1`, id, status)
	if err != nil {
		return mapPQError(err, "Agent update conflicts with an existing record", "Failed to update agent status")
	}
	return requireAffected(result, "Agent not found")
}

// UpdateAgentReferrer points an agent at a new referrer. A nil referrer makes it a root.
func (d Datasource) UpdateAgentReferrer(ctx context.Context, id string, referrerID *string) error {
	result, err := d.Conn.ExecContext(ctx, `UPDATE commissions.agents SET referrer_id = $2 WHERE agent_id = $1`, id, referrerID)
	if err != nil {
		return mapPQError(err, "Agent update conflicts with an existing record", "Failed to update agent referrer")
	}
	return requireAffected(result, "Agent not found")
}

// GetRootAgents returns agents with no referrer or whose referrer has no record.
func (d Datasource) GetRootAgents(ctx context.Context, limit, offset int) ([]model.Agent, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT a.agent_id, a.referrer_id, a.status, a.created_at, a.meta_data
		FROM commissions.agents a
		LEFT JOIN commissions.agents r ON r.agent_id = a.referrer_id
		WHERE a.referrer_id IS NULL OR r.agent_id IS NULL
		ORDER BY a.agent_id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve root agents", err)
	}
	defer rows.Close()

	roots := []model.Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan agent data", err)
		}
		roots = append(roots, *agent)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over root agents", err)
	}
	return roots, nil
}

func requireAffected(result sql.Result, notFoundMsg string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read affected rows", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, notFoundMsg, nil)
	}
	return nil
}
