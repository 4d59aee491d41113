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

const postingColumns = `posting_id, event_id, agent_id, source_agent_id, rule_id, tier, base_amount, amount, status, created_at, updated_at, paid_at, reversed_at, reversal_reason`

const processedEventColumns = `event_id, agent_id, plan_id, frequency, base_amount, occurred_at, total_amount, posting_count, processed_at`

func scanPosting(row rowScanner) (*model.CommissionPosting, error) {
	p := model.CommissionPosting{}
	var paidAt, reversedAt sql.NullTime
	var reason sql.NullString

	err := row.Scan(
		&p.PostingID, &p.EventID, &p.AgentID, &p.SourceAgentID, &p.RuleID, &p.Tier,
		&p.BaseAmount, &p.Amount, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		&paidAt, &reversedAt, &reason,
	)
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	if reversedAt.Valid {
		t := reversedAt.Time
		p.ReversedAt = &t
	}
	p.ReversalReason = reason.String
	return &p, nil
}

func scanPostings(rows *sql.Rows) ([]model.CommissionPosting, error) {
	defer rows.Close()

	postings := []model.CommissionPosting{}
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan posting data", err)
		}
		postings = append(postings, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over postings", err)
	}
	return postings, nil
}

func scanProcessedEvent(row rowScanner) (*model.ProcessedEvent, error) {
	e := model.ProcessedEvent{}
	err := row.Scan(
		&e.EventID, &e.AgentID, &e.PlanID, &e.Frequency, &e.BaseAmount, &e.OccurredAt,
		&e.TotalAmount, &e.PostingCount, &e.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetProcessedEvent returns the journal row for an event, or nil if it was never distributed.
func (d Datasource) GetProcessedEvent(ctx context.Context, eventID string) (*model.ProcessedEvent, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+processedEventColumns+` FROM commissions.payment_events WHERE event_id = $1`, eventID)

	event, err := scanProcessedEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve payment event", err)
	}
	return event, nil
}

// GetPostingsByEvent returns an event's postings in tier order.
func (d Datasource) GetPostingsByEvent(ctx context.Context, eventID string) ([]model.CommissionPosting, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+postingColumns+`
		FROM commissions.commission_postings
		WHERE event_id = $1
		ORDER BY tier
	`, eventID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve postings", err)
	}
	return scanPostings(rows)
}

// GetPostingByID retrieves a posting.
func (d Datasource) GetPostingByID(ctx context.Context, id string) (*model.CommissionPosting, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+postingColumns+` FROM commissions.commission_postings WHERE posting_id = $1`, id)

	p, err := scanPosting(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Posting not found", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve posting", err)
	}
	return p, nil
}

// GetPostingsByAgent returns the postings an agent earned, newest first.
func (d Datasource) GetPostingsByAgent(ctx context.Context, agentID string, limit, offset int) ([]model.CommissionPosting, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+postingColumns+`
		FROM commissions.commission_postings
		WHERE agent_id = $1
		ORDER BY created_at DESC, posting_id
		LIMIT $2 OFFSET $3
	`, agentID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve postings", err)
	}
	return scanPostings(rows)
}
