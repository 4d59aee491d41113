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

const ruleColumns = `rule_id, plan_id, frequency, tier, kind, value, minimum_requirement, maximum_cap, active, created_at, updated_at`

func scanRule(row rowScanner) (*model.CommissionRule, error) {
	rule := model.CommissionRule{}
	err := row.Scan(
		&rule.RuleID, &rule.PlanID, &rule.Frequency, &rule.Tier, &rule.Kind, &rule.Value,
		&rule.MinimumRequirement, &rule.MaximumCap, &rule.Active, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// UpsertRule inserts or replaces a rule. Activating a rule deactivates any other
// active rule on the same (plan, frequency, tier) key in the same transaction.
func (d Datasource) UpsertRule(ctx context.Context, rule model.CommissionRule) (model.CommissionRule, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return model.CommissionRule{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if rule.Active {
		_, err = tx.ExecContext(ctx, `
			UPDATE commissions.commission_rules
			SET active = FALSE, updated_at = $5
			WHERE plan_id = $1 AND frequency = $2 AND tier = $3 AND active AND rule_id <> $4
		`, rule.PlanID, rule.Frequency, rule.Tier, rule.RuleID, rule.UpdatedAt)
		if err != nil {
			return model.CommissionRule{}, mapPQError(err, "Rule conflicts with an existing rule", "Failed to deactivate previous rule")
		}
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO commissions.commission_rules (`+ruleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (rule_id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			frequency = EXCLUDED.frequency,
			tier = EXCLUDED.tier,
			kind = EXCLUDED.kind,
			value = EXCLUDED.value,
			minimum_requirement = EXCLUDED.minimum_requirement,
			maximum_cap = EXCLUDED.maximum_cap,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at
	`, rule.RuleID, rule.PlanID, rule.Frequency, rule.Tier, rule.Kind, rule.Value,
		rule.MinimumRequirement, rule.MaximumCap, rule.Active, rule.CreatedAt, rule.UpdatedAt)
	if err = row.Scan(&rule.CreatedAt); err != nil {
		return model.CommissionRule{}, mapPQError(err, "An active rule already exists for this key", "Failed to save rule")
	}

	if err = tx.Commit(); err != nil {
		return model.CommissionRule{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return rule, nil
}

// GetActiveRule returns the active rule for a key, or nil when no rule applies.
func (d Datasource) GetActiveRule(ctx context.Context, planID, frequency string, tier int) (*model.CommissionRule, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM commissions.commission_rules
		WHERE plan_id = $1 AND frequency = $2 AND tier = $3 AND active
	`, planID, frequency, tier)

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve rule", err)
	}
	return rule, nil
}

// GetRuleByID retrieves a rule whether or not it is active.
func (d Datasource) GetRuleByID(ctx context.Context, id string) (*model.CommissionRule, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM commissions.commission_rules WHERE rule_id = $1`, id)

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Rule not found", nil)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve rule", err)
	}
	return rule, nil
}

// DeactivateRule switches a rule off.
func (d Datasource) DeactivateRule(ctx context.Context, id string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE commissions.commission_rules SET active = FALSE, updated_at = NOW() WHERE rule_id = $1
	`, id)
	if err != nil {
		return mapPQError(err, "Rule update conflicts with an existing rule", "Failed to deactivate rule")
	}
	return requireAffected(result, "Rule not found")
}

// ListRules returns every rule of a plan ordered by frequency and tier.
func (d Datasource) ListRules(ctx context.Context, planID string) ([]model.CommissionRule, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM commissions.commission_rules
		WHERE plan_id = $1
		ORDER BY frequency, tier, active DESC, updated_at DESC
	`, planID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve rules", err)
	}
	defer rows.Close()

	rules := []model.CommissionRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan rule data", err)
		}
		rules = append(rules, *rule)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over rules", err)
	}
	return rules, nil
}
