package model

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

type CommissionKind string

const (
	KindPercentage CommissionKind = "percentage"
	KindFixed      CommissionKind = "fixed"
)

// CommissionRule prices one tier of one (plan, frequency) pair.
//
// Value is a percentage for KindPercentage and a minor-unit amount for KindFixed.
// MinimumRequirement gates on the payment base amount. MaximumCap bounds the
// payout only when it is greater than zero.
type CommissionRule struct {
	RuleID             string          `json:"rule_id"`
	PlanID             string          `json:"plan_id"`
	Frequency          string          `json:"frequency"`
	Tier               int             `json:"tier"`
	Kind               CommissionKind  `json:"kind"`
	Value              decimal.Decimal `json:"value"`
	MinimumRequirement int64           `json:"minimum_requirement"`
	MaximumCap         int64           `json:"maximum_cap"`
	Active             bool            `json:"active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// RuleKey is the composite lookup key of a rule. Each id is prefixed with its
// length so that ids containing the separator cannot collide.
func RuleKey(planID, frequency string, tier int) string {
	return fmt.Sprintf("%d:%s:%d:%s:%d", len(planID), planID, len(frequency), frequency, tier)
}

func (r *CommissionRule) Key() string {
	return RuleKey(r.PlanID, r.Frequency, r.Tier)
}

// Compute returns the commission owed on base under this rule.
// A base below the minimum requirement earns nothing.
func (r *CommissionRule) Compute(base int64, mode RoundingMode) int64 {
	if base < r.MinimumRequirement {
		return 0
	}

	var amount int64
	switch r.Kind {
	case KindPercentage:
		amount = PercentOf(base, r.Value, mode)
	case KindFixed:
		amount = r.Value.IntPart()
	}

	if r.MaximumCap > 0 && amount > r.MaximumCap {
		amount = r.MaximumCap
	}
	return amount
}

func (r CommissionRule) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PlanID, validation.Required),
		validation.Field(&r.Frequency, validation.Required),
		validation.Field(&r.Tier, validation.Required, validation.Min(1)),
		validation.Field(&r.Kind, validation.Required, validation.In(KindPercentage, KindFixed)),
		validation.Field(&r.Value, validation.By(r.validateValue)),
		validation.Field(&r.MinimumRequirement, validation.Min(int64(0))),
	)
}

func (r CommissionRule) validateValue(_ interface{}) error {
	if !r.Value.IsPositive() {
		return errors.New("must be greater than zero")
	}
	switch r.Kind {
	case KindPercentage:
		if r.Value.GreaterThan(decimal.NewFromInt(100)) {
			return errors.New("percentage cannot exceed 100")
		}
	case KindFixed:
		if !r.Value.IsInteger() {
			return errors.New("fixed commission must be a whole number of minor units")
		}
	}
	return nil
}
