package model

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RoundingMode selects how a fractional minor-unit amount is turned into an integer.
type RoundingMode string

const (
	RoundHalfUp   RoundingMode = "half_up"
	RoundHalfEven RoundingMode = "half_even"
	RoundDown     RoundingMode = "down"
	RoundUp       RoundingMode = "up"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// Apply rounds d to a whole number of minor units.
// Half-up rounds halves away from zero. An unknown mode falls back to half-up.
func (m RoundingMode) Apply(d decimal.Decimal) decimal.Decimal {
	switch m {
	case RoundHalfEven:
		return d.RoundBank(0)
	case RoundDown:
		return d.RoundDown(0)
	case RoundUp:
		return d.RoundUp(0)
	default:
		return d.Round(0)
	}
}

// PercentOf returns round(base * percent / 100) in minor units.
// The division by 100 is a decimal shift so no precision is lost before rounding.
func PercentOf(base int64, percent decimal.Decimal, mode RoundingMode) int64 {
	raw := decimal.NewFromInt(base).Mul(percent).Shift(-2)
	return mode.Apply(raw).IntPart()
}
