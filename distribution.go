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
	"time"

	"github.com/blnkfinance/commissions/database"
	"github.com/blnkfinance/commissions/internal/apierror"
	redlock "github.com/blnkfinance/commissions/internal/lock"
	"github.com/blnkfinance/commissions/model"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel/attribute"
)

// plannedTier is one posting the distribution will write.
type plannedTier struct {
	tier   int
	agent  model.Agent
	rule   *model.CommissionRule
	amount int64
}

// distributionPlan is computed from reads only, before the transaction opens.
type distributionPlan struct {
	tiers         []plannedTier
	skipped       []model.SkippedTier
	cycleDetected bool
}

// Distribute pays the commissions a payment event owes up the referral chain.
//
// Every posting of the event and its ledger credit commit in one serializable
// transaction or not at all. An event that was already distributed is not
// recomputed: its stored postings are returned with Replayed set. Aborted
// transactions are retried, and a concurrent attempt that lost the race finds
// the winner's result on retry.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - event model.PaymentEvent: The confirmed payment.
//
// Returns:
// - *model.DistributionResult: The postings written, or replayed, for the event.
// - error: INVALID_INPUT for a malformed event, or the error that rolled the distribution back.
func (e *Engine) Distribute(ctx context.Context, event model.PaymentEvent) (*model.DistributionResult, error) {
	ctx, span := tracer.Start(ctx, "Distribute")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", event.EventID), attribute.String("agent.id", event.AgentID))

	if err := event.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now()
	}

	if e.redis != nil {
		unlock, err := e.lockEvent(ctx, event.EventID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		defer unlock()
	}

	var result *model.DistributionResult
	err := e.retryTx(ctx, func() error {
		res, err := e.distributeOnce(ctx, event)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		e.logger.WithField("event", event.EventID).Errorf("distribution rolled back: %v", err)
		return nil, err
	}

	if !result.Replayed {
		for _, p := range result.Postings {
			if p.Status == model.PostingPaid {
				e.notifyEarned(ctx, p)
			}
		}
	}
	span.SetAttributes(attribute.Int("postings", len(result.Postings)), attribute.Bool("replayed", result.Replayed))
	return result, nil
}

func (e *Engine) lockEvent(ctx context.Context, eventID string) (func(), error) {
	ttl := time.Duration(e.config.Commission.LockTimeoutSec) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	locker := redlock.NewLocker(e.redis, redlock.EventLockKey(eventID), model.GenerateUUIDWithSuffix("loc"))
	if err := locker.WaitLock(ctx, ttl, ttl); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Payment event is being distributed by another worker", err)
	}
	return func() {
		if err := locker.Unlock(context.Background()); err != nil {
			e.logger.Errorf("failed to release lock for event %s: %v", eventID, err)
		}
	}, nil
}

func (e *Engine) distributeOnce(ctx context.Context, event model.PaymentEvent) (*model.DistributionResult, error) {
	prior, err := e.datasource.GetProcessedEvent(ctx, event.EventID)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return e.replay(ctx, prior)
	}

	plan, err := e.planDistribution(ctx, event)
	if err != nil {
		return nil, err
	}

	now := e.now()
	result := &model.DistributionResult{
		EventID:       event.EventID,
		Postings:      []model.CommissionPosting{},
		Skipped:       plan.skipped,
		CycleDetected: plan.cycleDetected,
	}
	replayed := false

	err = e.datasource.WithTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
		inserted, err := tx.RecordProcessedEvent(ctx, model.ProcessedEvent{PaymentEvent: event, ProcessedAt: now})
		if err != nil {
			return err
		}
		if !inserted {
			replayed = true
			return nil
		}

		for _, planned := range plan.tiers {
			posting, err := tx.CreatePosting(ctx, model.CommissionPosting{
				PostingID:     model.GenerateUUIDWithSuffix("pst"),
				EventID:       event.EventID,
				AgentID:       planned.agent.AgentID,
				SourceAgentID: event.AgentID,
				RuleID:        planned.rule.RuleID,
				Tier:          planned.tier,
				BaseAmount:    event.BaseAmount,
				Amount:        planned.amount,
				Status:        model.PostingCalculated,
				CreatedAt:     now,
			})
			if err != nil {
				return err
			}

			if e.config.Commission.DeferPayout {
				if err := tx.UpdatePostingStatus(ctx, posting.PostingID, model.PostingPending, now, ""); err != nil {
					return err
				}
				posting.Status = model.PostingPending
			} else {
				if err := e.creditPosting(ctx, tx, &posting, now); err != nil {
					return err
				}
			}
			result.Postings = append(result.Postings, posting)
			result.TotalAmount += posting.Amount
		}

		return tx.FinalizeProcessedEvent(ctx, event.EventID, result.TotalAmount, len(result.Postings))
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		prior, err := e.datasource.GetProcessedEvent(ctx, event.EventID)
		if err != nil {
			return nil, err
		}
		if prior == nil {
			return nil, apierror.NewAPIError(apierror.ErrRetryable, "Payment event journal row not visible yet", nil)
		}
		return e.replay(ctx, prior)
	}
	return result, nil
}

// planDistribution resolves the upline and prices each tier. Skipped tiers are
// recorded with their reason and never abort the plan.
func (e *Engine) planDistribution(ctx context.Context, event model.PaymentEvent) (distributionPlan, error) {
	ctx, span := tracer.Start(ctx, "PlanDistribution")
	defer span.End()

	plan := distributionPlan{}
	upline, err := e.ResolveUpline(ctx, event.AgentID, e.maxTierDepth())
	if err != nil {
		return plan, err
	}
	plan.cycleDetected = upline.CycleDetected

	rules := ruleTable{}
	mode := e.roundingMode()
	for i, ancestor := range upline.Ancestors {
		tier := i + 1
		if !ancestor.IsActive() {
			plan.skipped = append(plan.skipped, model.SkippedTier{Tier: tier, AgentID: ancestor.AgentID, Reason: model.SkipInactiveAgent})
			continue
		}

		rule, err := rules.lookup(e, ctx, event.PlanID, event.Frequency, tier)
		if err != nil {
			return plan, err
		}
		if rule == nil {
			plan.skipped = append(plan.skipped, model.SkippedTier{Tier: tier, AgentID: ancestor.AgentID, Reason: model.SkipNoRule})
			continue
		}
		if event.BaseAmount < rule.MinimumRequirement {
			plan.skipped = append(plan.skipped, model.SkippedTier{Tier: tier, AgentID: ancestor.AgentID, Reason: model.SkipBelowMinimum})
			continue
		}

		amount := rule.Compute(event.BaseAmount, mode)
		if amount <= 0 {
			plan.skipped = append(plan.skipped, model.SkippedTier{Tier: tier, AgentID: ancestor.AgentID, Reason: model.SkipZeroAmount})
			continue
		}
		plan.tiers = append(plan.tiers, plannedTier{tier: tier, agent: ancestor, rule: rule, amount: amount})
	}

	span.SetAttributes(attribute.Int("tiers.planned", len(plan.tiers)), attribute.Int("tiers.skipped", len(plan.skipped)))
	return plan, nil
}

// replay rebuilds the result of an event that was already distributed.
func (e *Engine) replay(ctx context.Context, prior *model.ProcessedEvent) (*model.DistributionResult, error) {
	postings, err := e.datasource.GetPostingsByEvent(ctx, prior.EventID)
	if err != nil {
		return nil, err
	}
	e.logger.WithField("event", prior.EventID).Info("payment event already distributed, returning stored postings")
	return &model.DistributionResult{
		EventID:     prior.EventID,
		Postings:    postings,
		TotalAmount: prior.TotalAmount,
		Replayed:    true,
	}, nil
}

// creditPosting posts the ledger credit of a posting and marks it paid.
func (e *Engine) creditPosting(ctx context.Context, tx database.Tx, posting *model.CommissionPosting, at time.Time) error {
	_, _, err := e.postInTx(ctx, tx, model.LedgerEntry{
		EntryID:       model.GenerateUUIDWithSuffix("ent"),
		WalletOwnerID: posting.AgentID,
		Amount:        posting.Amount,
		SourceKind:    model.SourceCommissionPosting,
		SourceRef:     posting.PostingID,
		Description:   fmt.Sprintf("Tier %d commission on payment %s", posting.Tier, posting.EventID),
		PostedAt:      at,
	})
	if err != nil {
		return err
	}
	if err := tx.UpdatePostingStatus(ctx, posting.PostingID, model.PostingPaid, at, ""); err != nil {
		return err
	}
	posting.Status = model.PostingPaid
	posting.UpdatedAt = at
	posting.PaidAt = ptr.Time(at)
	return nil
}

// PayPosting credits a pending posting to its agent's wallet. Paying a posting
// that is already paid returns it unchanged.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - postingID string: The posting to pay.
//
// Returns:
// - *model.CommissionPosting: The posting after payment.
// - error: NOT_FOUND for an unknown posting, CONFLICT for a reversed one.
func (e *Engine) PayPosting(ctx context.Context, postingID string) (*model.CommissionPosting, error) {
	ctx, span := tracer.Start(ctx, "PayPosting")
	defer span.End()

	var paid *model.CommissionPosting
	credited := false
	err := e.retryTx(ctx, func() error {
		credited = false
		return e.datasource.WithTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
			posting, err := tx.GetPostingForUpdate(ctx, postingID)
			if err != nil {
				return err
			}
			if posting.Status == model.PostingPaid {
				paid = posting
				return nil
			}
			if !posting.Status.CanTransitionTo(model.PostingPaid) {
				return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("posting is %s and cannot be paid", posting.Status), nil)
			}
			if err := e.creditPosting(ctx, tx, posting, e.now()); err != nil {
				return err
			}
			paid = posting
			credited = true
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if credited {
		e.notifyEarned(ctx, *paid)
	}
	return paid, nil
}

// ReversePosting cancels a posting. A paid posting is offset by a debit entry,
// which fails with INSUFFICIENT_FUNDS if the agent has already withdrawn the
// money. Reversing a reversed posting returns it unchanged.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - postingID string: The posting to reverse.
// - reason string: Why the commission is withdrawn, stored on the posting.
//
// Returns:
// - *model.CommissionPosting: The posting after reversal.
// - error: NOT_FOUND, INSUFFICIENT_FUNDS, or a store error.
func (e *Engine) ReversePosting(ctx context.Context, postingID, reason string) (*model.CommissionPosting, error) {
	ctx, span := tracer.Start(ctx, "ReversePosting")
	defer span.End()

	var reversed *model.CommissionPosting
	debited := false
	err := e.retryTx(ctx, func() error {
		debited = false
		return e.datasource.WithTransaction(ctx, func(ctx context.Context, tx database.Tx) error {
			posting, err := tx.GetPostingForUpdate(ctx, postingID)
			if err != nil {
				return err
			}
			if posting.Status == model.PostingReversed {
				reversed = posting
				return nil
			}
			if !posting.Status.CanTransitionTo(model.PostingReversed) {
				return apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("posting is %s and cannot be reversed", posting.Status), nil)
			}

			now := e.now()
			if posting.Status == model.PostingPaid {
				_, _, err := e.postInTx(ctx, tx, model.LedgerEntry{
					EntryID:       model.GenerateUUIDWithSuffix("ent"),
					WalletOwnerID: posting.AgentID,
					Amount:        -posting.Amount,
					SourceKind:    model.SourceCommissionReversal,
					SourceRef:     posting.PostingID,
					Description:   fmt.Sprintf("Reversal of tier %d commission on payment %s: %s", posting.Tier, posting.EventID, reason),
					PostedAt:      now,
				})
				if err != nil {
					return err
				}
				debited = true
			}

			if err := tx.UpdatePostingStatus(ctx, posting.PostingID, model.PostingReversed, now, reason); err != nil {
				return err
			}
			posting.Status = model.PostingReversed
			posting.UpdatedAt = now
			posting.ReversedAt = ptr.Time(now)
			posting.ReversalReason = reason
			reversed = posting
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if debited {
		e.notify(ctx, model.Notification{
			Event:             EventCommissionReversed,
			AgentID:           reversed.AgentID,
			Amount:            -reversed.Amount,
			SourceDescription: fmt.Sprintf("Commission on payment %s reversed: %s", reversed.EventID, reason),
			OccurredAt:        e.now(),
		})
	}
	return reversed, nil
}

// GetPostingsByEvent returns the postings of one payment event in tier order.
func (e *Engine) GetPostingsByEvent(ctx context.Context, eventID string) ([]model.CommissionPosting, error) {
	return e.datasource.GetPostingsByEvent(ctx, eventID)
}

// GetPostingsByAgent returns the postings an agent earned, newest first.
func (e *Engine) GetPostingsByAgent(ctx context.Context, agentID string, limit, offset int) ([]model.CommissionPosting, error) {
	return e.datasource.GetPostingsByAgent(ctx, agentID, limit, offset)
}
