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

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/commissions/model"
	"github.com/spf13/cobra"
)

// distributeCommands distributes one confirmed payment, inline or through the
// payment-event queue.
func distributeCommands(app *engineInstance) *cobra.Command {
	var event model.PaymentEvent
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "distribute commissions for a confirmed payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			event.OccurredAt = time.Now().UTC()
			if enqueue {
				if app.queue == nil {
					return errors.New("--enqueue needs redis: set redis.dns in the configuration")
				}
				if err := app.queue.EnqueuePaymentEvent(cmd.Context(), event); err != nil {
					return err
				}
				fmt.Printf("Queued payment event %s\n", event.EventID)
				return nil
			}

			result, err := app.engine.Distribute(cmd.Context(), event)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().StringVar(&event.EventID, "event-id", "", "unique id of the payment event")
	cmd.Flags().StringVar(&event.AgentID, "agent", "", "agent who made the payment")
	cmd.Flags().StringVar(&event.PlanID, "plan", "", "plan the payment is for")
	cmd.Flags().StringVar(&event.Frequency, "frequency", "", "billing frequency of the plan")
	cmd.Flags().Int64Var(&event.BaseAmount, "amount", 0, "payment amount in minor units")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "queue the event for the workers instead of distributing inline")

	cmd.AddCommand(payPostingCommand(app))
	cmd.AddCommand(reversePostingCommand(app))
	return cmd
}

func payPostingCommand(app *engineInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "pay [posting-id]",
		Short: "credit a pending posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			posting, err := app.engine.PayPosting(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(posting)
		},
	}
}

func reversePostingCommand(app *engineInstance) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reverse [posting-id]",
		Short: "reverse a posting, debiting it back if it was paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			posting, err := app.engine.ReversePosting(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			return printJSON(posting)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the posting is reversed")
	return cmd
}
