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
	"fmt"

	"github.com/blnkfinance/commissions/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/wacul/ptr"
)

func agentCommands(app *engineInstance) *cobra.Command {
	agentCmd := &cobra.Command{
		Use:   "agents",
		Short: "register agents and manage referrals",
	}

	var referrer string
	registerCmd := &cobra.Command{
		Use:   "register [agent-id]",
		Short: "register an agent, optionally under a referrer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			agent := model.Agent{}
			if len(args) == 1 {
				agent.AgentID = args[0]
			}
			if referrer != "" {
				agent.ReferrerID = ptr.String(referrer)
			}
			created, err := app.engine.RegisterAgent(cmd.Context(), agent)
			if err != nil {
				return err
			}
			return printJSON(created)
		},
	}
	registerCmd.Flags().StringVar(&referrer, "referrer", "", "id of the referring agent")
	agentCmd.AddCommand(registerCmd)

	agentCmd.AddCommand(&cobra.Command{
		Use:   "status [agent-id] [active|inactive|suspended]",
		Short: "change the status of an agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.engine.UpdateAgentStatus(cmd.Context(), args[0], model.AgentStatus(args[1])); err != nil {
				return err
			}
			fmt.Printf("Agent %s is now %s\n", args[0], args[1])
			return nil
		},
	})

	var toRoot bool
	reassignCmd := &cobra.Command{
		Use:   "reassign [agent-id] [new-referrer-id]",
		Short: "move an agent under another referrer",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var newReferrer *string
			if len(args) == 2 {
				newReferrer = ptr.String(args[1])
			} else if !toRoot {
				return fmt.Errorf("give a new referrer or --root")
			}
			if err := app.engine.ReassignReferrer(cmd.Context(), args[0], newReferrer); err != nil {
				return err
			}
			fmt.Printf("Agent %s reassigned\n", args[0])
			return nil
		},
	}
	reassignCmd.Flags().BoolVar(&toRoot, "root", false, "make the agent a root")
	agentCmd.AddCommand(reassignCmd)

	return agentCmd
}

func ruleCommands(app *engineInstance) *cobra.Command {
	ruleCmd := &cobra.Command{
		Use:   "rules",
		Short: "manage commission rules",
	}

	var rule model.CommissionRule
	var kind, value string
	upsertCmd := &cobra.Command{
		Use:   "set",
		Short: "create or replace the active rule for a plan, frequency and tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := decimal.NewFromString(value)
			if err != nil {
				return fmt.Errorf("invalid --value %q: %w", value, err)
			}
			rule.Kind = model.CommissionKind(kind)
			rule.Value = v
			rule.Active = true
			stored, err := app.engine.UpsertRule(cmd.Context(), rule)
			if err != nil {
				return err
			}
			return printJSON(stored)
		},
	}
	upsertCmd.Flags().StringVar(&rule.PlanID, "plan", "", "plan id")
	upsertCmd.Flags().StringVar(&rule.Frequency, "frequency", "", "billing frequency")
	upsertCmd.Flags().IntVar(&rule.Tier, "tier", 1, "upline tier the rule pays")
	upsertCmd.Flags().StringVar(&kind, "kind", string(model.KindPercentage), "percentage or fixed")
	upsertCmd.Flags().StringVar(&value, "value", "0", "percent for percentage rules, minor units for fixed rules")
	upsertCmd.Flags().Int64Var(&rule.MinimumRequirement, "minimum", 0, "smallest payment that earns the rule")
	upsertCmd.Flags().Int64Var(&rule.MaximumCap, "cap", 0, "largest commission paid, 0 for no cap")
	ruleCmd.AddCommand(upsertCmd)

	ruleCmd.AddCommand(&cobra.Command{
		Use:   "list [plan-id]",
		Short: "list the rules of a plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := app.engine.ListRules(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(rules)
		},
	})

	ruleCmd.AddCommand(&cobra.Command{
		Use:   "deactivate [rule-id]",
		Short: "stop a rule from matching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.engine.DeactivateRule(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Rule %s deactivated\n", args[0])
			return nil
		},
	})

	return ruleCmd
}
