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

	"github.com/spf13/cobra"
)

func walletCommands(app *engineInstance) *cobra.Command {
	walletCmd := &cobra.Command{
		Use:   "wallet",
		Short: "inspect and reconcile wallets",
	}

	walletCmd.AddCommand(&cobra.Command{
		Use:   "balance [owner-id]",
		Short: "print the cached balance of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			balance, err := app.engine.GetBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(balance)
			return nil
		},
	})

	var limit, offset int
	entriesCmd := &cobra.Command{
		Use:   "entries [owner-id]",
		Short: "list ledger entries of a wallet, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := app.engine.GetLedgerEntries(cmd.Context(), args[0], limit, offset)
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	}
	entriesCmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	entriesCmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	walletCmd.AddCommand(entriesCmd)

	var amount int64
	var reference string
	debitCmd := &cobra.Command{
		Use:   "debit [owner-id]",
		Short: "withdraw from a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := app.engine.Debit(cmd.Context(), args[0], amount, reference)
			if err != nil {
				return err
			}
			return printJSON(entry)
		},
	}
	debitCmd.Flags().Int64Var(&amount, "amount", 0, "amount to withdraw in minor units")
	debitCmd.Flags().StringVar(&reference, "reference", "", "withdrawal id, repeats are ignored")
	walletCmd.AddCommand(debitCmd)

	var batchSize int
	reconcileCmd := &cobra.Command{
		Use:   "reconcile [owner-id]",
		Short: "recompute balances from the ledger, one wallet or all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				result, err := app.engine.Reconcile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(result)
			}
			summary, err := app.engine.ReconcileAll(cmd.Context(), batchSize)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	reconcileCmd.Flags().IntVar(&batchSize, "batch-size", 0, "wallets per page, defaults to audit.batch_size")
	walletCmd.AddCommand(reconcileCmd)

	return walletCmd
}
