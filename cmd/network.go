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

	"github.com/spf13/cobra"
)

func networkCommands(app *engineInstance) *cobra.Command {
	networkCmd := &cobra.Command{
		Use:   "network",
		Short: "inspect and rebuild the network level index",
	}

	var all, stale bool
	var limit int
	rebuildCmd := &cobra.Command{
		Use:   "rebuild [root-agent-id]",
		Short: "rebuild the index of one root, every root, or the stale ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 1:
				result, err := app.engine.RebuildNetwork(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(result)
			case stale:
				results, err := app.engine.RebuildStaleNetworks(cmd.Context(), limit)
				if perr := printJSON(results); perr != nil {
					return perr
				}
				return err
			case all:
				results, err := app.engine.RebuildAllNetworks(cmd.Context())
				if perr := printJSON(results); perr != nil {
					return perr
				}
				return err
			default:
				return errors.New("give a root agent id, --all or --stale")
			}
		},
	}
	rebuildCmd.Flags().BoolVar(&all, "all", false, "rebuild every root")
	rebuildCmd.Flags().BoolVar(&stale, "stale", false, "rebuild roots marked stale")
	rebuildCmd.Flags().IntVar(&limit, "limit", 100, "maximum stale roots to rebuild")
	networkCmd.AddCommand(rebuildCmd)

	networkCmd.AddCommand(&cobra.Command{
		Use:   "level [agent-id]",
		Short: "print the index row of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := app.engine.GetNetworkLevel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(level)
		},
	})

	var depth int
	uplineCmd := &cobra.Command{
		Use:   "upline [agent-id]",
		Short: "print the referral chain above an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("depth") {
				depth = app.cnf.Commission.MaxTierDepth
			}
			upline, err := app.engine.ResolveUpline(cmd.Context(), args[0], depth)
			if err != nil {
				return err
			}
			return printJSON(upline)
		},
	}
	uplineCmd.Flags().IntVar(&depth, "depth", 0, "ancestors to collect, defaults to commission.max_tier_depth")
	networkCmd.AddCommand(uplineCmd)

	return networkCmd
}
