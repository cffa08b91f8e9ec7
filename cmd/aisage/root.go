// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root aisage command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aisage",
		Short:         "Aisage — guarded financial coaching service",
		Long:          "Aisage runs a grounded, guardrailed LLM coaching loop over customer transaction data.\nEvery monetary figure in a response is certified against tool output before it is sent.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
			}
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newVersionCmd(),
	)

	return root
}
