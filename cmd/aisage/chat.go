// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aisage Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aisage-dev/aisage/internal/agent"
	"github.com/aisage-dev/aisage/internal/config"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the coach from the terminal",
		Long:  "Run a coaching session against the configured provider. Sends a single message when one is given, otherwise reads turns from stdin until EOF or /quit.",
		RunE:  runChat,
	}

	cmd.Flags().String("customer", "demo-customer", "customer ID for the session")
	cmd.Flags().StringP("model", "m", "", "model override (provider/model)")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	// Terminal sessions are throwaway; keep them out of the service DB.
	cfg.Storage.Backend = "memory"

	app, err := WireApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	customerID, _ := cmd.Flags().GetString("customer")
	model, _ := cmd.Flags().GetString("model")

	session, err := app.Sessions.Create(cmd.Context(), customerID, model)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	sendTurn := func(content string) error {
		reply, err := app.Loop.ProcessMessage(cmd.Context(), agent.InboundMessage{
			SessionID:  session.ID,
			CustomerID: customerID,
			Content:    content,
		})
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "\nSage: %s\n", reply.Content); err != nil {
			return err
		}
		if reply.EscalationID != "" {
			_, err = fmt.Fprintf(out, "(adviser handoff filed: %s)\n", reply.EscalationID)
		}
		return err
	}

	if len(args) > 0 {
		return sendTurn(strings.Join(args, " "))
	}

	fmt.Fprintf(out, "Session %s for %s. Type /quit to leave.\n", session.ID, customerID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}
		if err := sendTurn(line); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	return app.Sessions.End(cmd.Context(), session.ID)
}
