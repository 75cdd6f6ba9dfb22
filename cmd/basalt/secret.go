// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package main

import (
	"fmt"

	"github.com/basalt-chat/basalt/internal/secrets"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"github.com/spf13/cobra"
)

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage API keys stored in the OS keyring",
		Long: "Store, list and delete secrets under the basalt keyring service. Reference a stored\n" +
			"secret from the config as keyring://basalt/<name>.",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <name> <value>",
			Short: "Store a secret",
			Args:  cobra.ExactArgs(2),
			RunE:  runSecretSet,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored secret names",
			Args:  cobra.NoArgs,
			RunE:  runSecretList,
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a secret",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecretDelete,
		},
	)

	return cmd
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name, value := args[0], args[1]
	if err := secretStoreFactory().Set(secrets.Service, name, value); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret %s. Reference it as %s\n", name, secrets.URI(secrets.Service, name))
	return nil
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	names, err := secretStoreFactory().List(secrets.Service)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}
	for _, n := range names {
		_, _ = fmt.Fprintln(out, n)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := secretStoreFactory().Delete(secrets.Service, name); err != nil {
		if basalterr.IsNotFound(err) {
			return basalterr.Errorf(basalterr.CodeSecretNotFound, "secret %q not found", name)
		}
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret %s\n", name)
	return nil
}
