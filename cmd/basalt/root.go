// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package main

import (
	"errors"
	"log/slog"

	"github.com/basalt-chat/basalt/internal/config"
	"github.com/basalt-chat/basalt/internal/logging"
	"github.com/basalt-chat/basalt/internal/secrets"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// secretStoreFactory creates the secrets.Store used for keyring:// lookups
// and the secret subcommands. Tests substitute a mock keyring.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// cli carries the per-invocation Viper instance to the subcommands.
type cli struct {
	v *viper.Viper
}

// NewRootCmd creates the root basalt command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "basalt",
		Short:         "Basalt chat client",
		Long:          "Basalt sends chat messages to a conversational gateway and renders streamed replies as they arrive.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.initViper(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	root.PersistentFlags().String("transport", "", "chat transport: http, mock or openai")
	root.PersistentFlags().String("mode", "", "session mode: streaming or request")

	root.AddCommand(
		c.newChatCmd(),
		c.newDoctorCmd(),
		c.newTranscriptCmd(),
		newSecretCmd(),
		newVersionCmd(),
	)

	return root
}

// initViper applies defaults, the config file, env overrides and flags
// (flag > env > file > defaults), resolves keyring:// references and
// installs the logger.
func (c *cli) initViper(cmd *cobra.Command) error {
	v := c.v

	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return basalterr.Errorf(basalterr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
	} else {
		// SetConfigType is left unset so Viper never mistakes the basalt
		// binary in the working directory for a config file.
		v.SetConfigName("basalt")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/basalt")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return basalterr.Errorf(basalterr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if path := config.BootstrapConfig(); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return basalterr.Errorf(basalterr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
				}
			}
		}
	}
	if used := v.ConfigFileUsed(); used != "" {
		config.WarnInsecurePermissions(used)
	}

	flags := cmd.Root().PersistentFlags()
	for key, flag := range map[string]string{
		"gateway.transport": "transport",
		"session.mode":      "mode",
		"verbose":           "verbose",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return basalterr.Errorf(basalterr.CodeCLISetupFailure, "binding %s flag: %w", flag, err)
		}
	}
	level := v.GetString("log.level")
	if v.GetBool("verbose") {
		level = "debug"
	}
	if _, err := logging.Setup(level, v.GetString("log.format"), cmd.ErrOrStderr()); err != nil {
		_, _ = logging.Setup("info", "text", cmd.ErrOrStderr())
		slog.Warn("invalid log settings, using defaults", "error", err)
	}

	secrets.ResolveViperSecrets(v, secretStoreFactory())
	return nil
}

// loadConfig decodes and validates the merged configuration.
func (c *cli) loadConfig() (*config.Config, error) {
	return config.FromViper(c.v)
}
