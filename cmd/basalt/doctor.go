// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Basalt Contributors

package main

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/basalt-chat/basalt/internal/client"
	"github.com/basalt-chat/basalt/internal/config"
	basalterr "github.com/basalt-chat/basalt/pkg/errors"
	"github.com/spf13/cobra"
)

func (c *cli) newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Validate the configuration and probe the configured gateway's health endpoint.",
		RunE:  c.runDoctor,
	}
}

type checkResult struct {
	ok     bool
	detail string
}

func (c *cli) runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()

	cfg, cfgErr := c.loadConfig()
	checks := []struct {
		name string
		fn   func() checkResult
	}{
		{"Binary", checkBinary},
		{"Config", func() checkResult { return checkConfig(c.v.ConfigFileUsed(), cfgErr) }},
		{"Gateway", func() checkResult { return checkGateway(cmd.Context(), cfg) }},
	}

	failed := 0
	for _, chk := range checks {
		res := chk.fn()
		mark := "ok"
		if !res.ok {
			mark = "FAIL"
			failed++
		}
		if _, err := fmt.Fprintf(w, "%-10s %-5s %s\n", chk.name+":", mark, res.detail); err != nil {
			return err
		}
	}

	if failed > 0 {
		return basalterr.Errorf(basalterr.CodeCLISetupFailure, "%d check(s) failed", failed)
	}
	return nil
}

func checkBinary() checkResult {
	return checkResult{ok: true, detail: fmt.Sprintf("basalt %s (%s/%s, %s)", version, runtime.GOOS, runtime.GOARCH, runtime.Version())}
}

func checkConfig(path string, err error) checkResult {
	if path == "" {
		path = "defaults"
	}
	if err != nil {
		return checkResult{detail: fmt.Sprintf("%s: %s", path, strings.ReplaceAll(err.Error(), "\n", "; "))}
	}
	return checkResult{ok: true, detail: path}
}

func checkGateway(ctx context.Context, cfg *config.Config) checkResult {
	if cfg == nil {
		return checkResult{detail: "skipped, config is invalid"}
	}

	transport, err := buildTransport(cfg)
	if err != nil {
		return checkResult{detail: err.Error()}
	}

	hc, ok := transport.(client.HealthChecker)
	if !ok {
		return checkResult{ok: true, detail: fmt.Sprintf("%s transport has no health endpoint", cfg.Gateway.Transport)}
	}

	status, err := hc.Health(ctx)
	if err != nil {
		return checkResult{detail: fmt.Sprintf("%s unreachable: %v", cfg.Gateway.Transport, err)}
	}
	return checkResult{
		ok:     true,
		detail: fmt.Sprintf("%s %s (%s)", cfg.Gateway.Transport, status.Status, status.Latency.Round(time.Millisecond)),
	}
}
