// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/stacklok/dacsync/pkg/accession"
	"github.com/stacklok/dacsync/pkg/config"
	"github.com/stacklok/dacsync/pkg/egapi"
	"github.com/stacklok/dacsync/pkg/logger"
	"github.com/stacklok/dacsync/pkg/reconciler"
	"github.com/stacklok/dacsync/pkg/storage/sqlite"
	"github.com/stacklok/dacsync/pkg/token"
)

var runFlags struct {
	configFile string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation and print the job report",
	Long: `Run executes a single reconciliation of the configured DAC: it enumerates the
DAC's datasets, projects the approved users from the application database,
resolves them against the platform, grants missing permissions and revokes
stale ones. The job report is printed to stdout as JSON; the command exits
non-zero when the run was not fully successful.`,
	Args: cobra.NoArgs,
	RunE: runCmdFunc,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.configFile, "config", "", "Path to the configuration file")
}

func runCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(runFlags.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.AuthUsername == "" || cfg.AuthPassword == "" || cfg.AuthPublicKey == "" {
		return fmt.Errorf("identity credentials are required: " +
			"set DACSYNC_AUTHUSERNAME, DACSYNC_AUTHPASSWORD and DACSYNC_AUTHPUBLICKEY")
	}

	dacID, err := accession.ParseDacID(cfg.DacID)
	if err != nil {
		return fmt.Errorf("invalid dacId: %w", err)
	}

	store, err := sqlite.NewApplicationStore(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open application store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("failed to close application store: %v", err)
		}
	}()

	tokens, err := token.NewManager(token.Options{
		TokenURL:     cfg.TokenEndpoint(),
		ClientID:     cfg.ClientID,
		Username:     cfg.AuthUsername,
		Password:     cfg.AuthPassword,
		PublicKeyPEM: []byte(cfg.AuthPublicKey),
	})
	if err != nil {
		return fmt.Errorf("failed to create token manager: %w", err)
	}

	client, err := egapi.NewClient(egapi.Options{
		BaseURL:            cfg.APIBaseURL,
		Tokens:             tokens,
		MaxRequestLimit:    cfg.MaxRequestLimit,
		MaxRequestInterval: cfg.MaxRequestInterval(),
		MaxBatchSize:       cfg.MaxBatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create platform client: %w", err)
	}

	rec, err := reconciler.New(reconciler.Options{
		DacID:        dacID,
		API:          client,
		Store:        store,
		PageLimit:    cfg.DefaultPageLimit,
		PageStep:     cfg.DefaultPageOffset,
		MaxBatchSize: cfg.MaxBatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create reconciler: %w", err)
	}

	if cfg.MetricsAddress != "" {
		shutdown := serveMetrics(cfg.MetricsAddress)
		defer shutdown()
	}

	report := rec.Run(ctx)

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode job report: %w", err)
	}
	fmt.Println(string(out))

	if !report.Success {
		return fmt.Errorf("reconciliation did not complete successfully")
	}
	return nil
}

// serveMetrics exposes Prometheus metrics for the duration of the run.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warnf("metrics server error: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warnf("failed to shut down metrics server: %v", err)
		}
	}
}
