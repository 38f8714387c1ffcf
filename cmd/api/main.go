package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"etl-backend/internal/bootstrap"
	"etl-backend/internal/etl"
	"etl-backend/internal/shared/config"
	"etl-backend/internal/shared/server"
	"etl-backend/internal/shared/telemetry"
	"etl-backend/internal/uploads"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "etl-api",
		Short:         "HTTP front end for the ETL tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newRunCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func newRunCmd() *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the ETL once and print the result envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := bootstrap.Build(config.Load())
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), app.ETLService, input, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "file to upload before running")
	return cmd
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	app, err := bootstrap.Build(cfg)
	if err != nil {
		telemetry.Error("server.bootstrap_failed", map[string]any{"err": err})
		return err
	}

	srv := &http.Server{
		Addr:              server.Addr(cfg.Port),
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		telemetry.Info("server.started", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			telemetry.Error("server.failed", map[string]any{"err": err})
		}
		return err
	case <-ctx.Done():
	}

	telemetry.Info("server.stopping", map[string]any{"timeout_ms": shutdownTimeout.Milliseconds()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// runOnce performs one run and writes the same JSON body /run-etl returns.
// A failed run still prints its envelope and exits non-zero.
func runOnce(ctx context.Context, svc *etl.Service, input string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var req etl.Request
	if input != "" {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		req.Input = &uploads.Input{FileName: filepath.Base(input), Body: f}
	}

	out, runErr := svc.Run(ctx, req)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(etl.Body(out, runErr)); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("run %s failed", out.RunID)
	}
	return nil
}
