package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iambrandonn/patchloop/internal/httpapi"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve change observation over HTTP",
	Long: `Start the HTTP adapter:

  POST /debug    {"entry_file": "...", "user_prompt": "..."}
  GET  /healthz`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

const shutdownTimeout = 5 * time.Second

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := loggerFor(cmd)
	if err != nil {
		return err
	}

	p, err := openProject(cmd, logger)
	if err != nil {
		return err
	}

	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}
	if addr == "" {
		addr = p.cfg.Server.Addr
	}

	if err := p.initStorage(); err != nil {
		return err
	}

	srv := &http.Server{
		Addr: addr,
		Handler: httpapi.NewRouter(httpapi.Options{
			Workspace: p.workspace,
			Observer:  p.newObserver(logger),
			Logger:    logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "workspace", p.workspace)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
