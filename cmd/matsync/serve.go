package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsync/matsync/internal/config"
	"github.com/matsync/matsync/internal/queue"
	"github.com/matsync/matsync/internal/queueserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reference queue service (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "matsync version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	srvCfg, err := serverTokens(cfg)
	if err != nil {
		return err
	}

	store, err := queueserver.Open(cfg.Server.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := queueserver.NewHandler(store, srvCfg, slog.Default())
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "matsync queue service listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// serverTokens builds the service auth config, falling back to the client
// tokens for a single-user setup.
func serverTokens(cfg config.Config) (queueserver.Config, error) {
	out := queueserver.Config{
		AthleteTokens: cfg.Server.AthleteTokens,
		CoachToken:    cfg.Server.CoachToken,
	}
	if len(out.AthleteTokens) == 0 && cfg.Queue.AthleteToken != "" {
		out.AthleteTokens = map[string]string{cfg.Queue.AthleteToken: "athlete"}
	}
	if out.CoachToken == "" {
		out.CoachToken = cfg.Queue.CoachToken
	}
	if len(out.AthleteTokens) == 0 && out.CoachToken == "" {
		return queueserver.Config{}, fmt.Errorf("no bearer tokens configured: set server.athlete_tokens/server.coach_token or MATSYNC_ATHLETE_TOKEN/MATSYNC_COACH_TOKEN")
	}
	return out, nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show matsync system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		client := queue.NewClient(cfg.Queue.BaseURL, cfg.Queue.AthleteToken)
		if err := client.Health(cmd.Context()); err != nil {
			printStatus("Queue service", "unreachable (%v)", err)
		} else {
			printStatus("Queue service", "up at %s", cfg.Queue.BaseURL)
		}

		printStatus("Vault", "%s", cfg.Vault.Dir)
		printStatus("Poll interval", "%s", cfg.PollInterval())
		if cfg.Queue.AthleteToken == "" {
			printWarning("no athlete token configured")
		}
		return nil
	},
}
