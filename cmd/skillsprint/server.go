package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skillsprint/coach/internal/api"
	"github.com/skillsprint/coach/internal/config"
	"github.com/skillsprint/coach/internal/retention"
	"github.com/skillsprint/coach/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the coach and sprint tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

// openStore opens the audit log when it is enabled. A nil store is valid.
func openStore(cfg config.Config) (*storage.Store, error) {
	if !cfg.Storage.Enabled {
		return nil, nil
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return store, nil
}

func closeStore(store *storage.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

func runServer() error {
	fmt.Fprintln(os.Stderr, versionString())

	a, err := loadApp()
	if err != nil {
		return err
	}
	cfg := a.cfg

	if !a.gateway.Configured() {
		slog.Warn("no completion credential configured, serving fallback content only")
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	deps := api.Deps{
		Coach:          a.coach,
		Sprints:        a.sprints,
		AdminToken:     cfg.Access.Passcode,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Debug:          cfg.Server.Debug,
	}
	if store != nil {
		deps.Store = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if store != nil {
		sweeper := retention.NewSweeper(store, cfg.Storage.RetentionPeriod(), time.Hour)
		if sweeper.Enabled() {
			g.Go(func() error {
				sweeper.Run(gctx)
				return nil
			})
		}
	}
	g.Go(func() error {
		slog.Info("listening", "addr", addr, "models", a.gateway.Models(), "storage", store != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		printStep("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMCP() error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	store, err := openStore(a.cfg)
	if err != nil {
		return err
	}
	defer closeStore(store)

	deps := api.MCPDeps{
		Coach:    a.coach,
		Sprints:  a.sprints,
		Topics:   a.topics,
		Passcode: a.cfg.Access.Passcode,
		Version:  version,
	}
	if store != nil {
		deps.Store = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus() error {
	client, err := newAPIClient()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}
	ctx := context.Background()

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped (%s)", client.baseURL)
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Server", "running at %s", client.baseURL)

	var diag struct {
		HasKey       bool `json:"hasKey"`
		HasPassVar   bool `json:"hasPassVar"`
		PassProvided bool `json:"passProvided"`
		PassMatches  bool `json:"passMatches"`
	}
	if resp, err := client.get(ctx, "/api/diag"); err == nil {
		if err := decodeJSON(resp, &diag); err == nil {
			printStatus("Completion key", "%s", yesNo(diag.HasKey))
			printStatus("Passcode", "%s", passcodeLabel(diag.HasPassVar, diag.PassMatches))
		}
	}

	if client.token != "" {
		if resp, err := client.get(ctx, "/api/interactions?limit=100"); err == nil {
			var interactions []json.RawMessage
			if decodeJSON(resp, &interactions) == nil {
				printStatus("Interactions", "%s", countLabel(len(interactions), 100))
			}
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "configured"
	}
	return "missing (fallback content only)"
}

func passcodeLabel(required, matches bool) string {
	switch {
	case !required:
		return "not required"
	case matches:
		return "required, local value matches"
	default:
		return "required, local value does not match"
	}
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
