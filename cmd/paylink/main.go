// Command paylink serves pay-per-access links settled in USDC on Algorand.
//
// A creator registers a file or URL with a price; buyers hitting
// /pay/{linkId} receive a 402 challenge, pay with an atomic transaction
// group, and are served the content once the facilitator verifies it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/algox402/x402-go/avm"
	"github.com/algox402/x402-go/facilitator"
	"github.com/algox402/x402-go/facilitator/local"
	httpx402 "github.com/algox402/x402-go/http"
	mcpserver "github.com/algox402/x402-go/mcp/server"
	"github.com/algox402/x402-go/metrics"
	"github.com/algox402/x402-go/store/disk"
	pbstore "github.com/algox402/x402-go/store/pocketbase"
)

const version = "0.1.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(os.Args[1:], logger); err != nil {
		logger.Error("paylink exited", "error", err)
		os.Exit(1)
	}
}

func run(args []string, logger *slog.Logger) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := core.NewBaseApp(core.BaseAppConfig{DataDir: cfg.DataDir})
	if err := app.Bootstrap(); err != nil {
		return fmt.Errorf("bootstrap pocketbase: %w", err)
	}
	defer app.ResetBootstrapState()
	if err := app.RunAllMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	db := pbstore.New(app)
	if err := db.EnsureCollections(); err != nil {
		return err
	}

	content, err := disk.New(cfg.UploadsDir)
	if err != nil {
		return fmt.Errorf("open uploads dir: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewPrometheusRecorder(registry)
	if err != nil {
		return err
	}

	fac, err := newFacilitator(cfg, recorder, logger)
	if err != nil {
		return err
	}

	gate, err := httpx402.NewGate(httpx402.GateConfig{
		Facilitator: fac,
		Metrics:     recorder,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	deps := routerDeps{
		Gate:     gate,
		Links:    db,
		Payments: db,
		Content:  content,
		Registry: registry,
		Logger:   logger,
	}
	if cfg.FacilitatorURL == "" {
		deps.Facilitator = fac
		if cfg.JWTSecret != "" {
			deps.FacilitatorAuth, err = httpx402.NewFacilitatorAuth([]byte(cfg.JWTSecret), "paylink", 0)
			if err != nil {
				return err
			}
		}
		if cfg.EnableMCP {
			mcp, err := mcpserver.NewFacilitatorServer("paylink-facilitator", version, mcpserver.Config{
				Facilitator: fac,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			deps.MCP = mcp.Handler()
		}
	}

	handler, err := newRouter(deps)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("paylink listening", "addr", srv.Addr, "facilitator", facilitatorName(cfg))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	// Pending settlements still record payments in the store, so drain them
	// before the app is torn down.
	return gate.Shutdown(shutdownCtx)
}

func newFacilitator(cfg config, rec metrics.Recorder, logger *slog.Logger) (facilitator.Interface, error) {
	if cfg.FacilitatorURL != "" {
		client := &httpx402.FacilitatorClient{
			BaseURL: cfg.FacilitatorURL,
			Client:  &http.Client{},
			Logger:  logger,
		}
		if cfg.JWTSecret != "" {
			auth, err := httpx402.NewFacilitatorAuth([]byte(cfg.JWTSecret), "paylink", 0)
			if err != nil {
				return nil, err
			}
			client.Auth = auth
		}
		return client, nil
	}

	account, err := avm.AccountFromMnemonic(cfg.FacilitatorMnemonic)
	if err != nil {
		return nil, err
	}
	nodes, err := avm.NewNodes(cfg.nodeConfigs())
	if err != nil {
		return nil, fmt.Errorf("connect algod: %w", err)
	}
	fac, err := local.New(local.Config{
		Account:  account,
		FeePayer: cfg.FeePayer,
		Nodes:    nodes,
		Metrics:  rec,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return fac, nil
}

func facilitatorName(cfg config) string {
	if cfg.FacilitatorURL != "" {
		return cfg.FacilitatorURL
	}
	return "local"
}
