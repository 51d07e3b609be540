package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/busara/internal/config"
	"github.com/jkaninda/busara/internal/gateway"
	"github.com/jkaninda/busara/internal/gateway/httpapi"
	goutils "github.com/jkaninda/go-utils"
)

var (
	serveConfigPath string
	serveAddr       string
	serveDocs       bool
	serveDebug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API gateway",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `busara --config path` and `busara serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", "", "path to config file (or BUSARA_CONFIG env)")
		cmd.Flags().StringVar(&serveAddr, "addr", "", "override HTTP listen address (e.g. :8080)")
		cmd.Flags().BoolVar(&serveDocs, "docs", false, "serve OpenAPI docs")
		cmd.Flags().BoolVar(&serveDebug, "debug", false, "enable debug logging")
	}
}

// runServe starts Busara in server mode.
func runServe(_ *cobra.Command, _ []string) error {
	logger := newLogger(serveDebug)

	cfg, err := config.Load(goutils.Env("BUSARA_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if serveAddr != "" {
		if cfg.HTTP == nil {
			cfg.HTTP = &config.HTTPConfig{}
		}
		cfg.HTTP.Addr = serveAddr
	}

	logger.Info("starting in server mode", slog.String("config", serveConfigPath))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpCfg := httpapi.Config{
		ListenAddr: cfg.HTTP.ListenAddr(),
		EnableDocs: serveDocs,
		APIKeys:    apiKeysFromEnv(),
	}

	var gw gateway.Gateway = httpapi.NewGateway(httpCfg, sc.Engine, logger).
		WithOrchestrator(sc.Orch).
		WithObservability(sc.Obs)

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gw.Stop(shutdownCtx)
}

// apiKeysFromEnv parses BUSARA_API_KEYS ("key:user,key:user") into the
// key-to-user mapping. Empty means no authentication.
func apiKeysFromEnv() map[string]string {
	raw := os.Getenv("BUSARA_API_KEYS")
	if raw == "" {
		return nil
	}
	keys := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) == 2 {
			keys[parts[0]] = parts[1]
		}
	}
	return keys
}
