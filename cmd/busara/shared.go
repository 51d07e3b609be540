package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/config"
	"github.com/jkaninda/busara/internal/executor"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/llm/ollama"
	"github.com/jkaninda/busara/internal/llm/openai"
	"github.com/jkaninda/busara/internal/memory"
	"github.com/jkaninda/busara/internal/memory/semantic"
	"github.com/jkaninda/busara/internal/observability"
	"github.com/jkaninda/busara/internal/orchestrator"
	"github.com/jkaninda/busara/internal/tools"
	"github.com/jkaninda/busara/internal/tools/clock"
	"github.com/jkaninda/busara/internal/tools/failing"
	mcptools "github.com/jkaninda/busara/internal/tools/mcp"
	"github.com/jkaninda/busara/internal/tools/summarize"
	"github.com/jkaninda/busara/internal/tools/weather"
	"github.com/jkaninda/busara/internal/tools/web"
	goutils "github.com/jkaninda/go-utils"
)

// SharedComponents holds the subsystems every command mode needs. Built once
// by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config  *config.Config
	Logger  *slog.Logger
	Obs     *observability.Observability
	Backend llm.Client
	ToolReg *tools.Registry
	Engine  *agent.Engine
	Orch    *orchestrator.Orchestrator

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// newLogger builds the process logger writing JSON to stderr.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// initShared performs all common initialization shared between command modes.
// Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Ensure data directory exists.
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", cfg.DataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", cfg.DataDir))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// Text backend.
	backend, embedder, err := newBackend(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing text backend: %w", err)
	}
	backend = observability.NewInstrumentedClient(backend, obs.MetricsOrNil())
	sc.Backend = backend
	logger.Debug("text backend initialized",
		slog.String("provider", backend.Name()),
		slog.String("model", cfg.Provider.ModelName()),
	)

	// Tool registry.
	toolReg := tools.NewRegistry()
	toolReg.Register(clock.NewTool())
	toolReg.Register(weather.NewTool())
	toolReg.Register(summarize.NewTool(backend))
	if cfg.Tools.Web != nil {
		toolReg.Register(web.NewTool(cfg.Tools.Web, logger))
	}
	// Demo tools that fail on purpose, for exercising the replan path.
	if goutils.Env("BUSARA_ENABLE_TEST_TOOLS", "") != "" {
		toolReg.Register(failing.AlwaysFail{})
		toolReg.Register(failing.SoftFail{})
	}
	logger.Debug("tools registered", slog.Any("tools", toolReg.List()))

	// MCP tool servers.
	if len(cfg.Tools.MCP) > 0 {
		mcpBridge := mcptools.NewBridge(logger)
		mcpCtx, mcpCancel := context.WithTimeout(context.Background(), 30*time.Second)
		for _, mcpCfg := range cfg.Tools.MCP {
			mcpToolList, mcpErr := mcpBridge.ConnectAndDiscover(mcpCtx, mcpCfg)
			if mcpErr != nil {
				logger.Error("MCP server failed, skipping",
					slog.String("server", mcpCfg.Name),
					slog.String("error", mcpErr.Error()),
				)
				continue
			}
			for _, t := range mcpToolList {
				toolReg.Register(t)
			}
		}
		mcpCancel()
		sc.addCleanup(mcpBridge.Close)
		logger.Debug("tools registered (with MCP)", slog.Any("tools", toolReg.List()))
	}
	sc.ToolReg = toolReg

	// Control loop.
	planner := agent.NewPlanner(backend, toolReg, logger).
		WithMaxRepairAttempts(cfg.Agent.RepairAttempts())
	exec := executor.New(toolReg, logger).
		WithMaxSteps(cfg.Agent.Steps())

	engine := agent.NewEngine(planner, exec, backend, logger).
		WithObservability(obs).
		WithMaxReplans(cfg.Agent.Replans()).
		WithObservationMaxChars(cfg.Agent.ObservationChars())
	if markers := cfg.Agent.RecallMarkers(); len(markers) > 0 {
		engine.WithRecallMarkers(markers)
	}

	// Memory (optional).
	if cfg.Memory != nil {
		episodic, err := memory.NewStore(cfg.EpisodesPath(), logger)
		if err != nil {
			sc.Cleanup()
			return nil, fmt.Errorf("initializing episodic memory: %w", err)
		}
		engine.WithEpisodicMemory(episodic.WithLimits(cfg.Memory.Recent(), cfg.Memory.Relevant()))
		logger.Debug("episodic memory initialized", slog.String("path", cfg.EpisodesPath()))

		if semCfg := cfg.Memory.Semantic; semCfg != nil {
			if embedder == nil {
				logger.Warn("semantic memory configured but the provider has no embedding support, skipping",
					slog.String("provider", backend.Name()),
				)
			} else {
				sem, err := newSemanticStore(cfg, embedder, logger)
				if err != nil {
					sc.Cleanup()
					return nil, fmt.Errorf("initializing semantic memory: %w", err)
				}
				engine.WithSemanticMemory(sem.WithTopK(semCfg.K()))
				logger.Debug("semantic memory initialized", slog.String("driver", semCfg.SemanticDriver()))
			}
		}
	}
	sc.Engine = engine

	// Multi-role orchestration over the same engine.
	roles := orchestrator.BuiltinRoles(engine)
	sc.Orch = orchestrator.New(roles, logger).
		WithObservability(obs).
		WithMaxWorkItems(cfg.Orchestrator.WorkItems()).
		WithMaxConcurrency(cfg.Orchestrator.Concurrency()).
		WithPerItemTimeout(cfg.Orchestrator.PerItemTimeout()).
		WithParallel(cfg.Orchestrator.Parallel())
	logger.Debug("orchestrator initialized",
		slog.Int("max_work_items", cfg.Orchestrator.WorkItems()),
		slog.Int("max_concurrency", cfg.Orchestrator.Concurrency()),
	)

	return sc, nil
}

// newBackend creates the text backend from config. The second return is the
// embedder when the provider supports embeddings, nil otherwise.
func newBackend(cfg *config.Config, logger *slog.Logger) (llm.Client, llm.Embedder, error) {
	switch cfg.Provider.ProviderName() {
	case "ollama":
		opts := []ollama.Option{
			ollama.WithHTTPClient(&http.Client{Timeout: cfg.Provider.Timeout()}),
		}
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, ollama.WithBaseURL(cfg.Provider.BaseURL))
		}
		if cfg.Provider.EmbedModel != "" {
			opts = append(opts, ollama.WithEmbedModel(cfg.Provider.EmbedModel))
		}
		client := ollama.NewClient(cfg.Provider.ModelName(), logger, opts...)
		return client, client, nil

	case "openai":
		opts := []openai.Option{
			openai.WithHTTPClient(&http.Client{Timeout: cfg.Provider.Timeout()}),
		}
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Provider.BaseURL))
		}
		return openai.NewClient(cfg.Provider.APIKey, cfg.Provider.ModelName(), logger, opts...), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown provider: %q", cfg.Provider.Name)
	}
}

// newSemanticStore creates the vector store for the configured driver.
func newSemanticStore(cfg *config.Config, embedder llm.Embedder, logger *slog.Logger) (*semantic.Store, error) {
	semCfg := cfg.Memory.Semantic
	switch semCfg.SemanticDriver() {
	case "postgres":
		return semantic.NewPostgresStore(semCfg.DSN, embedder, logger)
	default:
		return semantic.NewSQLiteStore(cfg.SemanticPath(), embedder, logger)
	}
}
