// Package httpapi implements the HTTP API gateway for Busara.
//
// Security:
//   - Optional API key authentication (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - All requests logged
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jkaninda/busara/internal/observability"
	"github.com/jkaninda/busara/internal/orchestrator"
	"github.com/jkaninda/okapi"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// TurnEngine processes one user turn. The agent engine satisfies this.
type TurnEngine interface {
	Run(ctx context.Context, userInput string) (string, error)
}

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr string            // e.g., ":8080"
	EnableDocs bool
	APIKeys    map[string]string // API key → user ID mapping. Empty = no auth.
}

// Gateway is the HTTP API gateway.
type Gateway struct {
	config Config
	engine TurnEngine
	orch   *orchestrator.Orchestrator // nil = orchestration endpoints disabled.
	obs    *observability.Observability
	logger *slog.Logger
	server *http.Server
	okapi  *okapi.Okapi
}

// NewGateway creates an HTTP API gateway over the agent engine.
func NewGateway(cfg Config, engine TurnEngine, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config: cfg,
		engine: engine,
		logger: logger,
		okapi:  okapi.New(okapi.WithMaxMultipartMemory(defaultMaxRequestSize)),
	}
}

// WithOrchestrator attaches the multi-role orchestrator.
func (g *Gateway) WithOrchestrator(o *orchestrator.Orchestrator) *Gateway {
	g.orch = o
	return g
}

// WithObservability attaches metrics and tracing.
func (g *Gateway) WithObservability(obs *observability.Observability) *Gateway {
	g.obs = obs
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	if m := g.obs.MetricsOrNil(); m != nil {
		g.okapi.UseMiddleware(httpMetricsMiddleware(m))
	}

	group := g.okapi.Group("/v1", g.authenticate)

	group.Post("/query", g.handleQuery,
		okapi.DocSummary("Run one agent turn"),
		okapi.DocTags("Query"),
		okapi.DocRequestBody(QueryRequest{}),
		okapi.DocResponse(QueryResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)

	if g.orch != nil {
		group.Post("/orchestrate", g.handleOrchestrate,
			okapi.DocSummary("Run a multi-role routing template"),
			okapi.DocTags("Orchestration"),
			okapi.DocRequestBody(OrchestrateRequest{}),
			okapi.DocResponse(OrchestrateResponse{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
			okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		)
		group.Get("/templates", g.handleTemplates,
			okapi.DocSummary("List routing templates"),
			okapi.DocTags("Orchestration"),
			okapi.DocResponse([]TemplateResponse{}),
		)
	}

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleHealth)

	if m := g.obs.MetricsOrNil(); m != nil {
		g.okapi.HandleStd("GET", "/metrics",
			promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.okapi.WithOpenAPIDocs(okapi.OpenAPI{
			Title:   "Busara",
			Version: "v0.0.1",
		})
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

// QueryRequest is the JSON body for POST /v1/query.
type QueryRequest struct {
	Message string `json:"message"`
}

// QueryResponse is the JSON response for POST /v1/query.
type QueryResponse struct {
	Answer        string `json:"answer"`
	CorrelationID string `json:"correlation_id"`
}

func (g *Gateway) handleQuery(c *okapi.Context) error {
	userID := c.GetString("userID")
	correlationID := uuid.NewString()

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("message is required")
	}
	if req.Message == "" {
		return c.AbortBadRequest("message is required")
	}

	g.logger.Info("http query",
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
	)

	answer, err := g.engine.Run(c.Context(), req.Message)
	if err != nil {
		g.logger.Error("query processing failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("processing failed")
	}

	return c.OK(QueryResponse{Answer: answer, CorrelationID: correlationID})
}

// OrchestrateRequest is the JSON body for POST /v1/orchestrate.
type OrchestrateRequest struct {
	Template string         `json:"template"`
	Goal     string         `json:"goal"`
	Context  map[string]any `json:"context,omitempty"`
}

// OrchestrateResponse is the JSON response for POST /v1/orchestrate.
type OrchestrateResponse struct {
	Template string `json:"template"`
	Output   string `json:"output"`
}

func (g *Gateway) handleOrchestrate(c *okapi.Context) error {
	userID := c.GetString("userID")

	var req OrchestrateRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.Goal == "" {
		return c.AbortBadRequest("goal is required")
	}
	template := req.Template
	if template == "" {
		template = orchestrator.TemplateSingle
	}

	g.logger.Info("http orchestrate",
		slog.String("user_id", userID),
		slog.String("template", template),
	)

	output, err := g.orch.RunTemplate(c.Context(), template, req.Goal, req.Context)
	if err != nil {
		g.logger.Error("orchestration failed",
			slog.String("template", template),
			slog.String("error", err.Error()),
		)
		return c.AbortBadRequest(err.Error())
	}

	return c.OK(OrchestrateResponse{Template: template, Output: output})
}

// TemplateResponse describes one routing template.
type TemplateResponse struct {
	Name string `json:"name"`
	Plan string `json:"plan"`
}

func (g *Gateway) handleTemplates(c *okapi.Context) error {
	names := orchestrator.Templates()
	resp := make([]TemplateResponse, 0, len(names))
	for _, name := range names {
		plan, err := orchestrator.DescribeTemplate(name)
		if err != nil {
			continue
		}
		resp = append(resp, TemplateResponse{Name: name, Plan: plan})
	}
	return c.OK(resp)
}

// HealthResponse is the JSON response for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleHealth(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped user ID on the
// context. With no keys configured, requests pass as "anonymous".
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		if len(g.config.APIKeys) == 0 {
			c.Set("userID", "anonymous")
			return next(c)
		}

		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		userID := ""
		for key, mapped := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				userID = mapped
			}
		}
		if userID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("userID", userID)
		return next(c)
	}
}

// --- Middleware ---

// httpMetricsMiddleware records per-request counters on the collector.
func httpMetricsMiddleware(m *observability.MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.RecordHTTPRequest(r.Method, r.URL.Path, rec.status)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
