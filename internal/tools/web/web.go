// Package web implements the fetch_url tool with SSRF protection.
//
// Security:
//   - Optional domain allowlist enforced before every request and on redirects
//   - DNS resolution checked: private/internal IPs blocked
//   - Response body capped to prevent OOM
//   - Only GET and HEAD methods allowed
//   - Timeout enforced via context
package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jkaninda/busara/internal/config"
	"github.com/jkaninda/busara/internal/tools"
)

const defaultMaxBytes = 1 << 20 // 1 MB

// Tool fetches public URLs, optionally restricted to an allowlist.
type Tool struct {
	cfg    *config.WebToolConfig
	logger *slog.Logger
}

// NewTool creates a fetch_url tool from its configuration section.
func NewTool(cfg *config.WebToolConfig, logger *slog.Logger) *Tool {
	if cfg == nil {
		cfg = &config.WebToolConfig{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{cfg: cfg, logger: logger}
}

func (t *Tool) Name() string { return "web.fetch_url" }

func (t *Tool) Description() string {
	return "Fetch the content of a public http(s) URL. Returns the response body and status code."
}

func (t *Tool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":    map[string]any{"type": "string", "description": "The URL to fetch (http or https)"},
			"method": map[string]any{"type": "string", "enum": []string{"GET", "HEAD"}, "description": "HTTP method. Defaults to GET"},
		},
		"required": []string{"url"},
	}
}

func (t *Tool) Validate(args map[string]any) error {
	rawURL, err := requireString(args, "url")
	if err != nil {
		return err
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("only http/https schemes allowed, got %q", parsed.Scheme)
	}
	if !t.domainAllowed(parsed.Hostname()) {
		return fmt.Errorf("domain %q is not in the allowlist", parsed.Hostname())
	}
	if m := methodOf(args); m != "GET" && m != "HEAD" {
		return fmt.Errorf("only GET and HEAD methods allowed, got %q", m)
	}
	return nil
}

// Execute fetches the URL. Transport-level faults return an error; HTTP error
// statuses come back as a failure payload so the control loop can decide
// whether a retry is worthwhile.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (any, error) {
	rawURL, _ := requireString(args, "url")
	method := methodOf(args)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if err := CheckSSRF(parsed.Hostname()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout())
	defer cancel()

	client := &http.Client{CheckRedirect: t.checkRedirect}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Busara/1.0")

	t.logger.InfoContext(ctx, "fetch_url executing",
		slog.String("method", method),
		slog.String("url", rawURL),
	)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	maxBytes := int64(t.cfg.MaxBytes)
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	truncated := false
	if int64(len(body)) > maxBytes {
		body = body[:maxBytes]
		truncated = true
	}

	if resp.StatusCode >= 400 {
		return map[string]any{
			"ok":          false,
			"reason":      fmt.Sprintf("HTTP %d from %s", resp.StatusCode, resp.Request.URL),
			"status_code": resp.StatusCode,
			"retryable":   resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}, nil
	}

	return map[string]any{
		"ok":          true,
		"status_code": resp.StatusCode,
		"url":         resp.Request.URL.String(),
		"body":        tools.TruncateOutput(string(body), tools.MaxOutputBytes),
		"truncated":   truncated,
	}, nil
}

// checkRedirect validates that redirect targets are also allowed and do not
// resolve to private IPs.
func (t *Tool) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return fmt.Errorf("too many redirects (max 5)")
	}
	host := req.URL.Hostname()
	if !t.domainAllowed(host) {
		return fmt.Errorf("redirect to disallowed domain %q blocked", host)
	}
	return CheckSSRF(host)
}

// domainAllowed applies the allowlist. An empty allowlist permits any public
// domain; the SSRF check still runs at request time.
func (t *Tool) domainAllowed(host string) bool {
	if len(t.cfg.AllowedDomains) == 0 {
		return true
	}
	return IsDomainAllowed(host, t.cfg.AllowedDomains)
}

func methodOf(args map[string]any) string {
	if m, ok := args["method"].(string); ok && m != "" {
		return strings.ToUpper(m)
	}
	return "GET"
}

func requireString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string, got %T", key, v)
	}
	if s == "" {
		return "", fmt.Errorf("parameter %s must not be empty", key)
	}
	return s, nil
}

var _ tools.Tool = (*Tool)(nil)
