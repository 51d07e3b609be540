package observability

import (
	"context"
	"time"

	"github.com/jkaninda/busara/internal/llm"
)

// instrumentedClient wraps a text backend with request metrics.
type instrumentedClient struct {
	inner   llm.Client
	metrics *MetricsCollector
}

// NewInstrumentedClient wraps a backend so every Complete call is counted and
// timed. A nil collector returns the backend unwrapped.
func NewInstrumentedClient(inner llm.Client, m *MetricsCollector) llm.Client {
	if m == nil {
		return inner
	}
	return &instrumentedClient{inner: inner, metrics: m}
}

func (c *instrumentedClient) Name() string { return c.inner.Name() }

func (c *instrumentedClient) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := c.inner.Complete(ctx, prompt)

	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.LLMRequestsTotal.WithLabelValues(c.inner.Name(), status).Inc()
	c.metrics.LLMRequestDuration.WithLabelValues(c.inner.Name()).Observe(time.Since(start).Seconds())

	return out, err
}

// Compile-time check.
var _ llm.Client = (*instrumentedClient)(nil)
