// Package weather implements the weather.lookup tool over a canned
// conditions table. Lookups are deterministic so plans that depend on the
// result stay reproducible.
package weather

import (
	"context"
	"fmt"
	"strings"

	"github.com/jkaninda/busara/internal/tools"
)

type conditions struct {
	Summary string
	TempC   float64
}

var table = map[string]conditions{
	"london":   {"overcast", 14.0},
	"paris":    {"partly cloudy", 17.5},
	"nairobi":  {"sunny", 24.0},
	"tokyo":    {"light rain", 19.0},
	"new york": {"clear", 21.0},
	"sydney":   {"windy", 16.5},
}

// Tool answers weather lookups from the builtin table.
type Tool struct{}

// NewTool creates a weather lookup tool.
func NewTool() *Tool { return &Tool{} }

func (t *Tool) Name() string { return "weather.lookup" }

func (t *Tool) Description() string {
	return "Look up current weather conditions for a city. Returns a summary and temperature in Celsius."
}

func (t *Tool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string", "description": "City name, e.g. Paris"},
		},
		"required": []string{"city"},
	}
}

func (t *Tool) Validate(args map[string]any) error {
	v, ok := args["city"]
	if !ok {
		return fmt.Errorf("missing required parameter: city")
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("parameter city must be a string, got %T", v)
	}
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("parameter city must not be empty")
	}
	return nil
}

// Execute looks the city up. Unknown cities are a soft failure, not an error;
// retrying the same lookup cannot succeed.
func (t *Tool) Execute(_ context.Context, args map[string]any) (any, error) {
	city, _ := args["city"].(string)
	c, ok := table[strings.ToLower(strings.TrimSpace(city))]
	if !ok {
		return map[string]any{
			"ok":        false,
			"reason":    fmt.Sprintf("no weather data for %q", city),
			"retryable": false,
		}, nil
	}
	return map[string]any{
		"ok":      true,
		"city":    city,
		"summary": c.Summary,
		"temp_c":  c.TempC,
	}, nil
}

var _ tools.Tool = (*Tool)(nil)
