package tools

import (
	"log/slog"
	"net/http"

	"github.com/nugget/wren/internal/config"
)

// Renderer names for the built-in tools.
const (
	RendererTime       = "time"
	RendererSampleData = "sample-data"
)

// NewDefaultRegistry registers the built-in tools, executed against the
// Wren server at baseURL. locations overrides the render location per
// tool name.
func NewDefaultRegistry(baseURL string, client *http.Client, locations map[string]string, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)

	builtins := []struct {
		name     string
		location string
		renderer string
		exec     *HTTPExecutor
	}{
		{
			name:     GetCurrentTime,
			location: config.LocationDrawer,
			renderer: RendererTime,
			exec: &HTTPExecutor{
				Path:           "/api/time",
				Query:          []string{"timezone"},
				FailureMessage: "Failed to fetch current time",
			},
		},
		{
			name:     GetSampleData,
			location: config.LocationComponentArea,
			renderer: RendererSampleData,
			exec: &HTTPExecutor{
				Path:           "/api/sample-data",
				Query:          []string{"category"},
				FailureMessage: "Failed to fetch sample data",
			},
		},
	}

	for _, b := range builtins {
		b.exec.Client = client
		b.exec.BaseURL = baseURL

		loc := b.location
		if override, ok := locations[b.name]; ok {
			loc = override
		}

		desc, _ := Lookup(b.name)
		if err := r.Register(b.name, Entry{
			Executor:       b.exec,
			RenderLocation: loc,
			Renderer:       b.renderer,
			Schema:         desc.Parameters,
		}); err != nil {
			return nil, err
		}
	}
	return r, nil
}
