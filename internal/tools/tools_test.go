package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nugget/wren/internal/config"
)

func echoExecutor() Executor {
	return ExecutorFunc(func(_ context.Context, params map[string]any) (any, error) {
		return params, nil
	})
}

func TestRegister_Rejects(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register("a", Entry{Executor: echoExecutor()}); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	tests := []struct {
		name  string
		tool  string
		entry Entry
	}{
		{name: "duplicate", tool: "a", entry: Entry{Executor: echoExecutor()}},
		{name: "empty name", tool: "", entry: Entry{Executor: echoExecutor()}},
		{name: "nil executor", tool: "b"},
		{name: "bad location", tool: "c", entry: Entry{Executor: echoExecutor(), RenderLocation: "sidebar"}},
		{name: "bad schema", tool: "d", entry: Entry{Executor: echoExecutor(), Schema: map[string]any{"type": 42}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.tool, tt.entry); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExecute_UnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Execute(t.Context(), "launchRocket", nil)

	var unknown *UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("err = %v, want *UnknownToolError", err)
	}
	if unknown.ToolName != "launchRocket" {
		t.Errorf("ToolName = %q", unknown.ToolName)
	}
}

func TestExecute_ExecutorFailure(t *testing.T) {
	cause := errors.New("backend down")
	r := NewRegistry(nil)
	r.Register("flaky", Entry{Executor: ExecutorFunc(func(context.Context, map[string]any) (any, error) {
		return nil, cause
	})})

	_, err := r.Execute(t.Context(), "flaky", map[string]any{})

	var execErr *ToolExecutionError
	if !errors.As(err, &execErr) || execErr.ToolName != "flaky" {
		t.Fatalf("err = %v, want *ToolExecutionError for flaky", err)
	}
	if !errors.Is(err, cause) {
		t.Error("ToolExecutionError should unwrap to the executor error")
	}
}

func TestExecute_SchemaValidation(t *testing.T) {
	r := NewRegistry(nil)
	desc, _ := Lookup(GetCurrentTime)
	called := false
	r.Register(GetCurrentTime, Entry{
		Schema: desc.Parameters,
		Executor: ExecutorFunc(func(context.Context, map[string]any) (any, error) {
			called = true
			return "ok", nil
		}),
	})

	if _, err := r.Execute(t.Context(), GetCurrentTime, map[string]any{"timezone": 5.0}); err == nil {
		t.Error("expected validation error for numeric timezone")
	}
	if called {
		t.Error("executor should not run when validation fails")
	}

	got, err := r.Execute(t.Context(), GetCurrentTime, nil)
	if err != nil || got != "ok" {
		t.Errorf("Execute with no params = %v, %v", got, err)
	}
}

func TestExecute_CallIDInContext(t *testing.T) {
	r := NewRegistry(nil)
	var seen string
	r.Register("probe", Entry{Executor: ExecutorFunc(func(ctx context.Context, _ map[string]any) (any, error) {
		seen = CallIDFromContext(ctx)
		return nil, nil
	})})

	r.Execute(WithCallID(t.Context(), "call_1"), "probe", nil)
	if seen != "call_1" {
		t.Errorf("call id = %q, want call_1", seen)
	}
}

func TestLookups(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("area", Entry{Executor: echoExecutor(), RenderLocation: config.LocationComponentArea, Renderer: "card"})
	r.Register("plain", Entry{Executor: echoExecutor()})

	tests := []struct {
		tool         string
		wantLocation string
		wantRenderer string
	}{
		{"area", config.LocationComponentArea, "card"},
		{"plain", config.LocationDrawer, ""},
		{"missing", config.LocationDrawer, ""},
	}
	for _, tt := range tests {
		if got := r.RenderLocation(tt.tool); got != tt.wantLocation {
			t.Errorf("RenderLocation(%q) = %q, want %q", tt.tool, got, tt.wantLocation)
		}
		if got := r.Renderer(tt.tool); got != tt.wantRenderer {
			t.Errorf("Renderer(%q) = %q, want %q", tt.tool, got, tt.wantRenderer)
		}
	}
}

func TestDefaultRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/time":
			fmt.Fprintf(w, `{"timezone":%q}`, r.URL.Query().Get("timezone"))
		case "/api/sample-data":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r, err := NewDefaultRegistry(srv.URL, srv.Client(), map[string]string{GetCurrentTime: config.LocationComponentArea}, nil)
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}

	if got := r.RenderLocation(GetCurrentTime); got != config.LocationComponentArea {
		t.Errorf("override not applied: %q", got)
	}
	if got := r.RenderLocation(GetSampleData); got != config.LocationComponentArea {
		t.Errorf("getSampleData location = %q", got)
	}

	data, err := r.Execute(t.Context(), GetCurrentTime, map[string]any{"timezone": "Europe/Oslo"})
	if err != nil {
		t.Fatalf("getCurrentTime: %v", err)
	}
	if m, _ := data.(map[string]any); m["timezone"] != "Europe/Oslo" {
		t.Errorf("data = %v", data)
	}

	_, err = r.Execute(t.Context(), GetSampleData, nil)
	if err == nil || !errors.As(err, new(*ToolExecutionError)) {
		t.Fatalf("err = %v, want *ToolExecutionError", err)
	}
}

func TestCatalogOrder(t *testing.T) {
	cat := Catalog()
	if len(cat) != 2 || cat[0].Name != GetCurrentTime || cat[1].Name != GetSampleData {
		t.Errorf("catalog = %+v", cat)
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("Lookup of unknown name should miss")
	}
}
