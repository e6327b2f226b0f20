package prompts

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nugget/wren/internal/llm"
)

func TestLoadSystemTemplate_Builtin(t *testing.T) {
	tmpl, err := LoadSystemTemplate("default", "")
	if err != nil {
		t.Fatalf("LoadSystemTemplate: %v", err)
	}
	got, err := tmpl.Render("Wren", nil)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(got, "You are Wren,") {
		t.Errorf("rendered prompt should start with the assistant name, got %q", got[:min(40, len(got))])
	}
	if strings.Contains(got, "current context") {
		t.Error("empty context should not produce a context block")
	}
}

func TestLoadSystemTemplate_DirOverride(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "default.md"), []byte("Custom {{.AssistantName}}"), 0600)

	tmpl, err := LoadSystemTemplate("default", dir)
	if err != nil {
		t.Fatalf("LoadSystemTemplate: %v", err)
	}
	got, _ := tmpl.Render("Bot", nil)
	if got != "Custom Bot" {
		t.Errorf("Render = %q, want %q", got, "Custom Bot")
	}

	// Names missing from the directory still fall back to the built-ins.
	if _, err := LoadSystemTemplate("concise", dir); err != nil {
		t.Errorf("fallback to builtin: %v", err)
	}
}

func TestLoadSystemTemplate_Errors(t *testing.T) {
	for _, name := range []string{"nope", "", "../etc/passwd"} {
		_, err := LoadSystemTemplate(name, "")
		var loadErr *TemplateLoadError
		if !errors.As(err, &loadErr) {
			t.Errorf("LoadSystemTemplate(%q) = %v, want *TemplateLoadError", name, err)
		}
	}

	if _, err := ParseSystemTemplate("broken", "{{.AssistantName"); err == nil {
		t.Error("expected parse error")
	}
}

func TestRender_MissingVariable(t *testing.T) {
	tmpl, err := ParseSystemTemplate("strict", "Hello {{.Persona}}")
	if err != nil {
		t.Fatal(err)
	}
	_, err = tmpl.Render("Wren", nil)
	var renderErr *TemplateRenderError
	if !errors.As(err, &renderErr) {
		t.Fatalf("Render = %v, want *TemplateRenderError", err)
	}
	if renderErr.Name != "strict" {
		t.Errorf("Name = %q", renderErr.Name)
	}
}

func TestContextBlock(t *testing.T) {
	if got := ContextBlock(map[string]any{}); got != "" {
		t.Errorf("empty context = %q, want empty", got)
	}

	got := ContextBlock(map[string]any{"page": "x"})
	want := "The user's current context is:\n{\n  \"page\": \"x\"\n}\n\nUse this context to provide more relevant and personalized responses."
	if got != want {
		t.Errorf("ContextBlock =\n%s\nwant\n%s", got, want)
	}
}

func TestAssemble(t *testing.T) {
	tmpl, err := ParseSystemTemplate("t", "I am {{.AssistantName}}.{{.Context}}")
	if err != nil {
		t.Fatal(err)
	}

	history := []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "tool", Content: "getCurrentTime"},
		{Role: "assistant", Content: "hello"},
		{Role: "system", Content: "note"},
	}
	msgs, err := Assemble(tmpl, "Wren", map[string]any{"page": "x"}, history, "What time is it?")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = m.Role
	}
	wantRoles := []string{"system", "user", "assistant", "system", "user"}
	if !slices.Equal(roles, wantRoles) {
		t.Errorf("roles = %v, want %v", roles, wantRoles)
	}
	if !strings.Contains(msgs[0].Content, `"page": "x"`) {
		t.Errorf("system prompt missing context: %q", msgs[0].Content)
	}
	if last := msgs[len(msgs)-1]; last.Content != "What time is it?" {
		t.Errorf("last message = %q", last.Content)
	}
}

func TestBuiltinTemplates(t *testing.T) {
	names := BuiltinTemplates()
	if !slices.Contains(names, "default") {
		t.Errorf("BuiltinTemplates = %v, want default", names)
	}
}
