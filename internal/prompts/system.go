package prompts

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.md
var builtin embed.FS

// TemplateLoadError is returned when a named template cannot be found
// or parsed. It is fatal at startup.
type TemplateLoadError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *TemplateLoadError) Error() string {
	return fmt.Sprintf("load prompt template %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *TemplateLoadError) Unwrap() error { return e.Err }

// TemplateRenderError is returned when a template references a
// substitution variable that is not supplied.
type TemplateRenderError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("render prompt template %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *TemplateRenderError) Unwrap() error { return e.Err }

// SystemTemplate is a parsed system prompt template.
type SystemTemplate struct {
	name string
	tmpl *template.Template
}

// Name returns the template name it was loaded under.
func (s *SystemTemplate) Name() string { return s.name }

// LoadSystemTemplate finds the template called name, first as
// <dir>/<name>.md when dir is non-empty, then in the built-in set.
func LoadSystemTemplate(name, dir string) (*SystemTemplate, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, &TemplateLoadError{Name: name, Err: errors.New("invalid template name")}
	}
	file := name + ".md"

	var data []byte
	var err error
	if dir != "" {
		data, err = os.ReadFile(filepath.Join(dir, file))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, &TemplateLoadError{Name: name, Err: err}
		}
	}
	if data == nil {
		data, err = builtin.ReadFile("templates/" + file)
		if err != nil {
			return nil, &TemplateLoadError{Name: name, Err: fmt.Errorf("prompt file not found: %s", file)}
		}
	}

	return ParseSystemTemplate(name, string(data))
}

// ParseSystemTemplate parses text as a system template. Unknown
// variables are rejected at render time.
func ParseSystemTemplate(name, text string) (*SystemTemplate, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &TemplateLoadError{Name: name, Err: err}
	}
	return &SystemTemplate{name: name, tmpl: tmpl}, nil
}

// BuiltinTemplates lists the names of the embedded templates.
func BuiltinTemplates() []string {
	entries, err := builtin.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	return names
}

// ContextBlock renders the context instruction embedded in the system
// prompt. It is empty when ctx has no keys.
func ContextBlock(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	pretty, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		// Non-JSON values cannot reach the model anyway.
		return ""
	}
	return "The user's current context is:\n" + string(pretty) +
		"\n\nUse this context to provide more relevant and personalized responses."
}

// Render executes the template with the assistant name and the context
// block for ctx.
func (s *SystemTemplate) Render(assistantName string, ctx map[string]any) (string, error) {
	vars := map[string]any{
		"AssistantName": assistantName,
		"Context":       ContextBlock(ctx),
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, vars); err != nil {
		return "", &TemplateRenderError{Name: s.name, Err: err}
	}
	return strings.TrimSpace(buf.String()), nil
}
