package engine

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/signalnine/spatialbench/internal/dataset"
)

type templateData struct {
	Query       string
	QueryID     string
	DataDir     string
	ScaleFactor float64
	Tables      map[string]string
}

// renderer expands argv, env and setup templates. pattern turns a table
// path into a glob over its parquet parts.
type renderer struct {
	pattern func(path string) string
}

var hostRenderer = renderer{pattern: dataset.Pattern}

func (r renderer) funcs(req Request) template.FuncMap {
	table := func(name string) (string, error) {
		p, ok := req.Tables[name]
		if !ok {
			return "", fmt.Errorf("table %q not found in data dir", name)
		}
		return p, nil
	}
	return template.FuncMap{
		"table": table,
		"parquet": func(name string) (string, error) {
			p, err := table(name)
			if err != nil {
				return "", err
			}
			return r.pattern(p), nil
		},
		"sqlquote": func(s string) string {
			return "'" + strings.ReplaceAll(s, "'", "''") + "'"
		},
	}
}

func (r renderer) render(text string, req Request) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("arg").Option("missingkey=error").Funcs(r.funcs(req)).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing template %q: %w", text, err)
	}
	var sb strings.Builder
	err = tmpl.Execute(&sb, templateData{
		Query:       req.Text,
		QueryID:     req.QueryID,
		DataDir:     req.DataDir,
		ScaleFactor: req.ScaleFactor,
		Tables:      req.Tables,
	})
	if err != nil {
		return "", fmt.Errorf("rendering template %q: %w", text, err)
	}
	return sb.String(), nil
}

func (r renderer) renderAll(args []string, req Request) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		s, err := r.render(a, req)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (r renderer) renderEnv(env map[string]string, req Request) (map[string]string, error) {
	out := make(map[string]string, len(env))
	for k, v := range env {
		s, err := r.render(v, req)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
		out[k] = s
	}
	return out, nil
}
