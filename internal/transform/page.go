package transform

import (
	"bytes"
	"context"
	"html/template"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"

	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/pagebuild/internal/asset"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
)

// PageEngine renders HTML templates with the project data payload. Partials
// matching the partials glob are loaded once per run and can be included by
// their path relative to the source root:
//
//	{{ template "partials/header.html" . }}
type PageEngine struct {
	root     string
	partials string
	data     map[string]any
	md       goldmark.Markdown

	mu     sync.RWMutex
	loaded []asset.Record
}

// NewPageEngine creates a page engine for templates under root.
func NewPageEngine(root, partials string, data map[string]any) *PageEngine {
	if data == nil {
		data = map[string]any{}
	}
	return &PageEngine{root: root, partials: partials, data: data, md: goldmark.New()}
}

// Prepare reloads the partials so edits are picked up between runs.
func (p *PageEngine) Prepare(context.Context) error {
	if p.partials == "" {
		return nil
	}
	recs, err := asset.Enumerate(p.root, p.partials, asset.ClassPages)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.loaded = recs
	p.mu.Unlock()
	return nil
}

// markerPattern matches build-reference comments. html/template strips
// comments from template text, so markers are lifted out before parsing and
// emitted back as trusted HTML.
var markerPattern = regexp.MustCompile(`<!--\s*(?:build:[^>]*?|endbuild\s*)-->`)

type markers []string

func (m *markers) lift(src string) string {
	return markerPattern.ReplaceAllStringFunc(src, func(c string) string {
		*m = append(*m, c)
		return "{{ buildMarker " + strconv.Itoa(len(*m)-1) + " }}"
	})
}

// Transform renders one page.
func (p *PageEngine) Transform(_ context.Context, rec asset.Record) (asset.Record, error) {
	var lifted markers
	tmpl := template.New(rec.Path).Funcs(p.funcs()).Funcs(template.FuncMap{
		"buildMarker": func(i int) template.HTML {
			return template.HTML(lifted[i]) //nolint:gosec // comment copied from the template source
		},
	})

	p.mu.RLock()
	partials := p.loaded
	p.mu.RUnlock()
	for _, partial := range partials {
		if partial.Path == rec.Path {
			continue
		}
		if _, err := tmpl.New(partial.Path).Parse(lifted.lift(string(partial.Content))); err != nil {
			return asset.Record{}, errors.TransformError("failed to parse partial").
				WithContext("path", partial.Path).
				WithCause(err).
				Build()
		}
	}
	if _, err := tmpl.Parse(lifted.lift(string(rec.Content))); err != nil {
		return asset.Record{}, errors.TransformError("failed to parse page").
			WithContext("path", rec.Path).
			WithCause(err).
			Build()
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, rec.Path, p.data); err != nil {
		return asset.Record{}, errors.TransformError("failed to render page").
			WithContext("path", rec.Path).
			WithCause(err).
			Build()
	}
	return rec.WithContent(buf.Bytes()), nil
}

func (p *PageEngine) funcs() template.FuncMap {
	return template.FuncMap{
		"markdown": func(src string) (template.HTML, error) {
			var buf bytes.Buffer
			if err := p.md.Convert([]byte(src), &buf); err != nil {
				return "", err
			}
			return template.HTML(buf.String()), nil //nolint:gosec // markdown is project-authored content
		},
		"include": func(rel string) (template.HTML, error) {
			data, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(rel)))
			if err != nil {
				return "", err
			}
			return template.HTML(data), nil //nolint:gosec // project-authored content
		},
	}
}
