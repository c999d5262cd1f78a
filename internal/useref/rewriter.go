package useref

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/pagebuild/internal/asset"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/logfields"
	"git.home.luguber.info/inful/pagebuild/internal/metrics"
	"git.home.luguber.info/inful/pagebuild/internal/minify"
)

// Minifier is the subset of minify.Minifier the rewriter needs.
type Minifier interface {
	Script([]byte) ([]byte, error)
	Style([]byte) ([]byte, error)
	HTML([]byte) ([]byte, error)
}

var _ Minifier = (*minify.Minifier)(nil)

// Rewriter packages the intermediate root into the distribution root.
type Rewriter struct {
	// Temp holds the rendered pages and compiled assets.
	Temp string
	// Dist receives rewritten pages, bundles and minified assets.
	Dist string
	// SearchRoots are tried in order when resolving a reference. Defaults to
	// Temp and the working directory.
	SearchRoots []string
	Pages       string
	Minifier    Minifier
	Recorder    metrics.Recorder
	Logger      *slog.Logger
}

// Result summarizes one Process call. Paths are relative to Dist.
type Result struct {
	Pages    []string
	Bundles  []string
	Minified []string
}

type failure struct {
	path string
	err  error
}

type state struct {
	mu       sync.Mutex
	consumed map[string]bool
	bundles  map[string]bool
	failed   []failure
	res      Result
}

func (s *state) fail(p string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, failure{path: p, err: err})
}

// Process rewrites every page matching Pages under Temp, then minifies the
// scripts and stylesheets no region consumed. Every page is attempted; the
// error lists all pages and assets that failed.
func (r *Rewriter) Process(ctx context.Context) (Result, error) {
	r.defaults()
	pages, err := asset.Enumerate(r.Temp, r.Pages, asset.ClassPages)
	if err != nil {
		return Result{}, err
	}

	st := &state{consumed: map[string]bool{}, bundles: map[string]bool{}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := r.page(st, page); err != nil {
				r.Logger.Error("Reference rewrite failed", logfields.Path(page.Path), logfields.Error(err))
				st.fail(page.Path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return st.res, err
	}

	if err := r.leftovers(ctx, st); err != nil {
		return st.res, err
	}

	sort.Strings(st.res.Pages)
	sort.Strings(st.res.Bundles)
	sort.Strings(st.res.Minified)
	r.Recorder.AddFilesProcessed("useref", len(st.res.Pages)+len(st.res.Bundles)+len(st.res.Minified))
	r.Recorder.AddFileFailures("useref", len(st.failed))
	r.Logger.Info("Packaged pages",
		slog.Int("pages", len(st.res.Pages)),
		slog.Int("bundles", len(st.res.Bundles)),
		slog.Int("minified", len(st.res.Minified)),
		slog.Int("failed", len(st.failed)))

	if len(st.failed) > 0 {
		sort.Slice(st.failed, func(i, j int) bool { return st.failed[i].path < st.failed[j].path })
		paths := make([]string, len(st.failed))
		for i, f := range st.failed {
			paths[i] = f.path
		}
		b := errors.TransformError(fmt.Sprintf("%d file(s) failed to package", len(st.failed))).
			WithContext("task", "useref").
			WithContext("paths", strings.Join(paths, ", "))
		if len(st.failed) == 1 {
			b = b.WithCause(st.failed[0].err)
		}
		return st.res, b.Build()
	}
	return st.res, nil
}

func (r *Rewriter) page(st *state, page asset.Record) error {
	blocks, err := Parse(page.Content)
	if err != nil {
		return errors.TransformError("malformed build region").
			WithContext("page", page.Path).
			WithCause(err).
			Build()
	}

	for _, b := range blocks {
		if b.Type == BlockRemove {
			continue
		}
		if err := r.bundle(st, page.Path, b); err != nil {
			return err
		}
	}

	rewritten := Replace(page.Content, blocks, Tag)
	out, err := r.Minifier.HTML(rewritten)
	if err != nil {
		return errors.WrapError(err, errors.CategoryTransform, "failed to minify page").
			WithContext("page", page.Path).
			Build()
	}
	if _, err := asset.Write(r.Dist, page.WithContent(out)); err != nil {
		return err
	}
	st.mu.Lock()
	st.res.Pages = append(st.res.Pages, page.Path)
	st.mu.Unlock()
	return nil
}

// bundle concatenates the region's references and writes the minified target.
// Pages sharing a target write it once.
func (r *Rewriter) bundle(st *state, pageRel string, b Block) error {
	target, err := resolveRel(pageRel, b.Target)
	if err != nil {
		return errors.TransformError("invalid build target").
			WithContext("page", pageRel).
			WithContext("target", b.Target).
			Build()
	}

	sep := "\n"
	if b.Type == BlockJS {
		sep = ";\n"
	}
	var buf bytes.Buffer
	var used []string
	for i, ref := range b.Refs {
		content, rel, err := r.lookup(pageRel, ref, b.SearchRoots)
		if err != nil {
			return err
		}
		if i > 0 {
			buf.WriteString(sep)
		}
		buf.Write(content)
		used = append(used, rel)
	}

	var out []byte
	switch b.Type {
	case BlockJS:
		out, err = r.Minifier.Script(buf.Bytes())
	default:
		out, err = r.Minifier.Style(buf.Bytes())
	}
	if err != nil {
		return errors.WrapError(err, errors.CategoryTransform, "failed to minify bundle").
			WithContext("page", pageRel).
			WithContext("target", b.Target).
			Build()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for _, rel := range used {
		st.consumed[rel] = true
	}
	if st.bundles[target] {
		return nil
	}
	if _, err := asset.Write(r.Dist, asset.Record{Path: target, Content: out}); err != nil {
		return err
	}
	st.bundles[target] = true
	st.res.Bundles = append(st.res.Bundles, target)
	return nil
}

// lookup resolves ref against the region's search roots, then the defaults.
// It returns the content and the reference's slash path relative to its root.
func (r *Rewriter) lookup(pageRel, ref string, alt []string) ([]byte, string, error) {
	clean := ref
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	if strings.Contains(clean, "://") || strings.HasPrefix(clean, "//") {
		return nil, "", errors.TransformError("remote references cannot be bundled").
			WithContext("page", pageRel).
			WithContext("ref", ref).
			Build()
	}
	rel, err := resolveRel(pageRel, clean)
	if err != nil {
		return nil, "", errors.TransformError("reference escapes the search roots").
			WithContext("page", pageRel).
			WithContext("ref", ref).
			Build()
	}
	roots := append(append([]string{}, alt...), r.SearchRoots...)
	for _, root := range roots {
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err == nil {
			return content, rel, nil
		}
	}
	return nil, "", errors.TransformError("referenced file not found").
		WithContext("page", pageRel).
		WithContext("ref", ref).
		WithContext("searched", strings.Join(roots, ", ")).
		Build()
}

// resolveRel turns a reference written in pageRel into a path relative to the
// roots. Root-relative references start with a slash.
func resolveRel(pageRel, ref string) (string, error) {
	var p string
	if strings.HasPrefix(ref, "/") {
		p = path.Clean(strings.TrimPrefix(ref, "/"))
	} else {
		p = path.Join(path.Dir(pageRel), ref)
	}
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("reference %q escapes its root", ref)
	}
	return p, nil
}

// leftovers minifies compiled scripts and stylesheets in Temp that no region
// consumed, so they are part of the distribution at their mirrored path.
func (r *Rewriter) leftovers(ctx context.Context, st *state) error {
	for _, leftover := range []struct {
		pattern string
		minify  func([]byte) ([]byte, error)
	}{
		{"**/*.js", r.Minifier.Script},
		{"**/*.css", r.Minifier.Style},
	} {
		if err := ctx.Err(); err != nil {
			return err
		}
		recs, err := asset.Enumerate(r.Temp, leftover.pattern, "")
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if st.consumed[rec.Path] || st.bundles[rec.Path] {
				continue
			}
			out, err := leftover.minify(rec.Content)
			if err != nil {
				r.Logger.Error("Minify failed", logfields.Path(rec.Path), logfields.Error(err))
				st.fail(rec.Path, err)
				continue
			}
			if _, err := asset.Write(r.Dist, rec.WithContent(out)); err != nil {
				st.fail(rec.Path, err)
				continue
			}
			st.res.Minified = append(st.res.Minified, rec.Path)
		}
	}
	return nil
}

func (r *Rewriter) defaults() {
	if r.Minifier == nil {
		r.Minifier = minify.New()
	}
	if r.Recorder == nil {
		r.Recorder = metrics.NoopRecorder{}
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	if r.Pages == "" {
		r.Pages = "**/*.html"
	}
	if len(r.SearchRoots) == 0 {
		r.SearchRoots = []string{r.Temp, "."}
	}
}
