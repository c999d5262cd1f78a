// Package pipeline composes the asset transformers, the reference rewriter and
// the static passthrough into the build and develop task trees.
//
//	build   = series(clean, parallel(series(compile, useref), images, fonts, extra))
//	develop = series(compile, serve)
//	compile = parallel(style, script, page)
package pipeline

import (
	"context"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/pagebuild/internal/asset"
	"git.home.luguber.info/inful/pagebuild/internal/config"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/logfields"
	"git.home.luguber.info/inful/pagebuild/internal/metrics"
	"git.home.luguber.info/inful/pagebuild/internal/minify"
	"git.home.luguber.info/inful/pagebuild/internal/reload"
	"git.home.luguber.info/inful/pagebuild/internal/transform"
	"git.home.luguber.info/inful/pagebuild/internal/useref"
)

// Pipeline builds tasks from one configuration. It is safe to reuse across runs.
type Pipeline struct {
	cfg      *config.Config
	engines  transform.Set
	minifier *minify.Minifier
	notifier reload.Notifier
	recorder metrics.Recorder
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEngines replaces the default engines. Nil entries keep the default.
func WithEngines(set transform.Set) Option {
	return func(p *Pipeline) {
		if set.Style != nil {
			p.engines.Style = set.Style
		}
		if set.Script != nil {
			p.engines.Script = set.Script
		}
		if set.Page != nil {
			p.engines.Page = set.Page
		}
		if set.Image != nil {
			p.engines.Image = set.Image
		}
		if set.Font != nil {
			p.engines.Font = set.Font
		}
	}
}

// WithNotifier sets the reload notifier used after style, script and page runs.
func WithNotifier(n reload.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New creates a pipeline with the default engines.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	m := minify.New()
	p := &Pipeline{
		cfg:      cfg,
		minifier: m,
		notifier: reload.Noop{},
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		engines: transform.Set{
			Style:  transform.StyleEngine(),
			Script: transform.ScriptEngine(),
			Page:   transform.NewPageEngine(cfg.Build.Src.String(), cfg.Build.Paths.Partials, cfg.Data),
			Image:  transform.ImageEngine(m),
			Font:   transform.FontEngine(m),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Build is the production pipeline.
func (p *Pipeline) Build() Task {
	return Series("build",
		p.Clean(),
		Parallel("package",
			Series("assets", p.Compile(), p.Useref()),
			p.Images(),
			p.Fonts(),
			p.Extra(),
		),
	)
}

// Develop compiles once, then runs serve until the context is cancelled.
func (p *Pipeline) Develop(serve Task) Task {
	return Series("develop", p.Compile(), serve)
}

// Compile runs the style, script and page transformers in parallel.
func (p *Pipeline) Compile() Task {
	return Parallel("compile", p.Style(), p.Script(), p.Page())
}

// Clean removes the distribution and intermediate roots. Missing roots are fine.
func (p *Pipeline) Clean() Task {
	return Func("clean", func(context.Context) error {
		for _, root := range []config.Root{p.cfg.Build.Dist, p.cfg.Build.Temp} {
			if err := os.RemoveAll(root.String()); err != nil {
				return errors.CleanError("failed to remove output root").
					WithContext("path", root.String()).
					WithCause(err).
					Build()
			}
			p.logger.Debug("Removed output root", logfields.Path(root.String()))
		}
		return nil
	})
}

// Style compiles stylesheets into the intermediate root.
func (p *Pipeline) Style() Task { return p.transformTask(p.StyleJob()) }

// Script transpiles scripts into the intermediate root.
func (p *Pipeline) Script() Task { return p.transformTask(p.ScriptJob()) }

// Page renders pages into the intermediate root.
func (p *Pipeline) Page() Task { return p.transformTask(p.PageJob()) }

// Images optimizes images into the distribution root.
func (p *Pipeline) Images() Task { return p.transformTask(p.ImageJob()) }

// Fonts optimizes fonts into the distribution root.
func (p *Pipeline) Fonts() Task { return p.transformTask(p.FontJob()) }

func (p *Pipeline) transformTask(job transform.Job) Task {
	return Func(job.Name, func(ctx context.Context) error {
		_, err := transform.Run(ctx, job)
		return err
	})
}

func (p *Pipeline) job(name string, class asset.Class, pattern, out string, eng transform.Engine) transform.Job {
	return transform.Job{
		Name:     name,
		Class:    class,
		Root:     p.cfg.Build.Src.String(),
		Pattern:  pattern,
		Out:      out,
		Engine:   eng,
		Notifier: p.notifier,
		Recorder: p.recorder,
		Logger:   p.logger,
	}
}

// StyleJob describes the style transformer.
func (p *Pipeline) StyleJob() transform.Job {
	j := p.job("style", asset.ClassStyles, p.cfg.Build.Paths.Styles, p.cfg.Build.Temp.String(), p.engines.Style)
	j.Event = func(paths []string) reload.Event { return reload.CSS(paths...) }
	return j
}

// ScriptJob describes the script transformer.
func (p *Pipeline) ScriptJob() transform.Job {
	j := p.job("script", asset.ClassScripts, p.cfg.Build.Paths.Scripts, p.cfg.Build.Temp.String(), p.engines.Script)
	j.Event = func(paths []string) reload.Event { return reload.Full(paths...) }
	return j
}

// PageJob describes the page transformer. Partials are not rendered as pages.
func (p *Pipeline) PageJob() transform.Job {
	j := p.job("page", asset.ClassPages, p.cfg.Build.Paths.Pages, p.cfg.Build.Temp.String(), p.engines.Page)
	j.Exclude = p.cfg.Build.Paths.Partials
	j.Event = func(paths []string) reload.Event { return reload.Full(paths...) }
	return j
}

// ImageJob describes the image optimizer.
func (p *Pipeline) ImageJob() transform.Job {
	return p.job("image", asset.ClassImages, p.cfg.Build.Paths.Images, p.cfg.Build.Dist.String(), p.engines.Image)
}

// FontJob describes the font optimizer.
func (p *Pipeline) FontJob() transform.Job {
	return p.job("font", asset.ClassFonts, p.cfg.Build.Paths.Fonts, p.cfg.Build.Dist.String(), p.engines.Font)
}

// Useref rewrites build-reference regions and minifies pages, scripts and
// styles from the intermediate root into the distribution root.
func (p *Pipeline) Useref() Task {
	return Func("useref", func(ctx context.Context) error {
		rw := &useref.Rewriter{
			Temp:        p.cfg.Build.Temp.String(),
			Dist:        p.cfg.Build.Dist.String(),
			SearchRoots: []string{p.cfg.Build.Temp.String(), "."},
			Pages:       p.cfg.Build.Paths.Pages,
			Minifier:    p.minifier,
			Recorder:    p.recorder,
			Logger:      p.logger.With(logfields.Task("useref")),
		}
		_, err := rw.Process(ctx)
		return err
	})
}
