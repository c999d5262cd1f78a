package pipeline

import (
	"context"

	"git.home.luguber.info/inful/pagebuild/internal/devserver"
	"git.home.luguber.info/inful/pagebuild/internal/reload"
)

// WatchBindings returns the develop watch bindings. Styles, scripts and pages
// re-run their transformer, which notifies browsers itself; images, fonts and
// public files only trigger a full reload.
func (p *Pipeline) WatchBindings(runner *Runner) []devserver.Binding {
	src := p.cfg.Build.Src.String()
	rerun := func(task func() Task) func(ctx context.Context, _ []string) error {
		return func(ctx context.Context, _ []string) error {
			return runner.Run(ctx, task())
		}
	}
	notify := func(ctx context.Context, changed []string) error {
		p.notifier.Notify(ctx, reload.Full(changed...))
		return nil
	}

	pages := []string{p.cfg.Build.Paths.Pages}
	if p.cfg.Build.Paths.Partials != "" {
		pages = append(pages, p.cfg.Build.Paths.Partials)
	}
	return []devserver.Binding{
		{Name: "style", Root: src, Patterns: []string{p.cfg.Build.Paths.Styles}, Action: rerun(p.Style)},
		{Name: "script", Root: src, Patterns: []string{p.cfg.Build.Paths.Scripts}, Action: rerun(p.Script)},
		{Name: "page", Root: src, Patterns: pages, Action: rerun(p.Page)},
		{Name: "static", Root: src, Patterns: []string{p.cfg.Build.Paths.Images, p.cfg.Build.Paths.Fonts}, Action: notify},
		{Name: "public", Root: p.cfg.Build.Public.String(), Patterns: []string{"**"}, Action: notify},
	}
}
