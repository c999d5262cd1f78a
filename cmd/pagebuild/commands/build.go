package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/pagebuild/internal/config"
	"git.home.luguber.info/inful/pagebuild/internal/logfields"
	"git.home.luguber.info/inful/pagebuild/internal/metrics"
	"git.home.luguber.info/inful/pagebuild/internal/pipeline"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct{}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	logger := g.logger()
	cfg := loadConfig(root, logger)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunBuild(ctx, cfg, logger)
}

// RunBuild cleans the output roots and produces the distribution root.
func RunBuild(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	p := pipeline.New(cfg, pipeline.WithLogger(logger))
	runner := pipeline.NewRunner(logger, metrics.NoopRecorder{})

	logger.Info("Starting build",
		logfields.RunID(runner.RunID()),
		logfields.Root(cfg.Build.Src.String()),
		logfields.Dest(cfg.Build.Dist.String()))
	if err := runner.Run(ctx, p.Build()); err != nil {
		return err
	}
	logger.Info("Build complete", logfields.RunID(runner.RunID()), logfields.Dest(cfg.Build.Dist.String()))
	return nil
}
