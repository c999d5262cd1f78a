package commands

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/pagebuild/internal/config"
	"git.home.luguber.info/inful/pagebuild/internal/devserver"
	"git.home.luguber.info/inful/pagebuild/internal/logfields"
	"git.home.luguber.info/inful/pagebuild/internal/metrics"
	"git.home.luguber.info/inful/pagebuild/internal/pipeline"
	"git.home.luguber.info/inful/pagebuild/internal/reload"
)

// DevelopCmd implements the 'develop' command.
type DevelopCmd struct {
	Port int `short:"p" name:"port" help:"Override server.port from the configuration"`
}

func (d *DevelopCmd) Run(g *Global, root *CLI) error {
	logger := g.logger()
	cfg := loadConfig(root, logger)
	if d.Port > 0 {
		cfg.Server.Port = d.Port
	}

	// Setup signal-based context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return RunDevelop(ctx, cfg, logger)
}

// RunDevelop compiles styles, scripts and pages into the intermediate root,
// then serves until ctx is cancelled. Extra server options are applied last.
func RunDevelop(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...devserver.Option) error {
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	serverOpts := []devserver.Option{devserver.WithLogger(logger)}
	if cfg.Server.MetricsEnabled() {
		reg := prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(reg)
		serverOpts = append(serverOpts, devserver.WithMetrics(reg))
	}

	hub := reload.NewHub(recorder, logger)
	p := pipeline.New(cfg,
		pipeline.WithNotifier(hub),
		pipeline.WithRecorder(recorder),
		pipeline.WithLogger(logger))
	runner := pipeline.NewRunner(logger, recorder)

	serverOpts = append(serverOpts, devserver.WithBindings(p.WatchBindings(runner)...))
	srv := devserver.New(cfg, hub, append(serverOpts, opts...)...)

	// Bind before compiling so a busy port fails immediately.
	if err := srv.Listen(); err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	logger.Info("Starting development mode",
		logfields.RunID(runner.RunID()),
		logfields.Root(cfg.Build.Src.String()),
		logfields.Port(cfg.Server.Port))
	err := runner.Run(ctx, p.Develop(pipeline.Func("serve", srv.Serve)))
	if stdErrors.Is(err, context.Canceled) && ctx.Err() != nil {
		// Interrupted before the server came up.
		return nil
	}
	return err
}
