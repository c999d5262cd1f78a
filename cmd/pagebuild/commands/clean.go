package commands

import (
	"context"

	"git.home.luguber.info/inful/pagebuild/internal/metrics"
	"git.home.luguber.info/inful/pagebuild/internal/pipeline"
)

// CleanCmd implements the 'clean' command.
type CleanCmd struct{}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	logger := g.logger()
	cfg := loadConfig(root, logger)
	p := pipeline.New(cfg, pipeline.WithLogger(logger))
	return pipeline.NewRunner(logger, metrics.NoopRecorder{}).Run(context.Background(), p.Clean())
}
