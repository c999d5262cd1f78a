package commands

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagebuild/internal/config"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/logfields"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

func (g *Global) logger() *slog.Logger {
	if g == nil || g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

// CLI definition & global flags - used by commands that need access to root config.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path, relative to --cwd (default pages.config.yaml, then pages.config.yml)"`
	Cwd     string           `name:"cwd" help:"Project directory to run in" type:"existingdir"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Build the optimized distribution root"`
	Develop DevelopCmd `cmd:"" help:"Compile once, then serve with file watching and live reload"`
	Clean   CleanCmd   `cmd:"" help:"Remove the distribution and intermediate roots"`
	Init    InitCmd    `cmd:"" help:"Write a configuration file populated with the defaults"`
}

// AfterApply runs after flag parsing; setup logging once and switch to the
// project directory so every configured root resolves against it.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if c.Cwd != "" {
		if err := os.Chdir(c.Cwd); err != nil {
			return errors.ValidationError("cannot enter project directory").
				WithContext("path", c.Cwd).
				WithCause(err).
				Build()
		}
		logger.Debug("Changed working directory", logfields.Root(c.Cwd))
	}
	return nil
}

// loadConfig reads .env files and the project configuration. A missing,
// malformed or invalid file falls back to the defaults.
func loadConfig(root *CLI, logger *slog.Logger) *config.Config {
	config.LoadEnvFiles()
	path := ""
	if root != nil {
		path = root.Config
	}
	return config.LoadOrDefault(config.ResolvePath(path), logger)
}
