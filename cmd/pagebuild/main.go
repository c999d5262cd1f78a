package main

import (
	"log/slog"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/pagebuild/cmd/pagebuild/commands"
	"git.home.luguber.info/inful/pagebuild/internal/foundation/errors"
	"git.home.luguber.info/inful/pagebuild/internal/version"
)

func main() {
	var cli commands.CLI
	kctx := kong.Parse(&cli,
		kong.Name("pagebuild"),
		kong.Description("Static asset build pipeline with a live-reloading development server."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	// AfterApply has installed the configured default logger by now.
	if err := kctx.Run(&commands.Global{Logger: slog.Default()}, &cli); err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
