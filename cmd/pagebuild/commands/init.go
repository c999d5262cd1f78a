package commands

import (
	"fmt"
	"io"
	"os"

	"git.home.luguber.info/inful/pagebuild/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(_ *Global, root *CLI) error {
	return RunInit(os.Stdout, config.ResolvePath(root.Config), i.Force)
}

// RunInit writes the default configuration to configPath with friendly progress on out.
func RunInit(out io.Writer, configPath string, force bool) error {
	_, _ = fmt.Fprintln(out, "Initializing pagebuild project")
	_, _ = fmt.Fprintf(out, "Writing configuration to %s\n", configPath)
	if err := config.Init(configPath, force); err != nil {
		_, _ = fmt.Fprintln(out, "Initialization failed")
		return err
	}
	_, _ = fmt.Fprintln(out, "initialized successfully")
	return nil
}
