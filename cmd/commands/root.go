// Package commands wires the curator CLI.
package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/curator-ai/curator/internal/config"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "curator",
		Usage: "An AI assistant for your markdown vault",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewAskCommand(),
			NewConversationsCommand(),
			NewStatusCommand(),
		},
	}
}
