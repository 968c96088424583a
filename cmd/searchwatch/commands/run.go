package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/mr-karan/searchwatch/internal/app"
	"github.com/mr-karan/searchwatch/pkg/logger"
)

// runCommand starts the alert service
func (a *App) runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "evaluate rules until interrupted",
		Description: `Load the config and rules files, start one evaluation loop per enabled
rule and serve the admin API. The rules file is reloaded when it changes
unless rules.watch is false.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts := app.Options{
				ConfigPath: cmd.String("config"),
				RulesPath:  cmd.String("rules"),
				Version:    a.Version,
			}
			if cmd.Bool("debug") {
				opts.Logger = logger.New(true)
			}
			svc, err := app.New(opts)
			if err != nil {
				return err
			}
			if err := svc.Initialize(ctx); err != nil {
				return err
			}
			return svc.Run(ctx)
		},
	}
}
