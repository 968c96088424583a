// Package commands provides the CLI command definitions for searchwatch.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/mr-karan/searchwatch/internal/cli/render"
)

// Styles for CLI output
var (
	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7C3AED")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// App holds the shared application state
type App struct {
	Version string
	Commit  string
	Date    string

	out   io.Writer
	color bool
}

// New creates the root CLI command with all subcommands
func New(version, commit, date string) *cli.Command {
	app := &App{
		Version: version,
		Commit:  commit,
		Date:    date,
		out:     os.Stdout,
		color:   isTerminal(),
	}

	return &cli.Command{
		Name:    "searchwatch",
		Usage:   "evaluate alert rules against a search backend on cron schedules",
		Version: version,
		Description: `searchwatch runs each rule's query on its cron schedule and sends
   notifications when documents match or when the query fails.

   Use 'searchwatch init' to write a starter rules file, 'searchwatch validate'
   to check it and 'searchwatch run' to start evaluating.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the service config file",
				Value:   "searchwatch.toml",
				Sources: cli.EnvVars("SEARCHWATCH_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "rules",
				Aliases: []string{"r"},
				Usage:   "path to the rules file (overrides rules.path)",
				Sources: cli.EnvVars("SEARCHWATCH_RULES"),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				log.SetLevel(log.DebugLevel)
			}
			if cmd.Bool("no-color") {
				app.color = false
				log.SetStyles(log.DefaultStyles())
				lipgloss.SetHasDarkBackground(false)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			app.runCommand(),
			app.validateCommand(),
			app.nextCommand(),
			app.initCommand(),
			app.versionCommand(),
		},
	}
}

// isTerminal returns true if stdout is a terminal
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func (a *App) renderer(format string) (*render.Renderer, error) {
	return render.New(render.Options{Format: format, Color: a.color && format != "json"})
}

// versionCommand shows version information
func (a *App) versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Fprintf(a.out, "%s version %s\n", logoStyle.Render("searchwatch"), a.Version)
			fmt.Fprintf(a.out, "  commit: %s\n", mutedStyle.Render(a.Commit))
			fmt.Fprintf(a.out, "  built:  %s\n", mutedStyle.Render(a.Date))
			return nil
		},
	}
}
