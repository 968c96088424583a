package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/urfave/cli/v3"

	"github.com/mr-karan/searchwatch/internal/config"
	"github.com/mr-karan/searchwatch/pkg/cron"
)

// starter holds the answers of the init form.
type starter struct {
	Name       string
	Cron       string
	Target     string
	Query      string
	Channel    string // console, slack
	WebhookURL string
}

// initCommand writes a starter rules file
func (a *App) initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "interactively write a starter rules file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "rules file to write",
				Value:   "rules.toml",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "overwrite an existing file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("path")
			if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			s := starter{Cron: "*/5 * * * *", Channel: "console", Query: `{"query":{"match":{"level":"error"}}}`}
			if err := s.form().RunWithContext(ctx); err != nil {
				return err
			}
			if err := writeStarter(path, s); err != nil {
				return err
			}

			r, _ := a.renderer("table")
			r.OK(a.out, fmt.Sprintf("wrote %s, check it with 'searchwatch validate --rules %s'", path, path))
			return nil
		},
	}
}

func (s *starter) form() *huh.Form {
	required := func(field string) func(string) error {
		return func(v string) error {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("%s is required", field)
			}
			return nil
		}
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Rule name").
				Placeholder("checkout errors").
				Validate(required("name")).
				Value(&s.Name),
			huh.NewInput().
				Title("Schedule").
				Description("Five field cron expression").
				Validate(func(v string) error {
					_, err := cron.Parse(v)
					return err
				}).
				Value(&s.Cron),
			huh.NewInput().
				Title("Target").
				Description("Index, stream filter or table the query runs against").
				Validate(required("target")).
				Value(&s.Target),
			huh.NewText().
				Title("Query").
				Description("Raw query passed to the backend").
				Validate(required("query")).
				Value(&s.Query),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notify via").
				Options(huh.NewOptions("console", "slack")...).
				Value(&s.Channel),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Slack webhook URL").
				Placeholder("https://hooks.slack.com/services/...").
				Validate(required("webhook URL")).
				Value(&s.WebhookURL),
		).WithHideFunc(func() bool { return s.Channel != "slack" }),
	)
}

// render produces the rules file for s.
func (s starter) render() string {
	var b strings.Builder
	b.WriteString("# searchwatch rules file\n\n")

	fmt.Fprintf(&b, "[[notifications]]\nid = %q\ntype = %q\n", "matches", s.Channel)
	switch s.Channel {
	case "slack":
		fmt.Fprintf(&b, "[notifications.slack]\nwebhook_url = %q\ntext = %q\n\n",
			s.WebhookURL, "{{ruleName}} matched {{matchCount}} documents in {{target}}")
	default:
		fmt.Fprintf(&b, "[notifications.console]\nlevel = \"warn\"\nmessage = %q\n\n",
			"{{ruleName}} matched {{matchCount}} documents in {{target}}")
	}

	fmt.Fprintf(&b, "[[notifications]]\nid = %q\ntype = \"console\"\n", "failures")
	fmt.Fprintf(&b, "[notifications.console]\nlevel = \"error\"\nmessage = %q\n\n",
		"{{ruleName}} failed {{failureCount}} times: {{errorType}} {{errorMessage}}")

	fmt.Fprintf(&b, "[[rules]]\nname = %q\ncron = %q\ntarget = %q\nquery = %q\n",
		strings.TrimSpace(s.Name), strings.TrimSpace(s.Cron), strings.TrimSpace(s.Target), strings.TrimSpace(s.Query))
	b.WriteString("[[rules.notifications]]\nid = \"matches\"\n")
	b.WriteString("[[rules.failure_notifications]]\nid = \"failures\"\n")
	return b.String()
}

// writeStarter writes s to path and checks the result loads.
func writeStarter(path string, s starter) error {
	if err := os.WriteFile(path, []byte(s.render()), 0o644); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	if _, err := config.LoadRules(path); err != nil {
		return errors.Join(fmt.Errorf("written rules file does not load"), err)
	}
	return nil
}
