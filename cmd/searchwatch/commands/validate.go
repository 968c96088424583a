package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mr-karan/searchwatch/internal/alerts"
	"github.com/mr-karan/searchwatch/internal/app"
	"github.com/mr-karan/searchwatch/internal/cli/render"
	"github.com/mr-karan/searchwatch/internal/config"
	"github.com/mr-karan/searchwatch/pkg/cron"
	"github.com/mr-karan/searchwatch/pkg/models"
)

// validateCommand checks the config and rules files without running anything
func (a *App) validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "check the config and rules files",
		Description: `Parse both files, verify every notification a rule references exists and
has an enabled channel, and list each rule with its next fire time.

Placeholders no variable layer provides are listed as UNRESOLVED; they are
sent literally.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format: table, json",
				Value:   "table",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, err := a.renderer(cmd.String("output"))
			if err != nil {
				return err
			}
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			if p := cmd.String("rules"); p != "" {
				cfg.Rules.Path = p
			}
			rules, err := config.LoadRules(cfg.Rules.Path)
			if err != nil {
				r.Problems(a.out, err)
				return errors.New("rules file is invalid")
			}

			rows, problems := validateRules(cfg, rules, time.Now())
			if err := r.Rules(a.out, rows); err != nil {
				return err
			}
			if problems != nil {
				r.Problems(a.out, problems)
				return errors.New("rules file is invalid")
			}
			r.OK(a.out, fmt.Sprintf("%d rules and %d notifications are valid", len(rules.Rules), rules.Notifications.Len()))
			return nil
		},
	}
}

// validateRules checks what LoadRules cannot: channel availability and
// schedule feasibility with the configured day matching.
func validateRules(cfg *config.Config, rules models.AlertConfiguration, now time.Time) ([]render.RuleRow, error) {
	var problems []error
	dispatcher, err := app.NewDispatcher(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return nil, err
	}

	rows := make([]render.RuleRow, 0, len(rules.Rules))
	for _, def := range rules.Rules {
		row := render.RuleRow{
			ID:      def.ID,
			Name:    def.Name,
			Enabled: def.Enabled,
			Cron:    def.CronExpression,
			Target:  def.Target,
		}

		sched, err := cron.ParseWithOptions(def.CronExpression, cron.Options{DayMatch: cfg.DayMatch()})
		if err != nil {
			problems = append(problems, fmt.Errorf("rule %q: %w", def.Name, err))
		} else if next, err := sched.Next(now); err != nil {
			problems = append(problems, fmt.Errorf("rule %q: %w", def.Name, err))
		} else if def.Enabled {
			row.NextRun = &next
		}

		check := func(kind models.NotificationKind, invs []models.RuleNotificationInvocation) {
			for _, inv := range invs {
				nd, ok := rules.Notifications.Get(inv.NotificationID)
				if !ok {
					continue
				}
				row.Notifications = append(row.Notifications, inv.NotificationID)
				if !dispatcher.Supports(nd.Channel()) {
					problems = append(problems, fmt.Errorf("rule %q: notification %q: %w %q", def.Name, nd.ID, alerts.ErrNoHandler, nd.Channel()))
				}
				for _, name := range alerts.UnresolvedPlaceholders(nd, inv, kind) {
					row.Unresolved = append(row.Unresolved, nd.ID+":"+name)
				}
			}
		}
		check(models.NotificationOnMatch, def.Notifications)
		check(models.NotificationOnFailure, def.FailureNotifications)
		rows = append(rows, row)
	}
	return rows, errors.Join(problems...)
}
