package commands

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/mr-karan/searchwatch/pkg/cron"
)

// nextCommand prints the upcoming fire times of a cron expression
func (a *App) nextCommand() *cli.Command {
	return &cli.Command{
		Name:      "next",
		Usage:     "show when a cron expression fires next",
		ArgsUsage: "<expression>",
		Description: `Examples:
   searchwatch next '*/15 9-17 * * 1-5'
   searchwatch next '0 0 13 * 5' --day-match intersect --count 3`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "number of fire times to show",
				Value:   5,
			},
			&cli.StringFlag{
				Name:  "day-match",
				Usage: "how day-of-month and day-of-week combine: union, intersect",
				Value: "union",
			},
			&cli.StringFlag{
				Name:  "tz",
				Usage: "time zone to evaluate in (default local)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format: table, json",
				Value:   "table",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			expr := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(expr) == "" {
				return errors.New("a cron expression is required")
			}
			loc := time.Local
			if tz := cmd.String("tz"); tz != "" {
				var err error
				if loc, err = time.LoadLocation(tz); err != nil {
					return err
				}
			}
			times, err := nextRuns(expr, cmd.String("day-match"), int(cmd.Int("count")), time.Now().In(loc))
			if err != nil {
				return err
			}
			r, err := a.renderer(cmd.String("output"))
			if err != nil {
				return err
			}
			return r.NextRuns(a.out, expr, times)
		},
	}
}

func nextRuns(expr, dayMatch string, count int, now time.Time) ([]time.Time, error) {
	dm, err := cron.ParseDayMatch(dayMatch)
	if err != nil {
		return nil, err
	}
	sched, err := cron.ParseWithOptions(expr, cron.Options{DayMatch: dm})
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 1
	}
	return sched.NextN(now, count)
}
