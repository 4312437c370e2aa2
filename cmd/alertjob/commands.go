package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/maine/ai_news_alerts/internal/config"
	"github.com/maine/ai_news_alerts/internal/scheduler"
	"github.com/maine/ai_news_alerts/internal/sources"
	"github.com/maine/ai_news_alerts/internal/state"
)

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one fetch, filter and notify pass",
		Description: `Fetches articles from the lookback window, filters them by keyword,
		sends the newest unsent ones as one Telegram digest and records them
		as sent. This is also what runs when no command is given.`,
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	ctx := c.Context
	log.Info("Starting AI News Alerts check...")

	comps, err := buildComponents(ctx, c.String("config"), c.String("metrics-file"))
	if err != nil {
		sendFailureAlert(nil, err)
		return err
	}
	defer comps.Close()

	return runOnce(ctx, comps)
}

// runOnce выполняет пайплайн и обрабатывает прерывание и аварийное завершение.
func runOnce(ctx context.Context, comps *components) error {
	started := time.Now()
	report, err := comps.pipeline.Run(ctx)
	comps.observe(report, err, started)

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		log.Info("Interrupted by user")
		return nil
	default:
		log.WithError(err).Error("Error in main execution")
		sendFailureAlert(comps.notifier, err)
		return err
	}
}

func previewCmd() *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "Print the digest that would be sent, without sending or recording it",
		Action: func(c *cli.Context) error {
			comps, err := buildComponents(c.Context, c.String("config"), c.String("metrics-file"))
			if err != nil {
				return err
			}
			defer comps.Close()

			report, err := comps.pipeline.Preview(c.Context)
			if err != nil {
				return err
			}
			if len(report.Digest) == 0 {
				fmt.Fprintln(c.App.Writer, "Nothing new to send.")
				return nil
			}

			text, _ := comps.formatter.Digest(report.Digest, comps.cfg.Digest.MaxArticles)
			fmt.Fprintln(c.App.Writer, text)
			return nil
		},
	}
}

func statsCmd() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show how many articles are tracked as sent",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			tracker, err := state.Open(c.Context, cfg.Storage, time.Now)
			if err != nil {
				return err
			}
			defer tracker.Close()

			stats, err := tracker.Stats(c.Context)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.App.Writer, "Tracked articles: %d\n", stats.Total)
			if stats.Oldest != nil && stats.Newest != nil {
				fmt.Fprintf(c.App.Writer, "Oldest: %s\n", stats.Oldest.Format(time.RFC3339))
				fmt.Fprintf(c.App.Writer, "Newest: %s\n", stats.Newest.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func cleanupCmd() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Remove sent-article records older than the retention window",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "days",
				Usage: "Retention in days (defaults to retention_days from the config)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			days := cfg.RetentionDays
			if c.IsSet("days") {
				days = c.Int("days")
			}
			if days < 1 {
				return config.ErrInvalidRetention
			}

			tracker, err := state.Open(c.Context, cfg.Storage, time.Now)
			if err != nil {
				return err
			}
			defer tracker.Close()

			removed, err := tracker.Cleanup(c.Context, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Removed %d entries older than %d days\n", removed, days)
			return nil
		},
	}
}

func scheduleCmd() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Run the pipeline on the configured cron schedule until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "cron",
				Usage: "Override the schedule from the config, e.g. \"0 */8 * * *\"",
			},
			&cli.BoolFlag{
				Name:  "run-now",
				Usage: "Run once immediately before waiting for the schedule",
			},
		},
		Action: func(c *cli.Context) error {
			comps, err := buildComponents(c.Context, c.String("config"), c.String("metrics-file"))
			if err != nil {
				sendFailureAlert(nil, err)
				return err
			}
			defer comps.Close()

			expr := comps.cfg.Schedule
			if c.IsSet("cron") {
				expr = c.String("cron")
			}
			loc, err := comps.cfg.Location()
			if err != nil {
				return err
			}
			sched, err := scheduler.New(expr, loc)
			if err != nil {
				return err
			}

			// Ошибка одного прохода не останавливает расписание
			job := func(ctx context.Context) {
				_ = runOnce(ctx, comps)
			}
			if c.Bool("run-now") {
				job(c.Context)
			}
			return sched.Run(c.Context, job)
		},
	}
}

func discoverCmd() *cli.Command {
	return &cli.Command{
		Name:      "discover",
		Usage:     "Find RSS/Atom feeds on a website and print them as config entries",
		ArgsUsage: "<site-url>...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("at least one site url is required")
			}

			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			discoverer := sources.NewFeedDiscoverer(&http.Client{Timeout: cfg.Fetch.Timeout.Std()}, cfg.Fetch.UserAgent)

			var found []config.Feed
			for _, site := range c.Args().Slice() {
				feeds, err := discoverer.Discover(c.Context, site)
				if err != nil {
					log.WithError(err).WithField("url", site).Error("Failed to discover feeds")
					continue
				}
				log.WithFields(log.Fields{"url": site, "count": len(feeds)}).Info("Discovered feeds")
				found = append(found, feeds...)
			}

			out, err := yaml.Marshal(struct {
				Feeds []config.Feed `yaml:"feeds"`
			}{Feeds: found})
			if err != nil {
				return fmt.Errorf("marshal feeds: %w", err)
			}
			fmt.Fprint(c.App.Writer, string(out))
			return nil
		},
	}
}
