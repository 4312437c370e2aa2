package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootApp().RunContext(ctx, os.Args); err != nil {
		log.WithError(err).Error("AI news alerts failed")
		stop()
		os.Exit(1)
	}
}

func rootApp() *cli.App {
	return &cli.App{
		Name:  "alertjob",
		Usage: "Keyword-filtered AI news digests delivered to Telegram",
		Description: `Fetches recent articles from RSS feeds and NewsAPI, keeps the ones
		mentioning the configured keywords, drops what was already sent and
		delivers the newest ones as a single Telegram digest.

		Secrets are read from the environment:

		TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID, NEWSAPI_KEY, GEMINI_API_KEY
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/alerts.yaml",
				Usage:   "Path to the YAML or TOML configuration file",
				EnvVars: []string{"ALERTS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "metrics-file",
				Usage:   "Write Prometheus metrics after each run to this file (node_exporter textfile collector)",
				EnvVars: []string{"ALERTS_METRICS_FILE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "Log format (text or json)",
				EnvVars: []string{"LOG_FORMAT"},
			},
		},
		Before: func(ctx *cli.Context) error {
			return setupLogging(ctx.String("log-level"), ctx.String("log-format"))
		},
		Commands: []*cli.Command{
			runCmd(),
			previewCmd(),
			statsCmd(),
			cleanupCmd(),
			scheduleCmd(),
			discoverCmd(),
		},
		// Без команды выполняем один проход, как при запуске из cron
		Action: runAction,
	}
}

func setupLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stdout)

	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
