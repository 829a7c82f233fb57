// Package main provides the flowgrid server: HTTP trigger endpoints plus the
// timer and cron sweeps that drive suspended executions forward.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/flowgrid/flowgrid/pkg/log"
)

func main() {
	cmd := &cli.Command{
		Name:                  "flowgrid-server",
		EnableShellCompletion: true,
		Usage:                 "Run the workflow engine with its HTTP trigger surface",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Value:   9091,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Postgres connection URL (in-memory store when empty)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the key-value nodes (in-process store when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "workflows-path",
				Usage:    "Directory of workflow definition files to activate on start",
				Required: true,
				Sources:  cli.EnvVars("WORKFLOWS_PATH"),
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "How often due timers and cron triggers are swept",
				Value:   defaultSweepInterval,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("flowgrid-server")

			server, err := NewServer(ctx, logger, Config{
				Port:           int(command.Int("port")),
				DatabaseURL:    command.String("database-url"),
				RedisURL:       command.String("redis-url"),
				EventBus:       command.String("event-bus"),
				WorkflowsPath:  command.String("workflows-path"),
				SweepInterval:  command.Duration("sweep-interval"),
				TracingEnabled: command.Bool("tracing"),
			})
			if err != nil {
				return err
			}

			return server.Run(ctx)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
