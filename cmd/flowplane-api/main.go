package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v3"

	"github.com/flowplane/flowplane/pkg/cmd"
	"github.com/flowplane/flowplane/pkg/flow"
	"github.com/flowplane/flowplane/pkg/log"
	"github.com/flowplane/flowplane/pkg/otelhelper"
	"github.com/flowplane/flowplane/pkg/outputs"
	"github.com/flowplane/flowplane/pkg/ratelimit"
	"github.com/flowplane/flowplane/pkg/runner"
	"github.com/flowplane/flowplane/pkg/scheduler"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "flowplane-api",
		Usage:                 "Create and run automation flows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "runner-url",
				Usage:    "HTTP endpoint of the default step runner",
				Required: true,
				Sources:  cli.EnvVars("RUNNER_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for a shared rate limit window (optional)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OTLP traces for step dispatches",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			importCommand(logger),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Flowplane API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			stepRunner := runner.StepRunner(runner.NewHTTPRunner(command.String("runner-url"), logger))

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "flowplane-api")
				if err != nil {
					return fmt.Errorf("failed to initialize tracing: %w", err)
				}

				stepRunner = runner.NewTracedRunner(tracer, stepRunner)
			}

			registry := runner.NewRegistry("default")
			registry.Register("default", stepRunner)

			tracker := outputs.NewTracker(outputs.Config{})
			tracker.StartSweeper(ctx, outputs.DefaultRetention)

			createLimiter, err := newCreateLimiter(command.String("redis-url"))
			if err != nil {
				return err
			}

			api := NewAPI(logger, persistence, eventBus, registry, tracker, createLimiter)
			flowService, executionService := api.Services()

			sched := scheduler.NewScheduler(flowService, executionService, logger)
			if err := sched.Start(ctx); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}

			defer func() {
				if err := sched.Stop(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
				}
			}()

			if err := api.Start(command.Int("port"), flowService, executionService); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// newCreateLimiter picks the execution-creation rate limiter. With a Redis URL
// the window is shared across API processes; otherwise it is in-memory.
func newCreateLimiter(redisURL string) (ratelimit.Limiter, error) {
	if redisURL == "" {
		return nil, nil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return ratelimit.NewRedisLimiter(redis.NewClient(options), "flowplane:executions", ratelimit.Config{
		Limit:  executionsPerMinute,
		Window: rateWindow,
	}), nil
}

// importCommand loads a YAML or JSON flow definition file and stores it.
func importCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import a flow definition from a YAML or JSON file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
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

			path := command.Args().First()
			if path == "" {
				return fmt.Errorf("a flow definition file is required")
			}

			definition, err := flow.LoadFile(path)
			if err != nil {
				return fmt.Errorf("failed to load flow definition: %w", err)
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			if err := persistence.Flows().Save(ctx, definition); err != nil {
				return fmt.Errorf("failed to save flow: %w", err)
			}

			logger.InfoContext(ctx, "Imported flow",
				"flow_id", definition.ID,
				"name", definition.Name,
				"nodes", len(definition.Nodes),
			)

			return nil
		},
	}
}
