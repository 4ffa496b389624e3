// Package main provides the Flowplane API server implementation.
package main

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowplane/flowplane/pkg/eventbus"
	"github.com/flowplane/flowplane/pkg/execution"
	"github.com/flowplane/flowplane/pkg/outputs"
	"github.com/flowplane/flowplane/pkg/persistence"
	"github.com/flowplane/flowplane/pkg/ratelimit"
	"github.com/flowplane/flowplane/pkg/runner"
	"github.com/flowplane/flowplane/pkg/services"
	"github.com/flowplane/flowplane/pkg/web"
)

const (
	executionsPerMinute = 30
	bytesPerMinute      = 1 << 20
	rateWindow          = time.Minute
)

type API struct {
	logger        *slog.Logger
	persistence   persistence.Persistence
	eventBus      eventbus.EventBus
	stepRunner    runner.StepRunner
	tracker       *outputs.Tracker
	createLimiter ratelimit.Limiter
	byteLimiter   ratelimit.Limiter
	validate      *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	stepRunner runner.StepRunner,
	tracker *outputs.Tracker,
	createLimiter ratelimit.Limiter,
) *API {
	if createLimiter == nil {
		createLimiter = ratelimit.NewWindowLimiter(ratelimit.Config{
			Limit:  executionsPerMinute,
			Window: rateWindow,
		})
	}

	return &API{
		logger:        logger,
		persistence:   persistence,
		eventBus:      eventBus,
		stepRunner:    stepRunner,
		tracker:       tracker,
		createLimiter: createLimiter,
		byteLimiter: ratelimit.NewWindowLimiter(ratelimit.Config{
			Limit:  bytesPerMinute,
			Window: rateWindow,
		}),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Services builds the service layer shared by the HTTP surface and the
// scheduler.
func (a *API) Services() (*services.Flow, *services.Execution) {
	flowService := services.NewFlow(a.persistence)
	executionService := services.NewExecution(
		a.persistence,
		execution.NewRegistry(),
		a.stepRunner,
		a.eventBus,
		a.tracker,
		a.logger,
	)

	return flowService, executionService
}

func (a *API) App(flowService *services.Flow, executionService *services.Execution) *fiber.App {
	handlers := web.NewAPIHandlers(flowService, executionService, a.tracker, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowplane API")
	})

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Post("/", handlers.CreateFlow, web.ThroughputLimit(a.byteLimiter))
	f.Get("/:id", handlers.GetFlow)
	f.Put("/:id", handlers.UpdateFlow, web.ThroughputLimit(a.byteLimiter))
	f.Delete("/:id", handlers.DeleteFlow)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Post("/", handlers.StartExecution, web.RateLimit(a.createLimiter), web.ThroughputLimit(a.byteLimiter))
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/logs", handlers.GetExecutionLogs)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/stop", handlers.StopExecution)

	act := app.Group("/activity")
	act.Get("/", handlers.GetActivity)
	act.Get("/:id", handlers.GetActivityRecord)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int, flowService *services.Flow, executionService *services.Execution) error {
	app := a.App(flowService, executionService)

	return app.Listen(":" + strconv.Itoa(port))
}
