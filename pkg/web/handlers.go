// Package web provides HTTP handlers and REST API endpoints for the flow
// control plane.
package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/outputs"
	"github.com/flowplane/flowplane/pkg/persistence"
	"github.com/flowplane/flowplane/pkg/services"
)

type APIHandlers struct {
	flowService      *services.Flow
	executionService *services.Execution
	tracker          *outputs.Tracker
	validator        *validator.Validate
}

func NewAPIHandlers(
	flowService *services.Flow,
	executionService *services.Execution,
	tracker *outputs.Tracker,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		flowService:      flowService,
		executionService: executionService,
		tracker:          tracker,
		validator:        validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowplane API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Flowplane API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	flows, err := h.flowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flows)
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	stored, err := h.flowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return notFound(c, "Flow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(stored)
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.flowService.Create(c.Context(), req.toFlow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	var req UpdateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.flowService.Update(c.Context(), id, req.toFlow())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	err := h.flowService.Delete(c.Context(), id)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return notFound(c, "Flow not found")
		}

		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// StartExecution launches an execution of a flow asynchronously and returns
// 202 with the new execution's id.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	var req StartExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	state, err := h.executionService.Start(c.Context(), req.FlowID, req.Variables)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(StartExecutionResponse{
		ExecutionID: state.ID,
		Status:      state.Status,
	})
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	if flowID := c.Query("flow_id"); flowID != "" {
		states, err := h.executionService.ListByFlow(c.Context(), flowID)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(states)
	}

	states, err := h.executionService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(states)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	state, err := h.executionService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(state)
}

// GetExecutionLogs returns a filtered, paginated page of an execution's logs.
func (h *APIHandlers) GetExecutionLogs(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	filter, err := parseLogFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	entries, total, err := h.executionService.Logs(c.Context(), id, filter)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(LogsResponse{Logs: entries, Total: total})
}

func parseLogFilter(c fiber.Ctx) (models.LogFilter, error) {
	filter := models.LogFilter{
		Level:  models.LogLevel(c.Query("level")),
		NodeID: c.Query("node_id"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return filter, err
		}

		filter.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return filter, err
		}

		filter.Offset = offset
	}

	return filter, nil
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	return h.control(c, h.executionService.Pause)
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	return h.control(c, h.executionService.Resume)
}

func (h *APIHandlers) StopExecution(c fiber.Ctx) error {
	return h.control(c, h.executionService.Stop)
}

// control runs one lifecycle action and responds with the execution's state
// as persisted after the action was accepted.
func (h *APIHandlers) control(c fiber.Ctx, action func(ctx context.Context, id string) error) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	if err := action(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	state, err := h.executionService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ControlResponse{Success: true, Execution: state})
}

// GetActivity returns live output snapshots for recently active executions.
func (h *APIHandlers) GetActivity(c fiber.Ctx) error {
	return c.JSON(h.tracker.List())
}

func (h *APIHandlers) GetActivityRecord(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	record, ok := h.tracker.Get(id)
	if !ok {
		return notFound(c, "No tracked output for execution")
	}

	return c.JSON(record)
}
