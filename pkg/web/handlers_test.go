package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowplane/flowplane/pkg/execution"
	"github.com/flowplane/flowplane/pkg/models"
	"github.com/flowplane/flowplane/pkg/outputs"
	"github.com/flowplane/flowplane/pkg/persistence/file"
	"github.com/flowplane/flowplane/pkg/ratelimit"
	"github.com/flowplane/flowplane/pkg/services"
	"github.com/flowplane/flowplane/pkg/testutil"
	"github.com/flowplane/flowplane/pkg/web"
)

type testAPI struct {
	app        *fiber.App
	flows      *services.Flow
	executions *services.Execution
	runner     *testutil.ScriptedRunner
	tracker    *outputs.Tracker
}

func setupTestApp(t *testing.T, createLimit int64) *testAPI {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	scripted := testutil.NewScriptedRunner()
	tracker := outputs.NewTracker(outputs.Config{})
	flowService := services.NewFlow(store)
	executionService := services.NewExecution(
		store, execution.NewRegistry(), scripted, nil, tracker, nil)

	handlers := web.NewAPIHandlers(
		flowService,
		executionService,
		tracker,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	limiter := ratelimit.NewWindowLimiter(ratelimit.Config{
		Limit:  createLimit,
		Window: time.Minute,
	})
	byteLimiter := ratelimit.NewWindowLimiter(ratelimit.Config{
		Limit:  1 << 20,
		Window: time.Minute,
	})

	app := fiber.New()

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Post("/", handlers.CreateFlow, web.ThroughputLimit(byteLimiter))
	f.Get("/:id", handlers.GetFlow)
	f.Put("/:id", handlers.UpdateFlow, web.ThroughputLimit(byteLimiter))
	f.Delete("/:id", handlers.DeleteFlow)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Post("/", handlers.StartExecution, web.RateLimit(limiter), web.ThroughputLimit(byteLimiter))
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/logs", handlers.GetExecutionLogs)
	e.Post("/:id/pause", handlers.PauseExecution)
	e.Post("/:id/resume", handlers.ResumeExecution)
	e.Post("/:id/stop", handlers.StopExecution)

	act := app.Group("/activity")
	act.Get("/", handlers.GetActivity)
	act.Get("/:id", handlers.GetActivityRecord)

	return &testAPI{
		app:        app,
		flows:      flowService,
		executions: executionService,
		runner:     scripted,
		tracker:    tracker,
	}
}

func jsonRequest(method, target string, body any) *http.Request {
	var reader io.Reader

	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out T

	require.NoError(t, json.Unmarshal(data, &out))

	return out
}

func createTestFlow(t *testing.T, api *testAPI) *models.Flow {
	t.Helper()

	resp, err := api.app.Test(jsonRequest(http.MethodPost, "/flows/", web.CreateFlowRequest{
		Name: "test flow",
		Nodes: []*models.Node{
			{ID: "a", Instruction: "do a"},
			{ID: "b", Instruction: "do b"},
		},
		Edges: []*models.Edge{{Source: "a", Target: "b"}},
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeBody[*models.Flow](t, resp)

	return created
}

func waitForExecutionStatus(t *testing.T, api *testAPI, id string, want models.ExecutionStatus) {
	t.Helper()

	require.Eventually(t, func() bool {
		resp, err := api.app.Test(jsonRequest(http.MethodGet, "/executions/"+id, nil))
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}

		state := decodeBody[*models.ExecutionState](t, resp)

		return state.Status == want
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCreateFlowEndpoint(t *testing.T) {
	api := setupTestApp(t, 100)

	created := createTestFlow(t, api)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, created.Version)
}

func TestCreateFlowValidation(t *testing.T) {
	api := setupTestApp(t, 100)

	tests := []struct {
		name string
		body any
	}{
		{"invalid json", "{{{"},
		{"missing name", web.CreateFlowRequest{Nodes: []*models.Node{{ID: "a", Instruction: "x"}}}},
		{"no nodes", web.CreateFlowRequest{Name: "empty flow"}},
		{
			"cyclic graph",
			web.CreateFlowRequest{
				Name: "cyclic",
				Nodes: []*models.Node{
					{ID: "a", Instruction: "x"},
					{ID: "b", Instruction: "y"},
				},
				Edges: []*models.Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := api.app.Test(jsonRequest(http.MethodPost, "/flows/", tt.body))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetFlowEndpoint(t *testing.T) {
	api := setupTestApp(t, 100)
	created := createTestFlow(t, api)

	resp, err := api.app.Test(jsonRequest(http.MethodGet, "/flows/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = api.app.Test(jsonRequest(http.MethodGet, "/flows/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteFlowEndpoint(t *testing.T) {
	api := setupTestApp(t, 100)
	created := createTestFlow(t, api)

	resp, err := api.app.Test(jsonRequest(http.MethodDelete, "/flows/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = api.app.Test(jsonRequest(http.MethodDelete, "/flows/"+created.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartExecutionEndpoint(t *testing.T) {
	api := setupTestApp(t, 100)
	created := createTestFlow(t, api)

	resp, err := api.app.Test(jsonRequest(http.MethodPost, "/executions/", web.StartExecutionRequest{
		FlowID: created.ID,
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ack := decodeBody[web.StartExecutionResponse](t, resp)
	assert.NotEmpty(t, ack.ExecutionID)
	assert.Equal(t, models.ExecutionStatusPending, ack.Status)

	waitForExecutionStatus(t, api, ack.ExecutionID, models.ExecutionStatusCompleted)
}

func TestStartExecutionUnknownFlow(t *testing.T) {
	api := setupTestApp(t, 100)

	resp, err := api.app.Test(jsonRequest(http.MethodPost, "/executions/", web.StartExecutionRequest{
		FlowID: "missing",
	}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartExecutionRateLimited(t *testing.T) {
	api := setupTestApp(t, 2)
	created := createTestFlow(t, api)

	body := web.StartExecutionRequest{FlowID: created.ID}

	for range 2 {
		resp, err := api.app.Test(jsonRequest(http.MethodPost, "/executions/", body))
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	resp, err := api.app.Test(jsonRequest(http.MethodPost, "/executions/", body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Reads are not limited.
	resp, err = api.app.Test(jsonRequest(http.MethodGet, "/executions/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestThroughputLimitChargesBodyBytes(t *testing.T) {
	limiter := ratelimit.NewWindowLimiter(ratelimit.Config{
		Limit:  64,
		Window: time.Minute,
	})

	app := fiber.New()
	app.Post("/ingest", func(c fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	}, web.ThroughputLimit(limiter))

	payload := bytes.Repeat([]byte("x"), 32)

	// Two 32-byte bodies exhaust the 64-byte window.
	for range 2 {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(payload)))
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader([]byte("y"))))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestExecutionLogsEndpoint(t *testing.T) {
	api := setupTestApp(t, 100)
	created := createTestFlow(t, api)

	resp, err := api.app.Test(jsonRequest(http.MethodPost, "/executions/", web.StartExecutionRequest{
		FlowID: created.ID,
	}))
	require.NoError(t, err)
	ack := decodeBody[web.StartExecutionResponse](t, resp)

	waitForExecutionStatus(t, api, ack.ExecutionID, models.ExecutionStatusCompleted)

	resp, err = api.app.Test(jsonRequest(http.MethodGet, "/executions/"+ack.ExecutionID+"/logs?limit=2", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	page := decodeBody[web.LogsResponse](t, resp)
	assert.Len(t, page.Logs, 2)
	assert.Greater(t, page.Total, 2)

	resp, err = api.app.Test(jsonRequest(http.MethodGet, "/executions/"+ack.ExecutionID+"/logs?limit=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPauseResumeStopEndpoints(t *testing.T) {
	api := setupTestApp(t, 100)
	block := make(chan struct{})

	created := createTestFlow(t, api)
	api.runner.Script("a", testutil.StepOutcome{Block: block})

	resp, err := api.app.Test(jsonRequest(http.MethodPost, "/executions/", web.StartExecutionRequest{
		FlowID: created.ID,
	}))
	require.NoError(t, err)
	ack := decodeBody[web.StartExecutionResponse](t, resp)

	require.Eventually(t, func() bool {
		return api.runner.CallCount("a") > 0
	}, 5*time.Second, 10*time.Millisecond)

	resp, err = api.app.Test(jsonRequest(http.MethodPost, "/executions/"+ack.ExecutionID+"/pause", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	close(block)
	waitForExecutionStatus(t, api, ack.ExecutionID, models.ExecutionStatusPaused)

	resp, err = api.app.Test(jsonRequest(http.MethodPost, "/executions/"+ack.ExecutionID+"/resume", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	control := decodeBody[web.ControlResponse](t, resp)
	assert.True(t, control.Success)
	require.NotNil(t, control.Execution)

	waitForExecutionStatus(t, api, ack.ExecutionID, models.ExecutionStatusCompleted)

	// Control calls on a finished execution are conflicts.
	resp, err = api.app.Test(jsonRequest(http.MethodPost, "/executions/"+ack.ExecutionID+"/stop", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = api.app.Test(jsonRequest(http.MethodPost, "/executions/"+ack.ExecutionID+"/pause", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestControlUnknownExecution(t *testing.T) {
	api := setupTestApp(t, 100)

	for _, action := range []string{"pause", "resume", "stop"} {
		resp, err := api.app.Test(jsonRequest(http.MethodPost, "/executions/missing/"+action, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, action)
	}
}

func TestActivityEndpoints(t *testing.T) {
	api := setupTestApp(t, 100)
	created := createTestFlow(t, api)
	api.runner.Script("a", testutil.StepOutcome{Output: "step output"})

	resp, err := api.app.Test(jsonRequest(http.MethodPost, "/executions/", web.StartExecutionRequest{
		FlowID: created.ID,
	}))
	require.NoError(t, err)
	ack := decodeBody[web.StartExecutionResponse](t, resp)

	waitForExecutionStatus(t, api, ack.ExecutionID, models.ExecutionStatusCompleted)

	resp, err = api.app.Test(jsonRequest(http.MethodGet, "/activity/", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	records := decodeBody[[]outputs.Record](t, resp)
	require.Len(t, records, 1)
	assert.Equal(t, ack.ExecutionID, records[0].ID)

	resp, err = api.app.Test(jsonRequest(http.MethodGet, "/activity/"+ack.ExecutionID, nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	record := decodeBody[outputs.Record](t, resp)
	require.NotEmpty(t, record.Chunks)
	assert.Equal(t, "step output", record.Chunks[0].Data)

	resp, err = api.app.Test(jsonRequest(http.MethodGet, "/activity/ghost", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
