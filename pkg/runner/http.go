package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Minute

// HTTPRunner dispatches steps to an external runner process over HTTP. The
// runner receives the resolved instruction as JSON and answers with either an
// output or an error message. Steps can run for a long time, so the client
// timeout is generous; real cancellation comes from the request context.
type HTTPRunner struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

type httpStepPayload struct {
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	Instruction string         `json:"instruction"`
	Variables   map[string]any `json:"variables,omitempty"`
	Backend     string         `json:"backend,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	Resume      string         `json:"resume_strategy,omitempty"`
}

type httpStepReply struct {
	Output any    `json:"output"`
	Error  string `json:"error,omitempty"`
}

// NewHTTPRunner creates a runner posting steps to the given endpoint.
func NewHTTPRunner(endpoint string, logger *slog.Logger) *HTTPRunner {
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPRunner{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   logger.With("module", "http_runner"),
	}
}

func (r *HTTPRunner) Run(ctx context.Context, req StepRequest) (*StepResult, error) {
	payload := httpStepPayload{
		ExecutionID: req.ExecutionID,
		NodeID:      req.NodeID,
		Instruction: req.Instruction,
		Variables:   req.Variables,
	}

	if req.Hints != nil {
		payload.Backend = req.Hints.Backend
		payload.SessionID = req.Hints.SessionID
		payload.Resume = req.Hints.ResumeStrategy
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode step request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build step request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	r.logger.DebugContext(ctx, "Dispatching step",
		"execution_id", req.ExecutionID,
		"node_id", req.NodeID,
	)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("step runner request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	replyBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read step runner response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("step runner returned status %d: %s", resp.StatusCode, string(replyBody))
	}

	var reply httpStepReply
	if err := json.Unmarshal(replyBody, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode step runner response: %w", err)
	}

	if reply.Error != "" {
		return nil, fmt.Errorf("step failed: %s", reply.Error)
	}

	return &StepResult{Output: reply.Output}, nil
}
