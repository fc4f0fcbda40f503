// Package solver defines the boundary to the captcha-solving backend.
// The engine only sees the Solver interface; the concrete backend is a
// browser-automation service reached over HTTP.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/solvegate/solvegate/internal/task"
)

// Solver produces a token for a task, or fails. There is no contractual
// time bound; the engine imposes its own timeout through ctx.
type Solver interface {
	Solve(ctx context.Context, t *task.Task) (string, error)
}

// Func adapts a plain function to the Solver interface.
type Func func(ctx context.Context, t *task.Task) (string, error)

func (f Func) Solve(ctx context.Context, t *task.Task) (string, error) {
	return f(ctx, t)
}

// Remote forwards solve requests to an upstream browser-automation
// service.
type Remote struct {
	baseURL string
	client  *http.Client
}

type remoteResponse struct {
	Token string `json:"token"`
	Error string `json:"error,omitempty"`
}

func NewRemote(baseURL string) *Remote {
	return &Remote{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

func (r *Remote) Solve(ctx context.Context, t *task.Task) (string, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("failed to marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/solve", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build solve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("solver request failed: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read solver response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("solver returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed remoteResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("invalid solver response: %w", err)
	}

	if parsed.Error != "" {
		return "", fmt.Errorf("solver error: %s", parsed.Error)
	}

	return parsed.Token, nil
}
