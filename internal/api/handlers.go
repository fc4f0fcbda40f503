// Package api exposes the HTTP surface of the gateway: the captcha-API
// compatible createTask/getTaskResult pair, the simple GET endpoints,
// and the operational endpoints (health, status, reset, metrics).
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solvegate/solvegate/internal/dashboard"
	"github.com/solvegate/solvegate/internal/engine"
	"github.com/solvegate/solvegate/internal/httputil"
	"github.com/solvegate/solvegate/internal/middleware"
	"github.com/solvegate/solvegate/internal/store"
	"github.com/solvegate/solvegate/internal/task"
)

type API struct {
	engine  *engine.Engine
	mux     *http.ServeMux
	handler http.Handler
}

type CreateTaskPayload struct {
	ClientKey string      `json:"clientKey"`
	Task      taskPayload `json:"task"`
}

type taskPayload struct {
	Type       string         `json:"type"`
	WebsiteURL string         `json:"websiteURL"`
	WebsiteKey string         `json:"websiteKey"`
	Metadata   *task.Metadata `json:"metadata,omitempty"`
}

type GetTaskResultPayload struct {
	ClientKey string `json:"clientKey"`
	TaskID    string `json:"taskId"`
}

func NewAPI(e *engine.Engine, history dashboard.History) *API {
	api := &API{
		engine: e,
		mux:    http.NewServeMux(),
	}

	api.setupRoutes(history)
	api.handler = middleware.MetricsMiddleware(api.mux)

	return api
}

func (a *API) setupRoutes(history dashboard.History) {
	a.mux.HandleFunc("/createTask", a.handleCreateTask)
	a.mux.HandleFunc("/getTaskResult", a.handleGetTaskResult)

	a.mux.HandleFunc("/turnstile", a.handleTurnstile)
	a.mux.HandleFunc("/result", a.handleResult)

	a.mux.HandleFunc("/health", a.handleHealth)
	a.mux.HandleFunc("/status", a.handleStatus)
	a.mux.HandleFunc("/reset", a.handleReset)

	dash := dashboard.New(a.engine, history)
	a.mux.HandleFunc("/api/dashboard/stats", dash.GetStats)
	a.mux.HandleFunc("/api/dashboard/history", dash.GetHistory)

	a.mux.Handle("/metrics", promhttp.Handler())
	a.mux.HandleFunc("/", a.handleIndex)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// validAPIKeys gathers every configured key: API_KEY, the comma
// separated ADDITIONAL_API_KEYS list, and API_KEY_2 through API_KEY_10.
// Read per request so keys can rotate without a restart.
func validAPIKeys() []string {
	var keys []string

	if primary := os.Getenv("API_KEY"); primary != "" {
		keys = append(keys, primary)
	}

	for _, key := range strings.Split(os.Getenv("ADDITIONAL_API_KEYS"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}

	for i := 2; i <= 10; i++ {
		if key := os.Getenv(fmt.Sprintf("API_KEY_%d", i)); key != "" {
			keys = append(keys, key)
		}
	}

	return keys
}

func isValidAPIKey(clientKey string) bool {
	if clientKey == "" {
		return false
	}

	for _, key := range validAPIKeys() {
		if clientKey == key {
			return true
		}
	}

	return false
}

// errorEnvelope is the captcha-API error shape shared by createTask and
// getTaskResult. errorId is always 1 on failure.
func errorEnvelope(w http.ResponseWriter, description string) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":           task.StatusError,
		"errorId":          1,
		"errorDescription": description,
	})
}

func (a *API) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	var payload CreateTaskPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		errorEnvelope(w, "Invalid JSON")
		return
	}

	if !isValidAPIKey(payload.ClientKey) {
		errorEnvelope(w, "Invalid API key")
		return
	}

	if payload.Task.Type != task.TypeTurnstile {
		errorEnvelope(w, "Unsupported task type")
		return
	}

	t := task.New(payload.Task.Type, payload.Task.WebsiteURL, payload.Task.WebsiteKey)
	t.Metadata = payload.Task.Metadata

	if err := a.engine.Submit(t); err != nil {
		errorEnvelope(w, err.Error())
		return
	}

	log.Printf("Created task %s for %s", t.ID, t.WebsiteURL)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": task.StatusIdle,
		"taskId": t.ID,
	})
}

func (a *API) handleGetTaskResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	var payload GetTaskResultPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		errorEnvelope(w, "Invalid JSON")
		return
	}

	if !isValidAPIKey(payload.ClientKey) {
		errorEnvelope(w, "Invalid API key")
		return
	}

	result := a.engine.Lookup(payload.TaskID)

	if result.Status == task.StatusReady && result.Solution != nil {
		log.Printf("Returning result for %s: %s...", payload.TaskID, truncateToken(result.Solution.Token))
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// truncateToken keeps logs readable and tokens out of them.
func truncateToken(token string) string {
	if len(token) > 50 {
		return token[:50]
	}

	return token
}

func (a *API) handleTurnstile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	url := r.URL.Query().Get("url")
	sitekey := r.URL.Query().Get("sitekey")
	action := r.URL.Query().Get("action")

	if url == "" || sitekey == "" {
		httputil.WriteJSONError(w, "Missing required parameters: url, sitekey", http.StatusBadRequest)
		return
	}

	t := task.New(task.TypeTurnstile, url, sitekey)
	if action != "" {
		t.Metadata = &task.Metadata{Action: action}
	}

	if err := a.engine.Submit(t); err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("Created task %s for %s", t.ID, url)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"task_id": t.ID,
		"status":  "created",
	})
}

func (a *API) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.WriteJSONError(w, "Missing task id parameter", http.StatusBadRequest)
		return
	}

	result := a.engine.Lookup(id)

	switch {
	case result.Status == task.StatusReady && result.Solution != nil:
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "ready",
			"value":  result.Solution.Token,
		})
	case result.Status == task.StatusProcessing:
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "processing",
		})
	case result.ErrorDescription == store.NotFoundDescription:
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{
			"status": "error",
			"error":  "Task not found",
		})
	default:
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"status": "error",
			"error":  result.ErrorDescription,
		})
	}
}

type healthResponse struct {
	engine.HealthSnapshot
	APIStatus           string `json:"api_status"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	RestartThreshold    int    `json:"restart_threshold"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, healthResponse{
		HealthSnapshot:      a.engine.Health(),
		APIStatus:           "online",
		ConsecutiveFailures: a.engine.ConsecutiveFailures(),
		RestartThreshold:    a.engine.RestartThreshold(),
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	active, results := a.engine.Counts()

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":               "online",
		"workers":              a.engine.Workers(),
		"active_tasks":         active,
		"completed_results":    results,
		"consecutive_failures": a.engine.ConsecutiveFailures(),
	})
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	log.Printf("Manual reset triggered")
	a.engine.ForceReset()

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "System reset completed",
	})
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexPage, a.engine.Workers())
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
    <title>Turnstile Solver API</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; background: #f5f5f5; }
        .container { background: white; padding: 30px; border-radius: 10px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
        h1 { color: #333; }
        .endpoint { background: #f8f9fa; padding: 15px; margin: 10px 0; border-radius: 5px; }
        .method-post { color: #dc3545; font-weight: bold; }
        .method-get { color: #28a745; font-weight: bold; }
        code { background: #e9ecef; padding: 2px 6px; border-radius: 3px; font-size: 12px; }
        .status { color: #28a745; font-weight: bold; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Turnstile Solver API</h1>
        <p class="status">Status: Online | Workers: %d</p>

        <h2>Captcha API Format</h2>
        <div class="endpoint">
            <h3><span class="method-post">POST</span> /createTask</h3>
            <p>Create a captcha solving task</p>
            <code>{"clientKey": "api_key", "task": {"type": "AntiTurnstileTaskProxyLess", "websiteURL": "https://example.com", "websiteKey": "0x4AAA..."}}</code>
        </div>

        <div class="endpoint">
            <h3><span class="method-post">POST</span> /getTaskResult</h3>
            <p>Poll for a task result</p>
            <code>{"clientKey": "api_key", "taskId": "uuid"}</code>
        </div>

        <h2>Simple Format</h2>
        <div class="endpoint">
            <h3><span class="method-get">GET</span> /turnstile?url=...&amp;sitekey=...</h3>
            <p>Simple task creation</p>
            <code>/turnstile?url=https://example.com&amp;sitekey=0x4AAA...</code>
        </div>

        <div class="endpoint">
            <h3><span class="method-get">GET</span> /result?id=...</h3>
            <p>Simple result retrieval</p>
            <code>/result?id=task_uuid</code>
        </div>

        <h2>Operations</h2>
        <div class="endpoint">
            <h3><span class="method-get">GET</span> /health | /status | /metrics</h3>
            <p>Health snapshot, basic status, Prometheus metrics</p>
        </div>

        <div class="endpoint">
            <h3><span class="method-post">POST</span> /reset</h3>
            <p>Force a full pipeline reset</p>
        </div>
    </div>
</body>
</html>
`
