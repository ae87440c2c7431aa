package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// HealthResponse — сводное состояние координатора из API.
type HealthResponse struct {
	Status  string          `json:"status"`
	Score   int             `json:"score"`
	Issues  []string        `json:"issues"`
	Breaker BreakerResponse `json:"circuit_breaker"`
	Queue   QueueResponse   `json:"queue"`
	Lock    LockResponse    `json:"lock"`
	Stats   StatsResponse   `json:"stats"`
}

// BreakerResponse — состояние circuit breaker'а из API.
type BreakerResponse struct {
	State                string `json:"state"`
	ConsecutiveFailures  int    `json:"consecutive_failures"`
	ConsecutiveSuccesses int    `json:"consecutive_successes"`
	OpenedAt             string `json:"opened_at,omitempty"`
	TotalCalls           int64  `json:"total_calls"`
	TotalFailures        int64  `json:"total_failures"`
	TotalShortCircuits   int64  `json:"total_short_circuits"`
}

// QueueResponse — счётчики очереди из API.
type QueueResponse struct {
	Queued         int   `json:"queued"`
	Active         int   `json:"active"`
	TotalSucceeded int64 `json:"total_succeeded"`
	TotalFailed    int64 `json:"total_failed"`
}

// LockResponse — состояние блокировки из API.
type LockResponse struct {
	Held         bool   `json:"held"`
	ResourceName string `json:"resource_name,omitempty"`
	HolderID     string `json:"holder_id,omitempty"`
	AcquiredAt   string `json:"acquired_at,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
}

// ExecutionResponse — запись журнала идемпотентности из API.
type ExecutionResponse struct {
	ExecutionID  string `json:"execution_id"`
	SubjectID    string `json:"subject_id"`
	JobID        string `json:"job_id"`
	Period       string `json:"period"`
	Status       string `json:"status"`
	Attempt      int    `json:"attempt"`
	StartedAt    string `json:"started_at,omitempty"`
	FinishedAt   string `json:"finished_at,omitempty"`
	ErrorSummary string `json:"error_summary,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// StatsResponse — агрегированная статистика из API.
type StatsResponse struct {
	Window      string  `json:"window"`
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Running     int     `json:"running"`
	SuccessRate float64 `json:"success_rate"`
	AvgDuration string  `json:"avg_duration"`
}

// ReleaseLockResponse — результат снятия блокировки из API.
type ReleaseLockResponse struct {
	Released bool `json:"released"`
}

// ClearQueueResponse — результат очистки очереди из API.
type ClearQueueResponse struct {
	Cleared int `json:"cleared"`
}

// ListExecutionsOpts — параметры фильтрации executions.
type ListExecutionsOpts struct {
	Status string
	Limit  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Cadence Health Facade.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient создаёт клиент для API. Token обязателен для всех
// команд: весь /api/v1 закрыт bearer-аутентификацией.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Health ---

// GetHealth возвращает сводное состояние координатора.
func (c *Client) GetHealth() (*HealthResponse, error) {
	var health HealthResponse
	err := c.get("/api/v1/health", &health)
	return &health, err
}

// --- Executions ---

// ListExecutions возвращает последние записи журнала.
func (c *Client) ListExecutions(opts ListExecutionsOpts) ([]ExecutionResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var executions []ExecutionResponse
	err := c.list("/api/v1/executions", params, &executions)
	return executions, err
}

// GetStats возвращает агрегированную статистику за окно в часах.
// hours <= 0 — окно по умолчанию на стороне сервера.
func (c *Client) GetStats(hours int) (*StatsResponse, error) {
	path := "/api/v1/stats"
	if hours > 0 {
		params := url.Values{}
		params.Set("hours", fmt.Sprintf("%d", hours))
		path = path + "?" + params.Encode()
	}

	var stats StatsResponse
	err := c.get(path, &stats)
	return &stats, err
}

// --- Circuit breaker ---

// GetBreaker возвращает состояние circuit breaker'а.
func (c *Client) GetBreaker() (*BreakerResponse, error) {
	var breaker BreakerResponse
	err := c.get("/api/v1/circuit-breaker", &breaker)
	return &breaker, err
}

// ResetBreaker принудительно закрывает circuit breaker.
func (c *Client) ResetBreaker() (*BreakerResponse, error) {
	var breaker BreakerResponse
	err := c.post("/api/v1/circuit-breaker/reset", nil, &breaker)
	return &breaker, err
}

// --- Queue ---

// GetQueue возвращает счётчики очереди.
func (c *Client) GetQueue() (*QueueResponse, error) {
	var queue QueueResponse
	err := c.get("/api/v1/queue", &queue)
	return &queue, err
}

// ClearQueue удаляет поставленные, но не начатые jobs.
func (c *Client) ClearQueue() (*ClearQueueResponse, error) {
	var cleared ClearQueueResponse
	err := c.post("/api/v1/queue/clear", nil, &cleared)
	return &cleared, err
}

// --- Lock ---

// GetLock возвращает текущую аренду блокировки.
func (c *Client) GetLock() (*LockResponse, error) {
	var lock LockResponse
	err := c.get("/api/v1/lock", &lock)
	return &lock, err
}

// ReleaseLock принудительно снимает аренду с указанного holder'а.
func (c *Client) ReleaseLock(holderID string) (*ReleaseLockResponse, error) {
	body := map[string]string{"holder_id": holderID}
	var released ReleaseLockResponse
	err := c.post("/api/v1/lock/release", body, &released)
	return &released, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
