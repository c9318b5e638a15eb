package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// TaskResponse — задача из API.
type TaskResponse struct {
	ID                string `json:"id"`
	Owner             string `json:"owner"`
	Mode              string `json:"mode"`
	Source            string `json:"source"`
	Destination       string `json:"destination"`
	PoolSet           string `json:"pool_set,omitempty"`
	SourceFileID      uint64 `json:"source_file_id"`
	DestinationFileID uint64 `json:"destination_file_id"`
	FileType          string `json:"file_type"`
	IsLazy            bool   `json:"is_lazy"`
	Step              string `json:"step"`
	Status            string `json:"status"`
	Progress          int    `json:"progress"`
	Error             string `json:"error,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
	FinishedAt        string `json:"finished_at,omitempty"`
}

// --- Request types ---

// CreateTaskRequest — создание задачи клонирования или восстановления.
type CreateTaskRequest struct {
	Owner       string `json:"owner"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	PoolSet     string `json:"pool_set,omitempty"`
	FileType    string `json:"file_type,omitempty"`
	IsLazy      bool   `json:"is_lazy,omitempty"`
}

// ListTasksOpts — параметры фильтрации задач.
type ListTasksOpts struct {
	Status string
	Mode   string
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

// APIError — ошибка, которую вернул сервер.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для snapclone API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateClone создаёт задачу клонирования.
func (c *Client) CreateClone(ctx context.Context, req CreateTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post(ctx, "/api/v1/clones", req, &task)
	return &task, err
}

// CreateRecover создаёт задачу восстановления.
func (c *Client) CreateRecover(ctx context.Context, req CreateTaskRequest) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post(ctx, "/api/v1/recovers", req, &task)
	return &task, err
}

// ListTasks возвращает список задач с фильтрацией.
func (c *Client) ListTasks(ctx context.Context, opts ListTasksOpts) ([]TaskResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Mode != "" {
		params.Set("mode", opts.Mode)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var tasks []TaskResponse
	err := c.list(ctx, "/api/v1/tasks", params, &tasks)
	return tasks, err
}

// GetTask возвращает задачу по ID.
func (c *Client) GetTask(ctx context.Context, id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.get(ctx, "/api/v1/tasks/"+url.PathEscape(id), &task)
	return &task, err
}

// FlattenTask запускает копирование данных ленивой задачи.
func (c *Client) FlattenTask(ctx context.Context, id string) (*TaskResponse, error) {
	var task TaskResponse
	err := c.post(ctx, "/api/v1/tasks/"+url.PathEscape(id)+"/flatten", nil, &task)
	return &task, err
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
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

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
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

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		apiErr.Code = er.Error.Code
		apiErr.Message = er.Error.Message
	}
	return apiErr
}
