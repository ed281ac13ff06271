package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// PhaseState — состояние фазы.
type PhaseState struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Message   string `json:"message"`
}

// LogEntry — запись журнала pipeline.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
	Level     string `json:"level"`
}

// StatusResponse — статус pipeline.
type StatusResponse struct {
	CurrentPhase string                `json:"current_phase"`
	Phases       map[string]PhaseState `json:"phases"`
	ModelReady   bool                  `json:"model_ready"`
	Logs         []LogEntry            `json:"logs"`
}

// UploadResponse — ответ на upload.
type UploadResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	RunID    string `json:"run_id"`
}

// PreviewResponse — превью датасета.
type PreviewResponse struct {
	Rows        int               `json:"rows"`
	Columns     int               `json:"columns"`
	ColumnNames []string          `json:"column_names"`
	Source      string            `json:"source"`
	SampleData  []map[string]any  `json:"sample_data"`
	Dtypes      map[string]string `json:"dtypes"`
	NullCounts  map[string]int    `json:"null_counts"`
}

// ModelInfoResponse — сведения о модели.
type ModelInfoResponse struct {
	ModelExists            bool     `json:"model_exists"`
	ScalerExists           bool     `json:"scaler_exists"`
	ColumnsExists          bool     `json:"columns_exists"`
	CountryMappingExists   bool     `json:"country_mapping_exists"`
	StockCodeMappingExists bool     `json:"stockcode_mapping_exists"`
	Features               []string `json:"features,omitempty"`
	Countries              []string `json:"countries,omitempty"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	FailedPhase string `json:"failed_phase,omitempty"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
}

// PredictResult — ответ inference worker'а как есть.
type PredictResult struct {
	StatusCode int
	Body       json.RawMessage
}

// StatusEvent — сообщение канала статуса.
type StatusEvent struct {
	Type   string
	Status *StatusResponse
	Log    *LogEntry
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

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// --- Client ---

// Client — HTTP-клиент API pipeline.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Upload до 100 MB.
			Timeout: 5 * time.Minute,
		},
	}
}

// --- Pipeline ---

// Upload загружает файл датасета и запускает pipeline.
func (c *Client) Upload(path string) (*UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/api/v1/upload", pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result UploadResponse
	if err := c.decodeData(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status возвращает снимок статуса pipeline.
func (c *Client) Status() (*StatusResponse, error) {
	var status StatusResponse
	err := c.get("/api/v1/status", &status)
	return &status, err
}

// Clear останавливает inference worker и удаляет данные.
func (c *Client) Clear() error {
	return c.post("/api/v1/clear", nil, nil)
}

// WatchStatus читает канал статуса и вызывает fn на каждое событие,
// пока ctx не отменён, fn не вернёт ошибку или сервер не закроет канал.
func (c *Client) WatchStatus(ctx context.Context, fn func(StatusEvent) error) error {
	u, err := url.Parse(c.baseURL + "/api/v1/status/ws")
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect status channel: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		ev := StatusEvent{Type: msg.Type}
		switch msg.Type {
		case "new_log":
			ev.Log = &LogEntry{}
			err = json.Unmarshal(msg.Data, ev.Log)
		default:
			ev.Status = &StatusResponse{}
			err = json.Unmarshal(msg.Data, ev.Status)
		}
		if err != nil {
			return fmt.Errorf("failed to decode %s event: %w", msg.Type, err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

// --- Artifacts ---

// Preview возвращает превью датасета.
func (c *Client) Preview() (*PreviewResponse, error) {
	var p PreviewResponse
	err := c.get("/api/v1/dataset/preview", &p)
	return &p, err
}

// ModelInfo возвращает сведения о модели.
func (c *Client) ModelInfo() (*ModelInfoResponse, error) {
	var info ModelInfoResponse
	err := c.get("/api/v1/model/info", &info)
	return &info, err
}

// Predict отправляет запрос inference worker'у через API. Ответ worker'а
// возвращается как есть, ошибкой считается только ответ API (503 и т.п.).
func (c *Client) Predict(payload json.RawMessage) (*PredictResult, error) {
	resp, err := c.do(http.MethodPost, "/api/v1/predict", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var er errorResponse
	if resp.StatusCode >= 400 && json.Unmarshal(body, &er) == nil && er.Error.Code != "" {
		return nil, fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
	}
	return &PredictResult{StatusCode: resp.StatusCode, Body: body}, nil
}

// --- Runs ---

// ListRuns возвращает последние runs.
func (c *Client) ListRuns(limit int) ([]RunResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+url.PathEscape(id), &run)
	return &run, err
}

// ActiveRun возвращает выполняющийся run.
func (c *Client) ActiveRun() (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/active", &run)
	return &run, err
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

	return c.decodeData(resp, result)
}

func (c *Client) decodeData(resp *http.Response, result any) error {
	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
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

	return c.httpClient.Do(req)
}

// ErrAPI — ошибка, возвращённая API.
var ErrAPI = errors.New("API error")

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("%w: HTTP %d", ErrAPI, resp.StatusCode)
	}

	return fmt.Errorf("%w: %s: %s", ErrAPI, er.Error.Code, er.Error.Message)
}
