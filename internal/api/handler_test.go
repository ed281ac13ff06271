package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/mlpipe/internal/config"
	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/inference"
	"github.com/shaiso/mlpipe/internal/orchestrator"
	"github.com/shaiso/mlpipe/internal/tracker"
)

type fakePipeline struct {
	mu        sync.Mutex
	submitted map[string]string
	submitErr error
	clearErr  error
	cleared   int
	runs      []domain.Run
	active    *domain.Run
}

func (f *fakePipeline) Submit(_ context.Context, filename string, src io.Reader) (*domain.Run, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	name, err := orchestrator.ValidateUpload(filename)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitted == nil {
		f.submitted = map[string]string{}
	}
	f.submitted[name] = string(data)
	return domain.NewRun(name), nil
}

func (f *fakePipeline) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return f.clearErr
}

func (f *fakePipeline) Active() (*domain.Run, bool) {
	return f.active, f.active != nil
}

func (f *fakePipeline) Runs(_ context.Context, limit int) ([]domain.Run, error) {
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakePipeline) Run(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, orchestrator.ErrRunNotFound
}

type fakePredictor struct {
	resp    *inference.Response
	err     error
	payload []byte
}

func (f *fakePredictor) Predict(_ context.Context, payload []byte) (*inference.Response, error) {
	f.payload = payload
	return f.resp, f.err
}

type testAPI struct {
	mux       *http.ServeMux
	pipeline  *fakePipeline
	predictor *fakePredictor
	tracker   *tracker.Tracker
	cfg       *config.Config
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{DataPath: t.TempDir(), MaxUploadSize: 1 << 20}
	require.NoError(t, cfg.EnsureDirs())

	ta := &testAPI{
		mux:       http.NewServeMux(),
		pipeline:  &fakePipeline{},
		predictor: &fakePredictor{},
		tracker:   tracker.New(logger),
		cfg:       cfg,
	}
	NewHandler(Config{
		Pipeline:  ta.pipeline,
		Tracker:   ta.tracker,
		Predictor: ta.predictor,
		Settings:  cfg,
		Logger:    logger,
	}).RegisterRoutes(ta.mux)
	return ta
}

func (ta *testAPI) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ta.mux.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("other", "x"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(&DataResponse{Data: v}))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error
}

func TestUpload(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(uploadRequest(t, "Online Retail.xlsx", "excel-bytes"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp UploadResponse
	decodeData(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "Online_Retail.xlsx", resp.Filename)
	assert.NotEqual(t, uuid.Nil, resp.RunID)
	assert.Equal(t, "excel-bytes", ta.pipeline.submitted["Online_Retail.xlsx"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		submitErr error
		status    int
		code      ErrorCode
	}{
		{"unsupported format", "notes.txt", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"no file part", "", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"run active", "data.csv", orchestrator.ErrRunAlreadyActive, http.StatusConflict, ErrCodeConflict},
		{"stopped", "data.csv", orchestrator.ErrOrchestratorStopped, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"internal", "data.csv", errors.New("disk full"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestAPI(t)
			ta.pipeline.submitErr = tt.submitErr

			w := ta.do(uploadRequest(t, tt.filename, "data"))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
			assert.Empty(t, ta.pipeline.submitted)
		})
	}
}

func TestUpload_NotMultipart(t *testing.T) {
	ta := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")

	w := ta.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatus(t *testing.T) {
	ta := newTestAPI(t)
	require.NoError(t, ta.tracker.Update(domain.PhaseUpload, domain.PhaseStatusCompleted, "file data.csv uploaded"))

	w := ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var status domain.PipelineStatus
	decodeData(t, w, &status)
	assert.Equal(t, domain.PhaseUpload, status.CurrentPhase)
	assert.Equal(t, domain.PhaseStatusCompleted, status.Phases[domain.PhaseUpload].Status)
	assert.Equal(t, domain.PhaseStatusPending, status.Phases[domain.PhaseTraining].Status)
	assert.NotEmpty(t, status.Logs)
}

func TestClear(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(httptest.NewRequest(http.MethodPost, "/api/v1/clear", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp ClearResponse
	decodeData(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, ta.pipeline.cleared)

	ta.pipeline.clearErr = orchestrator.ErrRunAlreadyActive
	w = ta.do(httptest.NewRequest(http.MethodPost, "/api/v1/clear", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	// GET не зарегистрирован.
	w = ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/clear", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestDatasetPreview(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/dataset/preview", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, os.WriteFile(ta.cfg.ProcessedPath(config.CleanedCSV),
		[]byte("Quantity,Country\n6,France\n2,EIRE\n"), 0o644))

	w = ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/dataset/preview", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var preview struct {
		Rows        int               `json:"rows"`
		Columns     int               `json:"columns"`
		ColumnNames []string          `json:"column_names"`
		Source      string            `json:"source"`
		SampleData  []map[string]any  `json:"sample_data"`
		Dtypes      map[string]string `json:"dtypes"`
	}
	decodeData(t, w, &preview)
	assert.Equal(t, 2, preview.Rows)
	assert.Equal(t, 2, preview.Columns)
	assert.Equal(t, "processed", preview.Source)
	assert.Equal(t, "int64", preview.Dtypes["Quantity"])
	assert.Equal(t, "France", preview.SampleData[0]["Country"])
}

func TestModelInfo(t *testing.T) {
	ta := newTestAPI(t)
	require.NoError(t, os.WriteFile(ta.cfg.ModelPath(config.ModelFile), []byte("m"), 0o644))
	require.NoError(t, os.WriteFile(ta.cfg.ProcessedPath(config.CountryMapping), []byte(`{"France": 1}`), 0o644))

	w := ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/model/info", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info map[string]any
	decodeData(t, w, &info)
	assert.Equal(t, true, info["model_exists"])
	assert.Equal(t, false, info["scaler_exists"])
	assert.Equal(t, true, info["country_mapping_exists"])
	assert.Equal(t, []any{"France"}, info["countries"])
	assert.NotContains(t, info, "features")
}

func TestPredict_Relay(t *testing.T) {
	ta := newTestAPI(t)
	ta.predictor.resp = &inference.Response{
		StatusCode:  http.StatusBadRequest,
		ContentType: "application/json",
		Body:        []byte(`{"error":"missing field Quantity"}`),
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", strings.NewReader(`{"Country":"France"}`))
	w := ta.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"missing field Quantity"}`, w.Body.String())
	assert.JSONEq(t, `{"Country":"France"}`, string(ta.predictor.payload))
}

func TestPredict_Unavailable(t *testing.T) {
	ta := newTestAPI(t)
	ta.predictor.err = &domain.ServiceUnavailableError{URL: "http://inference:5000/predict", Err: errors.New("connection refused")}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", strings.NewReader(`{}`))
	w := ta.do(req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, ErrCodeServiceUnavailable, decodeError(t, w).Code)

	logs := ta.tracker.Snapshot().Logs
	require.NotEmpty(t, logs)
	assert.Equal(t, domain.LogLevelError, logs[len(logs)-1].Level)
}

func TestPredict_InvalidJSON(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(httptest.NewRequest(http.MethodPost, "/api/v1/predict", strings.NewReader(`{not json`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, ta.predictor.payload)
}

func TestRuns(t *testing.T) {
	ta := newTestAPI(t)
	run := domain.NewRun("data.csv")
	ta.pipeline.runs = []domain.Run{*run, *domain.NewRun("old.csv")}

	w := ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list ListResponse
	var runs []RunResponse
	list.Data = &runs
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	w = ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got RunResponse
	decodeData(t, w, &got)
	assert.Equal(t, "data.csv", got.Filename)

	w = ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActiveRun(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/active", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	ta.pipeline.active = domain.NewRun("data.csv")
	w = ta.do(httptest.NewRequest(http.MethodGet, "/api/v1/runs/active", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got RunResponse
	decodeData(t, w, &got)
	assert.Equal(t, ta.pipeline.active.ID, got.ID)
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStatusWS(t *testing.T) {
	ta := newTestAPI(t)
	srv := httptest.NewServer(ta.mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/status/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() (string, json.RawMessage) {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		return msg.Type, msg.Data
	}

	typ, data := read()
	assert.Equal(t, "status_update", typ)
	var initial domain.PipelineStatus
	require.NoError(t, json.Unmarshal(data, &initial))
	assert.Equal(t, domain.PhaseIdle, initial.CurrentPhase)

	require.Eventually(t, func() bool { return ta.tracker.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, ta.tracker.Update(domain.PhaseUpload, domain.PhaseStatusCompleted, "file data.csv uploaded"))

	typ, data = read()
	assert.Equal(t, "new_log", typ)
	var entry domain.LogEntry
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Contains(t, entry.Message, "data.csv")

	typ, data = read()
	assert.Equal(t, "status_update", typ)
	var status domain.PipelineStatus
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, domain.PhaseStatusCompleted, status.Phases[domain.PhaseUpload].Status)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return ta.tracker.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
