package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shaiso/mlpipe/internal/config"
	"github.com/shaiso/mlpipe/internal/domain"
	"github.com/shaiso/mlpipe/internal/inference"
	"github.com/shaiso/mlpipe/internal/tracker"
)

// Pipeline — операции оркестратора, доступные API.
type Pipeline interface {
	Submit(ctx context.Context, filename string, src io.Reader) (*domain.Run, error)
	Clear(ctx context.Context) error
	Active() (*domain.Run, bool)
	Runs(ctx context.Context, limit int) ([]domain.Run, error)
	Run(ctx context.Context, id uuid.UUID) (*domain.Run, error)
}

// Predictor — proxy к inference worker'у.
type Predictor interface {
	Predict(ctx context.Context, payload []byte) (*inference.Response, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	pipeline  Pipeline
	tracker   *tracker.Tracker
	predictor Predictor
	settings  *config.Config
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Pipeline  Pipeline
	Tracker   *tracker.Tracker
	Predictor Predictor
	Settings  *config.Config
	Logger    *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline:  cfg.Pipeline,
		tracker:   cfg.Tracker,
		predictor: cfg.Predictor,
		settings:  cfg.Settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Web-интерфейс может жить на другом origin, как и для REST (CORS).
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}
