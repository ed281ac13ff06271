// Package config собирает конфигурацию сервиса из переменных окружения.
//
// Все значения имеют defaults, совместимые с docker-compose окружением
// pipeline: данные в /app/data внутри контейнера сервиса, worker'ы
// монтируют тот же каталог хоста в /data.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Канонические имена файлов. Каждый stage ожидает вход под фиксированным именем.
const (
	CanonicalExcel   = "OnlineRetail.xlsx"
	CanonicalCSV     = "OnlineRetail.csv"
	CleanedCSV       = "OnlineRetail_cleaned.csv"
	ModelFile        = "model.pkl"
	ScalerFile       = "scaler.pkl"
	ColumnsFile      = "columns.pkl"
	CountryMapping   = "country_mapping.json"
	StockCodeMapping = "stockcode_mapping.json"
)

// Подкаталоги data root.
const (
	DirRaw       = "raw"
	DirProcessed = "processed"
	DirModel     = "model"
)

// DataDirs — подкаталоги, которые очищает Clear и создаёт старт сервиса.
var DataDirs = []string{DirRaw, DirProcessed, DirModel}

// Backend — реализация среды выполнения worker'ов.
type Backend string

const (
	BackendDocker  Backend = "docker"
	BackendProcess Backend = "process"
)

// Images — образы worker'ов по stage.
type Images struct {
	Converter string
	Cleaning  string
	Training  string
	Inference string
}

// Timeouts — таймауты stage и inference.
type Timeouts struct {
	Conversion   time.Duration
	Cleaning     time.Duration
	Training     time.Duration
	SettleDelay  time.Duration
	Probe        time.Duration
	Predict      time.Duration
	ShutdownWait time.Duration
}

// Config — конфигурация сервиса.
type Config struct {
	// DataPath — data root, видимый этому процессу.
	DataPath string

	// HostDataPath — data root на хосте, используется для volume binding.
	HostDataPath string

	// WorkerDataPath — точка монтирования data root внутри worker'ов.
	WorkerDataPath string

	Images Images

	// InferenceContainer — имя долгоживущего inference worker'а.
	InferenceContainer string
	InferencePort      int
	InferenceURL       string

	// NetworkFilter / NetworkDefault — поиск общей сети runtime.
	NetworkFilter  string
	NetworkDefault string

	Timeouts Timeouts

	// ProbeFallback — разрешить fallback на running-state при неудачном probe.
	ProbeFallback bool

	Backend Backend

	// StageCommands — argv по образу для process backend.
	StageCommands map[string][]string

	APIPort       string
	MaxUploadSize int64
	MinFreeDiskMB uint64

	// DBURL / RabbitMQURL — опциональные зависимости, пусто = выключено.
	DBURL       string
	RabbitMQURL string
}

// Load читает конфигурацию из окружения.
func Load() (*Config, error) {
	cfg := &Config{
		DataPath:       getEnv("DATA_PATH", "/app/data"),
		WorkerDataPath: getEnv("WORKER_DATA_PATH", "/data"),
		Images: Images{
			Converter: getEnv("CONVERTER_IMAGE", "ml-pipeline-converter"),
			Cleaning:  getEnv("CLEANING_IMAGE", "ml-pipeline-cleaning"),
			Training:  getEnv("TRAINING_IMAGE", "ml-pipeline-training"),
			Inference: getEnv("INFERENCE_IMAGE", "ml-pipeline-inference"),
		},
		InferenceContainer: getEnv("INFERENCE_CONTAINER", "ml_inference_service"),
		NetworkFilter:      getEnv("NETWORK_FILTER", "ml_pipeline_network"),
		NetworkDefault:     getEnv("NETWORK_DEFAULT", "ml_pipeline_network"),
		Backend:            Backend(getEnv("RUNTIME_BACKEND", string(BackendDocker))),
		APIPort:            getEnv("API_PORT", "8080"),
		DBURL:              os.Getenv("DB_URL"),
		RabbitMQURL:        os.Getenv("RABBITMQ_URL"),
	}
	// HOST_DATA_PATH задаётся в docker-compose; без него считаем, что
	// сервис запущен прямо на хосте.
	cfg.HostDataPath = getEnv("HOST_DATA_PATH", cfg.DataPath)

	var err error
	if cfg.InferencePort, err = getInt("INFERENCE_PORT", 5000); err != nil {
		return nil, err
	}
	cfg.InferenceURL = getEnv("INFERENCE_URL",
		fmt.Sprintf("http://%s:%d", cfg.InferenceContainer, cfg.InferencePort))

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"CONVERSION_TIMEOUT", 300 * time.Second, &cfg.Timeouts.Conversion},
		{"CLEANING_TIMEOUT", 300 * time.Second, &cfg.Timeouts.Cleaning},
		{"TRAINING_TIMEOUT", 600 * time.Second, &cfg.Timeouts.Training},
		{"INFERENCE_SETTLE_DELAY", 5 * time.Second, &cfg.Timeouts.SettleDelay},
		{"PROBE_TIMEOUT", 10 * time.Second, &cfg.Timeouts.Probe},
		{"PREDICT_TIMEOUT", 5 * time.Second, &cfg.Timeouts.Predict},
		{"SHUTDOWN_TIMEOUT", 10 * time.Second, &cfg.Timeouts.ShutdownWait},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if cfg.ProbeFallback, err = getBool("PROBE_FALLBACK", true); err != nil {
		return nil, err
	}

	maxUploadMB, err := getInt("MAX_UPLOAD_MB", 100)
	if err != nil {
		return nil, err
	}
	if maxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", maxUploadMB)
	}
	cfg.MaxUploadSize = int64(maxUploadMB) << 20

	minFree, err := getInt("MIN_FREE_DISK_MB", 512)
	if err != nil {
		return nil, err
	}
	if minFree < 0 {
		return nil, fmt.Errorf("MIN_FREE_DISK_MB must not be negative, got %d", minFree)
	}
	cfg.MinFreeDiskMB = uint64(minFree)

	if raw := os.Getenv("STAGE_COMMANDS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.StageCommands); err != nil {
			return nil, fmt.Errorf("parse STAGE_COMMANDS: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность конфигурации.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendDocker:
	case BackendProcess:
		if len(c.StageCommands) == 0 {
			return fmt.Errorf("RUNTIME_BACKEND=process requires STAGE_COMMANDS")
		}
	default:
		return fmt.Errorf("unknown RUNTIME_BACKEND %q", c.Backend)
	}
	if c.InferencePort <= 0 || c.InferencePort > 65535 {
		return fmt.Errorf("invalid INFERENCE_PORT %d", c.InferencePort)
	}
	if c.DataPath == "" {
		return fmt.Errorf("DATA_PATH must not be empty")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("invalid upload size limit %d", c.MaxUploadSize)
	}
	return nil
}

// Path возвращает путь внутри data root этого процесса.
func (c *Config) Path(elem ...string) string {
	return filepath.Join(append([]string{c.DataPath}, elem...)...)
}

// RawPath — путь к файлу в raw/.
func (c *Config) RawPath(name string) string { return c.Path(DirRaw, name) }

// ProcessedPath — путь к файлу в processed/.
func (c *Config) ProcessedPath(name string) string { return c.Path(DirProcessed, name) }

// ModelPath — путь к файлу в model/.
func (c *Config) ModelPath(name string) string { return c.Path(DirModel, name) }

// EnsureDirs создаёт raw/, processed/ и model/ внутри data root.
func (c *Config) EnsureDirs() error {
	for _, d := range DataDirs {
		if err := os.MkdirAll(c.Path(d), 0o755); err != nil {
			return fmt.Errorf("create data dir %s: %w", d, err)
		}
	}
	return nil
}

// DataVolume — привязка data root хоста к точке монтирования worker'а.
func (c *Config) DataVolume() (host, container string) {
	return c.HostDataPath, c.WorkerDataPath
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

// getDuration принимает Go duration ("90s") или целое число секунд.
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
